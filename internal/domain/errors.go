package domain

import (
	"errors"
	"net/http"
)

type Code string

const (
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeRateLimited       Code = "RATE_LIMIT_EXCEEDED"
	CodeNotFound          Code = "REVIEW_NOT_FOUND"
	CodeExpired           Code = "EXPIRED"
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeSpam              Code = "SPAM_DETECTED"
	CodeAlreadyVerified   Code = "ALREADY_VERIFIED"
	CodeInvalidToken      Code = "INVALID_TOKEN"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeInternal          Code = "INTERNAL_SERVER_ERROR"
)

// HTTPStatus maps a code onto the status the API answers with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeNotFound:
		return http.StatusNotFound
	case CodeExpired:
		return http.StatusGone
	case CodeValidation, CodeSpam, CodeInvalidToken:
		return http.StatusBadRequest
	case CodeAlreadyVerified, CodeInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a failure the API reports verbatim to the caller.
type Error struct {
	Code    Code
	Message string
	Details map[string]string
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

// Is matches any *Error with the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func NewError(code Code, msg string) *Error { return &Error{Code: code, Message: msg} }

var (
	ErrNotFound          = NewError(CodeNotFound, "review not found")
	ErrExpired           = NewError(CodeExpired, "verification link has expired")
	ErrAlreadyVerified   = NewError(CodeAlreadyVerified, "review has already been verified")
	ErrInvalidToken      = NewError(CodeInvalidToken, "verification token is invalid")
	ErrSpam              = NewError(CodeSpam, "submission rejected")
	ErrInvalidTransition = NewError(CodeInvalidTransition, "action not allowed in the current state")
	ErrUnauthorized      = NewError(CodeUnauthorized, "invalid or missing admin token")
)

// CodeOf extracts the API code carried by err, defaulting to INTERNAL_SERVER_ERROR.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
