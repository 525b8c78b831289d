package app

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"portfolio_reviews/internal/domain"
)

// Submission is the public review form.
type Submission struct {
	Name           string   `json:"name" validate:"required,singleline,min=2,max=100"`
	Email          string   `json:"email" validate:"required,email,max=254"`
	Organization   string   `json:"organization" validate:"omitempty,singleline,max=100"`
	Role           string   `json:"role" validate:"omitempty,singleline,max=100"`
	Relationship   string   `json:"relationship" validate:"required,oneof=colleague client manager collaborator mentor other"`
	LinkedInURL    string   `json:"linkedinUrl" validate:"omitempty,url,max=300"`
	Rating         int      `json:"rating" validate:"required,min=1,max=5"`
	Testimonial    string   `json:"testimonial" validate:"required,min=50,max=2000"`
	Recommendation bool     `json:"recommendation"`
	ProjectContext string   `json:"projectContext" validate:"omitempty,max=500"`
	Skills         []string `json:"skills" validate:"omitempty,max=10,dive,min=1,max=50"`
	Consent        bool     `json:"consent" validate:"eq=true"`
	// Honeypot is a hidden form field; humans leave it empty.
	Honeypot string `json:"honeypot"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names, not Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// names end up in mail headers
	_ = v.RegisterValidation("singleline", func(fl validator.FieldLevel) bool {
		return strings.IndexFunc(fl.Field().String(), unicode.IsControl) < 0
	})
	return v
}

func (s *Submission) normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	s.Organization = strings.TrimSpace(s.Organization)
	s.Role = strings.TrimSpace(s.Role)
	s.Relationship = strings.ToLower(strings.TrimSpace(s.Relationship))
	s.LinkedInURL = strings.TrimSpace(s.LinkedInURL)
	s.Testimonial = strings.TrimSpace(s.Testimonial)
	s.ProjectContext = strings.TrimSpace(s.ProjectContext)
	skills := s.Skills[:0]
	for _, sk := range s.Skills {
		if sk = strings.TrimSpace(sk); sk != "" {
			skills = append(skills, sk)
		}
	}
	s.Skills = skills
}

// Validate checks the schema and returns a VALIDATION_ERROR listing the failing fields.
func (s Submission) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("validate submission: %w", err)
	}
	details := make(map[string]string, len(ves))
	for _, fe := range ves {
		details[fieldPath(fe)] = describe(fe)
	}
	return &domain.Error{Code: domain.CodeValidation, Message: "submission failed validation", Details: details}
}

// fieldPath drops the struct name prefix: "Submission.skills[0]" -> "skills[0]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param() + unit(fe)
	case "max":
		return "must be at most " + fe.Param() + unit(fe)
	case "eq":
		return "must be accepted"
	case "singleline":
		return "must not contain line breaks or control characters"
	default:
		return "is invalid"
	}
}

func unit(fe validator.FieldError) string {
	switch fe.Kind() {
	case reflect.String:
		return " characters"
	case reflect.Slice:
		return " items"
	}
	return ""
}
