package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"portfolio_reviews/internal/domain"
)

func TestSMTPSender_BuildsMultipartMessage(t *testing.T) {
	s, err := NewSMTP("smtp.example.dev", "", "user@example.dev", "pw", "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var addr string
	var body []byte
	s.sendMail = func(a string, _ smtp.Auth, from string, to []string, msg []byte) error {
		addr, body = a, msg
		return nil
	}

	err = s.Send(context.Background(), domain.Message{
		To: "ada@example.com", ReplyTo: "x@example.com", Subject: "Verify", Text: "plain", HTML: "<p>html</p>",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if addr != "smtp.example.dev:587" {
		t.Fatalf("unexpected addr %q", addr)
	}
	out := string(body)
	for _, want := range []string{"From: user@example.dev", "Reply-To: x@example.com", "multipart/alternative", "plain", "<p>html</p>"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestSMTPSender_WrapsErrors(t *testing.T) {
	s, _ := NewSMTP("smtp.example.dev", "25", "", "", "noreply@example.dev")
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("552 mailbox full") }
	if err := s.Send(context.Background(), domain.Message{To: "a@b.c", Text: "t"}); err == nil || !strings.Contains(err.Error(), "mailbox full") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestBuildMIME_HeadersStayOnOneLine(t *testing.T) {
	out := string(buildMIME("reviews@example.dev", domain.Message{
		To:      "owner@example.dev",
		ReplyTo: "eve@example.org\r\nCc: victim@example.org",
		Subject: "New verified review from Eve\r\nBcc: victim@example.org\r\nX-Injected: yes",
		Text:    "body",
	}))
	head := out[:strings.Index(out, "\r\n\r\n")]
	for _, line := range strings.Split(head, "\r\n") {
		for _, bad := range []string{"Bcc:", "Cc:", "X-Injected:"} {
			if strings.HasPrefix(line, bad) {
				t.Fatalf("injected header %q in:\n%s", line, head)
			}
		}
	}
	if !strings.Contains(head, "Subject: New verified review from Eve Bcc: victim@example.org X-Injected: yes") {
		t.Fatalf("subject not folded onto one line:\n%s", head)
	}
}

func TestBuildMIME_EncodesNonASCIISubject(t *testing.T) {
	out := string(buildMIME("reviews@example.dev", domain.Message{To: "o@example.dev", Subject: "New verified review from Zoë", Text: "b"}))
	if !strings.Contains(out, "Subject: =?utf-8?q?New_verified_review_from_Zo=C3=AB?=\r\n") {
		t.Fatalf("subject not RFC 2047 encoded:\n%s", out)
	}
}
