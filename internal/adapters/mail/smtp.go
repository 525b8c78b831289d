package mail

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"portfolio_reviews/internal/adapters/observability"
	"portfolio_reviews/internal/domain"
)

type SMTPSender struct {
	addr string
	host string
	auth smtp.Auth
	from string

	// swapped in tests
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(host, port, user, pass, from string) (*SMTPSender, error) {
	if host == "" {
		return nil, fmt.Errorf("SMTP_HOST is required")
	}
	if port == "" {
		port = "587"
	}
	if from == "" {
		from = user
	}
	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, pass, host)
	}
	return &SMTPSender{addr: host + ":" + port, host: host, auth: auth, from: from, sendMail: smtp.SendMail}, nil
}

// Send ignores ctx cancellation once the SMTP dialogue has started; net/smtp has no context support.
func (s *SMTPSender) Send(ctx context.Context, m domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := s.sendMail(s.addr, s.auth, s.from, []string{m.To}, buildMIME(s.from, m))
	status := 250
	if err != nil {
		status = 0
	}
	observability.ObserveExternal("smtp", "send", status, time.Since(start))
	if err != nil {
		return fmt.Errorf("smtp send to %s: %w", s.host, err)
	}
	return nil
}

// headerValue folds CR and LF into spaces so a value cannot start a new header.
func headerValue(v string) string {
	return strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(v)
}

func buildMIME(from string, m domain.Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + headerValue(from) + "\r\n")
	b.WriteString("To: " + headerValue(m.To) + "\r\n")
	if m.ReplyTo != "" {
		b.WriteString("Reply-To: " + headerValue(m.ReplyTo) + "\r\n")
	}
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", headerValue(m.Subject)) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	if m.HTML == "" {
		b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		b.WriteString(m.Text)
		return []byte(b.String())
	}
	const boundary = "review-mail-boundary"
	b.WriteString("Content-Type: multipart/alternative; boundary=\"" + boundary + "\"\r\n\r\n")
	b.WriteString("--" + boundary + "\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(m.Text + "\r\n")
	b.WriteString("--" + boundary + "\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(m.HTML + "\r\n")
	b.WriteString("--" + boundary + "--\r\n")
	return []byte(b.String())
}
