package app

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/rs/zerolog/log"

	"portfolio_reviews/internal/domain"
)

var verifyText = template.Must(template.New("verify").Parse(`Hi {{.Name}},

Thank you for taking the time to write a testimonial.

Please confirm your email address by opening the link below within {{.Window}}:

{{.Link}}

If you did not submit a review, you can ignore this message.
`))

var verifyHTML = htmltemplate.Must(htmltemplate.New("verify").Parse(`<p>Hi {{.Name}},</p>
<p>Thank you for taking the time to write a testimonial.</p>
<p><a href="{{.Link}}">Confirm your email address</a> within {{.Window}} to submit it for review.</p>
<p>If you did not submit a review, you can ignore this message.</p>
`))

var adminText = template.Must(template.New("admin").Parse(`A review was verified and is waiting for moderation.

From:         {{.Name}} <{{.Email}}>
Organization: {{.Organization}}
Relationship: {{.Relationship}}
Rating:       {{.Rating}}/5

{{.Testimonial}}

Review ID: {{.ID}}
`))

type verifyData struct{ Name, Link, Window string }

type adminData struct {
	ID, Name, Email, Organization, Relationship, Testimonial string
	Rating                                                    int
}

// Notifier composes workflow emails and delivers them in the background.
// Delivery failures are logged and dropped.
type Notifier struct {
	mailer     domain.Mailer
	baseURL    string
	adminEmail string
	window     time.Duration
	timeout    time.Duration
	wg         sync.WaitGroup
}

// NewNotifier builds a Notifier. window is the verification window quoted in
// confirmation emails; a non-positive value means domain.VerificationWindow.
func NewNotifier(m domain.Mailer, publicBaseURL, adminEmail string, window time.Duration) *Notifier {
	if window <= 0 {
		window = domain.VerificationWindow
	}
	return &Notifier{
		mailer:     m,
		baseURL:    strings.TrimRight(publicBaseURL, "/"),
		adminEmail: adminEmail,
		window:     window,
		timeout:    30 * time.Second,
	}
}

// Drain blocks until queued deliveries finish or ctx is done.
func (n *Notifier) Drain(ctx context.Context) error {
	if n == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func windowText(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	hours := int((d + time.Hour - 1) / time.Hour)
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}

func (n *Notifier) verificationLink(r domain.Review) string {
	return n.baseURL + "/reviews/verify/" + url.PathEscape(r.ID) + "?token=" + url.QueryEscape(r.Verification.Token)
}

func (n *Notifier) SendVerification(ctx context.Context, r domain.Review) {
	if n == nil {
		return
	}
	data := verifyData{Name: r.Reviewer.Name, Link: n.verificationLink(r), Window: windowText(n.window)}
	var txt, html bytes.Buffer
	if err := verifyText.Execute(&txt, data); err != nil {
		log.Error().Err(err).Str("review_id", r.ID).Msg("render verification text failed")
		return
	}
	if err := verifyHTML.Execute(&html, data); err != nil {
		log.Error().Err(err).Str("review_id", r.ID).Msg("render verification html failed")
		return
	}
	n.send(ctx, r.ID, domain.Message{
		To:      r.Reviewer.Email,
		Subject: "Please confirm your testimonial",
		Text:    txt.String(),
		HTML:    html.String(),
		Tags:    map[string]string{"category": "review_verification"},
	})
}

func (n *Notifier) NotifyAdmin(ctx context.Context, r domain.Review) {
	if n == nil || n.adminEmail == "" {
		return
	}
	var txt bytes.Buffer
	if err := adminText.Execute(&txt, adminData{
		ID:           r.ID,
		Name:         r.Reviewer.Name,
		Email:        r.Reviewer.Email,
		Organization: deref(r.Reviewer.Organization),
		Relationship: r.Reviewer.Relationship,
		Testimonial:  r.Content.Testimonial,
		Rating:       r.Content.Rating,
	}); err != nil {
		log.Error().Err(err).Str("review_id", r.ID).Msg("render admin notification failed")
		return
	}
	n.send(ctx, r.ID, domain.Message{
		To:      n.adminEmail,
		ReplyTo: r.Reviewer.Email,
		Subject: "New verified review from " + r.Reviewer.Name,
		Text:    txt.String(),
		Tags:    map[string]string{"category": "review_admin_notification"},
	})
}

// send hands m to the mailer on its own goroutine so a slow provider never
// holds up the request that triggered it.
func (n *Notifier) send(ctx context.Context, reviewID string, m domain.Message) {
	if n == nil || n.mailer == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()
		if err := n.mailer.Send(ctx, m); err != nil {
			log.Warn().Err(err).Str("review_id", reviewID).Str("to", m.To).Msg("email delivery failed")
			return
		}
		log.Info().Str("review_id", reviewID).Str("subject", m.Subject).Msg("email sent")
	}()
}
