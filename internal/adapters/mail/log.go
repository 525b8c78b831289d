package mail

import (
	"context"

	"github.com/rs/zerolog/log"

	"portfolio_reviews/internal/domain"
)

// LogSender only logs; used when no provider is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, m domain.Message) error {
	log.Info().Str("to", m.To).Str("subject", m.Subject).Int("text_len", len(m.Text)).Msg("mail (log only)")
	return nil
}
