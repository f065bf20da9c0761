// Package notify turns kit.Notifications into adapter sends. Delivery is
// rate limited across all callers; a failed send is terminal for the
// attempt and reported back to the caller, never retried here.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"golang.org/x/time/rate"

	"claimbot/internal/kit"
)

type Config struct {
	RatePerSec float64 // outbound messages per second (default 1)
	Burst      int     // limiter burst (default 5)
}

type Service struct {
	adapter kit.Adapter
	limiter *rate.Limiter
	log     *slog.Logger
}

func New(adapter kit.Adapter, cfg Config, log *slog.Logger) *Service {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return &Service{
		adapter: adapter,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log.With(slog.String("comp", "notify")),
	}
}

// Deliver sends one notification. A non-zero MentionID is rendered as an
// invisible HTML mention so the tagged user gets pinged without noise in
// the message body.
func (s *Service) Deliver(ctx context.Context, n kit.Notification) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	text := n.Text
	opts := n.Options
	if n.MentionID != 0 {
		// U+2060 word joiner as the anchor body: pings without rendering.
		text = fmt.Sprintf("<a href=\"tg://user?id=%d\">⁠</a>%s", n.MentionID, html.EscapeString(n.Text))
		opts = &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	}

	_, err := s.adapter.SendText(ctx, n.Target, text, opts)
	if err != nil {
		s.log.Warn("delivery failed",
			slog.Int64("chat", n.Target.ChatID),
			slog.Any("err", err))
		return err
	}
	return nil
}
