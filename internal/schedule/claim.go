package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"claimbot/internal/hoyolab"
)

// ExecutorConfig tunes the claim retry loop and the captcha hand-off.
type ExecutorConfig struct {
	RetryMax      int           // transient retries before Fatal (default 5)
	RetryDelay    time.Duration // pause between retries (default 1s)
	SolverBaseURL string        // optional external geetest solver root
}

func (c *ExecutorConfig) applyDefaults() {
	if c.RetryMax <= 0 {
		c.RetryMax = 5
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
}

// ClaimExecutor performs the daily check-in for one (owner, game) pair
// and classifies the result. It never touches the store.
type ClaimExecutor struct {
	client GameClient
	cfg    ExecutorConfig
	log    *slog.Logger

	// sleep is swapped in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClaimExecutor(client GameClient, cfg ExecutorConfig, log *slog.Logger) *ClaimExecutor {
	cfg.applyDefaults()
	return &ClaimExecutor{
		client: client,
		cfg:    cfg,
		log:    log.With(slog.String("comp", "claim")),
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Claim redeems one game's daily reward and settles the attempt into an
// outcome. Benign and user-action states settle immediately; everything
// unclassified is retried RetryMax times with RetryDelay between tries
// and then reported as Fatal.
func (e *ClaimExecutor) Claim(ctx context.Context, owner int64, game hoyolab.Game, cred hoyolab.Credential, solved *hoyolab.SolvedChallenge) ClaimOutcome {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			if err := e.sleep(ctx, e.cfg.RetryDelay); err != nil {
				return ClaimOutcome{Kind: OutcomeTransient, Err: err}
			}
		}

		reward, err := e.client.ClaimDailyReward(ctx, cred, game, solved)
		switch {
		case err == nil:
			return ClaimOutcome{Kind: OutcomeSuccess, Reward: reward}
		case errors.Is(err, hoyolab.ErrAlreadyClaimed):
			return ClaimOutcome{Kind: OutcomeAlreadyClaimed}
		case errors.Is(err, hoyolab.ErrInvalidCookies):
			return ClaimOutcome{Kind: OutcomeInvalidCredential}
		case hoyolab.IsNoCharacter(err):
			return ClaimOutcome{Kind: OutcomeKnownRejection, Message: "no game character on this account"}
		case hoyolab.IsServerBusy(err):
			return ClaimOutcome{Kind: OutcomeKnownRejection, Message: "check-in server is busy, try again later"}
		}

		var ge *hoyolab.GeetestError
		if errors.As(err, &ge) {
			return ClaimOutcome{Kind: OutcomeCaptchaRequired, Challenge: ge.Challenge}
		}

		lastErr = err
		e.log.Warn("claim attempt failed",
			slog.Int64("owner", owner),
			slog.String("game", string(game)),
			slog.Int("attempt", attempt+1),
			slog.Any("err", err))
	}
	return ClaimOutcome{Kind: OutcomeFatal, Err: lastErr}
}

// SolverURL builds the hand-off link for an unsolved captcha, or ""
// when no solver is configured.
func (e *ClaimExecutor) SolverURL(owner int64, game hoyolab.Game, ch hoyolab.GeetestChallenge) string {
	base := strings.TrimRight(e.cfg.SolverBaseURL, "/")
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/geetest/%s/%d?gt=%s&challenge=%s",
		base, game, owner, url.QueryEscape(ch.GT), url.QueryEscape(ch.Challenge))
}

// ClaimReport is the aggregated result of running every game of one
// DailyClaim entry.
type ClaimReport struct {
	Lines    []string
	Outcomes map[hoyolab.Game]ClaimOutcome
}

// ActionRequiredOnly reports whether every game ended in a state only
// the owner can fix. The clock deletes the entry in that case.
func (r ClaimReport) ActionRequiredOnly() bool {
	if len(r.Outcomes) == 0 {
		return false
	}
	for _, o := range r.Outcomes {
		if !o.ActionRequired() {
			return false
		}
	}
	return true
}

// ClaimAll runs the check-in for every game on the entry, each claim
// independent of the others, and renders one message line per game. The
// community check-in rides along best-effort once per entry.
func (e *ClaimExecutor) ClaimAll(ctx context.Context, entry DailyClaim, creds CredentialProvider) ClaimReport {
	report := ClaimReport{Outcomes: make(map[hoyolab.Game]ClaimOutcome, len(entry.Games))}
	community := false

	for _, game := range entry.Games {
		cred, err := creds.Credential(ctx, entry.Owner, game)
		if err != nil {
			if errors.Is(err, ErrNoCredential) {
				report.Outcomes[game] = ClaimOutcome{Kind: OutcomeInvalidCredential}
				report.Lines = append(report.Lines,
					fmt.Sprintf("⚠️ %s: no cookies stored", game.DisplayName()))
				continue
			}
			report.Outcomes[game] = ClaimOutcome{Kind: OutcomeTransient, Err: err}
			report.Lines = append(report.Lines,
				fmt.Sprintf("❌ %s: could not load credentials", game.DisplayName()))
			continue
		}

		if !community {
			community = true
			if err := e.client.ClaimCommunity(ctx, cred); err != nil && !errors.Is(err, hoyolab.ErrAlreadyClaimed) {
				e.log.Debug("community check-in failed", slog.Int64("owner", entry.Owner), slog.Any("err", err))
			}
		}

		out := e.Claim(ctx, entry.Owner, game, cred, nil)
		report.Outcomes[game] = out
		report.Lines = append(report.Lines, e.renderLine(entry.Owner, game, out))
	}
	return report
}

func (e *ClaimExecutor) renderLine(owner int64, game hoyolab.Game, out ClaimOutcome) string {
	name := game.DisplayName()
	switch out.Kind {
	case OutcomeSuccess:
		return fmt.Sprintf("✅ %s: %s ×%d", name, out.Reward.Name, out.Reward.Amount)
	case OutcomeAlreadyClaimed:
		return fmt.Sprintf("✅ %s: already claimed today", name)
	case OutcomeInvalidCredential:
		return fmt.Sprintf("⚠️ %s: cookies are invalid or expired, please renew them", name)
	case OutcomeCaptchaRequired:
		if u := e.SolverURL(owner, game, out.Challenge); u != "" {
			return fmt.Sprintf("🧩 %s: captcha required, solve it here: %s", name, u)
		}
		return fmt.Sprintf("🧩 %s: captcha required, claim manually on HoYoLAB today", name)
	case OutcomeKnownRejection:
		return fmt.Sprintf("❌ %s: %s", name, out.Message)
	case OutcomeTransient:
		return fmt.Sprintf("❌ %s: check-in interrupted, will retry", name)
	default:
		return fmt.Sprintf("❌ %s: check-in failed", name)
	}
}
