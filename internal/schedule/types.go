// Package schedule is the domain core of the recurring-task scheduler:
// the persisted entry types, the next-occurrence calculator, the claim
// executor, the notes threshold evaluator and the task clock that drives
// them. Everything here talks to the outside world through the narrow
// interfaces at the bottom of this file.
package schedule

import (
	"context"
	"errors"
	"time"

	"claimbot/internal/hoyolab"
	"claimbot/internal/kit"
)

// EntryKind distinguishes the two persisted entry families.
type EntryKind string

const (
	KindDaily EntryKind = "daily"
	KindNotes EntryKind = "notes"
)

// DailyClaim is one owner's recurring check-in job. At most one entry
// exists per (Owner, ChannelID); upserting replaces the previous one.
type DailyClaim struct {
	Owner     int64
	ChannelID int64
	ThreadID  int
	Mention   bool
	Games     []hoyolab.Game
	Hour      int
	Minute    int
	NextDueAt time.Time
}

func (d DailyClaim) Target() kit.ChatTarget {
	return kit.ChatTarget{ChatID: d.ChannelID, ThreadID: d.ThreadID}
}

// ThresholdWatch is one owner's real-time notes watch for a single game.
// At most one entry exists per (Owner, Game, ChannelID).
type ThresholdWatch struct {
	Owner      int64
	ChannelID  int64
	ThreadID   int
	Mention    bool
	Game       hoyolab.Game
	Thresholds map[hoyolab.Resource]ThresholdSpec
	NextDueAt  time.Time
}

func (w ThresholdWatch) Target() kit.ChatTarget {
	return kit.ChatTarget{ChatID: w.ChannelID, ThreadID: w.ThreadID}
}

// ThresholdSpec configures one watched resource. Exactly one of the two
// forms is set: HoursBefore for regenerating gauges, Fixed for daily or
// weekly progress checks at a wall-clock time.
type ThresholdSpec struct {
	HoursBefore *int       `json:"hours_before,omitempty"`
	Fixed       *FixedTime `json:"fixed,omitempty"`
}

// FixedTime fires at Hour:Minute every day, or every week on Sunday when
// Weekly is set. CheckAt is the precomputed next firing instant; it is
// advanced after each firing and persisted with the entry.
type FixedTime struct {
	Hour    int       `json:"hour"`
	Minute  int       `json:"minute"`
	Weekly  bool      `json:"weekly,omitempty"`
	CheckAt time.Time `json:"check_at"`
}

// OutcomeKind classifies a single (owner, game) claim attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeAlreadyClaimed
	OutcomeInvalidCredential
	OutcomeCaptchaRequired
	OutcomeKnownRejection
	OutcomeTransient
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeAlreadyClaimed:
		return "already_claimed"
	case OutcomeInvalidCredential:
		return "invalid_credential"
	case OutcomeCaptchaRequired:
		return "captcha_required"
	case OutcomeKnownRejection:
		return "known_rejection"
	case OutcomeTransient:
		return "transient"
	case OutcomeFatal:
		return "fatal"
	}
	return "unknown"
}

// ClaimOutcome is the settled result of one claim. It lives only within
// the tick that produced it and is never persisted.
type ClaimOutcome struct {
	Kind      OutcomeKind
	Reward    hoyolab.DailyReward      // Success only
	Challenge hoyolab.GeetestChallenge // CaptchaRequired only
	Message   string                   // KnownRejection human text
	Err       error                    // Transient / Fatal cause
}

// ActionRequired reports whether the outcome needs the owner to do
// something before a retry can ever succeed.
func (o ClaimOutcome) ActionRequired() bool {
	return o.Kind == OutcomeInvalidCredential || o.Kind == OutcomeCaptchaRequired
}

// ErrNoCredential is returned by a CredentialProvider when the owner has
// no stored credential for the requested game.
var ErrNoCredential = errors.New("no credential stored for this game")

// GameClient is the outbound remote API surface the executor and the
// evaluator depend on. *hoyolab.Client satisfies it.
type GameClient interface {
	ClaimDailyReward(ctx context.Context, cred hoyolab.Credential, game hoyolab.Game, solved *hoyolab.SolvedChallenge) (hoyolab.DailyReward, error)
	ClaimCommunity(ctx context.Context, cred hoyolab.Credential) error
	GetNotes(ctx context.Context, cred hoyolab.Credential, game hoyolab.Game) (hoyolab.Notes, error)
}

// CredentialProvider resolves an owner's stored credential for a game.
type CredentialProvider interface {
	Credential(ctx context.Context, owner int64, game hoyolab.Game) (hoyolab.Credential, error)
}

// DueSet is everything ScanDue found ready to run.
type DueSet struct {
	Daily   []DailyClaim
	Watches []ThresholdWatch
}

func (s DueSet) Len() int { return len(s.Daily) + len(s.Watches) }

// Store is the persistence contract for schedule entries. Upserts are
// idempotent and keyed as documented on the entry types; deletes of
// missing entries succeed.
type Store interface {
	UpsertDaily(ctx context.Context, e DailyClaim) error
	UpsertWatch(ctx context.Context, w ThresholdWatch) error
	DeleteDaily(ctx context.Context, owner, channel int64) error
	DeleteWatch(ctx context.Context, owner int64, game hoyolab.Game, channel int64) error
	ScanDue(ctx context.Context, now time.Time) (DueSet, error)
}

// Notifier delivers one rendered message. A returned error is terminal
// for the attempt; the notifier never retries internally.
type Notifier interface {
	Deliver(ctx context.Context, n kit.Notification) error
}
