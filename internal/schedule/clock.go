package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"claimbot/internal/eventbus"
	"claimbot/internal/hoyolab"
	"claimbot/internal/kit"
)

// ClockConfig tunes the tick loop.
type ClockConfig struct {
	TickInterval time.Duration  // scan cadence (default 1m)
	Workers      int            // concurrent entries per tick (default 4)
	TickTimeout  time.Duration  // whole-tick deadline (default 5m)
	Location     *time.Location // schedule timezone (default time.Local)
}

func (c *ClockConfig) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.TickTimeout <= 0 {
		c.TickTimeout = 5 * time.Minute
	}
	if c.Location == nil {
		c.Location = time.Local
	}
}

// Clock drives the scheduler: every tick it scans the store for due
// entries, dispatches them to a bounded worker group, and settles each
// entry back into the store. It holds no entry state across ticks; the
// store is the single source of truth.
type Clock struct {
	cfg   ClockConfig
	store Store
	creds CredentialProvider
	exec  *ClaimExecutor
	eval  *NotesEvaluator
	out   Notifier
	bus   eventbus.Bus
	log   *slog.Logger

	cron    *cron.Cron
	now     func() time.Time
	ticking atomic.Bool

	mu      sync.Mutex
	running bool
}

func NewClock(cfg ClockConfig, store Store, creds CredentialProvider, exec *ClaimExecutor, eval *NotesEvaluator, out Notifier, bus eventbus.Bus, log *slog.Logger) *Clock {
	cfg.applyDefaults()
	c := &Clock{
		cfg:   cfg,
		store: store,
		creds: creds,
		exec:  exec,
		eval:  eval,
		out:   out,
		bus:   bus,
		log:   log.With(slog.String("comp", "clock")),
	}
	c.now = func() time.Time { return time.Now().In(cfg.Location) }
	return c
}

func (c *Clock) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("clock already running")
	}

	c.cron = cron.New()
	if _, err := c.cron.AddFunc(fmt.Sprintf("@every %s", c.cfg.TickInterval), c.tick); err != nil {
		return fmt.Errorf("register tick: %w", err)
	}
	c.cron.Start()
	c.running = true
	c.log.Info("clock started",
		slog.Duration("interval", c.cfg.TickInterval),
		slog.Int("workers", c.cfg.Workers))
	return nil
}

func (c *Clock) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false

	done := c.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	c.log.Info("clock stopped")
	return nil
}

// tick runs one Scan -> Dispatch -> Settle cycle. Overlapping ticks are
// skipped; a tick that outlives TickTimeout has its workers cancelled
// and their entries stay due for the next scan. No panic or error
// crosses the tick boundary.
func (c *Clock) tick() {
	if !c.ticking.CompareAndSwap(false, true) {
		c.log.Debug("previous tick still running, skipping")
		return
	}
	defer c.ticking.Store(false)
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("tick panicked", slog.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TickTimeout)
	defer cancel()

	now := c.now()
	runID := uuid.NewString()[:8]

	due, err := c.store.ScanDue(ctx, now)
	if err != nil {
		c.log.Error("scan failed", slog.String("run", runID), slog.Any("err", err))
		return
	}
	if due.Len() == 0 {
		return
	}

	started := time.Now()
	c.log.Debug("tick dispatching",
		slog.String("run", runID),
		slog.Int("daily", len(due.Daily)),
		slog.Int("watches", len(due.Watches)))
	c.bus.Publish(eventbus.Event{Type: eventbus.TypeTickStarted, Data: map[string]any{
		"run_id": runID, "due": due.Len(),
	}})

	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	for _, e := range due.Daily {
		e := e
		g.Go(func() error {
			defer c.recoverWorker(runID)
			c.runDaily(ctx, now, e, runID)
			return nil
		})
	}
	for _, w := range due.Watches {
		w := w
		g.Go(func() error {
			defer c.recoverWorker(runID)
			c.runWatch(ctx, now, w, runID)
			return nil
		})
	}
	_ = g.Wait()

	c.bus.Publish(eventbus.Event{Type: eventbus.TypeTickFinished, Data: map[string]any{
		"run_id": runID, "took": time.Since(started).String(),
	}})
}

func (c *Clock) recoverWorker(runID string) {
	if r := recover(); r != nil {
		c.log.Error("worker panicked", slog.String("run", runID), slog.Any("panic", r))
	}
}

func (c *Clock) runDaily(ctx context.Context, now time.Time, e DailyClaim, runID string) {
	report := c.exec.ClaimAll(ctx, e, c.creds)
	for game, out := range report.Outcomes {
		if out.Kind != OutcomeFatal {
			continue
		}
		c.log.Error("claim exhausted retries",
			slog.String("run", runID),
			slog.Int64("owner", e.Owner),
			slog.String("game", string(game)),
			slog.Any("err", out.Err))
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeClaimFatal, Data: map[string]any{
			"owner": e.Owner, "game": string(game), "err": fmt.Sprint(out.Err),
		}})
	}

	n := kit.Notification{
		Target: e.Target(),
		Text:   "📅 Daily check-in\n" + strings.Join(report.Lines, "\n"),
	}
	if e.Mention {
		n.MentionID = e.Owner
	}
	if err := c.out.Deliver(ctx, n); err != nil {
		if ctx.Err() != nil {
			// Tick deadline hit mid-flight; the entry was not advanced
			// and the next scan picks it up again.
			return
		}
		c.dropDaily(ctx, e, "delivery_failed", err)
		return
	}

	if report.ActionRequiredOnly() {
		c.dropDaily(ctx, e, "action_required", nil)
		return
	}

	e.NextDueAt = NextDaily(now, e.Hour, e.Minute)
	if err := c.store.UpsertDaily(ctx, e); err != nil {
		c.log.Error("reschedule daily failed", slog.Int64("owner", e.Owner), slog.Any("err", err))
	}
}

func (c *Clock) runWatch(ctx context.Context, now time.Time, w ThresholdWatch, runID string) {
	cred, err := c.creds.Credential(ctx, w.Owner, w.Game)
	if err != nil {
		if errors.Is(err, ErrNoCredential) {
			c.deliverBestEffort(ctx, w, fmt.Sprintf("⚠️ %s notes watch stopped: no cookies stored", w.Game.DisplayName()))
			c.dropWatch(ctx, w, "no_credential", err)
			return
		}
		c.log.Warn("credential lookup failed", slog.Int64("owner", w.Owner), slog.Any("err", err))
		return
	}

	fired, next, err := c.eval.Evaluate(ctx, cred, &w, now)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, hoyolab.ErrInvalidCookies) {
			c.deliverBestEffort(ctx, w, fmt.Sprintf("⚠️ %s notes watch stopped: cookies are invalid or expired", w.Game.DisplayName()))
			c.dropWatch(ctx, w, "invalid_credential", err)
			return
		}
		c.log.Warn("notes fetch failed, backing off",
			slog.String("run", runID),
			slog.Int64("owner", w.Owner),
			slog.String("game", string(w.Game)),
			slog.Any("err", err))
		w.NextDueAt = now.Add(recheckFar)
		if uerr := c.store.UpsertWatch(ctx, w); uerr != nil {
			c.log.Error("reschedule watch failed", slog.Int64("owner", w.Owner), slog.Any("err", uerr))
		}
		return
	}

	if len(fired) > 0 {
		n := kit.Notification{
			Target: w.Target(),
			Text:   fmt.Sprintf("📊 %s\n%s", w.Game.DisplayName(), strings.Join(fired, "\n")),
		}
		if w.Mention {
			n.MentionID = w.Owner
		}
		if err := c.out.Deliver(ctx, n); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.dropWatch(ctx, w, "delivery_failed", err)
			return
		}
	}

	w.NextDueAt = next
	if err := c.store.UpsertWatch(ctx, w); err != nil {
		c.log.Error("reschedule watch failed", slog.Int64("owner", w.Owner), slog.Any("err", err))
	}
}

func (c *Clock) deliverBestEffort(ctx context.Context, w ThresholdWatch, text string) {
	n := kit.Notification{Target: w.Target(), Text: text}
	if w.Mention {
		n.MentionID = w.Owner
	}
	if err := c.out.Deliver(ctx, n); err != nil {
		c.log.Debug("final notice not delivered", slog.Int64("owner", w.Owner), slog.Any("err", err))
	}
}

func (c *Clock) dropDaily(ctx context.Context, e DailyClaim, reason string, cause error) {
	c.log.Warn("removing daily entry",
		slog.Int64("owner", e.Owner),
		slog.Int64("channel", e.ChannelID),
		slog.String("reason", reason),
		slog.Any("err", cause))
	if err := c.store.DeleteDaily(ctx, e.Owner, e.ChannelID); err != nil {
		c.log.Error("delete daily failed", slog.Int64("owner", e.Owner), slog.Any("err", err))
		return
	}
	c.publishRemoval(string(KindDaily), e.Owner, e.ChannelID, reason)
	if reason == "delivery_failed" {
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeDeliveryFailed, Data: map[string]any{
			"owner": e.Owner, "channel": e.ChannelID, "err": fmt.Sprint(cause),
		}})
	}
}

func (c *Clock) dropWatch(ctx context.Context, w ThresholdWatch, reason string, cause error) {
	c.log.Warn("removing notes watch",
		slog.Int64("owner", w.Owner),
		slog.String("game", string(w.Game)),
		slog.Int64("channel", w.ChannelID),
		slog.String("reason", reason),
		slog.Any("err", cause))
	if err := c.store.DeleteWatch(ctx, w.Owner, w.Game, w.ChannelID); err != nil {
		c.log.Error("delete watch failed", slog.Int64("owner", w.Owner), slog.Any("err", err))
		return
	}
	c.publishRemoval(string(KindNotes), w.Owner, w.ChannelID, reason)
	if reason == "delivery_failed" {
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeDeliveryFailed, Data: map[string]any{
			"owner": w.Owner, "channel": w.ChannelID, "err": fmt.Sprint(cause),
		}})
	}
}

func (c *Clock) publishRemoval(kind string, owner, channel int64, reason string) {
	c.bus.Publish(eventbus.Event{Type: eventbus.TypeEntryRemoved, Data: map[string]any{
		"kind": kind, "owner": owner, "channel": channel, "reason": reason,
	}})
}
