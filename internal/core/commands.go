package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"claimbot/internal/hoyolab"
	"claimbot/internal/kit"
	"claimbot/internal/schedule"
	"claimbot/internal/storage"
)

const scheduleUsage = `Usage:
/schedule daily on HH:MM <games...> [mention]
/schedule daily off
/schedule notes on <game> resource=value... [mention]
/schedule notes off <game>
/schedule test
/schedule remove daily <user_id>
/schedule remove notes <game> <user_id>

Games: genshin honkai3rd starrail zzz themis themis_tw
Notes games: genshin starrail zzz`

// Router owns the /schedule command surface. Entries are keyed to the
// chat the command was issued in, so one owner can keep independent
// schedules in different channels.
type Router struct {
	log     *slog.Logger
	adapter kit.Adapter
	store   storage.Store
	exec    *schedule.ClaimExecutor
	loc     *time.Location
	now     func() time.Time

	ownerMu sync.RWMutex
	owners  map[int64]bool
}

func NewRouter(log *slog.Logger, adapter kit.Adapter, store storage.Store, exec *schedule.ClaimExecutor, loc *time.Location, owners []int64) *Router {
	if loc == nil {
		loc = time.Local
	}
	r := &Router{
		log:     log.With(slog.String("comp", "commands")),
		adapter: adapter,
		store:   store,
		exec:    exec,
		loc:     loc,
		owners:  map[int64]bool{},
	}
	r.now = func() time.Time { return time.Now().In(loc) }
	r.SetOwners(owners)
	return r
}

func (r *Router) SetOwners(ids []int64) {
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	r.ownerMu.Lock()
	r.owners = m
	r.ownerMu.Unlock()
}

func (r *Router) isOwner(id int64) bool {
	r.ownerMu.RLock()
	defer r.ownerMu.RUnlock()
	return r.owners[id]
}

// DispatchLoop consumes adapter updates until ctx is done.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind != kit.UpdateMessage || up.Message == nil {
				continue
			}
			r.handle(ctx, up.Message)
		}
	}
}

func (r *Router) handle(ctx context.Context, msg *kit.Message) {
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 {
		return
	}
	cmd := strings.ToLower(fields[0])
	// "/schedule@botname" in groups.
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	if cmd != "/schedule" {
		return
	}
	args := fields[1:]
	if len(args) == 0 {
		r.reply(ctx, msg, scheduleUsage)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("command handler panicked",
				slog.String("text", msg.Text), slog.Any("panic", rec))
		}
	}()

	switch strings.ToLower(args[0]) {
	case "daily":
		r.handleDaily(ctx, msg, args[1:])
	case "notes":
		r.handleNotes(ctx, msg, args[1:])
	case "test":
		r.handleTest(ctx, msg)
	case "remove":
		r.handleRemove(ctx, msg, args[1:])
	default:
		r.reply(ctx, msg, scheduleUsage)
	}
}

func (r *Router) handleDaily(ctx context.Context, msg *kit.Message, args []string) {
	if len(args) == 0 {
		r.reply(ctx, msg, scheduleUsage)
		return
	}
	switch strings.ToLower(args[0]) {
	case "on":
		if len(args) < 3 {
			r.reply(ctx, msg, "Need a time and at least one game, e.g. /schedule daily on 09:00 genshin")
			return
		}
		hour, minute, err := parseHourMinute(args[1])
		if err != nil {
			r.reply(ctx, msg, err.Error())
			return
		}
		games, mention, err := parseGames(args[2:])
		if err != nil {
			r.reply(ctx, msg, err.Error())
			return
		}

		now := r.now()
		entry := schedule.DailyClaim{
			Owner:     msg.FromID,
			ChannelID: msg.ChatID,
			ThreadID:  msg.ThreadID,
			Mention:   mention,
			Games:     games,
			Hour:      hour,
			Minute:    minute,
			NextDueAt: schedule.NextDaily(now, hour, minute),
		}
		if err := r.store.UpsertDaily(ctx, entry); err != nil {
			r.log.Error("upsert daily failed", slog.Int64("owner", msg.FromID), slog.Any("err", err))
			r.reply(ctx, msg, "Could not save the schedule, try again.")
			return
		}
		names := make([]string, len(games))
		for i, g := range games {
			names[i] = g.DisplayName()
		}
		r.reply(ctx, msg, fmt.Sprintf("Daily check-in scheduled for %02d:%02d (%s). First run: %s.",
			hour, minute, strings.Join(names, ", "), entry.NextDueAt.Format("Mon 15:04")))

	case "off":
		if err := r.store.DeleteDaily(ctx, msg.FromID, msg.ChatID); err != nil {
			r.log.Error("delete daily failed", slog.Int64("owner", msg.FromID), slog.Any("err", err))
			r.reply(ctx, msg, "Could not remove the schedule, try again.")
			return
		}
		r.reply(ctx, msg, "Daily check-in schedule removed.")

	default:
		r.reply(ctx, msg, scheduleUsage)
	}
}

func (r *Router) handleNotes(ctx context.Context, msg *kit.Message, args []string) {
	if len(args) < 2 {
		r.reply(ctx, msg, scheduleUsage)
		return
	}
	game, err := parseGame(args[1])
	if err != nil {
		r.reply(ctx, msg, err.Error())
		return
	}
	if !game.NotesCapable() {
		r.reply(ctx, msg, fmt.Sprintf("%s has no real-time notes.", game.DisplayName()))
		return
	}

	switch strings.ToLower(args[0]) {
	case "on":
		now := r.now()
		thresholds, mention, err := parseThresholds(game, args[2:], now)
		if err != nil {
			r.reply(ctx, msg, err.Error())
			return
		}
		watch := schedule.ThresholdWatch{
			Owner:      msg.FromID,
			ChannelID:  msg.ChatID,
			ThreadID:   msg.ThreadID,
			Mention:    mention,
			Game:       game,
			Thresholds: thresholds,
			NextDueAt:  now,
		}
		if err := r.store.UpsertWatch(ctx, watch); err != nil {
			r.log.Error("upsert watch failed", slog.Int64("owner", msg.FromID), slog.Any("err", err))
			r.reply(ctx, msg, "Could not save the watch, try again.")
			return
		}
		r.reply(ctx, msg, fmt.Sprintf("%s notes watch armed with %d threshold(s).", game.DisplayName(), len(thresholds)))

	case "off":
		if err := r.store.DeleteWatch(ctx, msg.FromID, game, msg.ChatID); err != nil {
			r.log.Error("delete watch failed", slog.Int64("owner", msg.FromID), slog.Any("err", err))
			r.reply(ctx, msg, "Could not remove the watch, try again.")
			return
		}
		r.reply(ctx, msg, fmt.Sprintf("%s notes watch removed.", game.DisplayName()))

	default:
		r.reply(ctx, msg, scheduleUsage)
	}
}

// handleTest runs an immediate check-in for every game the invoker has
// cookies for. It can take a while (retries), so it runs detached from
// the dispatch loop.
func (r *Router) handleTest(ctx context.Context, msg *kit.Message) {
	var games []hoyolab.Game
	for _, g := range hoyolab.ClaimGames() {
		if _, err := r.store.Credential(ctx, msg.FromID, g); err == nil {
			games = append(games, g)
		}
	}
	if len(games) == 0 {
		r.reply(ctx, msg, "No cookies stored for your account, nothing to claim.")
		return
	}
	r.reply(ctx, msg, "Running check-in now...")

	entry := schedule.DailyClaim{
		Owner:     msg.FromID,
		ChannelID: msg.ChatID,
		ThreadID:  msg.ThreadID,
		Games:     games,
	}
	go func() {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("test claim panicked", slog.Any("panic", rec))
			}
		}()
		report := r.exec.ClaimAll(runCtx, entry, r.store)
		r.reply(runCtx, msg, "📅 Daily check-in (test)\n"+strings.Join(report.Lines, "\n"))
	}()
}

func (r *Router) handleRemove(ctx context.Context, msg *kit.Message, args []string) {
	if !r.isOwner(msg.FromID) {
		r.reply(ctx, msg, "Only bot owners can remove other users' schedules.")
		return
	}
	if len(args) < 2 {
		r.reply(ctx, msg, scheduleUsage)
		return
	}

	switch strings.ToLower(args[0]) {
	case "daily":
		target, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			r.reply(ctx, msg, fmt.Sprintf("Invalid user id %q.", args[1]))
			return
		}
		if err := r.store.DeleteDaily(ctx, target, msg.ChatID); err != nil {
			r.reply(ctx, msg, "Could not remove the schedule, try again.")
			return
		}
		r.reply(ctx, msg, fmt.Sprintf("Daily schedule of user %d removed from this chat.", target))

	case "notes":
		if len(args) < 3 {
			r.reply(ctx, msg, scheduleUsage)
			return
		}
		game, err := parseGame(args[1])
		if err != nil {
			r.reply(ctx, msg, err.Error())
			return
		}
		target, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			r.reply(ctx, msg, fmt.Sprintf("Invalid user id %q.", args[2]))
			return
		}
		if err := r.store.DeleteWatch(ctx, target, game, msg.ChatID); err != nil {
			r.reply(ctx, msg, "Could not remove the watch, try again.")
			return
		}
		r.reply(ctx, msg, fmt.Sprintf("%s watch of user %d removed from this chat.", game.DisplayName(), target))

	default:
		r.reply(ctx, msg, scheduleUsage)
	}
}

func (r *Router) reply(ctx context.Context, msg *kit.Message, text string) {
	to := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if _, err := r.adapter.SendText(ctx, to, text, nil); err != nil && !errors.Is(err, context.Canceled) {
		r.log.Warn("reply failed", slog.Int64("chat", msg.ChatID), slog.Any("err", err))
	}
}
