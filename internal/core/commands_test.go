package core

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"claimbot/internal/hoyolab"
	"claimbot/internal/kit"
	"claimbot/internal/schedule"
	"claimbot/internal/storage"
)

type fakeAdapter struct {
	mu      sync.Mutex
	replies []string
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.replies)}, nil
}

func (f *fakeAdapter) lastReply() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

type stubClient struct{}

func (stubClient) ClaimDailyReward(ctx context.Context, cred hoyolab.Credential, game hoyolab.Game, solved *hoyolab.SolvedChallenge) (hoyolab.DailyReward, error) {
	return hoyolab.DailyReward{Name: "Mora", Amount: 1000}, nil
}
func (stubClient) ClaimCommunity(ctx context.Context, cred hoyolab.Credential) error { return nil }
func (stubClient) GetNotes(ctx context.Context, cred hoyolab.Credential, game hoyolab.Game) (hoyolab.Notes, error) {
	return hoyolab.Notes{Game: game}, nil
}

func newTestRouter(owners ...int64) (*Router, *fakeAdapter, *storage.Memory) {
	ad := &fakeAdapter{}
	store := storage.NewMemory()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec := schedule.NewClaimExecutor(stubClient{}, schedule.ExecutorConfig{}, log)
	r := NewRouter(log, ad, store, exec, time.UTC, owners)
	r.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	return r, ad, store
}

func msg(from, chat int64, text string) *kit.Message {
	return &kit.Message{ID: 1, ChatID: chat, FromID: from, Text: text}
}

func allEntries(t *testing.T, store *storage.Memory) schedule.DueSet {
	t.Helper()
	due, err := store.ScanDue(context.Background(), time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	return due
}

func TestScheduleDailyOn(t *testing.T) {
	r, ad, store := newTestRouter()
	r.handle(context.Background(), msg(7, -100, "/schedule daily on 09:00 genshin starrail mention"))

	due := allEntries(t, store)
	if len(due.Daily) != 1 {
		t.Fatalf("got %d daily entries, want 1", len(due.Daily))
	}
	e := due.Daily[0]
	if e.Owner != 7 || e.ChannelID != -100 {
		t.Fatalf("entry key = (%d, %d)", e.Owner, e.ChannelID)
	}
	if !e.Mention || e.Hour != 9 || e.Minute != 0 || len(e.Games) != 2 {
		t.Fatalf("entry = %+v", e)
	}
	// 09:00 already passed at the fixed test clock, so first run is tomorrow.
	if want := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC); !e.NextDueAt.Equal(want) {
		t.Fatalf("NextDueAt = %v, want %v", e.NextDueAt, want)
	}
	if !strings.Contains(ad.lastReply(), "scheduled") {
		t.Fatalf("reply = %q", ad.lastReply())
	}
}

func TestScheduleDailyOnReplacesExisting(t *testing.T) {
	r, _, store := newTestRouter()
	r.handle(context.Background(), msg(7, -100, "/schedule daily on 09:00 genshin"))
	r.handle(context.Background(), msg(7, -100, "/schedule daily on 21:00 zzz"))

	due := allEntries(t, store)
	if len(due.Daily) != 1 {
		t.Fatalf("got %d daily entries, want 1 (upsert should replace)", len(due.Daily))
	}
	if e := due.Daily[0]; e.Hour != 21 || e.Games[0] != hoyolab.GameZZZ {
		t.Fatalf("entry = %+v, want the second schedule", e)
	}
}

func TestScheduleDailyOff(t *testing.T) {
	r, ad, store := newTestRouter()
	r.handle(context.Background(), msg(7, -100, "/schedule daily on 09:00 genshin"))
	r.handle(context.Background(), msg(7, -100, "/schedule daily off"))

	if due := allEntries(t, store); len(due.Daily) != 0 {
		t.Fatalf("entry still present: %+v", due.Daily)
	}
	if !strings.Contains(ad.lastReply(), "removed") {
		t.Fatalf("reply = %q", ad.lastReply())
	}
}

func TestScheduleNotesOn(t *testing.T) {
	r, _, store := newTestRouter()
	r.handle(context.Background(), msg(7, -100, "/schedule notes on genshin resin=0 commission=2100"))

	due := allEntries(t, store)
	if len(due.Watches) != 1 {
		t.Fatalf("got %d watches, want 1", len(due.Watches))
	}
	w := due.Watches[0]
	if w.Game != hoyolab.GameGenshin || len(w.Thresholds) != 2 {
		t.Fatalf("watch = %+v", w)
	}
	if w.NextDueAt.After(r.now()) {
		t.Fatalf("fresh watch should be due immediately, NextDueAt = %v", w.NextDueAt)
	}
}

func TestScheduleNotesRejectsNonNotesGame(t *testing.T) {
	r, ad, store := newTestRouter()
	r.handle(context.Background(), msg(7, -100, "/schedule notes on themis resin=0"))

	if due := allEntries(t, store); len(due.Watches) != 0 {
		t.Fatalf("watch stored for a game without notes: %+v", due.Watches)
	}
	if !strings.Contains(ad.lastReply(), "no real-time notes") {
		t.Fatalf("reply = %q", ad.lastReply())
	}
}

func TestScheduleRemoveNeedsOwner(t *testing.T) {
	r, ad, store := newTestRouter(99) // only user 99 is an owner
	r.handle(context.Background(), msg(7, -100, "/schedule daily on 09:00 genshin"))

	r.handle(context.Background(), msg(8, -100, "/schedule remove daily 7"))
	if due := allEntries(t, store); len(due.Daily) != 1 {
		t.Fatal("non-owner was allowed to remove another user's entry")
	}
	if !strings.Contains(ad.lastReply(), "owners") {
		t.Fatalf("reply = %q", ad.lastReply())
	}

	r.handle(context.Background(), msg(99, -100, "/schedule remove daily 7"))
	if due := allEntries(t, store); len(due.Daily) != 0 {
		t.Fatal("owner removal did not delete the entry")
	}
}

func TestScheduleTestWithoutCookies(t *testing.T) {
	r, ad, _ := newTestRouter()
	r.handle(context.Background(), msg(7, -100, "/schedule test"))
	if !strings.Contains(ad.lastReply(), "No cookies") {
		t.Fatalf("reply = %q", ad.lastReply())
	}
}

func TestScheduleIgnoresOtherCommands(t *testing.T) {
	r, ad, _ := newTestRouter()
	r.handle(context.Background(), msg(7, -100, "/start"))
	r.handle(context.Background(), msg(7, -100, "hello there"))
	if got := ad.lastReply(); got != "" {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestScheduleBotSuffixAccepted(t *testing.T) {
	r, ad, _ := newTestRouter()
	r.handle(context.Background(), msg(7, -100, "/schedule@claim_bot"))
	if !strings.Contains(ad.lastReply(), "Usage:") {
		t.Fatalf("reply = %q", ad.lastReply())
	}
}
