package schedule

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"claimbot/internal/hoyolab"
	"claimbot/internal/kit"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fakeClient scripts the remote API per call site.
type fakeClient struct {
	mu         sync.Mutex
	claimCalls int

	claimFn     func(game hoyolab.Game, attempt int) (hoyolab.DailyReward, error)
	notesFn     func(game hoyolab.Game) (hoyolab.Notes, error)
	communityFn func() error
}

func (f *fakeClient) ClaimDailyReward(ctx context.Context, cred hoyolab.Credential, game hoyolab.Game, solved *hoyolab.SolvedChallenge) (hoyolab.DailyReward, error) {
	f.mu.Lock()
	f.claimCalls++
	n := f.claimCalls
	f.mu.Unlock()
	if f.claimFn == nil {
		return hoyolab.DailyReward{Name: "Mora", Amount: 1000}, nil
	}
	return f.claimFn(game, n)
}

func (f *fakeClient) ClaimCommunity(ctx context.Context, cred hoyolab.Credential) error {
	if f.communityFn == nil {
		return nil
	}
	return f.communityFn()
}

func (f *fakeClient) GetNotes(ctx context.Context, cred hoyolab.Credential, game hoyolab.Game) (hoyolab.Notes, error) {
	if f.notesFn == nil {
		return hoyolab.Notes{Game: game}, nil
	}
	return f.notesFn(game)
}

// fakeCreds returns the same credential for every owner/game.
type fakeCreds struct {
	err error
}

func (f fakeCreds) Credential(ctx context.Context, owner int64, game hoyolab.Game) (hoyolab.Credential, error) {
	if f.err != nil {
		return hoyolab.Credential{}, f.err
	}
	return hoyolab.Credential{Cookie: "ltoken=test", UID: 700000001}, nil
}

type dailyKey struct{ owner, channel int64 }
type watchKey struct {
	owner   int64
	game    hoyolab.Game
	channel int64
}

// fakeStore is an in-memory Store for clock tests.
type fakeStore struct {
	mu      sync.Mutex
	daily   map[dailyKey]DailyClaim
	watches map[watchKey]ThresholdWatch
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		daily:   map[dailyKey]DailyClaim{},
		watches: map[watchKey]ThresholdWatch{},
	}
}

func (s *fakeStore) UpsertDaily(ctx context.Context, e DailyClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daily[dailyKey{e.Owner, e.ChannelID}] = e
	return nil
}

func (s *fakeStore) UpsertWatch(ctx context.Context, w ThresholdWatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watches[watchKey{w.Owner, w.Game, w.ChannelID}] = w
	return nil
}

func (s *fakeStore) DeleteDaily(ctx context.Context, owner, channel int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.daily, dailyKey{owner, channel})
	return nil
}

func (s *fakeStore) DeleteWatch(ctx context.Context, owner int64, game hoyolab.Game, channel int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watches, watchKey{owner, game, channel})
	return nil
}

func (s *fakeStore) ScanDue(ctx context.Context, now time.Time) (DueSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due DueSet
	for _, e := range s.daily {
		if !e.NextDueAt.After(now) {
			due.Daily = append(due.Daily, e)
		}
	}
	for _, w := range s.watches {
		if !w.NextDueAt.After(now) {
			due.Watches = append(due.Watches, w)
		}
	}
	return due, nil
}

func (s *fakeStore) getDaily(owner, channel int64) (DailyClaim, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.daily[dailyKey{owner, channel}]
	return e, ok
}

func (s *fakeStore) getWatch(owner int64, game hoyolab.Game, channel int64) (ThresholdWatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watches[watchKey{owner, game, channel}]
	return w, ok
}

// fakeNotifier records deliveries and can be scripted to fail.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []kit.Notification
	fail error
}

func (f *fakeNotifier) Deliver(ctx context.Context, n kit.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) deliveries() []kit.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]kit.Notification, len(f.sent))
	copy(out, f.sent)
	return out
}
