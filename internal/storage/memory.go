package storage

import (
	"context"
	"sync"
	"time"

	"claimbot/internal/hoyolab"
	"claimbot/internal/schedule"
)

type dailyKey struct{ owner, channel int64 }

type watchKey struct {
	owner   int64
	game    hoyolab.Game
	channel int64
}

type credKey struct {
	owner int64
	game  hoyolab.Game
}

// Memory is a map-backed Store. Not durable; used by tests and by the
// "memory" storage driver.
type Memory struct {
	mu      sync.RWMutex
	daily   map[dailyKey]schedule.DailyClaim
	watches map[watchKey]schedule.ThresholdWatch
	creds   map[credKey]hoyolab.Credential
}

func NewMemory() *Memory {
	return &Memory{
		daily:   map[dailyKey]schedule.DailyClaim{},
		watches: map[watchKey]schedule.ThresholdWatch{},
		creds:   map[credKey]hoyolab.Credential{},
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) UpsertDaily(ctx context.Context, e schedule.DailyClaim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daily[dailyKey{e.Owner, e.ChannelID}] = e
	return nil
}

func (m *Memory) UpsertWatch(ctx context.Context, w schedule.ThresholdWatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watches[watchKey{w.Owner, w.Game, w.ChannelID}] = w
	return nil
}

func (m *Memory) DeleteDaily(ctx context.Context, owner, channel int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.daily, dailyKey{owner, channel})
	return nil
}

func (m *Memory) DeleteWatch(ctx context.Context, owner int64, game hoyolab.Game, channel int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.watches, watchKey{owner, game, channel})
	return nil
}

func (m *Memory) ScanDue(ctx context.Context, now time.Time) (schedule.DueSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due schedule.DueSet
	for _, e := range m.daily {
		if !e.NextDueAt.After(now) {
			due.Daily = append(due.Daily, e)
		}
	}
	for _, w := range m.watches {
		if !w.NextDueAt.After(now) {
			due.Watches = append(due.Watches, w)
		}
	}
	return due, nil
}

func (m *Memory) Credential(ctx context.Context, owner int64, game hoyolab.Game) (hoyolab.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cred, ok := m.creds[credKey{owner, game}]
	if !ok {
		return hoyolab.Credential{}, schedule.ErrNoCredential
	}
	return cred, nil
}

func (m *Memory) SetCredential(ctx context.Context, owner int64, game hoyolab.Game, cred hoyolab.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[credKey{owner, game}] = cred
	return nil
}

func (m *Memory) DeleteCredential(ctx context.Context, owner int64, game hoyolab.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, credKey{owner, game})
	return nil
}
