// Package storage persists schedule entries and per-game credentials.
// The sqlite backend is the production store; the memory backend exists
// for tests and throwaway runs.
package storage

import (
	"context"
	"fmt"
	"time"

	"claimbot/internal/hoyolab"
	"claimbot/internal/schedule"
	"claimbot/pkg/logx"
)

type Config struct {
	Driver      string        // "sqlite" (default) or "memory"
	Path        string        // sqlite database file
	BusyTimeout time.Duration // sqlite busy_timeout (default 5s)
}

// Store is the full persistence surface: schedule entries plus the
// credential table the executors read from.
type Store interface {
	schedule.Store
	schedule.CredentialProvider

	SetCredential(ctx context.Context, owner int64, game hoyolab.Game, cred hoyolab.Credential) error
	DeleteCredential(ctx context.Context, owner int64, game hoyolab.Game) error
	Close() error
}

func Open(cfg Config, log logx.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
