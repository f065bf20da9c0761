package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"claimbot/internal/hoyolab"
	"claimbot/internal/schedule"
	"claimbot/pkg/logx"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	owner      INTEGER NOT NULL,
	game       TEXT    NOT NULL,
	cookie     TEXT    NOT NULL,
	uid        INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (owner, game)
);

CREATE TABLE IF NOT EXISTS daily_claims (
	owner       INTEGER NOT NULL,
	channel_id  INTEGER NOT NULL,
	thread_id   INTEGER NOT NULL DEFAULT 0,
	mention     INTEGER NOT NULL DEFAULT 0,
	games       TEXT    NOT NULL,
	hour        INTEGER NOT NULL,
	minute      INTEGER NOT NULL,
	next_due_at INTEGER NOT NULL,
	PRIMARY KEY (owner, channel_id)
);
CREATE INDEX IF NOT EXISTS idx_daily_due ON daily_claims (next_due_at);

CREATE TABLE IF NOT EXISTS threshold_watches (
	owner       INTEGER NOT NULL,
	channel_id  INTEGER NOT NULL,
	game        TEXT    NOT NULL,
	thread_id   INTEGER NOT NULL DEFAULT 0,
	mention     INTEGER NOT NULL DEFAULT 0,
	thresholds  TEXT    NOT NULL,
	next_due_at INTEGER NOT NULL,
	PRIMARY KEY (owner, game, channel_id)
);
CREATE INDEX IF NOT EXISTS idx_watch_due ON threshold_watches (next_due_at);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (*sqliteStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite storage needs a path")
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
		cfg.Path, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; a single connection sidesteps
	// SQLITE_BUSY between pool members.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	log.Info("sqlite storage ready", logx.String("path", cfg.Path))
	return &sqliteStore{db: db, log: log.With(logx.String("comp", "storage"))}, nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) UpsertDaily(ctx context.Context, e schedule.DailyClaim) error {
	games, err := json.Marshal(e.Games)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_claims (owner, channel_id, thread_id, mention, games, hour, minute, next_due_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner, channel_id) DO UPDATE SET
			thread_id = excluded.thread_id,
			mention = excluded.mention,
			games = excluded.games,
			hour = excluded.hour,
			minute = excluded.minute,
			next_due_at = excluded.next_due_at`,
		e.Owner, e.ChannelID, e.ThreadID, boolInt(e.Mention), string(games), e.Hour, e.Minute, e.NextDueAt.Unix())
	return err
}

func (s *sqliteStore) UpsertWatch(ctx context.Context, w schedule.ThresholdWatch) error {
	thresholds, err := json.Marshal(w.Thresholds)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO threshold_watches (owner, channel_id, game, thread_id, mention, thresholds, next_due_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner, game, channel_id) DO UPDATE SET
			thread_id = excluded.thread_id,
			mention = excluded.mention,
			thresholds = excluded.thresholds,
			next_due_at = excluded.next_due_at`,
		w.Owner, w.ChannelID, string(w.Game), w.ThreadID, boolInt(w.Mention), string(thresholds), w.NextDueAt.Unix())
	return err
}

func (s *sqliteStore) DeleteDaily(ctx context.Context, owner, channel int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM daily_claims WHERE owner = ? AND channel_id = ?`, owner, channel)
	return err
}

func (s *sqliteStore) DeleteWatch(ctx context.Context, owner int64, game hoyolab.Game, channel int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM threshold_watches WHERE owner = ? AND game = ? AND channel_id = ?`,
		owner, string(game), channel)
	return err
}

func (s *sqliteStore) ScanDue(ctx context.Context, now time.Time) (schedule.DueSet, error) {
	var due schedule.DueSet
	cutoff := now.Unix()

	rows, err := s.db.QueryContext(ctx, `
		SELECT owner, channel_id, thread_id, mention, games, hour, minute, next_due_at
		FROM daily_claims WHERE next_due_at <= ?`, cutoff)
	if err != nil {
		return due, err
	}
	defer rows.Close()
	for rows.Next() {
		var e schedule.DailyClaim
		var mention int
		var games string
		var dueAt int64
		if err := rows.Scan(&e.Owner, &e.ChannelID, &e.ThreadID, &mention, &games, &e.Hour, &e.Minute, &dueAt); err != nil {
			return due, err
		}
		if err := json.Unmarshal([]byte(games), &e.Games); err != nil {
			s.log.Warn("skipping daily row with bad games blob",
				logx.Int64("owner", e.Owner), logx.Err(err))
			continue
		}
		e.Mention = mention != 0
		e.NextDueAt = time.Unix(dueAt, 0)
		due.Daily = append(due.Daily, e)
	}
	if err := rows.Err(); err != nil {
		return due, err
	}

	wrows, err := s.db.QueryContext(ctx, `
		SELECT owner, channel_id, game, thread_id, mention, thresholds, next_due_at
		FROM threshold_watches WHERE next_due_at <= ?`, cutoff)
	if err != nil {
		return due, err
	}
	defer wrows.Close()
	for wrows.Next() {
		var w schedule.ThresholdWatch
		var game, thresholds string
		var mention int
		var dueAt int64
		if err := wrows.Scan(&w.Owner, &w.ChannelID, &game, &w.ThreadID, &mention, &thresholds, &dueAt); err != nil {
			return due, err
		}
		if err := json.Unmarshal([]byte(thresholds), &w.Thresholds); err != nil {
			s.log.Warn("skipping watch row with bad thresholds blob",
				logx.Int64("owner", w.Owner), logx.Err(err))
			continue
		}
		w.Game = hoyolab.Game(game)
		w.Mention = mention != 0
		w.NextDueAt = time.Unix(dueAt, 0)
		due.Watches = append(due.Watches, w)
	}
	return due, wrows.Err()
}

func (s *sqliteStore) Credential(ctx context.Context, owner int64, game hoyolab.Game) (hoyolab.Credential, error) {
	var cred hoyolab.Credential
	err := s.db.QueryRowContext(ctx,
		`SELECT cookie, uid FROM users WHERE owner = ? AND game = ?`, owner, string(game)).
		Scan(&cred.Cookie, &cred.UID)
	if errors.Is(err, sql.ErrNoRows) {
		return hoyolab.Credential{}, schedule.ErrNoCredential
	}
	return cred, err
}

func (s *sqliteStore) SetCredential(ctx context.Context, owner int64, game hoyolab.Game, cred hoyolab.Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (owner, game, cookie, uid, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner, game) DO UPDATE SET
			cookie = excluded.cookie,
			uid = excluded.uid,
			updated_at = excluded.updated_at`,
		owner, string(game), cred.Cookie, cred.UID, time.Now().Unix())
	return err
}

func (s *sqliteStore) DeleteCredential(ctx context.Context, owner int64, game hoyolab.Game) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM users WHERE owner = ? AND game = ?`, owner, string(game))
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
