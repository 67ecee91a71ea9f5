package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/sessiond/internal/domain/model"
	"github.com/okian/sessiond/pkg/metrics"

	_ "modernc.org/sqlite" // driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS incomplete_sessions (
	player_id  TEXT    NOT NULL,
	session_id TEXT    NOT NULL,
	country    TEXT,
	start_ms   INTEGER,
	end_ms     INTEGER,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (player_id, session_id)
);
CREATE INDEX IF NOT EXISTS idx_incomplete_expires ON incomplete_sessions(expires_at);

CREATE TABLE IF NOT EXISTS completed_sessions (
	player_id  TEXT    NOT NULL,
	session_id TEXT    NOT NULL,
	country    TEXT    NOT NULL,
	start_ms   INTEGER NOT NULL,
	end_ms     INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (player_id, session_id)
);
CREATE INDEX IF NOT EXISTS idx_completed_player_end ON completed_sessions(player_id, end_ms DESC);
CREATE INDEX IF NOT EXISTS idx_completed_expires ON completed_sessions(expires_at);
`

// SQLiteStore keeps the session tables in SQLite. Every row carries an
// expires_at column; reads ignore expired rows and a sweeper deletes them.
type SQLiteStore struct {
	db            *sql.DB
	now           func() time.Time
	sweepInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	closeErr error
}

// NewSQLiteStore opens or creates the database at path and starts the sweeper.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	s := &SQLiteStore{
		db:            db,
		now:           o.now,
		sweepInterval: o.sweepInterval,
		stopChan:      make(chan struct{}),
	}
	s.startSweeper()
	return s, nil
}

// Close stops the sweeper and closes the database.
func (s *SQLiteStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

func (s *SQLiteStore) startSweeper() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				_, _ = s.Sweep(context.Background())
			}
		}
	}()
}

// Sweep deletes expired rows from both tables and returns how many went.
func (s *SQLiteStore) Sweep(ctx context.Context) (int64, error) {
	now := s.now().UnixMilli()
	var total int64
	for _, table := range []string{"incomplete_sessions", "completed_sessions"} {
		var n int64
		err := s.write(ctx, "sweep", func() error {
			res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE expires_at <= ?", now)
			if err != nil {
				return err
			}
			n, err = res.RowsAffected()
			return err
		})
		if err != nil {
			return total, fmt.Errorf("sweep %s: %w", table, err)
		}
		total += n
	}
	if total > 0 {
		metrics.RecordExpiredRowsPurged(total)
	}
	return total, nil
}

func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"IOERR_SHORT_READ",
		"database is locked",
		"database table is locked",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func (s *SQLiteStore) write(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := retryOp(ctx, defaultRetryConfig, isTransientSQLiteErr, fn)
	observe(op, start, err)
	return err
}

func (s *SQLiteStore) expiry(ttl time.Duration) int64 {
	return s.now().Add(ttl).UnixMilli()
}

// UpsertIncomplete implements Backend. COALESCE keeps the columns the patch
// leaves unset.
func (s *SQLiteStore) UpsertIncomplete(ctx context.Context, key model.SessionKey, patch model.IncompletePatch, ttl time.Duration) error {
	now := s.now().UnixMilli()
	return s.write(ctx, "upsert_incomplete", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		// an expired row must not leak its stale bounds into the merge
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM incomplete_sessions WHERE player_id = ? AND session_id = ? AND expires_at <= ?`,
			key.PlayerID, key.SessionID.String(), now,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO incomplete_sessions (player_id, session_id, country, start_ms, end_ms, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(player_id, session_id) DO UPDATE SET
				country    = COALESCE(excluded.country, incomplete_sessions.country),
				start_ms   = COALESCE(excluded.start_ms, incomplete_sessions.start_ms),
				end_ms     = COALESCE(excluded.end_ms, incomplete_sessions.end_ms),
				expires_at = excluded.expires_at`,
			key.PlayerID, key.SessionID.String(),
			nullString(patch.Country), nullMillis(patch.StartTime), nullMillis(patch.EndTime),
			s.expiry(ttl),
		); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// ReadIncomplete implements Backend.
func (s *SQLiteStore) ReadIncomplete(ctx context.Context, key model.SessionKey) (model.IncompleteRecord, bool, error) {
	start := time.Now()
	rec := model.IncompleteRecord{Key: key}
	var (
		country        sql.NullString
		startMS, endMS sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT country, start_ms, end_ms FROM incomplete_sessions
		 WHERE player_id = ? AND session_id = ? AND expires_at > ?`,
		key.PlayerID, key.SessionID.String(), s.now().UnixMilli(),
	).Scan(&country, &startMS, &endMS)
	if errors.Is(err, sql.ErrNoRows) {
		observe("read_incomplete", start, nil)
		return rec, false, nil
	}
	observe("read_incomplete", start, err)
	if err != nil {
		return model.IncompleteRecord{}, false, err
	}
	if country.Valid {
		c := country.String
		rec.Country = &c
	}
	rec.StartTime = fromNullMillis(startMS)
	rec.EndTime = fromNullMillis(endMS)
	return rec, true, nil
}

// DeleteIncomplete implements Backend.
func (s *SQLiteStore) DeleteIncomplete(ctx context.Context, key model.SessionKey) error {
	return s.write(ctx, "delete_incomplete", func() error {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM incomplete_sessions WHERE player_id = ? AND session_id = ?`,
			key.PlayerID, key.SessionID.String(),
		)
		return err
	})
}

const upsertCompleted = `INSERT INTO completed_sessions (player_id, session_id, country, start_ms, end_ms, expires_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(player_id, session_id) DO UPDATE SET
		country = excluded.country, start_ms = excluded.start_ms,
		end_ms = excluded.end_ms, expires_at = excluded.expires_at`

func (s *SQLiteStore) completedArgs(rec model.CompletedRecord, ttl time.Duration) []any {
	return []any{
		rec.PlayerID, rec.SessionID.String(), rec.Country,
		rec.StartTime.UnixMilli(), rec.EndTime.UnixMilli(), s.expiry(ttl),
	}
}

// InsertCompleted implements Backend.
func (s *SQLiteStore) InsertCompleted(ctx context.Context, rec model.CompletedRecord, ttl time.Duration) error {
	return s.write(ctx, "insert_completed", func() error {
		_, err := s.db.ExecContext(ctx, upsertCompleted, s.completedArgs(rec, ttl)...)
		return err
	})
}

// Promote implements Promoter.
func (s *SQLiteStore) Promote(ctx context.Context, rec model.CompletedRecord, ttl time.Duration) error {
	return s.write(ctx, "promote", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`DELETE FROM incomplete_sessions WHERE player_id = ? AND session_id = ?`,
			rec.PlayerID, rec.SessionID.String(),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			// already promoted by an earlier handle
			return nil
		}
		if _, err := tx.ExecContext(ctx, upsertCompleted, s.completedArgs(rec, ttl)...); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// QueryCompleted implements Backend.
func (s *SQLiteStore) QueryCompleted(ctx context.Context, playerID string, limit int) ([]model.CompletedRecord, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	start := time.Now()
	out, err := s.queryCompleted(ctx, playerID, limit)
	observe("query_completed", start, err)
	return out, err
}

func (s *SQLiteStore) queryCompleted(ctx context.Context, playerID string, limit int) ([]model.CompletedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, country, start_ms, end_ms FROM completed_sessions
		 WHERE player_id = ? AND expires_at > ?
		 ORDER BY end_ms DESC, session_id DESC
		 LIMIT ?`,
		playerID, s.now().UnixMilli(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.CompletedRecord, 0, limit)
	for rows.Next() {
		var (
			sid            string
			country        string
			startMS, endMS int64
		)
		if err := rows.Scan(&sid, &country, &startMS, &endMS); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(sid)
		if err != nil {
			return nil, fmt.Errorf("%w: session id %q: %w", ErrCorruptRow, sid, err)
		}
		out = append(out, model.CompletedRecord{
			PlayerID:  playerID,
			SessionID: id,
			Country:   country,
			StartTime: time.UnixMilli(startMS).UTC(),
			EndTime:   time.UnixMilli(endMS).UTC(),
		})
	}
	return out, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
