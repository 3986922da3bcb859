package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"boletodesk/internal/config"
	"boletodesk/internal/stage"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	activeKey = "active_session"
)

// Store persists registry snapshots in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the session database.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("session store requires configuration")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.SessionDBPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save replaces the stored snapshot with snap.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin save tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, "DELETE FROM sessions"); err != nil {
			return fmt.Errorf("clear sessions: %w", err)
		}
		for i, sess := range snap.Sessions {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO sessions (
                    id, position, operation_id, operation_label, stage,
                    fidc_id, fidc_name, fidc_color, created_at, updated_at
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				sess.ID,
				i,
				sess.OperationID,
				sess.OperationLabel,
				int(sess.Stage),
				sess.Fidc.ID,
				sess.Fidc.Name,
				sess.Fidc.Color,
				formatTime(sess.CreatedAt),
				formatTime(sess.UpdatedAt),
			); err != nil {
				return fmt.Errorf("insert session %s: %w", sess.ID, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO registry_state (key, value) VALUES (?, ?)
             ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			activeKey, snap.ActiveID,
		); err != nil {
			return fmt.Errorf("record active session: %w", err)
		}
		return tx.Commit()
	})
}

// Load reads the stored snapshot. An empty database yields an empty snapshot.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	ctx = ensureContext(ctx)
	var snap Snapshot
	err := retryOnBusy(ctx, func() error {
		snap = Snapshot{}
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, operation_id, operation_label, stage, fidc_id, fidc_name, fidc_color, created_at, updated_at
             FROM sessions ORDER BY position`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				sess             Session
				stageValue       int
				created, updated string
			)
			if err := rows.Scan(
				&sess.ID,
				&sess.OperationID,
				&sess.OperationLabel,
				&stageValue,
				&sess.Fidc.ID,
				&sess.Fidc.Name,
				&sess.Fidc.Color,
				&created,
				&updated,
			); err != nil {
				return err
			}
			sess.Stage = stage.Stage(stageValue)
			sess.CreatedAt = parseTime(created)
			sess.UpdatedAt = parseTime(updated)
			snap.Sessions = append(snap.Sessions, sess)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		err = s.db.QueryRowContext(ctx, "SELECT value FROM registry_state WHERE key = ?", activeKey).Scan(&snap.ActiveID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("load sessions: %w", err)
	}
	return snap, nil
}

// Reset removes every stored session.
func (s *Store) Reset(ctx context.Context) error {
	return s.Save(ctx, Snapshot{})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
