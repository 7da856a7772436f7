package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists operator actions and status samples to SQLite.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

var _ Recorder = (*SQLiteRecorder)(nil)

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets external readers query while the dashboard writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS operator_actions (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			action    TEXT NOT NULL,
			ok        INTEGER NOT NULL,
			message   TEXT,
			rule_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_ts ON operator_actions(timestamp)`,

		`CREATE TABLE IF NOT EXISTS status_samples (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			running     INTEGER NOT NULL,
			total_spent TEXT,
			daily_cap   TEXT,
			remaining   TEXT,
			log_count   INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_status_ts ON status_samples(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordAction(evt *ActionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rule any
	if evt.Rule != "" {
		rule = evt.Rule
	}
	_, err := r.db.Exec(`INSERT INTO operator_actions
		(timestamp, action, ok, message, rule_json)
		VALUES (?,?,?,?,?)`,
		unixOrNow(evt.At), evt.Action, evt.OK, evt.Message, rule,
	)
	return err
}

func (r *SQLiteRecorder) RecordStatus(s *StatusSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO status_samples
		(timestamp, running, total_spent, daily_cap, remaining, log_count)
		VALUES (?,?,?,?,?,?)`,
		unixOrNow(s.At), s.Running,
		s.TotalSpent.String(), s.DailyCap.String(), s.Remaining.String(),
		s.LogCount,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}

func unixOrNow(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().Unix()
	}
	return t.Unix()
}
