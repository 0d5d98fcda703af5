// Package store records deployment attempts in a SQLite database.
//
// Credentials are never written: a machine row holds the address and the
// username that last deployed to it, nothing else about access.
package store

import (
	"context"
	"database/sql"
	"embed"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rileyhilliard/agentdeploy/internal/deploy"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DefaultHistoryLimit caps History when the caller passes no limit.
const DefaultHistoryLimit = 20

// ErrNotFound is returned when a machine has no record.
var ErrNotFound = stderrors.New("not found")

// Deployment is one recorded attempt.
type Deployment struct {
	AttemptID  string       `json:"attempt_id"`
	Address    string       `json:"address"`
	Success    bool         `json:"success"`
	State      deploy.State `json:"state"`
	Code       string       `json:"code,omitempty"`
	Message    string       `json:"message"`
	LogTail    string       `json:"log_tail,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Machine is the latest known state of a deployment target.
type Machine struct {
	Address     string     `json:"address"`
	Username    string     `json:"username"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`   // last successful deployment
	LastSuccess *time.Time `json:"last_success,omitempty"` // same instant, kept for queries
	LastMessage string     `json:"last_message"`
	LastState   string     `json:"last_state"`
}

// Store is a deployment history database.
type Store struct {
	DB  *sql.DB
	now func() time.Time
}

// Open opens a SQLite database at the given path and runs all pending
// migrations. Use ":memory:" for an in-memory database.
func Open(dsn string) (*Store, error) {
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, storeError(err, "Couldn't create the directory for "+dsn)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storeError(err, "Couldn't open "+dsn)
	}
	// One connection: an in-memory database exists per connection, and
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, storeError(err, "Couldn't enable foreign keys")
	}
	if dsn != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, storeError(err, "Couldn't enable WAL")
		}
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, storeError(err, "Couldn't set the migration dialect")
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, storeError(err, "Couldn't migrate "+dsn)
	}

	return &Store{DB: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Ping checks the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM deployments`).Scan(&n); err != nil {
		return storeError(err, "Deployment history is unreadable")
	}
	return nil
}

// RecordDeployment stores out and updates the machine's latest state. The
// machine's updated_at only moves on success.
func (s *Store) RecordDeployment(ctx context.Context, username string, out deploy.Outcome) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return storeError(err, "Couldn't start a transaction")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	address := MachineKey(out.Host)
	var successAt any
	if out.Success {
		successAt = formatTime(out.FinishedAt)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO machines (address, username, created_at, updated_at, last_success, last_message, last_state)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			username     = excluded.username,
			last_message = excluded.last_message,
			last_state   = excluded.last_state,
			updated_at   = COALESCE(excluded.updated_at, machines.updated_at),
			last_success = COALESCE(excluded.last_success, machines.last_success)`,
		address, username, formatTime(s.now()), successAt, successAt, out.Message, out.State.String(),
	)
	if err != nil {
		return storeError(err, "Couldn't update machine "+address)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO deployments (attempt_id, address, success, state, code, message, log_tail, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.AttemptID, address, out.Success, out.State.String(), out.Code, out.Message, out.LogTail,
		formatTime(out.StartedAt), formatTime(out.FinishedAt),
	)
	if err != nil {
		return storeError(err, "Couldn't record deployment "+out.AttemptID)
	}

	if err := tx.Commit(); err != nil {
		return storeError(err, "Couldn't commit deployment "+out.AttemptID)
	}
	return nil
}

// History returns the most recent attempts against address, newest first.
func (s *Store) History(ctx context.Context, address string, limit int) ([]Deployment, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	address = MachineKey(address)
	rows, err := s.DB.QueryContext(ctx, `
		SELECT attempt_id, address, success, state, code, message, log_tail, started_at, finished_at
		FROM deployments WHERE address = ?
		ORDER BY started_at DESC, rowid DESC LIMIT ?`, address, limit)
	if err != nil {
		return nil, storeError(err, "Couldn't read history for "+address)
	}
	defer rows.Close()

	var out []Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err, "Couldn't read history for "+address)
	}
	return out, nil
}

// Machine returns the record for address, or ErrNotFound.
func (s *Store) Machine(ctx context.Context, address string) (Machine, error) {
	address = MachineKey(address)
	var m Machine
	var created string
	var updated, lastSuccess sql.NullString
	err := s.DB.QueryRowContext(ctx, `
		SELECT address, username, created_at, updated_at, last_success, last_message, last_state
		FROM machines WHERE address = ?`, address,
	).Scan(&m.Address, &m.Username, &created, &updated, &lastSuccess, &m.LastMessage, &m.LastState)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return m, fmt.Errorf("machine %q: %w", address, ErrNotFound)
		}
		return m, storeError(err, "Couldn't read machine "+address)
	}

	if m.CreatedAt, err = parseTime(created); err != nil {
		return m, err
	}
	if m.UpdatedAt, err = parseNullTime(updated); err != nil {
		return m, err
	}
	if m.LastSuccess, err = parseNullTime(lastSuccess); err != nil {
		return m, err
	}
	return m, nil
}

// MachineKey is the address a machine is stored under: the host without a
// user prefix, keeping the port only when it isn't 22. "root@10.0.0.5:22"
// and "10.0.0.5" are the same machine.
func MachineKey(address string) string {
	host := strings.TrimSpace(address)
	if i := strings.LastIndex(host, "@"); i != -1 {
		host = host[i+1:]
	}
	if h, port, err := net.SplitHostPort(host); err == nil {
		if port != "22" && port != "" {
			return net.JoinHostPort(strings.ToLower(h), port)
		}
		host = h
	}
	return strings.ToLower(strings.Trim(host, "[]"))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDeployment(s scanner) (Deployment, error) {
	var d Deployment
	var state, started, finished string
	if err := s.Scan(&d.AttemptID, &d.Address, &d.Success, &state, &d.Code, &d.Message, &d.LogTail, &started, &finished); err != nil {
		return d, storeError(err, "Couldn't scan deployment")
	}
	var err error
	if d.State, err = deploy.ParseState(state); err != nil {
		return d, storeError(err, "Corrupt deployment record "+d.AttemptID)
	}
	if d.StartedAt, err = parseTime(started); err != nil {
		return d, err
	}
	if d.FinishedAt, err = parseTime(finished); err != nil {
		return d, err
	}
	return d, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, storeError(err, fmt.Sprintf("Corrupt timestamp %q", s))
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func storeError(err error, message string) *errors.Error {
	return errors.WrapWithCode(err, errors.ErrStore, message, "Check the store.path setting and file permissions")
}
