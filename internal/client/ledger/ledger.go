// Package ledger persists missed calls on the client, keyed by caller
// identity. One row per caller: a newer missed call from the same person
// overwrites the older unacknowledged one.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cazapp/famicall/internal/domain"
)

type Ledger struct {
	db   *sql.DB
	path string
}

// Open opens or creates the ledger database in the given directory.
func Open(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	path := filepath.Join(dir, "missed_calls.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure ledger: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS missed_calls (
			caller      TEXT PRIMARY KEY,
			caller_name TEXT NOT NULL DEFAULT '',
			at          INTEGER NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create missed_calls table: %w", err)
	}

	return &Ledger{db: db, path: path}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) Path() string {
	return l.path
}

// Record writes or overwrites the record for the caller.
func (l *Ledger) Record(mc domain.MissedCall) error {
	_, err := l.db.Exec(`
		INSERT INTO missed_calls (caller, caller_name, at) VALUES (?, ?, ?)
		ON CONFLICT(caller) DO UPDATE SET caller_name = excluded.caller_name, at = excluded.at
	`, string(mc.Caller), mc.CallerName, mc.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("record missed call: %w", err)
	}
	return nil
}

// Clear acknowledges the record for a caller; clearing an absent record is
// a no-op.
func (l *Ledger) Clear(caller domain.Identity) error {
	if _, err := l.db.Exec(`DELETE FROM missed_calls WHERE caller = ?`, string(caller)); err != nil {
		return fmt.Errorf("clear missed call: %w", err)
	}
	return nil
}

// List returns unacknowledged missed calls, most recent first.
func (l *Ledger) List() ([]domain.MissedCall, error) {
	rows, err := l.db.Query(`SELECT caller, caller_name, at FROM missed_calls ORDER BY at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list missed calls: %w", err)
	}
	defer rows.Close()

	var out []domain.MissedCall
	for rows.Next() {
		var caller, name string
		var at int64
		if err := rows.Scan(&caller, &name, &at); err != nil {
			return nil, fmt.Errorf("scan missed call: %w", err)
		}
		out = append(out, domain.MissedCall{
			Caller:     domain.Identity(caller),
			CallerName: name,
			At:         time.UnixMilli(at),
		})
	}
	return out, rows.Err()
}
