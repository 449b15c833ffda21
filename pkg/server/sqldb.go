package server

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
	"github.com/crystal-mush/mushpost/pkg/msgs"
	_ "modernc.org/sqlite"
)

// SQLStore is the SQLite3 audit log: journal edits and deletes, and
// messenger traffic. It implements msgs.Auditor.
type SQLStore struct {
	db      *sql.DB
	mu      sync.Mutex
	path    string
	timeout time.Duration

	sessMu   sync.RWMutex
	sessions map[gamedb.DBRef]string // player -> current connection session
}

var migrations = []struct {
	name string
	sql  string
}{
	{"journal change log", `
		CREATE TABLE journal_changes (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			msg_id   INTEGER NOT NULL,
			author   INTEGER NOT NULL,
			editor   INTEGER NOT NULL,
			action   TEXT NOT NULL,
			old_text TEXT NOT NULL DEFAULT '',
			new_text TEXT NOT NULL DEFAULT '',
			session  TEXT NOT NULL DEFAULT '',
			at       INTEGER NOT NULL
		);
		CREATE INDEX idx_journal_changes_msg ON journal_changes(msg_id);`},
	{"delivery log", `
		CREATE TABLE deliveries (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			msg_id    INTEGER NOT NULL,
			sender    INTEGER NOT NULL,
			recipient INTEGER NOT NULL,
			action    TEXT NOT NULL,
			money     INTEGER NOT NULL DEFAULT 0,
			material  TEXT NOT NULL DEFAULT '',
			amount    INTEGER NOT NULL DEFAULT 0,
			delivery  INTEGER NOT NULL DEFAULT -1,
			session   TEXT NOT NULL DEFAULT '',
			at        INTEGER NOT NULL
		);
		CREATE INDEX idx_deliveries_recipient ON deliveries(recipient, at);`},
}

// OpenSQLStore opens a SQLite3 database, sets WAL mode and busy timeout,
// and applies pending migrations.
func OpenSQLStore(path string, timeoutSec int) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	// Set WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	// Set busy timeout (milliseconds)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", timeoutSec*1000)); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	s := &SQLStore{
		db:       db,
		path:     path,
		timeout:  time.Duration(timeoutSec) * time.Second,
		sessions: make(map[gamedb.DBRef]string),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	for i, m := range migrations {
		version := i + 1
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", version, err)
		}
		if count > 0 {
			continue
		}
		log.Printf("sqldb: running migration %d: %s", version, m.name)
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", version, m.name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the SQLite3 database connection.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the filesystem path of the SQLite database.
func (s *SQLStore) Path() string { return s.path }

// Checkpoint forces a WAL checkpoint to flush all writes to the main database file.
func (s *SQLStore) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// SetSession ties later audit rows by player to a connection session.
// An empty session clears it.
func (s *SQLStore) SetSession(player gamedb.DBRef, session string) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	if session == "" {
		delete(s.sessions, player)
		return
	}
	s.sessions[player] = session
}

func (s *SQLStore) session(player gamedb.DBRef) string {
	s.sessMu.RLock()
	defer s.sessMu.RUnlock()
	return s.sessions[player]
}

func (s *SQLStore) exec(query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// RecordJournalChange implements msgs.Auditor.
func (s *SQLStore) RecordJournalChange(c msgs.JournalChange) error {
	err := s.exec(`INSERT INTO journal_changes (msg_id, author, editor, action, old_text, new_text, session, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(c.MsgID), int(c.Author), int(c.Editor), c.Action, c.OldText, c.NewText,
		s.session(c.Editor), c.At.UnixNano())
	if err != nil {
		return fmt.Errorf("sqldb: record journal change: %w", err)
	}
	return nil
}

// RecordDelivery implements msgs.Auditor.
func (s *SQLStore) RecordDelivery(r msgs.DeliveryRecord) error {
	actor := r.Sender
	if r.Action == "received" || r.Action == "evicted" {
		actor = r.Recipient
	}
	err := s.exec(`INSERT INTO deliveries (msg_id, sender, recipient, action, money, material, amount, delivery, session, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(r.MsgID), int(r.Sender), int(r.Recipient), r.Action, r.Money, r.Material, r.Amount,
		int(r.Delivery), s.session(actor), r.At.UnixNano())
	if err != nil {
		return fmt.Errorf("sqldb: record delivery: %w", err)
	}
	return nil
}

var _ msgs.Auditor = (*SQLStore)(nil)

// AuditedChange is a journal change row.
type AuditedChange struct {
	msgs.JournalChange
	Session string
}

// RecentJournalChanges returns the newest journal changes first.
func (s *SQLStore) RecentJournalChanges(limit int) ([]AuditedChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT msg_id, author, editor, action, old_text, new_text, session, at
		FROM journal_changes ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqldb: query journal changes: %w", err)
	}
	defer rows.Close()

	var out []AuditedChange
	for rows.Next() {
		var c AuditedChange
		var msgID int64
		var author, editor int
		var at int64
		if err := rows.Scan(&msgID, &author, &editor, &c.Action, &c.OldText, &c.NewText, &c.Session, &at); err != nil {
			return nil, fmt.Errorf("sqldb: scan journal change: %w", err)
		}
		c.MsgID = uint64(msgID)
		c.Author, c.Editor = gamedb.DBRef(author), gamedb.DBRef(editor)
		c.At = time.Unix(0, at)
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeliveryCount returns how many delivery rows with the given action exist
// for recipient. An empty action counts all.
func (s *SQLStore) DeliveryCount(recipient gamedb.DBRef, action string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM deliveries WHERE recipient = ? AND (? = '' OR action = ?)`,
		int(recipient), action, action).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqldb: count deliveries: %w", err)
	}
	return n, nil
}
