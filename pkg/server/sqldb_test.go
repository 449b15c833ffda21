package server

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/crystal-mush/mushpost/pkg/boltstore"
	"github.com/crystal-mush/mushpost/pkg/gamedb"
	"github.com/crystal-mush/mushpost/pkg/msgs"
)

func openTestSQL(t *testing.T) *SQLStore {
	t.Helper()
	sq, err := OpenSQLStore(filepath.Join(t.TempDir(), "audit.db"), 5)
	if err != nil {
		t.Fatalf("OpenSQLStore: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return sq
}

func TestSQLStoreMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	for i := 0; i < 2; i++ {
		sq, err := OpenSQLStore(path, 5)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		var n int
		if err := sq.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
			t.Fatalf("count migrations: %v", err)
		}
		if n != len(migrations) {
			t.Errorf("open #%d: %d migrations recorded, want %d", i+1, n, len(migrations))
		}
		sq.Close()
	}
}

func TestSQLStoreJournalChanges(t *testing.T) {
	sq := openTestSQL(t)
	sq.SetSession(7, "sess-1")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	changes := []msgs.JournalChange{
		{MsgID: 1, Author: 7, Editor: 7, Action: "edit", OldText: "old", NewText: "new", At: at},
		{MsgID: 1, Author: 7, Editor: 1, Action: "delete", OldText: "new", At: at.Add(time.Minute)},
	}
	for _, c := range changes {
		if err := sq.RecordJournalChange(c); err != nil {
			t.Fatalf("RecordJournalChange: %v", err)
		}
	}

	got, err := sq.RecentJournalChanges(10)
	if err != nil {
		t.Fatalf("RecentJournalChanges: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d changes, want 2", len(got))
	}
	if got[0].Action != "delete" || got[0].Editor != 1 || got[0].Session != "" {
		t.Errorf("newest = %+v", got[0])
	}
	if got[1].Action != "edit" || got[1].OldText != "old" || got[1].Session != "sess-1" {
		t.Errorf("oldest = %+v", got[1])
	}
	if !got[1].At.Equal(at) {
		t.Errorf("At = %s, want %s", got[1].At, at)
	}
}

func TestSQLStoreDeliveries(t *testing.T) {
	sq := openTestSQL(t)
	now := time.Now()
	recs := []msgs.DeliveryRecord{
		{MsgID: 3, Sender: 5, Recipient: 6, Action: "sent", Money: 10, Delivery: gamedb.Nothing, At: now},
		{MsgID: 3, Sender: 5, Recipient: 6, Action: "received", Delivery: gamedb.Nothing, At: now},
		{MsgID: 4, Sender: 5, Recipient: 8, Action: "sent", Delivery: gamedb.Nothing, At: now},
	}
	for _, r := range recs {
		if err := sq.RecordDelivery(r); err != nil {
			t.Fatalf("RecordDelivery: %v", err)
		}
	}
	if n, err := sq.DeliveryCount(6, ""); err != nil || n != 2 {
		t.Errorf("DeliveryCount(6) = %d, %v; want 2", n, err)
	}
	if n, err := sq.DeliveryCount(6, "received"); err != nil || n != 1 {
		t.Errorf("DeliveryCount(6, received) = %d, %v; want 1", n, err)
	}
}

// The audit log is fed by the messaging system through msgs.WithAuditor.
func TestSQLStoreWiredToGame(t *testing.T) {
	st, err := boltstore.Open(filepath.Join(t.TempDir(), "game.bolt"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Seed("God"); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	sq := openTestSQL(t)
	g := NewGame(st, nil, msgs.WithAuditor(sq))
	g.SQLDB = sq
	t.Cleanup(g.Msgs.Stop)

	env := &testEnv{game: g, god: makeTestDescriptor(t, g, 1)}
	env.alice = env.login(t, "Alice")
	env.bob = env.login(t, "Bob")
	sq.SetSession(env.alice.Player, env.alice.Session)

	env.run(env.alice, "messenger Bob=Hello.")
	env.run(env.bob, "receive")
	if n, err := sq.DeliveryCount(env.bob.Player, ""); err != nil || n != 2 {
		t.Errorf("DeliveryCount(bob) = %d, %v; want sent+received", n, err)
	}

	env.run(env.alice, "journal/write First draft.")
	env.run(env.alice, "journal/edit 1=Second draft.")
	clearOutput(env.god)
	out := env.run(env.god, "journal/log")
	if !strings.Contains(out, "edit") || !strings.Contains(out, "Alice") {
		t.Errorf("journal/log: got %q", out)
	}
	changes, err := sq.RecentJournalChanges(1)
	if err != nil || len(changes) != 1 {
		t.Fatalf("RecentJournalChanges = %v, %v", changes, err)
	}
	if changes[0].Session != env.alice.Session {
		t.Errorf("session = %q, want %q", changes[0].Session, env.alice.Session)
	}
}
