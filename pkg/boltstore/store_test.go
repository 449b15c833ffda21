package boltstore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.bolt"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSeedAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "game.bolt")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.HasData() {
		t.Fatal("fresh store should be empty")
	}
	if err := s.Seed("Wizard"); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if err := s.SetAttr(1, "Spoofed_Name", "The Masked One"); err != nil {
		t.Fatalf("SetAttr: %v", err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if err := s2.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	god, ok := s2.Object(1)
	if !ok || god.Name != "Wizard" || !god.IsStaff() {
		t.Fatalf("God not loaded correctly: %+v", god)
	}
	if god.Attr(gamedb.AttrSpoofedName) != "The Masked One" {
		t.Errorf("attr lost on reload: %v", god.Attrs)
	}
	if ref, err := s2.CreateObject(&gamedb.Object{Name: "Bob", Type: gamedb.TypePlayer}); err != nil || ref != 4 {
		t.Errorf("CreateObject = %d, %v; want #4", ref, err)
	}
}

func TestMessageCRUDAndQuery(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []uint64
	for i := 0; i < 3; i++ {
		m, err := s.CreateMessage(&gamedb.Message{
			Senders: []gamedb.DBRef{5},
			Body:    []string{"alpha", "Beta", "gamma"}[i],
			Tags:    []gamedb.Tag{{Key: gamedb.TagMessenger}},
			Created: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
		ids = append(ids, m.ID)
	}
	if ids[0] == 0 || ids[1] <= ids[0] {
		t.Fatalf("ids not increasing: %v", ids)
	}

	all, err := s.QueryMessages(gamedb.Tagged(gamedb.TagMessenger))
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != ids[2] {
		t.Fatalf("expected newest first, got %d messages", len(all))
	}

	got, _ := s.QueryMessages(gamedb.BodyContains("BETA"))
	if len(got) != 1 || got[0].ID != ids[1] {
		t.Errorf("BodyContains query failed: %v", got)
	}
	got, _ = s.QueryMessages(gamedb.CreatedBefore(base.Add(90 * time.Minute)))
	if len(got) != 2 {
		t.Errorf("CreatedBefore returned %d", len(got))
	}

	if err := s.DeleteMessage(ids[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetMessage(ids[0]); !errors.Is(err, gamedb.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTagsReceiversAndReads(t *testing.T) {
	s := openTestStore(t)
	m, _ := s.CreateMessage(&gamedb.Message{Body: "x"})

	if err := s.AddTag(m.ID, gamedb.Tag{Key: gamedb.TagPreserve}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddReceiver(m.ID, 7, false); err != nil {
		t.Fatal(err)
	}
	if err := s.AddReceiver(m.ID, 8, true); err != nil {
		t.Fatal(err)
	}
	changed, err := s.MarkRead(m.ID, 8)
	if err != nil || !changed {
		t.Fatalf("first MarkRead = %v, %v", changed, err)
	}
	changed, err = s.MarkRead(m.ID, 8)
	if err != nil || changed {
		t.Fatalf("second MarkRead = %v, %v; want no change", changed, err)
	}

	got, _ := s.GetMessage(m.ID)
	if !got.HasTag(gamedb.TagPreserve) || !got.IsAbout(7) || !got.IsReadBy(8) {
		t.Errorf("message state wrong: %+v", got)
	}
	if err := s.RemoveReceiver(m.ID, 7, false); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveTag(m.ID, gamedb.TagPreserve, ""); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetMessage(m.ID)
	if got.IsAbout(7) || got.HasTag(gamedb.TagPreserve) {
		t.Errorf("removal did not persist: %+v", got)
	}
	if _, err := s.MarkRead(99999, 1); !errors.Is(err, gamedb.ErrNotFound) {
		t.Errorf("MarkRead on missing message = %v, want ErrNotFound", err)
	}
}

func TestWithdrawIsAllOrNothing(t *testing.T) {
	s := openTestStore(t)
	if err := s.AdjustCurrency(1, 100); err != nil {
		t.Fatal(err)
	}
	if err := s.AdjustMaterial(1, "Silk", 3); err != nil {
		t.Fatal(err)
	}

	err := s.Withdraw(1, 80, "silk", 5)
	var ie *gamedb.InsufficientError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InsufficientError, got %v", err)
	}
	if ie.Resource != "silk" || ie.Need != 5 || ie.Have != 3 {
		t.Errorf("shortfall = %+v", ie)
	}
	if bal, _ := s.Currency(1); bal != 100 {
		t.Errorf("money debited on failed withdraw: %d", bal)
	}

	if err := s.Withdraw(1, 80, "SILK", 2); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	bal, _ := s.Currency(1)
	silk, _ := s.MaterialAmount(1, "silk")
	if bal != 20 || silk != 1 {
		t.Errorf("after withdraw: money=%d silk=%d", bal, silk)
	}
	mats, _ := s.Materials(1)
	if mats["silk"] != 1 {
		t.Errorf("Materials = %v", mats)
	}
	if err := s.AdjustCurrency(1, -21); err == nil {
		t.Error("balance went negative")
	}
}

func TestWithdrawRejectsNegativeAmounts(t *testing.T) {
	s := openTestStore(t)
	if err := s.AdjustCurrency(1, 10); err != nil {
		t.Fatal(err)
	}
	if err := s.Withdraw(1, -5, "", 0); err == nil {
		t.Error("negative money withdraw accepted")
	}
	if err := s.Withdraw(1, 0, "iron", -5); err == nil {
		t.Error("negative material withdraw accepted")
	}
	if bal, _ := s.Currency(1); bal != 10 {
		t.Errorf("balance = %d, want 10", bal)
	}
	if n, _ := s.MaterialAmount(1, "iron"); n != 0 {
		t.Errorf("iron = %d, want 0", n)
	}
}

func TestPendingQueue(t *testing.T) {
	s := openTestStore(t)
	push := func(id uint64) {
		err := s.UpdatePending(9, func(q []gamedb.Envelope) ([]gamedb.Envelope, error) {
			return append([]gamedb.Envelope{{MsgID: id, Delivery: gamedb.Nothing, ForwardedBy: gamedb.Nothing}}, q...), nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	push(1)
	push(2)
	q, err := s.GetPending(9)
	if err != nil || len(q) != 2 || q[0].MsgID != 2 {
		t.Fatalf("queue = %+v, %v", q, err)
	}
	if n, _ := s.PendingTotal(); n != 2 {
		t.Errorf("PendingTotal = %d", n)
	}
	err = s.UpdatePending(9, func(q []gamedb.Envelope) ([]gamedb.Envelope, error) { return nil, nil })
	if err != nil {
		t.Fatal(err)
	}
	if refs, _ := s.PendingRecipients(); len(refs) != 0 {
		t.Errorf("empty queue should be removed, got %v", refs)
	}
}
