package msgs

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

func TestBoardPostAndUnread(t *testing.T) {
	env := newTestEnv(t)
	alice := env.player(t, "Alice", 0)
	bob := env.player(t, "Bob", 0)
	board := env.thing(t, "Notices", 0, gamedb.ObjTagBoard)

	if _, err := env.sys.Boards.Post(board, alice, "Feast", "Tonight in the hall."); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if n, _ := env.sys.Boards.NumUnread(board, bob); n != 1 {
		t.Errorf("bob unread = %d, want 1", n)
	}
	if n, _ := env.sys.Boards.NumUnread(board, alice); n != 0 {
		t.Errorf("poster unread = %d, want 0", n)
	}

	// A cached count follows new posts without a recompute.
	env.clock.Advance(time.Minute)
	env.sys.Boards.Post(board, alice, "Correction", "Tomorrow, not tonight.")
	if n, _ := env.sys.Boards.NumUnread(board, bob); n != 2 {
		t.Errorf("bob unread after second post = %d, want 2", n)
	}

	text, err := env.sys.Boards.ReadPost(board, 1, bob)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Notices 1", "Posted by: Alice", "Subject: Feast", "Tonight in the hall."} {
		if !strings.Contains(text, want) {
			t.Errorf("ReadPost missing %q:\n%s", want, text)
		}
	}
	if n, _ := env.sys.Boards.NumUnread(board, bob); n != 1 {
		t.Errorf("bob unread after read = %d, want 1", n)
	}
	lines, _ := env.sys.Boards.Index(board, bob)
	if len(lines) != 2 || strings.Contains(lines[0], "*") || !strings.Contains(lines[1], "*") {
		t.Errorf("Index = %q", lines)
	}
	if n, _ := env.sys.Boards.MarkAllRead(board, bob); n != 2 {
		t.Errorf("MarkAllRead = %d", n)
	}
	if n, _ := env.sys.Boards.NumUnread(board, bob); n != 0 {
		t.Errorf("unread after mark all = %d", n)
	}
}

func TestBoardRejects(t *testing.T) {
	env := newTestEnv(t)
	alice := env.player(t, "Alice", 0)
	rock := env.thing(t, "Rock", 0)
	board := env.thing(t, "Notices", 0, gamedb.ObjTagBoard)
	if _, err := env.sys.Boards.Post(rock, alice, "hi", "there"); !errors.Is(err, ErrValidation) {
		t.Errorf("post to non-board = %v", err)
	}
	if _, err := env.sys.Boards.Post(board, alice, " ", "there"); !errors.Is(err, ErrValidation) {
		t.Errorf("post without subject = %v", err)
	}
	if _, err := env.sys.Boards.ReadPost(board, 1, alice); !errors.Is(err, ErrNotFound) {
		t.Errorf("read missing post = %v", err)
	}
}

func TestBoardOverflowKeepsSticky(t *testing.T) {
	env := newTestEnv(t)
	alice := env.player(t, "Alice", 0)
	board := env.thing(t, "Notices", 0, gamedb.ObjTagBoard)
	env.store.SetAttr(board, gamedb.AttrMaxPosts, "2")

	first, _ := env.sys.Boards.Post(board, alice, "Rules", "Be nice.")
	if err := env.sys.Boards.SetSticky(board, 1, 1, true); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(time.Minute)
	second, _ := env.sys.Boards.Post(board, alice, "Old", "old news")
	env.clock.Advance(time.Minute)
	env.sys.Boards.Post(board, alice, "New", "new news")

	posts, _ := env.sys.Boards.Posts(board)
	if len(posts) != 2 || posts[0].ID != first.ID {
		t.Fatalf("posts = %d, first id %d", len(posts), posts[0].ID)
	}
	archived, err := env.store.GetMessage(second.ID)
	if err != nil {
		t.Fatalf("archived post deleted: %v", err)
	}
	if !archived.HasTag(gamedb.TagArchived) || archived.IsAbout(board) {
		t.Errorf("archived post tags %v receivers %v", archived.TagKeys(), archived.ObjReceivers)
	}
}

func TestBoardOverflowDeletes(t *testing.T) {
	env := newTestEnv(t)
	p := env.sys.Policy()
	p.ArchiveOverflow = false
	p.BoardMaxPosts = 1
	env.sys.SetPolicy(p)
	alice := env.player(t, "Alice", 0)
	board := env.thing(t, "Notices", 0, gamedb.ObjTagBoard)
	old, _ := env.sys.Boards.Post(board, alice, "Old", "old news")
	env.clock.Advance(time.Minute)
	env.sys.Boards.Post(board, alice, "New", "new news")
	if _, err := env.store.GetMessage(old.ID); !errors.Is(err, gamedb.ErrNotFound) {
		t.Errorf("overflow post still stored: %v", err)
	}
}

func TestBoardDeleteAndSticky(t *testing.T) {
	env := newTestEnv(t)
	alice := env.player(t, "Alice", 0)
	bob := env.player(t, "Bob", 0)
	board := env.thing(t, "Notices", 0, gamedb.ObjTagBoard)
	env.sys.Boards.Post(board, alice, "Mine", "by alice")

	if err := env.sys.Boards.SetSticky(board, 1, bob, true); !errors.Is(err, ErrPermission) {
		t.Errorf("player pinned a post: %v", err)
	}
	if n, _ := env.sys.Boards.NumUnread(board, bob); n != 1 {
		t.Fatalf("unread = %d", n)
	}
	if err := env.sys.Boards.DeletePost(board, 1, bob); !errors.Is(err, ErrPermission) {
		t.Errorf("bob deleted alice's post: %v", err)
	}
	if err := env.sys.Boards.DeletePost(board, 1, alice); err != nil {
		t.Fatal(err)
	}
	if n, _ := env.sys.Boards.NumUnread(board, bob); n != 0 {
		t.Errorf("unread after delete = %d, want 0", n)
	}
}
