package msgs

import (
	"fmt"
	"log"
	"slices"
	"strconv"
	"strings"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

// Boards handles bulletin board posts. A board is an object tagged
// "bboard"; its posts are messages whose object receiver is the board.
type Boards struct {
	sys *System
}

// board loads and checks a board object.
func (bs *Boards) board(ref gamedb.DBRef) (*gamedb.Object, error) {
	obj, err := bs.sys.object(ref)
	if err != nil {
		return nil, err
	}
	if !obj.HasTag(gamedb.ObjTagBoard) {
		return nil, invalidf("%s is not a bulletin board.", obj.Name)
	}
	return obj, nil
}

func (bs *Boards) maxPosts(board *gamedb.Object) int {
	if n, err := strconv.Atoi(board.Attr(gamedb.AttrMaxPosts)); err == nil && n > 0 {
		return n
	}
	return bs.sys.Policy().BoardMaxPosts
}

// Posts lists a board's live posts, oldest first.
func (bs *Boards) Posts(board gamedb.DBRef) ([]*gamedb.Message, error) {
	if _, err := bs.board(board); err != nil {
		return nil, err
	}
	return bs.posts(board)
}

func (bs *Boards) posts(board gamedb.DBRef) ([]*gamedb.Message, error) {
	msgs, err := bs.sys.store.QueryMessages(gamedb.Tagged(gamedb.TagPost), gamedb.About(board))
	if err != nil {
		return nil, err
	}
	sortNewest(msgs)
	slices.Reverse(msgs)
	return msgs, nil
}

// Post adds a post, trimming the oldest non-sticky post when the board is
// over its limit.
func (bs *Boards) Post(board, poster gamedb.DBRef, subject, text string) (*gamedb.Message, error) {
	bobj, err := bs.board(board)
	if err != nil {
		return nil, err
	}
	subject, text = strings.TrimSpace(subject), strings.TrimSpace(text)
	if subject == "" || text == "" {
		return nil, invalidf("A post needs both a subject and a message.")
	}
	m, err := bs.sys.store.CreateMessage(&gamedb.Message{
		Senders:      []gamedb.DBRef{poster},
		ObjReceivers: []gamedb.DBRef{board},
		Header: gamedb.FormatHeader(
			gamedb.HeaderField{Key: gamedb.HeaderDate, Value: bs.sys.date()},
			gamedb.HeaderField{Key: gamedb.HeaderSubject, Value: subject},
		),
		Body:    text,
		Tags:    []gamedb.Tag{{Key: gamedb.TagPost, Category: gamedb.TagCategory}},
		Created: bs.sys.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("msgs: create post: %w", err)
	}
	if err := bs.trim(bobj); err != nil {
		log.Printf("WARNING: msgs: trim board #%d: %v", board, err)
	}
	if err := bs.sys.Reads.MarkRead(gamedb.Nothing, m.ID, poster); err != nil {
		log.Printf("WARNING: msgs: %v", err)
	}
	bs.sys.Reads.OnNewItem(board, poster)
	return m, nil
}

// trim archives or deletes the oldest non-sticky posts over the limit.
func (bs *Boards) trim(board *gamedb.Object) error {
	posts, err := bs.posts(board.DBRef)
	if err != nil {
		return err
	}
	over := len(posts) - bs.maxPosts(board)
	if over <= 0 {
		return nil
	}
	archive := bs.sys.Policy().ArchiveOverflow
	for _, p := range posts {
		if over == 0 {
			break
		}
		if p.HasTag(gamedb.TagSticky) {
			continue
		}
		if archive {
			_, err = bs.sys.store.UpdateMessage(p.ID, func(m *gamedb.Message) error {
				m.RemoveObjReceiver(board.DBRef)
				m.AddTag(gamedb.Tag{Key: gamedb.TagArchived, Category: gamedb.TagCategory})
				return nil
			})
		} else {
			err = bs.sys.store.DeleteMessage(p.ID)
		}
		if err != nil {
			return err
		}
		over--
	}
	bs.sys.Cache.Flush(board.DBRef)
	return nil
}

func (bs *Boards) postByNum(board gamedb.DBRef, n int) (*gamedb.Message, error) {
	posts, err := bs.Posts(board)
	if err != nil {
		return nil, err
	}
	if n < 1 || n > len(posts) {
		return nil, notFoundf("There is no post #%d.", n)
	}
	return posts[n-1], nil
}

// ReadPost displays post n and marks it read.
func (bs *Boards) ReadPost(board gamedb.DBRef, n int, viewer gamedb.DBRef) (string, error) {
	p, err := bs.postByNum(board, n)
	if err != nil {
		return "", err
	}
	if err := bs.sys.Reads.MarkRead(board, p.ID, viewer); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %d\nPosted by: %s\nSubject: %s\nDate: %s\n\n%s",
		bs.sys.name(board), n, bs.sys.SenderName(p, bs.sys.isStaff(viewer)),
		p.HeaderValue(gamedb.HeaderSubject), p.HeaderValue(gamedb.HeaderDate), p.Body), nil
}

// Index summarizes a board's posts for viewer, marking unread ones.
func (bs *Boards) Index(board, viewer gamedb.DBRef) ([]string, error) {
	posts, err := bs.Posts(board)
	if err != nil {
		return nil, err
	}
	acct := viewer
	if obj, ok := bs.sys.store.Object(viewer); ok {
		acct = accountOf(obj)
	}
	lines := make([]string, 0, len(posts))
	for i, p := range posts {
		mark := " "
		if !p.IsReadBy(acct) {
			mark = "*"
		}
		lines = append(lines, fmt.Sprintf("%3d%s %-30s %-16s %s", i+1, mark,
			summarize(p.HeaderValue(gamedb.HeaderSubject), 30), summarize(bs.sys.name(p.Sender()), 16),
			p.HeaderValue(gamedb.HeaderDate)))
	}
	return lines, nil
}

// NumUnread counts posts on board viewer has not read.
func (bs *Boards) NumUnread(board, viewer gamedb.DBRef) (int, error) {
	return bs.sys.Reads.NumUnread(board, viewer, func(acct gamedb.DBRef) (int, error) {
		return bs.sys.store.CountMessages(gamedb.Tagged(gamedb.TagPost), gamedb.About(board), gamedb.UnreadBy(acct))
	})
}

// DeletePost removes post n. Only its poster or staff may.
func (bs *Boards) DeletePost(board gamedb.DBRef, n int, actor gamedb.DBRef) error {
	p, err := bs.postByNum(board, n)
	if err != nil {
		return err
	}
	if p.Sender() != actor && !bs.sys.isStaff(actor) {
		return deniedf("You may only delete your own posts.")
	}
	if err := bs.sys.store.DeleteMessage(p.ID); err != nil {
		return err
	}
	bs.sys.Cache.Flush(board)
	return nil
}

// MarkAllRead marks every post on board read by viewer.
func (bs *Boards) MarkAllRead(board, viewer gamedb.DBRef) (int, error) {
	posts, err := bs.Posts(board)
	if err != nil {
		return 0, err
	}
	for _, p := range posts {
		if err := bs.sys.Reads.MarkRead(gamedb.Nothing, p.ID, viewer); err != nil {
			return 0, err
		}
	}
	bs.sys.Reads.Forget(board, viewer)
	return len(posts), nil
}

// SetSticky pins or unpins post n. Staff only.
func (bs *Boards) SetSticky(board gamedb.DBRef, n int, actor gamedb.DBRef, on bool) error {
	if !bs.sys.isStaff(actor) {
		return deniedf("Only staff may pin posts.")
	}
	p, err := bs.postByNum(board, n)
	if err != nil {
		return err
	}
	if on {
		return bs.sys.store.AddTag(p.ID, gamedb.Tag{Key: gamedb.TagSticky, Category: gamedb.TagCategory})
	}
	return bs.sys.store.RemoveTag(p.ID, gamedb.TagSticky, gamedb.TagCategory)
}
