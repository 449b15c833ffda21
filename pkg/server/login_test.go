package server

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestParseConnect(t *testing.T) {
	tests := []struct {
		in, cmd, user string
	}{
		{"connect Alice", "connect", "Alice"},
		{"CONNECT Alice oldpassword", "connect", "Alice"},
		{`co "Mary Ann"`, "co", "Mary Ann"},
		{"connect", "connect", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		cmd, user := ParseConnect(tt.in)
		if cmd != tt.cmd || user != tt.user {
			t.Errorf("ParseConnect(%q) = (%q, %q), want (%q, %q)", tt.in, cmd, user, tt.cmd, tt.user)
		}
	}
}

func TestValidName(t *testing.T) {
	for _, name := range []string{"Al", "Mary Ann", "Bob"} {
		if ok, reason := validName(name); !ok {
			t.Errorf("validName(%q) rejected: %s", name, reason)
		}
	}
	for _, name := range []string{"A", "Bob,Carol", "#12", strings.Repeat("x", 33)} {
		if ok, _ := validName(name); ok {
			t.Errorf("validName(%q) accepted", name)
		}
	}
}

func TestStripTelnet(t *testing.T) {
	in := "\xff\xfb\x01look\x07 here"
	if got := stripTelnet(in); got != "look here" {
		t.Errorf("stripTelnet = %q, want %q", got, "look here")
	}
}

// clientConn reads everything the server writes in the background.
type clientConn struct {
	net.Conn
	mu  sync.Mutex
	out strings.Builder
}

func newClient(c net.Conn) *clientConn {
	cc := &clientConn{Conn: c}
	go func() {
		r := bufio.NewReader(c)
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			cc.mu.Lock()
			cc.out.Write(buf[:n])
			cc.mu.Unlock()
			if err != nil {
				return
			}
		}
	}()
	return cc
}

// waitFor blocks until the output contains want or the deadline passes.
func (cc *clientConn) waitFor(t *testing.T, want string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		cc.mu.Lock()
		s := cc.out.String()
		cc.mu.Unlock()
		if strings.Contains(s, want) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	cc.mu.Lock()
	defer cc.mu.Unlock()
	t.Fatalf("timed out waiting for %q; got:\n%s", want, cc.out.String())
	return ""
}

func (cc *clientConn) send(t *testing.T, line string) {
	t.Helper()
	if _, err := cc.Write([]byte(line + "\r\n")); err != nil {
		t.Fatalf("write %q: %v", line, err)
	}
}

func TestHandleConnectionLogin(t *testing.T) {
	env := newTestEnv(t)
	srv := NewServer(env.game)

	serverSide, clientSide := net.Pipe()
	done := make(chan struct{})
	go func() {
		srv.handleConnection(serverSide)
		close(done)
	}()
	c := newClient(clientSide)
	defer clientSide.Close()

	c.waitFor(t, "connect <name>")
	c.send(t, "connect Carol")
	c.waitFor(t, "Welcome to mushpost, Carol.")
	if out := getOutput(env.alice); !strings.Contains(out, "Carol has connected.") {
		t.Errorf("connect announcement: got %q", out)
	}

	c.send(t, "messenger Alice=Hi from Carol.")
	c.waitFor(t, "You dispatch a messenger to Alice.")

	c.send(t, "quit")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("connection did not close after quit")
	}
	if env.game.Conns.IsConnected(env.game.MatchObject(1, "Carol")) {
		t.Errorf("Carol still connected after quit")
	}
}

func TestHandleConnectionBadName(t *testing.T) {
	env := newTestEnv(t)
	srv := NewServer(env.game)

	serverSide, clientSide := net.Pipe()
	go srv.handleConnection(serverSide)
	c := newClient(clientSide)
	defer clientSide.Close()

	c.send(t, "connect X")
	c.waitFor(t, "That name is too short.")
	c.send(t, "QUIT")
	c.waitFor(t, "Goodbye!")
}
