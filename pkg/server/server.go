package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Server is the main TCP game server.
type Server struct {
	Game        *Game
	WelcomeText string

	mu         sync.Mutex
	listener   net.Listener
	metricsSrv *http.Server
	jobs       *Jobs
	watcher    *fsnotify.Watcher
}

// NewServer creates a new server instance around a game.
func NewServer(game *Game) *Server {
	return &Server{Game: game, WelcomeText: WelcomeText}
}

// Start begins listening for connections and the background services:
// the weekly job, the config watcher and the metrics endpoint. It blocks
// until the listener is closed.
func (s *Server) Start() error {
	conf := s.Game.Config()

	jobs, err := s.Game.StartJobs()
	if err != nil {
		return err
	}
	watcher, err := s.Game.WatchConf()
	if err != nil {
		log.Printf("WARNING: %v", err)
	}

	log.Printf("Database: %d objects, %d players", s.Game.Store.DB().Len(), len(s.Game.Store.Players()))
	if n, err := s.Game.Store.PendingTotal(); err == nil && n > 0 {
		log.Printf("Messengers waiting: %d", n)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", conf.Port))
	if err != nil {
		jobs.Stop()
		if watcher != nil {
			watcher.Close()
		}
		return fmt.Errorf("listener: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.jobs = jobs
	s.watcher = watcher
	s.mu.Unlock()

	if conf.MetricsEnabled {
		s.startMetrics(conf.MetricsAddr)
	}

	log.Printf("Listening on port %d", conf.Port)
	s.acceptLoop(ln)
	return nil
}

func (s *Server) startMetrics(addr string) {
	if s.Game.Metrics == nil {
		s.Game.Metrics = NewMetrics(s.Game, time.Now())
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Game.Metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	s.mu.Lock()
	s.metricsSrv = srv
	s.mu.Unlock()

	go func() {
		log.Printf("Metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("WARNING: metrics server: %v", err)
		}
	}()
}

// acceptLoop accepts connections on the given listener until it is closed.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Accept error: %v", err)
			continue
		}
		s.Game.Metrics.ConnectionOpened()
		go s.handleConnection(conn)
	}
}

// Stop closes the listener and background services, disconnects every
// client and cancels pending reminders.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		s.listener.Close()
	}
	if s.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.metricsSrv.Shutdown(ctx)
	}
	if s.jobs != nil {
		if err := s.jobs.Stop(); err != nil {
			log.Printf("WARNING: %v", err)
		}
	}
	if s.watcher != nil {
		s.watcher.Close()
	}
	for _, d := range s.Game.Conns.AllDescriptors() {
		d.Send("Shutting down. Goodbye!")
		d.Close()
	}
	s.Game.Msgs.Stop()
}

// handleConnection manages a single client connection lifecycle.
func (s *Server) handleConnection(conn net.Conn) {
	id := s.Game.Conns.NextID()
	d := NewDescriptor(id, conn)
	s.Game.Conns.Add(d)

	log.Printf("[%d] New connection from %s", d.ID, d.Addr)

	defer func() {
		s.Game.DisconnectPlayer(d)
		s.Game.Conns.Remove(d)
		d.Close()
		log.Printf("[%d] Connection closed from %s", d.ID, d.Addr)
	}()

	d.SendNoNewline(s.WelcomeText)

	// Main read loop
	scanner := bufio.NewScanner(d.Conn)
	scanner.Buffer(make([]byte, 8192), 8192)

	for {
		if idle := s.Game.Config().IdleTimeout; idle > 0 {
			d.Conn.SetReadDeadline(time.Now().Add(time.Duration(idle) * time.Second))
		}
		if !scanner.Scan() {
			return
		}
		if d.IsClosed() {
			return
		}

		line := scanner.Text()
		d.BytesRecv += len(line) + 1 // +1 for newline
		// Strip telnet control sequences (IAC sequences)
		line = stripTelnet(line)
		line = strings.TrimRight(line, "\r\n")
		d.LastCmd = time.Now()

		if d.State == ConnLogin {
			s.handleLoginCommand(d, line)
		} else {
			d.CmdCount++
			s.Game.Metrics.CommandProcessed()
			DispatchCommand(s.Game, d, line)
		}

		if d.IsClosed() {
			return
		}
	}
}

// handleLoginCommand processes pre-login commands.
func (s *Server) handleLoginCommand(d *Descriptor, input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}

	switch strings.ToUpper(input) {
	case "QUIT":
		d.Send("Goodbye!")
		d.Close()
		return
	case "WHO":
		s.Game.ShowWho(d)
		return
	}

	command, user := ParseConnect(input)
	switch {
	case strings.HasPrefix(command, "co"): // connect
		s.handleConnect(d, user)
	default:
		d.Send(fmt.Sprintf("Welcome to %s. Commands: connect <name>, WHO, QUIT", s.Game.Config().MudName))
	}
}

// handleConnect logs in a player, creating the character on first use.
func (s *Server) handleConnect(d *Descriptor, user string) {
	if user == "" {
		d.Send("Usage: connect <name>")
		return
	}
	if _, exists := s.Game.Store.FindPlayer(user); !exists {
		if ok, reason := validName(user); !ok {
			d.Send(reason)
			return
		}
	}
	player, created, err := s.Game.LoginPlayer(user)
	if err != nil {
		log.Printf("[%d] login %q failed: %v", d.ID, user, err)
		d.Send("Login failed. Please try again later.")
		return
	}
	s.Game.connectPlayer(d, player, created)
}

// stripTelnet removes telnet IAC command sequences from input.
func stripTelnet(s string) string {
	var buf strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == 0xFF && i+2 < len(s) {
			// IAC command: skip 3 bytes (IAC + cmd + option)
			i += 3
			continue
		}
		if s[i] == 0xFF && i+1 < len(s) {
			i += 2
			continue
		}
		// Skip other control chars except tab and standard whitespace
		if s[i] < 32 && s[i] != '\t' && s[i] != '\n' && s[i] != '\r' {
			i++
			continue
		}
		buf.WriteByte(s[i])
		i++
	}
	return buf.String()
}
