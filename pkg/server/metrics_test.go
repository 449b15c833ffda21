package server

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsHandler(t *testing.T) {
	env := newTestEnv(t)
	env.game.Metrics = NewMetrics(env.game, time.Now())
	env.game.Metrics.ConnectionOpened()
	env.game.Metrics.CommandProcessed()

	env.run(env.alice, "messenger Bob=Counting.")

	srv := httptest.NewServer(env.game.Metrics.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	out := string(body)

	for _, want := range []string{
		"mushpost_messengers_sent_total 1",
		"mushpost_messengers_pending 1",
		"mushpost_players_connected 3",
		"mushpost_connections_total 1",
		"mushpost_commands_processed_total 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

// Metrics methods are safe to call when metrics are disabled.
func TestMetricsNil(t *testing.T) {
	var m *Metrics
	m.ConnectionOpened()
	m.CommandProcessed()
}

func TestMetricsCountsBusEvents(t *testing.T) {
	env := newTestEnv(t)
	env.game.Metrics = NewMetrics(env.game, time.Now())

	env.game.Notify(env.bob.Player, "Psst.")
	env.game.DisconnectPlayer(env.bob)

	srv := httptest.NewServer(env.game.Metrics.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	out := string(body)
	for _, want := range []string{
		`mushpost_events_total{type="text"} 1`,
		`mushpost_events_total{type="disconnect"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
