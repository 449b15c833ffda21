package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/crystal-mush/mushpost/pkg/boltstore"
	"github.com/crystal-mush/mushpost/pkg/msgs"
	"github.com/crystal-mush/mushpost/pkg/server"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	boltPath := flag.String("bolt", envDefault("MUSHPOST_BOLT", ""), "Path to bbolt persistent database (env: MUSHPOST_BOLT)")
	confFile := flag.String("conf", envDefault("MUSHPOST_CONF", ""), "Path to game config file (env: MUSHPOST_CONF)")
	port := flag.Int("port", 0, "TCP port to listen on, overrides config (env: MUSHPOST_PORT)")
	sqlDBPath := flag.String("sqldb", envDefault("MUSHPOST_SQLDB", ""), "Path to SQLite3 audit database, enables the audit log (env: MUSHPOST_SQLDB)")
	metricsAddr := flag.String("metrics-addr", envDefault("MUSHPOST_METRICS_ADDR", ""), "Serve Prometheus metrics on this address (env: MUSHPOST_METRICS_ADDR)")
	godName := flag.String("god", envDefault("MUSHPOST_GOD", "God"), "Name of the God character when seeding a new database (env: MUSHPOST_GOD)")
	flag.Parse()

	log.Printf("Welcome to %s", server.VersionString())

	if *port == 0 {
		if envPort := os.Getenv("MUSHPOST_PORT"); envPort != "" {
			if p, err := strconv.Atoi(envPort); err == nil {
				*port = p
			}
		}
	}

	if *boltPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: mushpost -bolt <boltfile> [-conf <config.yaml>] [-port 6250] [-sqldb <audit.db>] [-metrics-addr :9100]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Environment variables (used as defaults when flags are not set):")
		fmt.Fprintln(os.Stderr, "  MUSHPOST_BOLT          Path to bbolt persistent database")
		fmt.Fprintln(os.Stderr, "  MUSHPOST_CONF          Path to game config file (.yaml)")
		fmt.Fprintln(os.Stderr, "  MUSHPOST_PORT          TCP port to listen on")
		fmt.Fprintln(os.Stderr, "  MUSHPOST_SQLDB         Path to SQLite3 audit database")
		fmt.Fprintln(os.Stderr, "  MUSHPOST_METRICS_ADDR  Prometheus metrics address")
		fmt.Fprintln(os.Stderr, "  MUSHPOST_GOD           God character name for a new database")
		os.Exit(1)
	}

	// Load game config if specified, otherwise use defaults
	var gc *server.GameConf
	if *confFile != "" {
		var err error
		gc, err = server.LoadGameConf(*confFile)
		if err != nil {
			log.Fatalf("Error loading game config: %v", err)
		}
		log.Printf("Loaded game config from %s", *confFile)
	} else {
		gc = server.DefaultGameConf()
	}

	// Command-line flags override config file values
	if *port != 0 {
		gc.Port = *port
	}
	if *sqlDBPath != "" {
		gc.SQLEnabled = true
		gc.SQLDatabase = *sqlDBPath
	}
	if *metricsAddr != "" {
		gc.MetricsEnabled = true
		gc.MetricsAddr = *metricsAddr
	}
	if err := gc.Validate(); err != nil {
		log.Fatalf("Error in game config: %v", err)
	}

	store, err := boltstore.Open(*boltPath)
	if err != nil {
		log.Fatalf("Error opening bolt database: %v", err)
	}
	defer store.Close()
	if store.HasData() {
		if err := store.LoadAll(); err != nil {
			log.Fatalf("Error loading bolt database: %v", err)
		}
	} else {
		log.Printf("Empty database, seeding a new world")
		if err := store.Seed(*godName); err != nil {
			log.Fatalf("Error seeding database: %v", err)
		}
	}

	var opts []msgs.Option
	var sqlStore *server.SQLStore
	if gc.SQLEnabled {
		sqlStore, err = server.OpenSQLStore(gc.SQLDatabase, gc.SQLTimeout)
		if err != nil {
			log.Fatalf("Error opening SQL database %s: %v", gc.SQLDatabase, err)
		}
		defer sqlStore.Close()
		opts = append(opts, msgs.WithAuditor(sqlStore))
		log.Printf("SQL audit log enabled, database: %s (timeout=%ds)", gc.SQLDatabase, gc.SQLTimeout)
	}

	game := server.NewGame(store, gc, opts...)
	game.SQLDB = sqlStore
	game.ConfPath = *confFile
	if gc.MetricsEnabled {
		game.Metrics = server.NewMetrics(game, time.Now())
	}

	srv := server.NewServer(game)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Printf("Received %s, shutting down", sig)
		srv.Stop()
	}()

	log.Printf("Starting %s on port %d...", gc.MudName, gc.Port)
	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	if sqlStore != nil {
		if err := sqlStore.Checkpoint(); err != nil {
			log.Printf("WARNING: SQL checkpoint: %v", err)
		}
	}
	log.Printf("Shutdown complete")
}
