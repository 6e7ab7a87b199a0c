package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/petdoor/watchbox/internal/backend"
	"github.com/petdoor/watchbox/internal/config"
	"github.com/petdoor/watchbox/internal/feed"
	"github.com/petdoor/watchbox/internal/monitor"
	"github.com/petdoor/watchbox/internal/natsserver"
	"github.com/petdoor/watchbox/internal/poller"
	"github.com/petdoor/watchbox/internal/state"
	"github.com/petdoor/watchbox/internal/web"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "/etc/watchbox/config.json", "Path to config file")
	backendURL := flag.String("backend", "", "Backend URL (overrides config)")
	webPort := flag.Int("port", 8080, "Dashboard port")
	natsPort := flag.Int("nats-port", 4222, "Embedded NATS port")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("WatchBox v%s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// Fold a .env file, if any, into the environment before the
	// config manager reads it
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	log.Printf("🚀 Starting WatchBox v%s", version)

	cfg, err := config.NewManager(*configPath)
	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	if *backendURL != "" {
		if err := cfg.SetBackendURL(*backendURL); err != nil {
			log.Fatalf("Invalid backend URL: %v", err)
		}
	}
	nodeCfg := cfg.Get()
	log.Printf("🔗 Backend: %s (poll every %s)", nodeCfg.BackendURL, nodeCfg.PollInterval())

	// Start embedded NATS server for the snapshot bus
	bus, err := natsserver.New(natsserver.Config{Port: *natsPort})
	if err != nil {
		log.Fatalf("Failed to start NATS server: %v", err)
	}
	defer bus.Shutdown()

	// API client for the pet-detection backend
	client := backend.NewClient(nodeCfg.BackendURL, nodeCfg.RequestTimeout())

	// View state store; every new snapshot goes onto the bus
	store := state.NewStore(func(vs state.ViewState) {
		data, err := json.Marshal(vs)
		if err != nil {
			log.Printf("⚠️ Failed to marshal snapshot: %v", err)
			return
		}
		if _, err := bus.PublishSnapshot(data); err != nil {
			log.Printf("⚠️ Failed to publish snapshot: %v", err)
		}
	})

	// Polling scheduler and mutation flows
	sched := poller.NewScheduler(client, store, nodeCfg.PollInterval(), nodeCfg.DetectionLimit)
	ctrl := monitor.NewController(client, store, sched)

	// WebSocket fan-out of snapshots to dashboards
	hub, err := feed.NewHub(bus, natsserver.SubjectSnapshot)
	if err != nil {
		log.Fatalf("Failed to start feed hub: %v", err)
	}
	go hub.Run()

	// Dashboard web server
	webServer := web.NewServer(cfg, ctrl, client, hub, bus, *webPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)

	go func() {
		if err := webServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Web server failed: %v", err)
		}
	}()

	log.Printf("✅ WatchBox running")
	log.Printf("🌐 Dashboard: http://localhost:%d", *webPort)
	log.Printf("📡 NATS: %s", bus.Address())

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("🛑 Shutting down...")
	cancel()
	sched.Stop()
	if err := webServer.Stop(); err != nil {
		log.Printf("⚠️ Web server shutdown: %v", err)
	}
}
