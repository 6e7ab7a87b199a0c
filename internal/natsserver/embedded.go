// Package natsserver provides the embedded NATS server WatchBox uses
// as its in-process message bus. The store publishes view-state
// snapshots onto it; the feed hub subscribes and fans them out to
// connected dashboards. Keeping a real bus in the middle means the
// store never knows who is watching.
package natsserver

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// SubjectSnapshot carries every new ViewState snapshot as JSON
const SubjectSnapshot = "watchbox.state.snapshot"

// EmbeddedNATS wraps an embedded NATS server plus an internal client
// connection
type EmbeddedNATS struct {
	server             *server.Server
	conn               *nats.Conn
	port               int
	snapshotsPublished uint64
	snapshotsSkipped   uint64
}

// Config holds embedded server settings
type Config struct {
	Port       int
	MaxPayload int32
}

// DefaultConfig returns sensible defaults. Snapshots are small JSON
// documents; 1MB leaves ample headroom for large detection lists.
func DefaultConfig() Config {
	return Config{
		Port:       4222,
		MaxPayload: 1024 * 1024,
	}
}

// New creates and starts an embedded NATS server bound to localhost
func New(cfg Config) (*EmbeddedNATS, error) {
	if cfg.Port <= 0 {
		cfg.Port = DefaultConfig().Port
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = DefaultConfig().MaxPayload
	}

	opts := &server.Options{
		Host:          "127.0.0.1",
		Port:          cfg.Port,
		NoLog:         true,
		NoSigs:        true,
		MaxPayload:    cfg.MaxPayload,
		WriteDeadline: 10 * time.Second,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("NATS server not ready after 5 seconds")
	}

	nc, err := nats.Connect(
		fmt.Sprintf("nats://127.0.0.1:%d", cfg.Port),
		nats.Name("watchbox-internal"),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}

	log.Printf("📡 Embedded NATS server started on port %d", cfg.Port)

	return &EmbeddedNATS{
		server: ns,
		conn:   nc,
		port:   cfg.Port,
	}, nil
}

// PublishSnapshot publishes a snapshot, skipping the write entirely
// when nothing is subscribed. Returns true if it went out.
func (e *EmbeddedNATS) PublishSnapshot(data []byte) (bool, error) {
	if e.server.NumSubscriptions() == 0 {
		atomic.AddUint64(&e.snapshotsSkipped, 1)
		return false, nil
	}
	if err := e.conn.Publish(SubjectSnapshot, data); err != nil {
		atomic.AddUint64(&e.snapshotsSkipped, 1)
		return false, err
	}
	atomic.AddUint64(&e.snapshotsPublished, 1)
	return true, nil
}

// Subscribe subscribes to a subject
func (e *EmbeddedNATS) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	return e.conn.Subscribe(subject, handler)
}

// Conn returns the underlying NATS connection
func (e *EmbeddedNATS) Conn() *nats.Conn {
	return e.conn
}

// Address returns the NATS server address
func (e *EmbeddedNATS) Address() string {
	return fmt.Sprintf("nats://127.0.0.1:%d", e.port)
}

// NumClients returns the number of connected clients
func (e *EmbeddedNATS) NumClients() int {
	return e.server.NumClients()
}

// Stats holds bus statistics for the status endpoint
type Stats struct {
	Clients            int    `json:"clients"`
	Subscriptions      uint32 `json:"subscriptions"`
	SnapshotsPublished uint64 `json:"snapshotsPublished"`
	SnapshotsSkipped   uint64 `json:"snapshotsSkipped"`
}

// GetStats returns current bus statistics
func (e *EmbeddedNATS) GetStats() Stats {
	return Stats{
		Clients:            e.server.NumClients(),
		Subscriptions:      e.server.NumSubscriptions(),
		SnapshotsPublished: atomic.LoadUint64(&e.snapshotsPublished),
		SnapshotsSkipped:   atomic.LoadUint64(&e.snapshotsSkipped),
	}
}

// Shutdown gracefully shuts down the NATS server
func (e *EmbeddedNATS) Shutdown() {
	if e.conn != nil {
		e.conn.Close()
	}
	if e.server != nil {
		e.server.Shutdown()
	}
	log.Println("📡 NATS server shut down")
}
