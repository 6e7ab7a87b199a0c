package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// NodeConfig holds the viewer node's own settings. The backend's
// tunables are not stored here; they live server-side and are fetched
// on demand.
type NodeConfig struct {
	// Identity
	NodeName string `json:"nodeName"`

	// Backend connection
	BackendURL string `json:"backendUrl"`

	// Polling
	PollIntervalSeconds   int `json:"pollIntervalSeconds"`
	RequestTimeoutSeconds int `json:"requestTimeoutSeconds"`
	DetectionLimit        int `json:"detectionLimit"`

	// Timestamps
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PollInterval returns the poll period as a duration
func (c NodeConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// RequestTimeout returns the per-request deadline as a duration
func (c NodeConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Validate checks the config is usable
func (c NodeConfig) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backendUrl is required")
	}
	if c.PollIntervalSeconds < 1 {
		return fmt.Errorf("pollIntervalSeconds must be at least 1")
	}
	if c.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("requestTimeoutSeconds must be at least 1")
	}
	if c.DetectionLimit < 1 {
		return fmt.Errorf("detectionLimit must be at least 1")
	}
	return nil
}

// Manager handles configuration persistence and access
type Manager struct {
	configPath string
	config     *NodeConfig
	mu         sync.RWMutex
}

// NewManager loads the config file at configPath, creating it with
// defaults if missing. Environment variables override what was loaded
// (see applyEnv); overrides are persisted so the file reflects the
// running configuration.
func NewManager(configPath string) (*Manager, error) {
	m := &Manager{configPath: configPath}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := m.load(); err != nil {
		m.config = defaultConfig()
	}

	m.applyEnv()

	if err := m.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := m.save(); err != nil {
		return nil, fmt.Errorf("failed to save config: %w", err)
	}

	return m, nil
}

// Get returns a copy of the current config
func (m *Manager) Get() NodeConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.config
}

// SetBackendURL updates the backend address
func (m *Manager) SetBackendURL(url string) error {
	if url == "" {
		return fmt.Errorf("backendUrl is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.BackendURL = url
	m.config.UpdatedAt = time.Now()
	return m.saveUnsafe()
}

// SetNodeName updates the node name
func (m *Manager) SetNodeName(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.NodeName = name
	m.config.UpdatedAt = time.Now()
	return m.saveUnsafe()
}

// applyEnv overlays environment variables onto the loaded config.
// A .env file, if present, has already been folded into the
// environment by main via godotenv.
func (m *Manager) applyEnv() {
	if url := os.Getenv("WATCHBOX_BACKEND_URL"); url != "" {
		m.config.BackendURL = url
	}
	if name := os.Getenv("WATCHBOX_NODE_NAME"); name != "" {
		m.config.NodeName = name
	}
	if interval := os.Getenv("WATCHBOX_POLL_INTERVAL_SECONDS"); interval != "" {
		if v, err := strconv.Atoi(interval); err == nil {
			m.config.PollIntervalSeconds = v
		}
	}
	if limit := os.Getenv("WATCHBOX_DETECTION_LIMIT"); limit != "" {
		if v, err := strconv.Atoi(limit); err == nil {
			m.config.DetectionLimit = v
		}
	}
}

// load reads config from file
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	var cfg NodeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return err
	}

	m.config = &cfg
	return nil
}

// save writes config to file
func (m *Manager) save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUnsafe()
}

// saveUnsafe writes config to file (caller must hold lock)
func (m *Manager) saveUnsafe() error {
	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.configPath, data, 0644)
}

func defaultConfig() *NodeConfig {
	hostname, _ := os.Hostname()
	now := time.Now()

	return &NodeConfig{
		NodeName:              hostname,
		BackendURL:            "http://localhost:5000",
		PollIntervalSeconds:   5,
		RequestTimeoutSeconds: 10,
		DetectionLimit:        100,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}
