package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const saveDebounce = 3 * time.Second

// Manager owns the live configuration record: load on startup, validated
// updates, and debounced persistence so rapid settings edits do not hammer
// the disk. Close flushes any pending write.
type Manager struct {
	path string
	log  *slog.Logger

	mu      sync.Mutex
	cfg     Config
	timer   *time.Timer
	pending bool
	closed  bool
}

// Load reads the config file at path (creating a default record when the
// file does not exist), overlays environment overrides, and validates the
// result.
func Load(path string, log *slog.Logger) (*Manager, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Unknown fields are ignored: additive schema changes stay
		// forward-compatible.
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		log.Info("config_not_found_using_defaults", "path", path)
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	m := &Manager{path: path, log: log, cfg: cfg}
	if os.IsNotExist(err) {
		if werr := m.writeFile(cfg); werr != nil {
			log.Warn("config_initial_save_failed", "error", werr)
		}
	}
	return m, nil
}

// Current returns a snapshot of the configuration.
func (m *Manager) Current() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Update validates and applies a new record, scheduling a debounced save.
func (m *Manager) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("config manager closed")
	}
	m.cfg = cfg
	m.scheduleSaveLocked()
	return nil
}

// RememberSession records the last opened file and page for restore on next
// launch, with the same debounced write discipline.
func (m *Manager) RememberSession(path string, page int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.cfg.LastOpenFile = path
	m.cfg.LastOpenPage = page
	m.scheduleSaveLocked()
}

func (m *Manager) scheduleSaveLocked() {
	m.pending = true
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(saveDebounce, func() {
		if err := m.Flush(context.Background()); err != nil {
			m.log.Error("config_save_failed", "error", err)
		}
	})
}

// Flush writes the record now if a save is pending.
func (m *Manager) Flush(_ context.Context) error {
	m.mu.Lock()
	if !m.pending {
		m.mu.Unlock()
		return nil
	}
	m.pending = false
	cfg := m.cfg
	m.mu.Unlock()

	return m.writeFile(cfg)
}

// Close stops the save timer and flushes pending state. Safe on all exit
// paths, including error paths.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
	}
	m.mu.Unlock()
	return m.Flush(ctx)
}

// writeFile persists with write-then-atomic-replace so a crash mid-write
// cannot leave a truncated config.
func (m *Manager) writeFile(cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
