// Package settings persists the user's app settings to a TOML file and keeps
// them in sync with edits made to that file while the host is running.
package settings

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/sceneit/vcam/internal/config"
	"github.com/sceneit/vcam/internal/events"
	"github.com/sceneit/vcam/internal/overlay"
)

const currentVersion = 1

// Settings are the user-facing choices that survive restarts.
type Settings struct {
	Version          int    `toml:"version" json:"-"`
	SelectedCameraID string `toml:"selected_camera_id,omitempty" json:"selected_camera_id" doc:"Capture device identifier, empty for the default camera"`
	UserName         string `toml:"user_name,omitempty" json:"user_name" doc:"Name shown on overlays with a name plate"`
	UserJobTitle     string `toml:"user_job_title,omitempty" json:"user_job_title" doc:"Job title shown under the name"`
	OverlayID        string `toml:"overlay_id,omitempty" json:"overlay_id" doc:"Selected overlay, empty for none"`
	Effect           string `toml:"effect,omitempty" json:"effect" doc:"Selected effect"`
}

// Validate checks the overlay and effect against the catalog.
func (s Settings) Validate() error {
	return s.OverlaySpec().Validate()
}

// OverlaySpec converts the stored selection into a transform spec.
func (s Settings) OverlaySpec() overlay.Spec {
	effect := overlay.Effect(s.Effect)
	if effect == "" {
		effect = overlay.EffectNone
	}
	return overlay.Spec{OverlayID: s.OverlayID, Effect: effect, Caption: s.UserName}
}

// LoadFile reads settings from path. A missing file yields zero settings.
func LoadFile(path string) (Settings, error) {
	s := Settings{Version: currentVersion}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := toml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse settings: %w", err)
	}
	if s.Version == 0 {
		s.Version = currentVersion
	}
	return s, nil
}

// Store owns the settings file.
type Store struct {
	path   string
	bus    *events.Bus
	logger *slog.Logger

	mu       sync.RWMutex
	current  Settings
	handlers []func(Settings)
	watcher  *config.Watcher[Settings]
}

// NewStore creates a store for path. bus may be nil.
func NewStore(path string, bus *events.Bus, logger *slog.Logger) *Store {
	if path == "" {
		path = "settings.toml"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:    path,
		bus:     bus,
		logger:  logger.With("component", "settings"),
		current: Settings{Version: currentVersion},
	}
}

// Path returns the settings file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the file into memory.
func (s *Store) Load() error {
	loaded, err := LoadFile(s.path)
	if err != nil {
		return err
	}
	if err := loaded.Validate(); err != nil {
		s.logger.Warn("Ignoring invalid overlay selection", "error", err)
		loaded.OverlayID, loaded.Effect = "", ""
	}
	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies fn to a copy of the settings, validates and saves the
// result. Handlers are notified after a successful save.
func (s *Store) Update(fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	next := s.current
	fn(&next)
	next.Version = currentVersion
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return s.current, err
	}
	if err := s.save(next); err != nil {
		s.mu.Unlock()
		return s.current, err
	}
	s.current = next
	handlers := append([]func(Settings){}, s.handlers...)
	s.mu.Unlock()

	for _, h := range handlers {
		h(next)
	}
	return next, nil
}

// OnChange registers fn for every settings change, whether made through
// Update or by editing the file.
func (s *Store) OnChange(fn func(Settings)) {
	s.mu.Lock()
	s.handlers = append(s.handlers, fn)
	s.mu.Unlock()
}

// save writes via a temp file and rename so readers never see a partial file.
func (s *Store) save(next Settings) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	data, err := toml.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.toml")
	if err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// Watch starts hot reload of the settings file.
func (s *Store) Watch(opts ...config.WatcherOption[Settings]) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	w := config.NewWatcher(s.path, LoadFile, s.logger, opts...)
	w.OnReload(s.reloaded)
	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to watch settings: %w", err)
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	return nil
}

// reloaded applies a value read from disk. Our own saves reload to the
// value already in memory and are skipped.
func (s *Store) reloaded(loaded Settings) {
	if err := loaded.Validate(); err != nil {
		s.logger.Warn("Reloaded settings rejected", "error", err)
		return
	}

	s.mu.Lock()
	if loaded == s.current {
		s.mu.Unlock()
		return
	}
	s.current = loaded
	handlers := append([]func(Settings){}, s.handlers...)
	s.mu.Unlock()

	s.logger.Info("Settings reloaded", "path", s.path)
	s.bus.Publish(events.SettingsReloadedEvent{Path: s.path, Timestamp: events.Now()})
	for _, h := range handlers {
		h(loaded)
	}
}

// Close stops watching.
func (s *Store) Close() error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Stop()
}
