package settings

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sceneit/vcam/internal/config"
	"github.com/sceneit/vcam/internal/events"
	"github.com/sceneit/vcam/internal/overlay"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLoadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "settings.toml"), nil, quietLogger())
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := s.Get(); got.OverlayID != "" || got.Version != currentVersion {
		t.Errorf("unexpected settings %+v", got)
	}
}

func TestUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.toml")
	s := NewStore(path, nil, quietLogger())

	var notified Settings
	s.OnChange(func(v Settings) { notified = v })

	_, err := s.Update(func(v *Settings) {
		v.UserName = "Alex Doe"
		v.UserJobTitle = "Engineer"
		v.OverlayID = overlay.Branded
		v.Effect = string(overlay.EffectVintage)
		v.SelectedCameraID = "cam-1"
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if notified.UserName != "Alex Doe" {
		t.Errorf("handler not notified, got %+v", notified)
	}

	reloaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if reloaded != s.Get() {
		t.Errorf("file = %+v, memory = %+v", reloaded, s.Get())
	}

	spec := reloaded.OverlaySpec()
	if spec.OverlayID != overlay.Branded || spec.Effect != overlay.EffectVintage || spec.Caption != "Alex Doe" {
		t.Errorf("unexpected spec %+v", spec)
	}
}

func TestUpdateRejectsUnknownOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	s := NewStore(path, nil, quietLogger())

	_, err := s.Update(func(v *Settings) { v.OverlayID = "neon" })
	if !errors.Is(err, overlay.ErrUnknownOverlay) {
		t.Fatalf("expected ErrUnknownOverlay, got %v", err)
	}
	if s.Get().OverlayID != "" {
		t.Error("rejected update changed memory")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("rejected update wrote the file")
	}
}

func TestLoadDropsInvalidSelection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	content := "user_name = \"Sam\"\noverlay_id = \"neon\"\neffect = \"blur\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewStore(path, nil, quietLogger())
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := s.Get()
	if got.UserName != "Sam" || got.OverlayID != "" || got.Effect != "" {
		t.Errorf("unexpected settings %+v", got)
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	if err := os.WriteFile(path, []byte("user_name = [[["), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := NewStore(path, nil, quietLogger()).Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWatchReloadsExternalEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	bus := events.New()
	s := NewStore(path, bus, quietLogger())
	if _, err := s.Update(func(v *Settings) { v.UserName = "before" }); err != nil {
		t.Fatal(err)
	}

	reloadEvents := make(chan events.SettingsReloadedEvent, 4)
	unsub := bus.Subscribe(func(e events.SettingsReloadedEvent) { reloadEvents <- e })
	defer unsub()

	changes := make(chan Settings, 4)
	s.OnChange(func(v Settings) { changes <- v })

	if err := s.Watch(config.WithDebounce[Settings](50 * time.Millisecond)); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer s.Close()
	time.Sleep(100 * time.Millisecond)

	content := "version = 1\nuser_name = \"after\"\noverlay_id = \"minimalist\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case v := <-changes:
		if v.UserName != "after" || v.OverlayID != overlay.Minimalist {
			t.Errorf("unexpected reload %+v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}

	select {
	case e := <-reloadEvents:
		if e.Path != path {
			t.Errorf("event path = %q, want %q", e.Path, path)
		}
	case <-time.After(time.Second):
		t.Fatal("no SettingsReloadedEvent")
	}

	if s.Get().UserName != "after" {
		t.Errorf("memory not updated: %+v", s.Get())
	}
}

func TestWatchSkipsOwnSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	s := NewStore(path, nil, quietLogger())
	if err := s.Watch(config.WithDebounce[Settings](50 * time.Millisecond)); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer s.Close()
	time.Sleep(100 * time.Millisecond)

	calls := make(chan Settings, 4)
	s.OnChange(func(v Settings) { calls <- v })

	if _, err := s.Update(func(v *Settings) { v.Effect = "monochrome" }); err != nil {
		t.Fatal(err)
	}
	<-calls // from Update itself

	select {
	case v := <-calls:
		t.Errorf("own save triggered a second notification: %+v", v)
	case <-time.After(300 * time.Millisecond):
	}
}
