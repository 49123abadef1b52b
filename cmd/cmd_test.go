package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sceneit/vcam/internal/config"
	natsrpc "github.com/sceneit/vcam/internal/nats"
	"github.com/sceneit/vcam/internal/vdevice"
)

func extensionOptions(t *testing.T, port int) *config.Options {
	t.Helper()
	opts := config.Defaults()
	opts.NATSPort = port
	opts.SHMDir = t.TempDir()
	return &opts
}

func TestExtensionAnswersStatusRequest(t *testing.T) {
	opts := extensionOptions(t, 14240)
	ext := NewExtension(opts)
	if err := ext.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer ext.Stop("stopped")

	if !ext.Device().Registered() {
		t.Error("device should be registered")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := natsrpc.Probe(ctx, opts.NATSURL(), nil)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if !st.Active || st.Message != vdevice.StatusActive {
		t.Errorf("status = %+v", st)
	}
}

func TestExtensionPublishesSessionChanges(t *testing.T) {
	opts := extensionOptions(t, 14241)
	ext := NewExtension(opts)
	if err := ext.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer ext.Stop("stopped")

	nc, err := nats.Connect(opts.NATSURL())
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	states := make(chan *nats.Msg, 4)
	if _, err := nc.ChanSubscribe(natsrpc.SubjectDeviceState, states); err != nil {
		t.Fatal(err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}

	client := &countingClient{id: "test-client"}
	if err := ext.Device().Subscribe(client); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-states:
		m, err := natsrpc.UnmarshalDeviceState(msg.Data)
		if err != nil {
			t.Fatal(err)
		}
		if !m.Streaming || m.Clients != 1 {
			t.Errorf("state = %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no device state published")
	}
}

func TestExtensionPortInUse(t *testing.T) {
	opts := extensionOptions(t, 14242)
	first := NewExtension(opts)
	if err := first.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer first.Stop("stopped")

	second := NewExtension(opts)
	if err := second.Start(context.Background()); err == nil {
		second.Stop("stopped")
		t.Fatal("expected second extension to fail on a busy port")
	}
	if second.Device().Registered() {
		t.Error("failed start should leave the device unregistered")
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	opts := config.Defaults()
	opts.SettingsFile = filepath.Join(dir, "settings.toml")
	if err := Validate(&opts); err != nil {
		t.Errorf("defaults with missing settings file: %v", err)
	}

	if err := os.WriteFile(opts.SettingsFile, []byte(`overlay_id = "sparkles"`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Validate(&opts); err == nil {
		t.Error("expected unknown overlay to fail")
	}

	opts = config.Defaults()
	opts.SettingsFile = filepath.Join(dir, "missing.toml")
	opts.Transport = "pipe"
	if err := Validate(&opts); err == nil {
		t.Error("expected bad transport to fail")
	}
}
