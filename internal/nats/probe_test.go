package nats

import (
	"context"
	"testing"
	"time"

	"github.com/sceneit/vcam/internal/msgchannel"
)

func TestProbeReportsExtensionStatus(t *testing.T) {
	server := startServer(t, 14230)
	responder := NewResponder(server.ClientURL(), &countingHandler{}, testLogger())
	if err := responder.Start(); err != nil {
		t.Fatal(err)
	}
	defer responder.Stop("test")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := Probe(ctx, server.ClientURL(), testLogger())
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if !st.Active || st.Message != "Extension active and ready" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestProbeWithoutResponder(t *testing.T) {
	server := startServer(t, 14231)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Probe(ctx, server.ClientURL(), testLogger())
	if !msgchannel.HasCode(err, msgchannel.CodeNotConnected) {
		t.Errorf("Probe() error = %v, want not_connected", err)
	}
}

func TestWaitReadyWaitsForExtension(t *testing.T) {
	server := startServer(t, 14232)

	started := make(chan *Responder, 1)
	go func() {
		time.Sleep(300 * time.Millisecond)
		responder := NewResponder(server.ClientURL(), &countingHandler{}, testLogger())
		_ = responder.Start()
		started <- responder
	}()
	defer func() { (<-started).Stop("test") }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := WaitReady(ctx, server.ClientURL(), 50*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
	if !st.Active {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestWaitReadyHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := WaitReady(ctx, "nats://127.0.0.1:59998", 50*time.Millisecond, testLogger()); err == nil {
		t.Fatal("expected error without a server")
	}
	if time.Since(start) > 3*time.Second {
		t.Error("WaitReady overran its context")
	}
}
