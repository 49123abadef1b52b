package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPublisherMetricsCache(t *testing.T) {
	transport := "test-transport-1"
	DeletePublisherMetrics(transport)

	if m := GetPublisherMetrics(transport); m != nil {
		t.Error("expected nil for unseen transport")
	}

	SetPublisherFPS(transport, 29.5)
	IncPublisherFrames(transport, OutcomePublished)
	IncPublisherFrames(transport, OutcomePublished)
	IncPublisherFrames(transport, OutcomeDropped)
	IncPublisherFrames(transport, OutcomeRejected)
	SetConsumerConnected(transport, true)

	m := GetPublisherMetrics(transport)
	if m == nil {
		t.Fatal("expected non-nil metrics")
	}
	if m.FPS != 29.5 || m.Published != 2 || m.Dropped != 1 || m.Rejected != 1 || !m.ConsumerConnected {
		t.Errorf("cached = %+v", m)
	}

	m.FPS = 999
	if GetPublisherMetrics(transport).FPS != 29.5 {
		t.Error("cache was modified through returned copy")
	}

	if got := testutil.ToFloat64(publisherFrames.WithLabelValues(transport, OutcomePublished)); got != 2 {
		t.Errorf("frames_total{published} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(publisherConsumerConnected.WithLabelValues(transport)); got != 1 {
		t.Errorf("consumer_connected = %v, want 1", got)
	}

	DeletePublisherMetrics(transport)
	if GetPublisherMetrics(transport) != nil {
		t.Error("expected nil after delete")
	}
}

func TestGetAllPublisherMetrics(t *testing.T) {
	DeletePublisherMetrics("a")
	DeletePublisherMetrics("b")

	SetPublisherFPS("a", 30)
	SetPublisherFPS("b", 15)

	all := GetAllPublisherMetrics()
	if all["a"] == nil || all["a"].FPS != 30 || all["b"] == nil || all["b"].FPS != 15 {
		t.Errorf("all = %+v", all)
	}

	DeletePublisherMetrics("a")
	DeletePublisherMetrics("b")
}

func TestPublisherMetricsConcurrent(t *testing.T) {
	transport := "concurrent"
	DeletePublisherMetrics(transport)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				IncPublisherFrames(transport, OutcomePublished)
			}
		}()
	}
	wg.Wait()

	if got := GetPublisherMetrics(transport).Published; got != 1000 {
		t.Errorf("Published = %d, want 1000", got)
	}
	DeletePublisherMetrics(transport)
}

func TestConnectionStateOneHot(t *testing.T) {
	SetConnectionState("onehot", "connecting")
	SetConnectionState("onehot", "connected")

	for _, s := range connectionStates {
		want := 0.0
		if s == "connected" {
			want = 1
		}
		if got := testutil.ToFloat64(connectionState.WithLabelValues("onehot", s)); got != want {
			t.Errorf("state{%s} = %v, want %v", s, got, want)
		}
	}
}

func TestDeviceMetrics(t *testing.T) {
	SetDeviceClients(2)
	if got := testutil.ToFloat64(deviceClients); got != 2 {
		t.Errorf("clients = %v, want 2", got)
	}

	before := testutil.ToFloat64(deviceDropped.WithLabelValues("format_mismatch"))
	IncDeviceDropped("format_mismatch")
	if got := testutil.ToFloat64(deviceDropped.WithLabelValues("format_mismatch")); got != before+1 {
		t.Errorf("dropped = %v, want %v", got, before+1)
	}

	SetRingOccupancy("test-ring", 5)
	if got := testutil.ToFloat64(ringOccupancy.WithLabelValues("test-ring")); got != 5 {
		t.Errorf("ring frames = %v, want 5", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	SetPublisherFPS("http-test-transport", 25.0)
	defer DeletePublisherMetrics("http-test-transport")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `vcam_publisher_fps{transport="http-test-transport"} 25`) {
		t.Error("expected publisher fps in response")
	}
}
