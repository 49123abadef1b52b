package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// States a transport connection can report.
var connectionStates = []string{"disconnected", "connecting", "connected", "interrupted", "failed"}

var (
	connectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "channel",
		Name:      "state",
		Help:      "Current connection state, one-hot by state label",
	}, []string{"transport", "state"})

	connectionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "channel",
		Name:      "connection_events_total",
		Help:      "Connection lifecycle events",
	}, []string{"transport", "event"})

	ringOccupancy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ring",
		Name:      "frames",
		Help:      "Unread frames in the shared ring",
	}, []string{"name"})
)

// SetConnectionState marks state as the only active state for transport.
func SetConnectionState(transport, state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		connectionState.WithLabelValues(transport, s).Set(v)
	}
}

// IncConnectionEvent counts a lifecycle event (established, reconnected,
// lost, failed).
func IncConnectionEvent(transport, event string) {
	connectionEvents.WithLabelValues(transport, event).Inc()
}

// SetRingOccupancy records the unread frame count of a shared ring.
func SetRingOccupancy(name string, frames int) {
	ringOccupancy.WithLabelValues(name).Set(float64(frames))
}
