package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vcam"

var (
	publisherFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "publisher",
		Name:      "fps",
		Help:      "Frames per second accepted by the transport over the last window",
	}, []string{"transport"})

	publisherFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "publisher",
		Name:      "frames_total",
		Help:      "Frames offered to the publisher by outcome",
	}, []string{"transport", "outcome"})

	publisherConsumerConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "publisher",
		Name:      "consumer_connected",
		Help:      "1 when the last heartbeat saw the consumer, else 0",
	}, []string{"transport"})

	publisherCache   = make(map[string]*PublisherMetrics)
	publisherCacheMu sync.RWMutex
)

// Frame outcomes.
const (
	OutcomePublished = "published"
	OutcomeDropped   = "dropped"
	OutcomeRejected  = "rejected"
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
)

// PublisherMetrics holds current publisher values for a transport.
type PublisherMetrics struct {
	FPS               float64 `json:"fps"`
	Published         uint64  `json:"published"`
	Dropped           uint64  `json:"dropped"`
	Rejected          uint64  `json:"rejected"`
	ConsumerConnected bool    `json:"consumer_connected"`
}

// SetPublisherFPS sets the rolling frame rate for a transport.
func SetPublisherFPS(transport string, fps float64) {
	publisherFPS.WithLabelValues(transport).Set(fps)
	updatePublisher(transport, func(m *PublisherMetrics) { m.FPS = fps })
}

// IncPublisherFrames counts one frame with the given outcome.
func IncPublisherFrames(transport, outcome string) {
	publisherFrames.WithLabelValues(transport, outcome).Inc()
	updatePublisher(transport, func(m *PublisherMetrics) {
		switch outcome {
		case OutcomePublished:
			m.Published++
		case OutcomeDropped:
			m.Dropped++
		case OutcomeRejected:
			m.Rejected++
		}
	})
}

// SetConsumerConnected records the heartbeat result for a transport.
func SetConsumerConnected(transport string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	publisherConsumerConnected.WithLabelValues(transport).Set(v)
	updatePublisher(transport, func(m *PublisherMetrics) { m.ConsumerConnected = connected })
}

// DeletePublisherMetrics removes all publisher metrics for a transport.
func DeletePublisherMetrics(transport string) {
	publisherFPS.DeleteLabelValues(transport)
	publisherConsumerConnected.DeleteLabelValues(transport)
	for _, o := range []string{OutcomePublished, OutcomeDropped, OutcomeRejected, OutcomeDelivered, OutcomeFailed} {
		publisherFrames.DeleteLabelValues(transport, o)
	}

	publisherCacheMu.Lock()
	delete(publisherCache, transport)
	publisherCacheMu.Unlock()
}

// GetPublisherMetrics returns current values for a transport.
func GetPublisherMetrics(transport string) *PublisherMetrics {
	publisherCacheMu.RLock()
	defer publisherCacheMu.RUnlock()
	if m, ok := publisherCache[transport]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllPublisherMetrics returns values for every transport seen.
func GetAllPublisherMetrics() map[string]*PublisherMetrics {
	publisherCacheMu.RLock()
	defer publisherCacheMu.RUnlock()
	result := make(map[string]*PublisherMetrics, len(publisherCache))
	for k, m := range publisherCache {
		dup := *m
		result[k] = &dup
	}
	return result
}

func updatePublisher(transport string, update func(*PublisherMetrics)) {
	publisherCacheMu.Lock()
	defer publisherCacheMu.Unlock()
	m, ok := publisherCache[transport]
	if !ok {
		m = &PublisherMetrics{}
		publisherCache[transport] = m
	}
	update(m)
}
