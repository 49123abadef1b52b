package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deviceClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "device",
		Name:      "clients",
		Help:      "Clients subscribed to the virtual camera stream",
	})

	deviceSamples = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "device",
		Name:      "samples_total",
		Help:      "Samples pushed to clients by source (host, idle)",
	}, []string{"source"})

	deviceDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "device",
		Name:      "dropped_frames_total",
		Help:      "Frames the device could not wrap or deliver",
	}, []string{"reason"})
)

// SetDeviceClients sets the subscribed client count.
func SetDeviceClients(n int) {
	deviceClients.Set(float64(n))
}

// IncDeviceSamples counts one sample pushed from source.
func IncDeviceSamples(source string) {
	deviceSamples.WithLabelValues(source).Inc()
}

// IncDeviceDropped counts one dropped frame.
func IncDeviceDropped(reason string) {
	deviceDropped.WithLabelValues(reason).Inc()
}
