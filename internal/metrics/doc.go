// Package metrics provides Prometheus metrics for the frame publisher, the
// transports and the virtual device. Values are also cached for the status
// API so handlers do not scrape the registry.
package metrics
