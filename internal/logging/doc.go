// Package logging provides structured logging with per-module log levels.
//
// Records fan out to stdout (text or json), the systemd journal when one is
// reachable, and an in-memory ring that backs the /api/logs endpoint and the
// log-entry SSE event.
//
// Initialize once at startup, then ask for a module logger:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"msgchannel": "debug"},
//	})
//	logger := logging.GetLogger("publisher")
//	logger.Info("Publisher ready", "transport", "message")
//
// Module levels can be changed at runtime with SetLevel.
package logging
