// Package nats carries the virtual camera message channel between the host
// process and the camera extension process over an embedded NATS server.
//
// # Architecture
//
//   - Server: embedded NATS server running in the host (vcam serve)
//   - Transport: msgchannel.Transport for the host; one connection per dial,
//     reconnects disabled so the message channel owns retry policy
//   - Responder: extension side (vcam extension); answers requests with a
//     msgchannel.Handler and publishes device state
//   - Bridge: host side; turns device state into bus events and re-logs
//     forwarded extension logs
//
// # Subject Hierarchy
//
//	vcam.extension.v1.rpc        # encoded requests, JSON replies (host → extension)
//	vcam.extension.v1.shutdown   # extension departing for good (extension → host)
//	vcam.extension.v1.logs       # warnings and errors (extension → host)
//	vcam.device.v1.state         # device session changes (extension → host)
//
// A dropped connection is reported to the message channel as an
// interruption and retried. A shutdown message is an invalidation and is
// not retried.
//
// # Debugging with nats CLI
//
// Watch everything except frame payloads:
//
//	nats sub "vcam.device.>" -s nats://localhost:4223
//	nats sub "vcam.extension.v1.logs" -s nats://localhost:4223
//
// Ask the extension for its status (op 4, wire version 1, empty payload):
//
//	printf '\x01\x04%034s' '' | tr ' ' '\000' | nats req vcam.extension.v1.rpc --stdin -s nats://localhost:4223
//
// # Message Formats
//
// DeviceStateMessage (vcam.device.v1.state):
//
//	{
//	  "device_id": "8c1bd4e6-2f0b-4f5e-9d51-9a9d0c6f1a10",
//	  "timestamp": "2025-01-01T12:00:00Z",
//	  "streaming": true,
//	  "clients": 1
//	}
//
// ShutdownMessage (vcam.extension.v1.shutdown):
//
//	{
//	  "timestamp": "2025-01-01T12:00:00Z",
//	  "reason": "stopped"
//	}
package nats
