package nats

import (
	"encoding/json"
)

// Subjects shared by the host and the extension process.
const (
	SubjectPrefix = "vcam"

	// SubjectExtensionRPC carries message channel requests (host → extension).
	SubjectExtensionRPC = SubjectPrefix + ".extension.v1.rpc"
	// SubjectExtensionShutdown is published once by a departing extension.
	SubjectExtensionShutdown = SubjectPrefix + ".extension.v1.shutdown"
	// SubjectExtensionLogs forwards extension warnings and errors to the host.
	SubjectExtensionLogs = SubjectPrefix + ".extension.v1.logs"
	// SubjectDeviceState reports virtual device session changes.
	SubjectDeviceState = SubjectPrefix + ".device.v1.state"
)

// ShutdownMessage announces that the extension is going away for good.
type ShutdownMessage struct {
	Timestamp string `json:"timestamp"`
	Reason    string `json:"reason,omitempty"` // stopped, deactivated, replaced
}

// Marshal serializes the message to JSON.
func (m ShutdownMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// DeviceStateMessage reports the device session as the extension sees it.
type DeviceStateMessage struct {
	DeviceID  string `json:"device_id"`
	Timestamp string `json:"timestamp"`
	Streaming bool   `json:"streaming"`
	Clients   int    `json:"clients"`
}

// Marshal serializes the message to JSON.
func (m DeviceStateMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// LogMessage is a log entry forwarded from the extension.
type LogMessage struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"` // debug, info, warn, error
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// Marshal serializes the message to JSON.
func (m LogMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalShutdown deserializes a ShutdownMessage from JSON.
func UnmarshalShutdown(data []byte) (ShutdownMessage, error) {
	var m ShutdownMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalDeviceState deserializes a DeviceStateMessage from JSON.
func UnmarshalDeviceState(data []byte) (DeviceStateMessage, error) {
	var m DeviceStateMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalLog deserializes a LogMessage from JSON.
func UnmarshalLog(data []byte) (LogMessage, error) {
	var m LogMessage
	err := json.Unmarshal(data, &m)
	return m, err
}
