package events

// Event type constants for kelindar/event.
const (
	TypeConnectionStateChanged uint32 = iota + 1
	TypeConnectionEstablished
	TypeConnectionLost
	TypeConnectionFailed
	TypeConsumerConnectionChanged
	TypeFrameRateUpdated
	TypeVirtualCameraState
	TypeOverlayChanged
	TypeInstallStatusChanged
	TypeDeviceStreamingChanged
	TypeSettingsReloaded
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ConnectionStateChangedEvent reports every transport state transition.
type ConnectionStateChangedEvent struct {
	Transport string `json:"transport" example:"message" doc:"Transport name: message or shared"`
	From      string `json:"from" example:"connecting" doc:"Previous state"`
	To        string `json:"to" example:"connected" doc:"New state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConnectionStateChangedEvent.
func (e ConnectionStateChangedEvent) Type() uint32 { return TypeConnectionStateChanged }

// ConnectionEstablishedEvent is posted when a transport reaches connected.
type ConnectionEstablishedEvent struct {
	Transport string `json:"transport" example:"message" doc:"Transport name"`
	Reconnect bool   `json:"reconnect" example:"false" doc:"True when recovering from an interruption"`
	Attempts  int    `json:"attempts" example:"1" doc:"Attempts used in this connect cycle"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConnectionEstablishedEvent.
func (e ConnectionEstablishedEvent) Type() uint32 { return TypeConnectionEstablished }

// ConnectionLostEvent is posted once per interruption or invalidation.
type ConnectionLostEvent struct {
	Transport string `json:"transport" example:"message" doc:"Transport name"`
	Reason    string `json:"reason" example:"interrupted" doc:"interrupted, invalidated or consumer_gone"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConnectionLostEvent.
func (e ConnectionLostEvent) Type() uint32 { return TypeConnectionLost }

// ConnectionFailedEvent is posted when the retry budget is exhausted.
type ConnectionFailedEvent struct {
	Transport string `json:"transport" example:"message" doc:"Transport name"`
	Attempts  int    `json:"attempts" example:"3" doc:"Attempts made"`
	Error     string `json:"error" doc:"Last connect error"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConnectionFailedEvent.
func (e ConnectionFailedEvent) Type() uint32 { return TypeConnectionFailed }

// ConsumerConnectionChangedEvent is the plugin connected/disconnected edge
// seen by the publisher heartbeat.
type ConsumerConnectionChangedEvent struct {
	Connected bool   `json:"connected" example:"true" doc:"Whether the consumer is reachable"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConsumerConnectionChangedEvent.
func (e ConsumerConnectionChangedEvent) Type() uint32 { return TypeConsumerConnectionChanged }

// FrameRateUpdatedEvent carries the publisher's rolling frame rate.
type FrameRateUpdatedEvent struct {
	FPS       float64 `json:"fps" example:"29.97" doc:"Frames per second over the last window"`
	Published uint64  `json:"published" example:"1800" doc:"Frames accepted by the channel"`
	Dropped   uint64  `json:"dropped" example:"3" doc:"Frames refused by the channel"`
	Rejected  uint64  `json:"rejected" example:"0" doc:"Frames that failed validation"`
	Timestamp string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameRateUpdatedEvent.
func (e FrameRateUpdatedEvent) Type() uint32 { return TypeFrameRateUpdated }

// VirtualCameraStateEvent reports the host starting or stopping the camera.
type VirtualCameraStateEvent struct {
	Active    bool   `json:"active" example:"true" doc:"Whether frames are being published"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for VirtualCameraStateEvent.
func (e VirtualCameraStateEvent) Type() uint32 { return TypeVirtualCameraState }

// OverlayChangedEvent reports a new overlay or effect selection.
type OverlayChangedEvent struct {
	OverlayID string `json:"overlay_id" example:"professional-frame" doc:"Selected overlay, empty for none"`
	Effect    string `json:"effect" example:"none" doc:"Selected effect"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for OverlayChangedEvent.
func (e OverlayChangedEvent) Type() uint32 { return TypeOverlayChanged }

// InstallStatusChangedEvent reports extension install/activation progress.
type InstallStatusChangedEvent struct {
	Status    string `json:"status" example:"active" doc:"Installer status"`
	Outcome   string `json:"outcome,omitempty" example:"completed" doc:"Outcome of the last request"`
	Message   string `json:"message,omitempty" doc:"Human readable detail"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for InstallStatusChangedEvent.
func (e InstallStatusChangedEvent) Type() uint32 { return TypeInstallStatusChanged }

// DeviceStreamingChangedEvent reports the virtual device session as seen by
// the extension process.
type DeviceStreamingChangedEvent struct {
	DeviceID  string `json:"device_id" doc:"Virtual device UUID"`
	Streaming bool   `json:"streaming" example:"true" doc:"Whether any client is subscribed"`
	Clients   int    `json:"clients" example:"1" doc:"Subscribed client count"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceStreamingChangedEvent.
func (e DeviceStreamingChangedEvent) Type() uint32 { return TypeDeviceStreamingChanged }

// SettingsReloadedEvent is posted after the settings file changes on disk.
type SettingsReloadedEvent struct {
	Path      string `json:"path" doc:"Settings file path"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SettingsReloadedEvent.
func (e SettingsReloadedEvent) Type() uint32 { return TypeSettingsReloaded }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
