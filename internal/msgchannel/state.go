package msgchannel

// State is the connection state of a Channel.
type State string

// Connection states.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateInterrupted  State = "interrupted"
	StateFailed       State = "failed"
)

// Stats counts frame submissions.
type Stats struct {
	Submitted    uint64 `json:"submitted"`
	Delivered    uint64 `json:"delivered"`
	Failed       uint64 `json:"failed"`
	Busy         uint64 `json:"busy"`
	NotConnected uint64 `json:"not_connected"`
	Rejected     uint64 `json:"rejected"`
}
