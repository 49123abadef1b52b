package msgchannel

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/sceneit/vcam/internal/frame"
	"github.com/sceneit/vcam/internal/version"
)

// Op tags a request message.
type Op uint8

// Request operations.
const (
	OpSendFrame Op = iota + 1
	OpUpdateStreamState
	OpSendSplashScreen
	OpGetExtensionStatus
	OpSetVideoFormat
)

func (o Op) String() string {
	switch o {
	case OpSendFrame:
		return "sendFrame"
	case OpUpdateStreamState:
		return "updateStreamState"
	case OpSendSplashScreen:
		return "sendSplashScreen"
	case OpGetExtensionStatus:
		return "getExtensionStatus"
	case OpSetVideoFormat:
		return "setVideoFormat"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// WireVersion is bumped on any layout change.
const WireVersion = version.Protocol

// HeaderSize is the fixed request header, little endian:
//
//	0  version u8
//	1  op u8
//	2  flags u8 (bit 0: stream active)
//	3  reserved u8
//	4  width u32
//	8  height u32
//	12 pixelFormat u32
//	16 frameRate u32
//	20 sequence u32
//	24 timestamp u64
//	32 payloadLength u32
//	36 payload
const HeaderSize = 36

const flagActive = 1 << 0

// Message is a decoded request.
type Message struct {
	Op          Op
	Active      bool
	Width       uint32
	Height      uint32
	PixelFormat frame.PixelFormat
	FrameRate   uint32
	Sequence    uint32
	Timestamp   uint64
	Payload     []byte
}

// FrameMessage builds a frame-carrying request for op. Padded rows are
// packed, so the payload is always Width*Height*4 bytes. f must be valid.
func FrameMessage(op Op, f frame.Frame) Message {
	f = frame.Packed(f)
	return Message{
		Op:          op,
		Width:       f.Width,
		Height:      f.Height,
		PixelFormat: f.PixelFormat,
		Sequence:    f.Sequence,
		Timestamp:   f.Timestamp,
		Payload:     f.Data,
	}
}

// Frame rebuilds the frame carried by m. Payloads are tightly packed on the
// wire, so BytesPerRow is always Width*4.
func (m Message) Frame() frame.Frame {
	return frame.Frame{
		Width:       m.Width,
		Height:      m.Height,
		BytesPerRow: m.Width * frame.BytesPerPixel,
		PixelFormat: m.PixelFormat,
		Timestamp:   m.Timestamp,
		Sequence:    m.Sequence,
		Data:        m.Payload,
	}
}

// Encode serializes m into a single buffer.
func Encode(m Message) []byte {
	buf := make([]byte, HeaderSize+len(m.Payload))
	buf[0] = WireVersion
	buf[1] = byte(m.Op)
	if m.Active {
		buf[2] |= flagActive
	}
	binary.LittleEndian.PutUint32(buf[4:], m.Width)
	binary.LittleEndian.PutUint32(buf[8:], m.Height)
	binary.LittleEndian.PutUint32(buf[12:], uint32(m.PixelFormat))
	binary.LittleEndian.PutUint32(buf[16:], m.FrameRate)
	binary.LittleEndian.PutUint32(buf[20:], m.Sequence)
	binary.LittleEndian.PutUint64(buf[24:], m.Timestamp)
	binary.LittleEndian.PutUint32(buf[32:], uint32(len(m.Payload)))
	copy(buf[HeaderSize:], m.Payload)
	return buf
}

// Decode parses a request. The payload aliases data. A frame payload that is
// not exactly Width*Height*4 bytes is rejected with a frame.ValidationError.
func Decode(data []byte) (Message, error) {
	if len(data) < HeaderSize {
		return Message{}, encodingError("short message: %d bytes", len(data))
	}
	if data[0] != WireVersion {
		return Message{}, encodingError("unsupported wire version %d", data[0])
	}

	m := Message{
		Op:          Op(data[1]),
		Active:      data[2]&flagActive != 0,
		Width:       binary.LittleEndian.Uint32(data[4:]),
		Height:      binary.LittleEndian.Uint32(data[8:]),
		PixelFormat: frame.PixelFormat(binary.LittleEndian.Uint32(data[12:])),
		FrameRate:   binary.LittleEndian.Uint32(data[16:]),
		Sequence:    binary.LittleEndian.Uint32(data[20:]),
		Timestamp:   binary.LittleEndian.Uint64(data[24:]),
	}
	if m.Op < OpSendFrame || m.Op > OpSetVideoFormat {
		return Message{}, encodingError("unknown op %d", data[1])
	}

	length := binary.LittleEndian.Uint32(data[32:])
	if int(length) != len(data)-HeaderSize {
		return Message{}, encodingError("payload length %d, message carries %d", length, len(data)-HeaderSize)
	}
	m.Payload = data[HeaderSize:]

	if m.Op == OpSendFrame || m.Op == OpSendSplashScreen {
		if err := checkPacked(m); err != nil {
			return Message{}, err
		}
	}
	return m, nil
}

func checkPacked(m Message) error {
	want := uint64(m.Width) * uint64(m.Height) * frame.BytesPerPixel
	got := uint64(len(m.Payload))
	switch {
	case got < want:
		return &frame.ValidationError{
			Code:    frame.CodeInsufficientData,
			Message: fmt.Sprintf("payload is %d bytes, %dx%d needs %d", got, m.Width, m.Height, want),
		}
	case got > want:
		return &frame.ValidationError{
			Code:    frame.CodeSizeMismatch,
			Message: fmt.Sprintf("payload is %d bytes, %dx%d packs to %d", got, m.Width, m.Height, want),
		}
	}
	return nil
}

// Reply answers every request.
type Reply struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
	Active  bool   `json:"active,omitempty"`
	Message string `json:"message,omitempty"`
}

// Marshal serializes the reply to JSON.
func (r Reply) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalReply deserializes a reply from JSON.
func UnmarshalReply(data []byte) (Reply, error) {
	var r Reply
	if err := json.Unmarshal(data, &r); err != nil {
		return Reply{}, &Error{Code: CodeEncoding, Message: "decode reply", Cause: err}
	}
	return r, nil
}

func encodingError(format string, args ...any) *Error {
	return &Error{Code: CodeEncoding, Message: fmt.Sprintf(format, args...)}
}
