package msgchannel

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/sceneit/vcam/internal/frame"
)

func TestFrameMessageRoundTrip(t *testing.T) {
	f := frame.TestPattern(16, 8, 3)
	f.Sequence = 42
	f.Timestamp = 123456789

	m, err := Decode(Encode(FrameMessage(OpSendFrame, f)))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	got := m.Frame()
	if m.Op != OpSendFrame || got.Width != 16 || got.Height != 8 || got.Sequence != 42 ||
		got.Timestamp != 123456789 || got.PixelFormat != frame.BGRA32 || got.BytesPerRow != 64 {
		t.Errorf("decoded %+v", m)
	}
	if !bytes.Equal(got.Data, f.Data) {
		t.Error("payload mismatch")
	}
	if err := frame.Validate(got); err != nil {
		t.Errorf("decoded frame invalid: %v", err)
	}
}

func TestFrameMessagePacksPaddedRows(t *testing.T) {
	f := frame.Frame{Width: 2, Height: 3, BytesPerRow: 12, PixelFormat: frame.BGRA32, Data: make([]byte, 36)}
	for y := range 3 {
		f.Data[y*12] = byte(y + 1)
	}

	m, err := Decode(Encode(FrameMessage(OpSendFrame, f)))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	got := m.Frame()
	if len(got.Data) != 24 || got.BytesPerRow != 8 {
		t.Fatalf("payload %d bytes, stride %d", len(got.Data), got.BytesPerRow)
	}
	for y := range 3 {
		if got.Data[y*8] != byte(y+1) {
			t.Errorf("row %d starts with %d", y, got.Data[y*8])
		}
	}
}

func TestDecodeRejectsUnpackedFramePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload int
		code    string
	}{
		{"short", 31, frame.CodeInsufficientData},
		{"padded", 40, frame.CodeSizeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, op := range []Op{OpSendFrame, OpSendSplashScreen} {
				data := Encode(Message{Op: op, Width: 2, Height: 4, Payload: make([]byte, tt.payload)})
				if _, err := Decode(data); !frame.HasCode(err, tt.code) {
					t.Errorf("%s: Decode() error = %v, want %s", op, err, tt.code)
				}
			}
		})
	}

	// Control ops carry geometry without a payload.
	if _, err := Decode(Encode(Message{Op: OpSetVideoFormat, Width: 2, Height: 4})); err != nil {
		t.Errorf("SetVideoFormat Decode() error = %v", err)
	}
}

func TestControlMessageFlags(t *testing.T) {
	m, err := Decode(Encode(Message{Op: OpUpdateStreamState, Active: true}))
	if err != nil || !m.Active {
		t.Fatalf("Decode() = %+v, %v", m, err)
	}
	m, err = Decode(Encode(Message{Op: OpSetVideoFormat, Width: 1920, Height: 1080, FrameRate: 30}))
	if err != nil || m.FrameRate != 30 || m.Width != 1920 || m.Active {
		t.Fatalf("Decode() = %+v, %v", m, err)
	}
}

func TestDecodeErrors(t *testing.T) {
	valid := Encode(Message{Op: OpSendFrame, Width: 1, Height: 1, Payload: []byte{1, 2, 3, 4}})

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"short", func(b []byte) []byte { return b[:10] }},
		{"version", func(b []byte) []byte { b[0] = 9; return b }},
		{"unknown op", func(b []byte) []byte { b[1] = 77; return b }},
		{"zero op", func(b []byte) []byte { b[1] = 0; return b }},
		{"truncated payload", func(b []byte) []byte { return b[:len(b)-1] }},
		{"length lies", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[32:], 99)
			return b
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(bytes.Clone(valid))
			if _, err := Decode(data); !HasCode(err, CodeEncoding) {
				t.Errorf("Decode() error = %v, want encoding error", err)
			}
		})
	}
}

func TestServeReplies(t *testing.T) {
	h := &stubHandler{}

	reply, err := UnmarshalReply(Serve(h, Encode(Message{Op: OpGetExtensionStatus})))
	if err != nil || !reply.OK || reply.Active || reply.Message != "Extension inactive" {
		t.Fatalf("status reply = %+v, %v", reply, err)
	}

	reply, _ = UnmarshalReply(Serve(h, []byte{1, 2}))
	if reply.OK || reply.Code != CodeEncoding {
		t.Errorf("garbage reply = %+v", reply)
	}

	h.failErr = &frame.ValidationError{Code: frame.CodeInsufficientData, Message: "short"}
	reply, _ = UnmarshalReply(Serve(h, Encode(FrameMessage(OpSendFrame, frame.New(2, 2)))))
	if reply.OK || reply.Code != frame.CodeInsufficientData {
		t.Errorf("rejected frame reply = %+v", reply)
	}
}

func TestOpString(t *testing.T) {
	if OpSetVideoFormat.String() != "setVideoFormat" || Op(99).String() != "op(99)" {
		t.Error("unexpected Op names")
	}
}
