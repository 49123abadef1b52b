package msgchannel

import (
	"errors"

	"github.com/sceneit/vcam/internal/frame"
)

// Status is the extension's answer to GetExtensionStatus.
type Status struct {
	Active  bool   `json:"active"`
	Message string `json:"message"`
}

// Handler is implemented by the receiving side of the channel.
type Handler interface {
	HandleFrame(f frame.Frame) error
	HandleSplash(f frame.Frame) error
	UpdateStreamState(active bool) error
	SetVideoFormat(width, height, frameRate uint32) error
	ExtensionStatus() Status
}

// Coder lets handler errors carry a reply code.
type Coder interface {
	ErrorCode() string
}

// Serve decodes one request, dispatches it to h and returns the encoded reply.
func Serve(h Handler, data []byte) []byte {
	reply := dispatch(h, data)
	out, err := reply.Marshal()
	if err != nil {
		// Reply has only string and bool fields.
		return []byte(`{"ok":false,"code":"encoding"}`)
	}
	return out
}

func dispatch(h Handler, data []byte) Reply {
	m, err := Decode(data)
	if err != nil {
		return errorReply(err)
	}

	switch m.Op {
	case OpSendFrame:
		err = h.HandleFrame(m.Frame())
	case OpSendSplashScreen:
		err = h.HandleSplash(m.Frame())
	case OpUpdateStreamState:
		err = h.UpdateStreamState(m.Active)
	case OpSetVideoFormat:
		err = h.SetVideoFormat(m.Width, m.Height, m.FrameRate)
	case OpGetExtensionStatus:
		st := h.ExtensionStatus()
		return Reply{OK: true, Active: st.Active, Message: st.Message}
	}

	if err != nil {
		return errorReply(err)
	}
	return Reply{OK: true}
}

func errorReply(err error) Reply {
	code := CodeRemote
	var coder Coder
	var e *Error
	var verr *frame.ValidationError
	switch {
	case errors.As(err, &coder):
		code = coder.ErrorCode()
	case errors.As(err, &verr):
		code = verr.Code
	case errors.As(err, &e):
		code = e.Code
	}
	return Reply{OK: false, Code: code, Error: err.Error()}
}
