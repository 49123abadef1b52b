package core

import (
	"github.com/sceneit/vcam/internal/framebuffer"
	"github.com/sceneit/vcam/internal/msgchannel"
	"github.com/sceneit/vcam/internal/publisher"
)

// Status is a point-in-time view of the pipeline.
type Status struct {
	Active            bool               `json:"active"`
	Transport         string             `json:"transport"`
	ConnectionState   string             `json:"connection_state"`
	ConsumerConnected bool               `json:"consumer_connected"`
	OverlayID         string             `json:"overlay_id"`
	Effect            string             `json:"effect"`
	Width             uint32             `json:"width"`
	Height            uint32             `json:"height"`
	FrameRate         int                `json:"frame_rate"`
	Publisher         publisher.Stats    `json:"publisher"`
	Channel           *msgchannel.Stats  `json:"channel,omitempty"`
	Ring              *framebuffer.Stats `json:"ring,omitempty"`
}

// Status returns the current pipeline status.
func (c *Context) Status() Status {
	c.mu.Lock()
	st := Status{
		Active:    c.active,
		Transport: c.opts.Transport,
		OverlayID: c.spec.OverlayID,
		Effect:    string(c.spec.Effect),
		Width:     c.opts.Width,
		Height:    c.opts.Height,
		FrameRate: c.opts.FrameRate,
	}
	c.mu.Unlock()

	st.Publisher = c.publisher.Stats()
	st.ConsumerConnected = st.Publisher.ConsumerConnected
	switch {
	case c.msg != nil:
		st.ConnectionState = string(c.msg.State())
		stats := c.msg.Stats()
		st.Channel = &stats
	case c.producer != nil:
		st.ConnectionState = string(msgchannel.StateDisconnected)
		if c.producer.IsConnected() {
			st.ConnectionState = string(msgchannel.StateConnected)
		}
		stats := c.producer.Stats()
		st.Ring = &stats
	}
	return st
}
