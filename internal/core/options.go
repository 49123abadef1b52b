package core

import (
	"log/slog"
	"time"

	"github.com/sceneit/vcam/internal/config"
	"github.com/sceneit/vcam/internal/frame"
	"github.com/sceneit/vcam/internal/shm"
)

// Options configures a Context.
type Options struct {
	// Transport is config.TransportMessage or config.TransportShared.
	Transport string

	// NATSURL locates the extension for the message transport.
	NATSURL    string
	RetryDelay time.Duration

	SHMName string
	SHM     shm.Options

	// Width, Height and FrameRate describe the published format.
	Width     uint32
	Height    uint32
	FrameRate int

	Heartbeat time.Duration
	Logger    *slog.Logger
}

// OptionsFromConfig maps CLI options onto core options.
func OptionsFromConfig(o *config.Options, logger *slog.Logger) Options {
	return Options{
		Transport:  o.Transport,
		NATSURL:    o.NATSURL(),
		RetryDelay: o.RetryDelay(),
		SHMName:    o.SHMName,
		SHM: shm.Options{
			Dir:    o.SHMDir,
			Layout: o.SHMLayout(),
			Logger: logger,
		},
		Width:     uint32(o.DeviceWidth),
		Height:    uint32(o.DeviceHeight),
		FrameRate: o.DeviceFrameRate,
		Logger:    logger,
	}
}

func (o Options) withDefaults() Options {
	if o.Transport == "" {
		o.Transport = config.TransportMessage
	}
	if o.SHMName == "" {
		o.SHMName = shm.DefaultName
	}
	if o.Width == 0 || o.Height == 0 {
		o.Width, o.Height = frame.DefaultWidth, frame.DefaultHeight
	}
	if o.FrameRate < frame.MinFrameRate || o.FrameRate > frame.MaxFrameRate {
		o.FrameRate = frame.DefaultFrameRate
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
