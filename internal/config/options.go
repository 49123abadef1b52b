package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/sceneit/vcam/internal/frame"
	"github.com/sceneit/vcam/internal/framebuffer"
	"github.com/sceneit/vcam/internal/logging"
)

// Transport names accepted by the transport option.
const (
	TransportMessage = "message"
	TransportShared  = "shared"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"vcam.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8095" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Transport settings
	Transport string `help:"Frame transport (message, shared)" default:"message" toml:"transport" env:"TRANSPORT"`

	// Message transport settings
	NATSHost         string `help:"Embedded NATS host" default:"127.0.0.1" toml:"nats.host" env:"NATS_HOST"`
	NATSPort         int    `help:"Embedded NATS port" default:"4223" toml:"nats.port" env:"NATS_PORT"`
	NATSRetryDelayMs int    `help:"Base reconnect delay in milliseconds" default:"2000" toml:"nats.retry_delay_ms" env:"NATS_RETRY_DELAY_MS"`

	// Shared memory settings
	SHMName  string `help:"Shared memory segment name" default:"com.sceneit.virtualcamera.sharedmem" toml:"shm.name" env:"SHM_NAME"`
	SHMDir   string `help:"Directory holding the segment, empty for the platform default" toml:"shm.dir" env:"SHM_DIR"`
	SHMSlots int    `help:"Ring slot count" default:"8" toml:"shm.slots" env:"SHM_SLOTS"`

	// Device settings
	DeviceWidth     int `help:"Virtual device width" default:"1920" toml:"device.width" env:"DEVICE_WIDTH"`
	DeviceHeight    int `help:"Virtual device height" default:"1080" toml:"device.height" env:"DEVICE_HEIGHT"`
	DeviceFrameRate int `help:"Virtual device frame rate (1-60)" default:"30" toml:"device.frame_rate" env:"DEVICE_FRAME_RATE"`

	// Source settings
	SourceFrameRate int `help:"Synthetic source frame rate" default:"30" toml:"source.frame_rate" env:"SOURCE_FRAME_RATE"`

	// Extension settings
	ExtensionUnit string `help:"Systemd user unit running the extension, empty to supervise it as a child process" toml:"extension.unit" env:"EXTENSION_UNIT"`

	// Settings file
	SettingsFile string `help:"User settings file" default:"settings.toml" toml:"settings.file" env:"SETTINGS_FILE"`

	// Metrics
	MetricsEnabled bool `help:"Serve Prometheus metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingTransport string `help:"Transport logging level" default:"info" toml:"logging.transport" env:"LOGGING_TRANSPORT"`
	LoggingPublisher string `help:"Publisher logging level" default:"info" toml:"logging.publisher" env:"LOGGING_PUBLISHER"`
	LoggingDevice    string `help:"Virtual device logging level" default:"info" toml:"logging.device" env:"LOGGING_DEVICE"`
	LoggingInstaller string `help:"Installer logging level" default:"info" toml:"logging.installer" env:"LOGGING_INSTALLER"`
	LoggingAPI       string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

// Defaults returns Options populated with the same defaults the CLI applies.
func Defaults() Options {
	return Options{
		Config:           "vcam.toml",
		Port:             ":8095",
		AuthUsername:     "admin",
		AuthPassword:     "password",
		Transport:        TransportMessage,
		NATSHost:         "127.0.0.1",
		NATSPort:         4223,
		NATSRetryDelayMs: 2000,
		SHMName:          "com.sceneit.virtualcamera.sharedmem",
		SHMSlots:         8,
		DeviceWidth:      1920,
		DeviceHeight:     1080,
		DeviceFrameRate:  30,
		SourceFrameRate:  30,
		SettingsFile:     "settings.toml",
		MetricsEnabled:   true,
		LoggingLevel:     "info",
		LoggingFormat:    "text",
		LoggingTransport: "info",
		LoggingPublisher: "info",
		LoggingDevice:    "info",
		LoggingInstaller: "info",
		LoggingAPI:       "info",
	}
}

// Validate checks value ranges LoadConfig cannot enforce.
func (o *Options) Validate() error {
	switch o.Transport {
	case TransportMessage, TransportShared:
	default:
		return fmt.Errorf("unknown transport %q", o.Transport)
	}
	if o.NATSPort <= 0 || o.NATSPort > 65535 {
		return fmt.Errorf("nats port %d out of range", o.NATSPort)
	}
	if o.SHMSlots <= 0 {
		return fmt.Errorf("shm slots must be positive, got %d", o.SHMSlots)
	}
	if o.DeviceWidth <= 0 || o.DeviceHeight <= 0 {
		return fmt.Errorf("invalid device size %dx%d", o.DeviceWidth, o.DeviceHeight)
	}
	if o.DeviceFrameRate < 1 || o.DeviceFrameRate > 60 {
		return fmt.Errorf("device frame rate %d outside 1-60", o.DeviceFrameRate)
	}
	if o.SourceFrameRate < 1 || o.SourceFrameRate > 60 {
		return fmt.Errorf("source frame rate %d outside 1-60", o.SourceFrameRate)
	}
	return nil
}

// NATSURL is the client URL of the embedded server.
func (o *Options) NATSURL() string {
	return "nats://" + net.JoinHostPort(o.NATSHost, strconv.Itoa(o.NATSPort))
}

// RetryDelay is the message channel base reconnect delay.
func (o *Options) RetryDelay() time.Duration {
	return time.Duration(o.NATSRetryDelayMs) * time.Millisecond
}

// SHMLayout sizes ring slots for one device frame. Producer and consumer
// must agree on it.
func (o *Options) SHMLayout() framebuffer.Layout {
	return framebuffer.Layout{
		Capacity:     o.SHMSlots,
		SlotDataSize: o.DeviceWidth * o.DeviceHeight * frame.BytesPerPixel,
	}
}

// Logging builds the logging configuration from the flat fields.
func (o *Options) Logging() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"transport": o.LoggingTransport,
			"publisher": o.LoggingPublisher,
			"device":    o.LoggingDevice,
			"installer": o.LoggingInstaller,
			"api":       o.LoggingAPI,
		},
	}
}
