package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/sceneit/vcam/internal/config"
	"github.com/sceneit/vcam/internal/frame"
	"github.com/sceneit/vcam/internal/logging"
	natsrpc "github.com/sceneit/vcam/internal/nats"
	"github.com/sceneit/vcam/internal/shm"
	"github.com/sceneit/vcam/internal/vdevice"
	"github.com/spf13/cobra"
)

// Extension is the consumer process: it owns the embedded NATS server, the
// virtual device and the endpoints that feed it.
type Extension struct {
	opts   *config.Options
	logger *slog.Logger

	server    *natsrpc.Server
	registry  *vdevice.Registry
	device    *vdevice.Device
	receiver  *vdevice.Receiver
	responder *natsrpc.Responder
	ring      *shm.Channel

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewExtension builds an extension from opts. Nothing runs until Start.
func NewExtension(opts *config.Options) *Extension {
	logger := logging.GetLogger("device")
	e := &Extension{
		opts:     opts,
		logger:   logger,
		registry: vdevice.NewRegistry(logger),
	}
	e.device = vdevice.New(vdevice.Options{
		FrameRate:       uint32(opts.DeviceFrameRate),
		Idle:            true,
		OnSessionChange: e.sessionChanged,
		Logger:          logger,
	})
	e.receiver = vdevice.NewReceiver(e.device, logger)
	return e
}

// Device returns the virtual device.
func (e *Extension) Device() *vdevice.Device {
	return e.device
}

// Start registers the device and brings up both transports. A registration
// failure is returned as-is; the process cannot serve without a device.
func (e *Extension) Start(ctx context.Context) error {
	if err := e.device.Register(e.registry); err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	if err := e.device.SetFormat(uint32(e.opts.DeviceWidth), uint32(e.opts.DeviceHeight), uint32(e.opts.DeviceFrameRate)); err != nil {
		e.logger.Warn("Requested format not supported, keeping default", "error", err)
	}

	transportLog := logging.GetLogger("transport")
	e.server = natsrpc.NewServer(natsrpc.ServerOptions{
		Host:   e.opts.NATSHost,
		Port:   e.opts.NATSPort,
		Logger: transportLog,
	})
	if err := e.server.Start(); err != nil {
		_ = e.device.Unregister()
		return err
	}

	e.responder = natsrpc.NewResponder(e.server.ClientURL(), e.receiver, transportLog)
	if err := e.responder.Start(); err != nil {
		e.server.Stop()
		_ = e.device.Unregister()
		return err
	}
	logging.SetLogCallback(e.forwardLog)

	ctx, e.cancel = context.WithCancel(ctx)
	if e.opts.Transport == config.TransportShared {
		ring, err := startSharedConsumer(ctx, e.opts, e.device, &e.wg, transportLog)
		if err != nil {
			e.Stop("stopped")
			return err
		}
		e.ring = ring
	}

	e.logger.Info("Extension ready",
		"device_id", e.device.Properties().Descriptor.DeviceID,
		"nats", e.server.ClientURL(),
		"transport", e.opts.Transport)
	return nil
}

// startSharedConsumer attaches to the frame ring and feeds d from a
// dedicated goroutine until ctx is done.
func startSharedConsumer(ctx context.Context, opts *config.Options, d *vdevice.Device, wg *sync.WaitGroup, logger *slog.Logger) (*shm.Channel, error) {
	ring, err := shm.Open(opts.SHMName, shm.Options{
		Dir:    opts.SHMDir,
		Layout: opts.SHMLayout(),
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	consumer := shm.NewConsumer(ring, 0, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		consumer.Run(ctx, func(f frame.Frame) {
			if err := d.ConsumeFrame(f); err != nil {
				logger.Debug("Dropped shared frame", "error", err)
			}
		})
	}()
	return ring, nil
}

func (e *Extension) sessionChanged(s vdevice.Session) {
	if e.responder == nil {
		return
	}
	e.responder.PublishState(natsrpc.DeviceStateMessage{
		DeviceID:  e.device.Properties().Descriptor.DeviceID.String(),
		Timestamp: time.Now().Format(time.RFC3339),
		Streaming: s.Streaming,
		Clients:   s.ActiveClients,
	})
}

// forwardLog sends warnings and errors to the host. Entries from the
// responder itself stay local so a failing publish cannot feed itself.
func (e *Extension) forwardLog(entry logging.LogEntry) {
	if entry.Level != "warn" && entry.Level != "error" {
		return
	}
	if entry.Attributes["component"] == "nats-responder" {
		return
	}
	e.responder.PublishLog(natsrpc.LogMessage{
		Timestamp: entry.Timestamp.Format(time.RFC3339Nano),
		Level:     entry.Level,
		Message:   entry.Message,
		Details:   entry.Attributes,
	})
}

// Stop tells hosts the extension is leaving, then tears everything down.
func (e *Extension) Stop(reason string) {
	logging.SetLogCallback(nil)
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	if e.ring != nil {
		_ = e.ring.Close()
	}
	if e.responder != nil {
		e.responder.Stop(reason)
	}
	if e.server != nil {
		e.server.Stop()
	}
	if err := e.device.Close(); err != nil {
		e.logger.Warn("Failed to close device", "error", err)
	}
}

// CreateExtensionCmd creates the extension command the installer launches.
func CreateExtensionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extension",
		Short: "Run the virtual camera extension",
		Long: `Registers the virtual camera device, starts the embedded NATS server and ` +
			`serves frames from the host until interrupted.`,
		Args: cobra.NoArgs,
		Run: humacli.WithOptions(func(_ *cobra.Command, _ []string, opts *config.Options) {
			logger := logging.GetLogger("device")
			ext := NewExtension(opts)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := ext.Start(ctx); err != nil {
				logger.Error("Extension failed to start", "error", err)
				os.Exit(1)
			}
			<-ctx.Done()
			logger.Info("Shutting down extension")
			ext.Stop("stopped")
		}),
	}
}
