package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/sceneit/vcam/cmd"
	"github.com/sceneit/vcam/internal/api"
	"github.com/sceneit/vcam/internal/config"
	"github.com/sceneit/vcam/internal/core"
	"github.com/sceneit/vcam/internal/events"
	"github.com/sceneit/vcam/internal/installer"
	"github.com/sceneit/vcam/internal/logging"
	"github.com/sceneit/vcam/internal/metrics"
	natsrpc "github.com/sceneit/vcam/internal/nats"
	"github.com/sceneit/vcam/internal/overlay"
	"github.com/sceneit/vcam/internal/settings"
	"github.com/sceneit/vcam/internal/source"
)

func main() {
	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *config.Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system
		logging.Initialize(opts.Logging())
		logger := logging.GetLogger("main")

		if err := opts.Validate(); err != nil {
			logger.Error("Invalid configuration", "error", err)
			os.Exit(1)
		}

		var host *hostProcess
		hooks.OnStart(func() {
			var err error
			host, err = newHostProcess(opts, logger)
			if err != nil {
				logger.Error("Failed to start", "error", err)
				os.Exit(1)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := host.server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			if host != nil {
				host.close()
			}
		})
	})

	cli.Root().Use = "vcam"
	cli.Root().Short = "Virtual camera frame transport"

	cli.Root().AddCommand(cmd.CreateExtensionCmd())
	cli.Root().AddCommand(cmd.CreateConsumeCmd())
	cli.Root().AddCommand(cmd.CreateStatusCmd())
	cli.Root().AddCommand(cmd.CreateValidateCmd())
	cli.Root().AddCommand(cmd.CreateVersionCmd())

	// Run the CLI
	cli.Run()
}

// hostProcess is everything the host runs between OnStart and OnStop.
type hostProcess struct {
	logger    *slog.Logger
	bus       *events.Bus
	store     *settings.Store
	camera    *core.Context
	bridge    *natsrpc.Bridge
	activator extensionActivator
	installer *installer.Service
	server    *api.Server
}

func newHostProcess(opts *config.Options, logger *slog.Logger) (*hostProcess, error) {
	h := &hostProcess{logger: logger, bus: events.New()}
	logging.SetLogCallback(api.LogForwarder(h.bus))

	// User settings, hot reloaded from disk
	h.store = settings.NewStore(opts.SettingsFile, h.bus, logging.GetLogger("settings"))
	if err := h.store.Load(); err != nil {
		logger.Warn("Failed to load settings, using defaults", "error", err)
	}
	if err := h.store.Watch(); err != nil {
		logger.Warn("Settings hot reload disabled", "error", err)
	}

	src := source.NewPattern(source.Options{
		Width:     uint32(opts.DeviceWidth),
		Height:    uint32(opts.DeviceHeight),
		FrameRate: opts.SourceFrameRate,
		CameraID:  h.store.Get().SelectedCameraID,
		Logger:    logging.GetLogger("source"),
	})

	camera, err := core.New(core.OptionsFromConfig(opts, logging.GetLogger("publisher")), h.bus, h.store, src, overlay.NewRenderer())
	if err != nil {
		h.close()
		return nil, err
	}
	h.camera = camera
	if err := camera.Open(context.Background()); err != nil {
		h.close()
		return nil, err
	}

	// Device state and forwarded warnings from the extension
	h.bridge = natsrpc.NewBridge(opts.NATSURL(), h.bus, logging.GetLogger("transport"), logging.GetLogger("extension"))
	if err := h.bridge.Start(); err != nil {
		logger.Warn("NATS bridge unavailable", "error", err)
	}

	installLog := logging.GetLogger("installer")
	if err := h.startInstaller(opts, installLog); err != nil {
		h.close()
		return nil, err
	}

	var metricsHandler http.Handler
	if opts.MetricsEnabled {
		metricsHandler = metrics.Handler()
	}
	h.server = api.NewServer(&api.Options{
		AuthUsername:   opts.AuthUsername,
		AuthPassword:   opts.AuthPassword,
		Camera:         h.camera,
		Installer:      h.installer,
		Settings:       h.store,
		EventBus:       h.bus,
		MetricsHandler: metricsHandler,
	})

	if err := h.installer.RequestInstall(); err != nil {
		logger.Warn("Extension install not started", "error", err)
	}
	return h, nil
}

// extensionActivator is an installer.Activator holding resources.
type extensionActivator interface {
	installer.Activator
	Close()
}

// startInstaller supervises the extension as a child process, or through a
// systemd user unit when one is configured.
func (h *hostProcess) startInstaller(opts *config.Options, logger *slog.Logger) error {
	if opts.ExtensionUnit != "" {
		h.activator = installer.NewSystemdActivator(installer.SystemdOptions{
			Unit:     opts.ExtensionUnit,
			ReadyURL: opts.NATSURL(),
			Logger:   logger,
		})
		h.installer = installer.NewService(h.activator, h.bus, logger)
		return nil
	}

	activator, err := installer.NewProcessActivator(installer.ProcessOptions{
		Args: []string{
			"extension",
			"--config", opts.Config,
			"--transport", opts.Transport,
			"--nats-host", opts.NATSHost,
			"--nats-port", strconv.Itoa(opts.NATSPort),
		},
		ReadyURL:     opts.NATSURL(),
		Logger:       logger,
		OutputLogger: logging.GetLogger("extension"),
	})
	if err != nil {
		return err
	}
	h.activator = activator
	h.installer = installer.NewService(activator, h.bus, logger)
	activator.OnExit(h.installer.ExtensionExited)
	return nil
}

// close stops components in reverse start order.
func (h *hostProcess) close() {
	h.logger.Info("Shutting down server")
	if h.server != nil {
		if err := h.server.Stop(); err != nil {
			h.logger.Error("Error stopping HTTP server", "error", err)
		}
	}
	if h.camera != nil {
		h.camera.Stop()
		if err := h.camera.Close(); err != nil {
			h.logger.Warn("Error closing camera", "error", err)
		}
	}
	if h.installer != nil {
		h.installer.Close()
	}
	if h.activator != nil {
		h.activator.Close()
	}
	if h.bridge != nil {
		h.bridge.Stop()
	}
	if h.store != nil {
		if err := h.store.Close(); err != nil {
			h.logger.Warn("Error closing settings", "error", err)
		}
	}
	logging.SetLogCallback(nil)
}
