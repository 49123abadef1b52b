package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/google/uuid"
	"github.com/sceneit/vcam/internal/config"
	"github.com/sceneit/vcam/internal/logging"
	"github.com/sceneit/vcam/internal/vdevice"
	"github.com/spf13/cobra"
)

// countingClient stands in for a media client when no real one attaches.
type countingClient struct {
	id      string
	samples atomic.Uint64
}

func (c *countingClient) ID() string { return c.id }

func (c *countingClient) Deliver(vdevice.Sample) error {
	c.samples.Add(1)
	return nil
}

// CreateConsumeCmd creates the consume command: a standalone shared memory
// consumer that feeds a virtual device without the message transport.
func CreateConsumeCmd() *cobra.Command {
	var statsInterval time.Duration

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Drain the shared frame ring into a virtual device",
		Args:  cobra.NoArgs,
		Run: humacli.WithOptions(func(_ *cobra.Command, _ []string, opts *config.Options) {
			logger := logging.GetLogger("device")
			registry := vdevice.NewRegistry(logger)
			device := vdevice.New(vdevice.Options{
				FrameRate: uint32(opts.DeviceFrameRate),
				Logger:    logger,
			})
			if err := device.Register(registry); err != nil {
				logger.Error("Failed to register device", "error", err)
				os.Exit(1)
			}
			defer device.Close()
			if err := device.SetFormat(uint32(opts.DeviceWidth), uint32(opts.DeviceHeight), uint32(opts.DeviceFrameRate)); err != nil {
				logger.Warn("Requested format not supported, keeping default", "error", err)
			}

			client := &countingClient{id: uuid.NewString()}
			if err := device.Subscribe(client); err != nil {
				logger.Error("Failed to subscribe", "error", err)
				os.Exit(1)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var wg sync.WaitGroup
			ring, err := startSharedConsumer(ctx, opts, device, &wg, logging.GetLogger("transport"))
			if err != nil {
				logger.Error("Failed to open shared channel", "error", err)
				os.Exit(1)
			}

			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					wg.Wait()
					_ = ring.Close()
					logger.Info("Consumer stopped", "samples", client.samples.Load())
					return
				case <-ticker.C:
					st := device.Stats()
					logger.Info("Consumer stats",
						"samples", client.samples.Load(),
						"delivered", st.Delivered,
						"dropped", st.Dropped,
						"ring_len", ring.Ring().Len())
				}
			}
		}),
	}
	cmd.Flags().DurationVar(&statsInterval, "stats-interval", 5*time.Second, "How often to log throughput")
	return cmd
}
