package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/sceneit/vcam/internal/config"
	"github.com/sceneit/vcam/internal/logging"
	natsrpc "github.com/sceneit/vcam/internal/nats"
	"github.com/spf13/cobra"
)

// CreateStatusCmd creates the status command. It asks a running extension
// for its status over the message transport.
func CreateStatusCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query the running extension",
		Args:  cobra.NoArgs,
		Run: humacli.WithOptions(func(_ *cobra.Command, _ []string, opts *config.Options) {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			st, err := natsrpc.Probe(ctx, opts.NATSURL(), logging.GetLogger("transport"))
			if err != nil {
				fmt.Fprintf(os.Stderr, "extension not reachable at %s: %v\n", opts.NATSURL(), err)
				os.Exit(1)
			}
			out, _ := json.MarshalIndent(st, "", "  ")
			fmt.Println(string(out))
		}),
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "How long to wait for a reply")
	return cmd
}
