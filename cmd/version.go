package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/sceneit/vcam/internal/version"
	"github.com/spf13/cobra"
)

// CreateVersionCmd creates the version command.
func CreateVersionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			info := version.Get()
			if asJSON {
				out, _ := json.MarshalIndent(info, "", "  ")
				fmt.Println(string(out))
				return
			}
			fmt.Printf("vcam %s (%s, built %s, %s, protocol %d)\n", info.Version, info.GitCommit, info.BuildDate, info.Platform, info.Protocol)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
