package cmd

import (
	"fmt"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/sceneit/vcam/internal/config"
	"github.com/sceneit/vcam/internal/settings"
	"github.com/spf13/cobra"
)

// Validate checks the loaded options and the user settings file.
func Validate(opts *config.Options) error {
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	s, err := settings.LoadFile(opts.SettingsFile)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	return nil
}

// CreateValidateCmd creates the validate command.
func CreateValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and settings files",
		Args:  cobra.NoArgs,
		Run: humacli.WithOptions(func(_ *cobra.Command, _ []string, opts *config.Options) {
			if err := Validate(opts); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Printf("%s and %s are valid\n", opts.Config, opts.SettingsFile)
		}),
	}
}
