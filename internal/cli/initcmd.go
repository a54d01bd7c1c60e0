package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"magpie/internal/config"
	"magpie/internal/theme"
)

// NewInitCommand creates the init command: write a default config file.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if err := config.Save(rootOpts.ConfigPath, cfg); err != nil {
				return err
			}
			abs, _ := filepath.Abs(rootOpts.ConfigPath)
			theme.PrintBanner()
			fmt.Println("Config written to:", abs)
			return nil
		},
	}
}
