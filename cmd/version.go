package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sadopc/crewclock/internal/config"
)

// version is set at build time with -ldflags "-X".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "crewclock %s\n", version)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a config file with default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.Save(path, cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd, configInitCmd)
}
