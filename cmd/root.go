// Package cmd wires configuration, credentials and storage into the
// crewclock commands.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sadopc/crewclock/internal/config"
	"github.com/sadopc/crewclock/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	logFile io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "crewclock",
	Short:         "Timesheet timer and task board for the terminal",
	Long:          "crewclock tracks time against projects and tasks and shows your task board.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}

		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded

		logger, closer, err := logging.New(cfg.Log.Path, cfg.Log.Level)
		if err != nil {
			return err
		}
		logFile = closer
		cmd.SetContext(logging.ContextWithLogger(cmd.Context(), logger))
		return nil
	},
	RunE: runTUI,
}

func Execute() {
	err := rootCmd.Execute()
	if logFile != nil {
		logFile.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default "+config.DefaultPath()+")")
}
