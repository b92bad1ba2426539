package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sadopc/crewclock/internal/logging"
	"github.com/sadopc/crewclock/internal/sandbox"
)

var (
	sandboxAddr     string
	sandboxToken    string
	sandboxRate     int
	sandboxEmployee string
	sandboxNoSeed   bool
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Run an in-memory backend for demos",
	Long:  "Serves the timesheet, task and project endpoints from memory, seeded with demo data.",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		addr := pick(sandboxAddr, cfg.Sandbox.Addr)
		token := pick(sandboxToken, cfg.Sandbox.Token)
		rate := sandboxRate
		if !cmd.Flags().Changed("rate-limit") {
			rate = cfg.Sandbox.RateLimit
		}

		srv := sandbox.New(sandbox.Config{Token: token, RateLimit: rate})
		if !sandboxNoSeed {
			employee := pick(sandboxEmployee, cfg.Session.EmployeeID)
			if employee == "" {
				employee = "emp-1"
			}
			srv.SeedDemo(employee)
			logger.Info("seeded demo data", "employee", employee)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logger.Info("sandbox listening", "addr", addr, "auth", token != "", "rate_limit", rate)
			if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				return err
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Echo().Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info("sandbox shut down")
		return nil
	},
}

func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}

func init() {
	sandboxCmd.Flags().StringVar(&sandboxAddr, "addr", "", "listen address (default from config)")
	sandboxCmd.Flags().StringVar(&sandboxToken, "token", "", "bearer token to require")
	sandboxCmd.Flags().IntVar(&sandboxRate, "rate-limit", 0, "requests per client per minute, 0 for none")
	sandboxCmd.Flags().StringVar(&sandboxEmployee, "employee", "", "employee id owning the seeded tasks")
	sandboxCmd.Flags().BoolVar(&sandboxNoSeed, "no-seed", false, "start empty")
	rootCmd.AddCommand(sandboxCmd)
}
