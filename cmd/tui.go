package cmd

import (
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sadopc/crewclock/internal/api"
	"github.com/sadopc/crewclock/internal/board"
	"github.com/sadopc/crewclock/internal/credential"
	"github.com/sadopc/crewclock/internal/logging"
	"github.com/sadopc/crewclock/internal/model"
	"github.com/sadopc/crewclock/internal/session"
	"github.com/sadopc/crewclock/internal/store"
	"github.com/sadopc/crewclock/internal/timer"
	"github.com/sadopc/crewclock/internal/tui"
)

func runTUI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := logging.FromContext(ctx)

	token, err := credential.Token()
	if errors.Is(err, credential.ErrNoToken) {
		return fmt.Errorf("not logged in: run `crewclock login --token <token>` or set %s", credential.EnvToken)
	}
	if err != nil {
		return err
	}
	principal, err := session.FromToken(token, cfg.Session)
	if err != nil {
		return err
	}

	client := api.NewClient(cfg.API.BaseURL, token,
		api.WithTimeout(time.Duration(cfg.API.TimeoutSec)*time.Second),
		api.WithMaxRetries(cfg.API.MaxRetries),
		api.WithLogger(logger),
	)

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer st.Close()

	view := model.View(cfg.Display.DefaultView)
	if last, err := st.GetSetting(ctx, store.SettingLastView); err != nil {
		logger.Warn("read last view", "error", err)
	} else if v, err := model.ParseView(last); err == nil {
		view = v
	}

	sess := timer.NewSession(client, principal,
		timer.WithStore(st),
		timer.WithLogger(logger),
		timer.WithPeriod(model.Period{View: view, Date: time.Now()}),
	)
	defer sess.Close()

	logger.Info("starting", "employee", principal.EmployeeID, "role", principal.Role, "view", view)

	app := tui.NewApp(tui.Options{
		Session:  sess,
		Board:    board.New(client, principal, board.WithLogger(logger)),
		Catalog:  client,
		Settings: st,
		Logger:   logger,
	})
	if _, err := tea.NewProgram(app, tea.WithAltScreen()).Run(); err != nil {
		return err
	}
	return nil
}
