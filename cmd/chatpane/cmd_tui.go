package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/user/chatpane/internal/config"
	"github.com/user/chatpane/internal/refresh"
	"github.com/user/chatpane/internal/ui"
)

const keepLogFiles = 5

func init() {
	rootCmd.AddCommand(tuiCmd)
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive chat client (default)",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	// The terminal belongs to the UI; logs go to a file.
	logFile, err := config.SetupLogFile(filepath.Join(cfg.DataDir, "logs"), keepLogFiles)
	if err != nil {
		return fmt.Errorf("set up log file: %w", err)
	}
	defer logFile.Close()
	logger := config.NewLogger(logFile, cfg.LogLevel)

	a := newApp(cfg, logger)
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	sched := refresh.New(a.manager, cfg.RefreshSchedule, cfg.BackendTimeout(), logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start refresh: %w", err)
	}
	defer sched.Stop()

	logger.Info("chatpane started",
		"base_url", cfg.Backend.BaseURL,
		"max_concurrent", cfg.MaxConcurrent,
		"refresh_schedule", cfg.RefreshSchedule,
	)
	return ui.Run(ctx, ui.New(ctx, a.manager, a.client, a.tokens, logger))
}
