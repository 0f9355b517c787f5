package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/user/chatpane/internal/config"
	"github.com/user/chatpane/internal/refresh"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		in := bufio.NewScanner(os.Stdin)

		fmt.Println("chatpane setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.Backend.BaseURL = prompt(in, "Chat service URL", cfg.Backend.BaseURL)
		cfg.LogLevel = prompt(in, "Log level (debug, info, warn, error)", cfg.LogLevel)

		if n, err := strconv.Atoi(prompt(in, "Request timeout (seconds)", strconv.Itoa(cfg.Backend.TimeoutSeconds))); err == nil {
			cfg.Backend.TimeoutSeconds = n
		}
		if n, err := strconv.Atoi(prompt(in, "Chats sending in parallel", strconv.Itoa(cfg.MaxConcurrent))); err == nil {
			cfg.MaxConcurrent = n
		}

		schedule := prompt(in, "Chat list refresh schedule (empty disables)", cfg.RefreshSchedule)
		if err := refresh.Validate(schedule); err != nil {
			fmt.Fprintf(os.Stderr, "Ignoring invalid schedule: %v\n", err)
		} else {
			cfg.RefreshSchedule = schedule
		}

		if cfg.DevServer.JWTSecret == "" {
			cfg.DevServer.JWTSecret = uuid.NewString()
			fmt.Println("Generated a signing secret for the development server.")
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid settings: %w", err)
		}
		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}
