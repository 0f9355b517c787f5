package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/user/chatpane/internal/devbackend"
)

const pidFileName = "devserver.pid"

var devListen string

func init() {
	devserverCmd.Flags().StringVar(&devListen, "listen", "", "listen address (default from config)")
	devserverCmd.AddCommand(devserverStopCmd)
	rootCmd.AddCommand(devserverCmd)
}

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an in-memory chat service for local development",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := setupLogging(cfg)

		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		pidPath, err := writePIDFile(cfg.DataDir)
		if err != nil {
			return err
		}
		defer os.Remove(pidPath)

		secret := cfg.DevServer.JWTSecret
		if secret == "" {
			secret = uuid.NewString()
			logger.Warn("no devserver.jwt_secret configured, tokens will not survive a restart")
		}
		var responder devbackend.Responder
		if cfg.DevServer.LLMBaseURL != "" {
			responder, err = devbackend.NewCompletionResponder(devbackend.CompletionConfig{
				BaseURL: cfg.DevServer.LLMBaseURL,
				APIKey:  cfg.DevServer.LLMAPIKey,
				Model:   cfg.DevServer.LLMModel,
			})
			if err != nil {
				return fmt.Errorf("configure completion responder: %w", err)
			}
			logger.Info("dev server replies from completion API", "model", cfg.DevServer.LLMModel)
		}
		srv, err := devbackend.NewServer(devbackend.Config{
			Secret:    secret,
			TokenTTL:  cfg.TokenTTL(),
			Responder: responder,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("create dev server: %w", err)
		}

		addr := cfg.DevServer.Listen
		if devListen != "" {
			addr = devListen
		}

		ctx, cancel := signalContext()
		defer cancel()
		slog.Info("dev server starting", "listen", addr, "pid_file", pidPath)
		return srv.ListenAndServe(ctx, addr)
	},
}

var devserverStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running development server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		pid, err := readPID(cfg.DataDir)
		if err != nil {
			return err
		}
		proc, err := os.FindProcess(pid)
		if err != nil {
			return fmt.Errorf("find process: %w", err)
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("send SIGTERM: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Sent SIGTERM to dev server (PID %d).\n", pid)
		return nil
	},
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, pidFileName)
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

// readPID reads the dev server's PID file and checks the process is alive
// with signal 0.
func readPID(dataDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, pidFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("no running dev server (PID file not found)")
		}
		return 0, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return 0, fmt.Errorf("no running dev server (process %d not found)", pid)
	}
	return pid, nil
}
