package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/user/chatpane/internal/session"
	"github.com/user/chatpane/pkg/backend"
)

var (
	loginEmail     string
	signupEmail    string
	signupUsername string
)

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	signupCmd.Flags().StringVar(&signupEmail, "email", "", "account email")
	signupCmd.Flags().StringVar(&signupUsername, "username", "", "display name")
	rootCmd.AddCommand(loginCmd, signupCmd, logoutCmd, whoamiCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		tokens := session.NewFileStore(cfg.DataDir)
		client := newClient(cfg, tokens)

		in := bufio.NewScanner(os.Stdin)
		email := loginEmail
		if email == "" {
			email = prompt(in, "Email", "")
		}
		password, err := readPassword(in, "Password")
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.BackendTimeout())
		defer cancel()
		token, err := client.SignIn(ctx, email, password)
		if err != nil {
			return authError("sign in", err)
		}
		if err := tokens.Set(token); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Logged in as %s.\n", email)
		return nil
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and store the session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		tokens := session.NewFileStore(cfg.DataDir)
		client := newClient(cfg, tokens)

		in := bufio.NewScanner(os.Stdin)
		req := backend.RegisterRequest{Email: signupEmail, Username: signupUsername}
		if req.Email == "" {
			req.Email = prompt(in, "Email", "")
		}
		if req.Username == "" {
			req.Username = prompt(in, "Username", "")
		}
		password, err := readPassword(in, "Password")
		if err != nil {
			return err
		}
		confirm, err := readPassword(in, "Confirm password")
		if err != nil {
			return err
		}
		if password != confirm {
			return errors.New("passwords do not match")
		}
		req.Password = password

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.BackendTimeout())
		defer cancel()
		token, err := client.Register(ctx, req)
		if err != nil {
			return authError("sign up", err)
		}
		if err := tokens.Set(token); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Account created for %s.\n", req.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if err := session.NewFileStore(cfg.DataDir).Clear(); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		token, ok := session.NewFileStore(cfg.DataDir).Get()
		if !ok {
			return errNoSession
		}
		claims, err := session.Inspect(token)
		if errors.Is(err, session.ErrOpaqueToken) {
			fmt.Println("Logged in (opaque token).")
			return nil
		}
		if err != nil {
			return err
		}

		if claims.Email != "" {
			fmt.Printf("Email:   %s\n", claims.Email)
		}
		if claims.Subject != "" {
			fmt.Printf("User ID: %s\n", claims.Subject)
		}
		switch {
		case claims.ExpiresAt.IsZero():
			fmt.Println("Expires: never")
		case claims.Expired(time.Now()):
			fmt.Printf("Expires: %s (expired, log in again)\n", claims.ExpiresAt.Local().Format(time.RFC1123))
		default:
			fmt.Printf("Expires: %s\n", claims.ExpiresAt.Local().Format(time.RFC1123))
		}
		return nil
	},
}

// readPassword reads a password without echo when stdin is a terminal.
func readPassword(in *bufio.Scanner, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(in, label, ""), nil
	}
	fmt.Printf("%s: ", label)
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

func authError(op string, err error) error {
	var be *backend.Error
	switch {
	case errors.Is(err, backend.ErrUnauthenticated):
		return errors.New("invalid email or password")
	case errors.As(err, &be) && be.Message != "" && errors.Is(err, backend.ErrValidation):
		return fmt.Errorf("%s: %s", op, be.Message)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// prompt displays a labeled prompt with a default value and reads a line.
// Empty input returns the default.
func prompt(in *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if in.Scan() {
		if input := strings.TrimSpace(in.Text()); input != "" {
			return input
		}
	}
	return defaultVal
}
