package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/chatpane/internal/types"
	"github.com/user/chatpane/internal/ui"
)

func init() {
	rootCmd.AddCommand(chatsCmd)
	chatsCmd.AddCommand(chatsListCmd, chatsHistoryCmd, chatsRenameCmd, chatsDeleteCmd)
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Manage chats",
}

// withChats loads the chat list and runs fn against it.
func withChats(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg := loadConfig()
	a := newApp(cfg, setupLogging(cfg))
	defer a.close()
	if err := a.requireSession(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*cfg.BackendTimeout())
	defer cancel()
	if err := a.manager.Refresh(ctx); err != nil {
		return a.explain(err)
	}
	return a.explain(fn(ctx, a))
}

var chatsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chats, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withChats(cmd, func(ctx context.Context, a *app) error {
			chats := a.manager.Snapshot().Chats
			if len(chats) == 0 {
				fmt.Println("No chats found.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME")
			for _, c := range chats {
				fmt.Fprintf(w, "%s\t%s\n", c.ID, c.Name)
			}
			return w.Flush()
		})
	},
}

var chatsHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Print a chat's messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withChats(cmd, func(ctx context.Context, a *app) error {
			if err := a.manager.SelectChat(ctx, types.ChatID(args[0])); err != nil {
				return err
			}
			active, _ := a.manager.Snapshot().Active()
			fmt.Printf("# %s\n", active.Name)
			for _, m := range active.Messages {
				printMessage(m)
			}
			return nil
		})
	},
}

var chatsRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a chat",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.Join(args[1:], " ")
		return withChats(cmd, func(ctx context.Context, a *app) error {
			if err := a.manager.RenameChat(ctx, types.ChatID(args[0]), name); err != nil {
				return err
			}
			fmt.Printf("Chat %s renamed.\n", args[0])
			return nil
		})
	},
}

var chatsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withChats(cmd, func(ctx context.Context, a *app) error {
			if err := a.manager.DeleteChat(ctx, types.ChatID(args[0])); err != nil {
				return err
			}
			fmt.Printf("Chat %s deleted.\n", args[0])
			return nil
		})
	},
}

func printMessage(m types.Message) {
	switch m.Sender {
	case types.SenderUser:
		suffix := ""
		if m.Status == types.StatusFailed {
			suffix = " (not delivered)"
		}
		fmt.Printf("\nYou%s:\n%s\n", suffix, m.Text)
	default:
		fmt.Printf("\nAssistant:\n%s\n", ui.ToMarkdown(m.Text))
	}
}
