package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/chatpane/internal/types"
)

var sendChatID string

func init() {
	sendCmd.Flags().StringVar(&sendChatID, "chat", "", "chat id to send to (default: start a new chat)")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send a message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" {
			return errors.New("message is empty")
		}
		return withChats(cmd, func(ctx context.Context, a *app) error {
			if sendChatID != "" {
				if err := a.manager.SelectChat(ctx, types.ChatID(sendChatID)); err != nil {
					return err
				}
			}
			if err := a.manager.SendMessage(ctx, text); err != nil {
				return err
			}

			active, ok := a.manager.Snapshot().Active()
			if !ok || len(active.Messages) == 0 {
				return errors.New("no reply received")
			}
			printMessage(active.Messages[len(active.Messages)-1])
			fmt.Printf("\n(chat %s)\n", active.ID)
			return nil
		})
	},
}
