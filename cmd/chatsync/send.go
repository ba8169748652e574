package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Prismer-AI/Prismer/sdk/chatsync"
	"github.com/spf13/cobra"
)

var (
	sendReplyTo string
	sendJSON    bool
)

func init() {
	sendCmd.Flags().StringVar(&sendReplyTo, "reply-to", "", "ID of the message being replied to")
	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "Output the confirmed message as JSON")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <text...>",
	Short: "Send a message to a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		convID, text := args[0], strings.Join(args[1:], " ")
		return withLoaded(30*time.Second, func(ctx context.Context, s *session) error {
			out := s.engine.Send(ctx, convID, text, sendReplyTo)
			switch out.Status {
			case chatsync.SendConfirmed:
				if sendJSON {
					return printJSON(out.Message)
				}
				fmt.Printf("Sent %s\n", out.Message.ID)
				return nil
			case chatsync.SendFailed:
				fail("Not sent: %q", out.Restore)
				return fmt.Errorf("send failed: %w", out.Err)
			default:
				return fmt.Errorf("send skipped: %w", out.Err)
			}
		})
	},
}
