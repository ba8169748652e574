package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Prismer-AI/Prismer/sdk/chatsync"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// ============================================================================
// Flag variables
// ============================================================================

var (
	// conversations list
	convListFilter string
	convListSearch string
	convListJSON   bool

	// conversations open
	convOpenJSON bool

	// conversations start
	convStartParticipants string
	convStartType         string
	convStartName         string
	convStartOpen         bool

	// conversations mute|archive|pin
	convFlagOff bool
)

// ============================================================================
// conversations (parent command)
// ============================================================================

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage conversations",
	Long:    "List, open, create and manage conversations.",
}

// withLoaded runs fn against a session whose conversation list is loaded.
func withLoaded(timeout time.Duration, fn func(ctx context.Context, s *session) error) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.engine.RefreshConversations(ctx); err != nil {
		return err
	}
	if err := fn(ctx, s); err != nil {
		return err
	}
	s.engine.Wait()
	return nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(b))
	return nil
}

func printConversations(convs []chatsync.Conversation) {
	for _, c := range convs {
		marks := ""
		if c.IsPinned {
			marks += "*"
		}
		if c.IsMuted {
			marks += "~"
		}
		unread := ""
		if c.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d unread)", c.UnreadCount)
		}
		last := ""
		if c.LastMessage != nil {
			last = fmt.Sprintf("  %s: %s", humanize.Time(c.LastMessage.Timestamp), truncate(c.LastMessage.Content, 50))
		}
		fmt.Printf("%-2s %-24s %-10s %s%s%s\n", marks, c.ID, c.Type, valueOrDefault(c.DisplayName(), "(untitled)"), unread, last)
	}
}

func printMessages(e *chatsync.Engine, convID string) {
	for _, m := range e.Messages(convID) {
		reply := ""
		if m.ReplyTo != "" {
			reply = fmt.Sprintf(" ↪%s", m.ReplyTo)
		}
		fmt.Printf("[%s] %s%s: %s\n", m.Timestamp.Local().Format("2006-01-02 15:04"), m.SenderID, reply, m.Content)
		var groups []string
		for _, g := range e.ReactionGroups(m.ID) {
			groups = append(groups, fmt.Sprintf("%s %d", g.Emoji, g.Count))
		}
		if len(groups) > 0 {
			fmt.Printf("    %s\n", strings.Join(groups, "  "))
		}
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

// ============================================================================
// conversations list
// ============================================================================

var convListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	Long:  "List conversations, pinned first and then by most recent activity.\nFilters: all, starred, muted, archived, groups, companies.",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := chatsync.ParseFilter(convListFilter)
		if err != nil {
			return err
		}
		return withLoaded(15*time.Second, func(ctx context.Context, s *session) error {
			convs := s.engine.Visible(filter, convListSearch)
			if convListJSON {
				return printJSON(convs)
			}
			if len(convs) == 0 {
				fmt.Println("No conversations found.")
				return nil
			}
			printConversations(convs)
			return nil
		})
	},
}

// ============================================================================
// conversations open
// ============================================================================

var convOpenCmd = &cobra.Command{
	Use:   "open <conversation-id>",
	Short: "Print a conversation's messages and mark it read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLoaded(15*time.Second, func(ctx context.Context, s *session) error {
			if err := s.engine.OpenConversation(ctx, args[0]); err != nil {
				return err
			}
			if convOpenJSON {
				return printJSON(s.engine.Messages(args[0]))
			}
			if len(s.engine.Messages(args[0])) == 0 {
				fmt.Println("No messages.")
				return nil
			}
			printMessages(s.engine, args[0])
			return nil
		})
	},
}

// ============================================================================
// conversations start
// ============================================================================

var convStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a conversation",
	Long:  "Start a conversation with one or more participants.\nExample: chatsync conversations start --participants u1,u2 --type group --name Team",
	RunE: func(cmd *cobra.Command, args []string) error {
		var participants []string
		for _, p := range strings.Split(convStartParticipants, ",") {
			if p = strings.TrimSpace(p); p != "" {
				participants = append(participants, p)
			}
		}
		if len(participants) == 0 {
			return fmt.Errorf("--participants is required")
		}
		req := &chatsync.CreateConversationRequest{ParticipantIDs: participants, Name: convStartName}
		if convStartType != "" {
			t, err := chatsync.ParseConversationType(convStartType)
			if err != nil {
				return err
			}
			req.Type = &t
		}

		return withLoaded(15*time.Second, func(ctx context.Context, s *session) error {
			var id string
			if convStartOpen {
				var err error
				if id, err = s.engine.StartAndOpen(ctx, req); err != nil {
					return err
				}
			} else {
				id = s.engine.StartConversation(ctx, req)
			}
			if id == "" {
				return fmt.Errorf("conversation was not created")
			}
			fmt.Printf("Conversation started: %s\n", id)
			if convStartOpen {
				printMessages(s.engine, id)
			}
			return nil
		})
	},
}

// ============================================================================
// conversations mute|archive|pin
// ============================================================================

func flagCmd(use, short string, set func(e *chatsync.Engine, ctx context.Context, id string, on bool) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <conversation-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLoaded(15*time.Second, func(ctx context.Context, s *session) error {
				on := !convFlagOff
				if err := set(s.engine, ctx, args[0], on); err != nil {
					return err
				}
				state := "on"
				if !on {
					state = "off"
				}
				fmt.Printf("%s %s: %s\n", use, state, args[0])
				return nil
			})
		},
	}
}

var (
	convMuteCmd    = flagCmd("mute", "Mute a conversation (--off to unmute)", (*chatsync.Engine).SetMuted)
	convArchiveCmd = flagCmd("archive", "Archive a conversation (--off to unarchive)", (*chatsync.Engine).SetArchived)
	convPinCmd     = flagCmd("pin", "Pin a conversation (--off to unpin)", (*chatsync.Engine).SetPinned)
)

// ============================================================================
// conversations delete|leave
// ============================================================================

var convDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLoaded(15*time.Second, func(ctx context.Context, s *session) error {
			if !s.engine.DeleteConversation(ctx, args[0]) {
				return fmt.Errorf("conversation %s not found", args[0])
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		})
	},
}

var convLeaveCmd = &cobra.Command{
	Use:   "leave <conversation-id>",
	Short: "Leave a group conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLoaded(15*time.Second, func(ctx context.Context, s *session) error {
			if err := s.engine.LeaveGroup(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Left %s\n", args[0])
			return nil
		})
	},
}

// ============================================================================
// messages delete
// ============================================================================

var messageDeleteCmd = &cobra.Command{
	Use:   "delete-message <conversation-id> <message-id>",
	Short: "Delete a message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLoaded(15*time.Second, func(ctx context.Context, s *session) error {
			if err := s.engine.OpenConversation(ctx, args[0]); err != nil {
				return err
			}
			if !s.engine.DeleteMessage(ctx, args[0], args[1]) {
				return fmt.Errorf("message %s not found in %s", args[1], args[0])
			}
			fmt.Printf("Deleted message %s\n", args[1])
			return nil
		})
	},
}

func init() {
	// conversations list
	convListCmd.Flags().StringVarP(&convListFilter, "filter", "f", "all", "Filter: all, starred, muted, archived, groups, companies")
	convListCmd.Flags().StringVarP(&convListSearch, "search", "s", "", "Search names and last messages")
	convListCmd.Flags().BoolVar(&convListJSON, "json", false, "Output JSON")

	// conversations open
	convOpenCmd.Flags().BoolVar(&convOpenJSON, "json", false, "Output JSON")

	// conversations start
	convStartCmd.Flags().StringVar(&convStartParticipants, "participants", "", "Comma-separated participant user IDs")
	convStartCmd.Flags().StringVar(&convStartType, "type", "", "Conversation type: individual, group, company")
	convStartCmd.Flags().StringVar(&convStartName, "name", "", "Conversation name")
	convStartCmd.Flags().BoolVar(&convStartOpen, "open", false, "Open the conversation after creating it")

	// conversations mute|archive|pin
	for _, c := range []*cobra.Command{convMuteCmd, convArchiveCmd, convPinCmd} {
		c.Flags().BoolVar(&convFlagOff, "off", false, "Clear the flag instead of setting it")
	}

	conversationsCmd.AddCommand(convListCmd)
	conversationsCmd.AddCommand(convOpenCmd)
	conversationsCmd.AddCommand(convStartCmd)
	conversationsCmd.AddCommand(convMuteCmd)
	conversationsCmd.AddCommand(convArchiveCmd)
	conversationsCmd.AddCommand(convPinCmd)
	conversationsCmd.AddCommand(convDeleteCmd)
	conversationsCmd.AddCommand(convLeaveCmd)
	conversationsCmd.AddCommand(messageDeleteCmd)
	rootCmd.AddCommand(conversationsCmd)
}
