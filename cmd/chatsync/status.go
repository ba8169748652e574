package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and account status",
	Long:  "Display the current configuration and fetch live conversation and contact counts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadEffectiveConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Base URL:      %s\n", valueOrDefault(cfg.Default.BaseURL, "(default)"))
		fmt.Printf("  User ID:       %s\n", valueOrDefault(cfg.Default.UserID, "(not set)"))
		fmt.Printf("  Poll interval: %s\n", valueOrDefault(cfg.Default.PollInterval, "(default)"))
		if cfg.Default.RateLimit > 0 {
			fmt.Printf("  Rate limit:    %.2f req/s\n", cfg.Default.RateLimit)
		}
		if cfg.Auth.Token != "" {
			fmt.Printf("  Token:         %s\n", maskKey(cfg.Auth.Token))
		} else {
			fmt.Println("  Token:         (not set)")
			return nil
		}

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()

		fmt.Println()
		fmt.Println("Live status:")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		began := time.Now()
		if err := s.engine.RefreshConversations(ctx); err != nil {
			fmt.Printf("  Error fetching conversations: %v\n", err)
			return nil
		}
		convs := s.engine.Conversations()
		unread, muted, archived := 0, 0, 0
		for _, c := range convs {
			unread += c.UnreadCount
			if c.IsMuted {
				muted++
			}
			if c.IsArchived {
				archived++
			}
		}
		contacts := s.engine.Contacts(ctx)

		fmt.Printf("  Conversations: %s (%d muted, %d archived)\n", humanize.Comma(int64(len(convs))), muted, archived)
		fmt.Printf("  Unread:        %s\n", humanize.Comma(int64(unread)))
		fmt.Printf("  Contacts:      %s\n", humanize.Comma(int64(len(contacts))))
		fmt.Printf("  Latency:       %s\n", time.Since(began).Round(time.Millisecond))
		return nil
	},
}
