package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	initBaseURL string
	initUserID  string
)

func init() {
	initCmd.Flags().StringVar(&initBaseURL, "base-url", "", "API base URL")
	initCmd.Flags().StringVar(&initUserID, "user-id", "", "ID of the user the token belongs to")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init [token]",
	Short: "Store the API token in ~/.chatsync/config.toml",
	Long:  "Initialize the chatsync CLI by storing your bearer token in the local configuration file.\nThe token is prompted for without echo when not given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var token string
		if len(args) == 1 {
			token = args[0]
		} else {
			var err error
			if token, err = promptToken(); err != nil {
				return err
			}
		}
		if token == "" {
			return fmt.Errorf("token cannot be empty")
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		cfg.Auth.Token = token
		if initBaseURL != "" {
			cfg.Default.BaseURL = initBaseURL
		}
		if initUserID != "" {
			cfg.Default.UserID = initUserID
		}
		if cfg.Default.PollInterval == "" {
			cfg.Default.PollInterval = "30s"
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		fmt.Printf("Token saved to %s\n", path)
		return nil
	},
}

// promptToken reads the token from the terminal without echo, falling back
// to a plain line read when stdin is not a terminal.
func promptToken() (string, error) {
	fmt.Print("Token: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return strings.TrimSpace(line), nil
	}
	fmt.Println()
	return strings.TrimSpace(string(b)), nil
}
