package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var contactsJSON bool

func init() {
	contactsCmd.Flags().BoolVar(&contactsJSON, "json", false, "Output JSON")
	rootCmd.AddCommand(contactsCmd)
}

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		contacts := s.engine.Contacts(ctx)
		if contactsJSON {
			return printJSON(contacts)
		}
		if len(contacts) == 0 {
			fmt.Println("No contacts found.")
			return nil
		}
		for _, c := range contacts {
			fmt.Printf("%-24s %-24s %s\n", c.ID, c.Name, valueOrDefault(c.Presence, "-"))
		}
		return nil
	},
}
