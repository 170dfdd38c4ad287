package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join",
		Short: "Join an interview room as a participant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if roomID == "" || userID == "" {
				return fmt.Errorf("--room and --user are required")
			}
			name := username
			if name == "" {
				name = userID
			}

			c, err := setupClient()
			if err != nil {
				return err
			}
			if err := c.connect(); err != nil {
				return err
			}

			c.store.JoinSession(roomID, userID, name)
			return c.runInteractive(false)
		},
	}
}
