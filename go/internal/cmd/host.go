package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newHostCmd() *cobra.Command {
	var questionsPath string

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Join an interview room as host and start the question sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			if roomID == "" || userID == "" {
				return fmt.Errorf("--room and --user are required")
			}
			if questionsPath == "" {
				return fmt.Errorf("--questions is required")
			}
			name := username
			if name == "" {
				name = userID
			}

			questions, err := loadQuestions(questionsPath)
			if err != nil {
				return err
			}

			c, err := setupClient()
			if err != nil {
				return err
			}
			if err := c.connect(); err != nil {
				return err
			}

			// Mark ourselves as this room's host before joining so the
			// store derives the host flag from the hint.
			if err := c.hints.SetHost(roomID, userID); err != nil {
				log.Warn().Err(err).Msg("could not persist host marker")
			}

			c.store.JoinSession(roomID, userID, name)
			c.store.StartSession(questions)

			log.Info().Int("questions", len(questions)).Msg("start requested, type .next to advance")
			return c.runInteractive(true)
		},
	}

	cmd.Flags().StringVar(&questionsPath, "questions", "", "path to YAML question file")
	return cmd
}
