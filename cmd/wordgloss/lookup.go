package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/japaniel/wordgloss/pkg/lookup"
)

func newLookupCmd(a *app) *cobra.Command {
	var (
		asJSON bool
		play   bool
		player string
	)
	cmd := &cobra.Command{
		Use:   "lookup [word]...",
		Short: "Look words up in the glossary",
		Long: `Lookup resolves each word the way selecting it in a text would: the
glossary entry when there is one, the fallback message otherwise. With --play
the entry's audio is handed to the player command.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var p lookup.Player
			if play {
				p = &lookup.FilePlayer{BaseDir: a.cfg.AudioDir, Command: strings.Fields(player)}
			}
			s := a.newSession(p, nil)
			defer s.Close()

			release, err := a.loadGlossary(ctx, s)
			defer release()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var outcomes []lookup.Outcome
			for _, w := range args {
				o := s.Select(ctx, lookup.Selection{Surface: w})
				if asJSON {
					outcomes = append(outcomes, o)
					continue
				}
				line := fmt.Sprintf("%s %s: %s", o.Emoji, o.Word, o.Translation)
				if o.Audio != "" {
					line += " (" + o.Audio + ")"
				}
				fmt.Fprintln(out, line)
			}

			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(outcomes)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	cmd.Flags().BoolVar(&play, "play", false, "Play the pronunciation of found words")
	cmd.Flags().StringVar(&player, "player", "mpg123 -q", "Command used to play audio files")
	return cmd
}
