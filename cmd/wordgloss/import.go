package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/japaniel/wordgloss/pkg/db"
	"github.com/japaniel/wordgloss/pkg/glossary"
)

func newImportCmd(a *app) *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "import [file|url]",
		Short: "Import a glossary JSON document into the database",
		Long: `Import reads a glossary in the vocabulary JSON format and upserts every
entry into the database given by --db. Empty fields never overwrite values
already stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := a.openDB()
			if err != nil {
				return err
			}
			defer conn.Close()

			src := glossary.Open(args[0])
			if h, ok := src.(*glossary.HTTPSource); ok {
				h.Client = a.httpClient()
			}
			entries, err := src.Entries(ctx)
			if err != nil {
				return fmt.Errorf("load glossary %s: %w", src.Name(), err)
			}

			rows := make([]db.VocabEntry, 0, len(entries))
			for key, e := range entries {
				rows = append(rows, db.VocabEntry{Key: key, Word: e.Word, Translation: e.Translation, Emoji: e.Emoji, Audio: e.Audio})
			}
			n, err := db.ImportVocab(ctx, conn, rows, batchSize)
			if err != nil {
				return fmt.Errorf("import failed after %d entries: %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries into %s\n", n, a.cfg.GlossaryDB)
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch", 100, "Entries per transaction")
	return cmd
}
