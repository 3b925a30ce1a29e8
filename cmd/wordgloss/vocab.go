package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/japaniel/wordgloss/pkg/vocab"
)

func newVocabCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Maintain the vocabulary master file",
	}
	cmd.AddCommand(
		newVocabExtractCmd(a),
		newVocabMissingCmd(a),
		newVocabApplyCmd(a),
		newVocabAudioCmd(a),
	)
	return cmd
}

func newVocabExtractCmd(a *app) *cobra.Command {
	var record bool
	cmd := &cobra.Command{
		Use:   "extract [dir]",
		Short: "Add the words of every text to the master file",
		Long: `Extract scans the texts directory for HTML files, collects the words of
their annotatable regions and adds an empty entry for each new one. With
--record the master and per-text word counts are also written to the database.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir := a.cfg.TextsDir
			if len(args) == 1 {
				dir = args[0]
			}

			x := &vocab.Extractor{Workers: a.cfg.Workers, Logger: a.log}
			files, err := x.Extract(ctx, dir, a.cfg.TextsGlob)
			if err != nil {
				return err
			}
			words := vocab.Surfaces(files)

			m, err := vocab.Load(a.cfg.VocabPath, a.log)
			if err != nil {
				return err
			}
			added := vocab.Merge(m, words, a.cfg.AudioPrefix)
			if err := vocab.Save(a.cfg.VocabPath, m); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d texts, %d distinct words, %d new. Master has %d entries.\n",
				len(files), len(words), added, len(m))

			if !record {
				return nil
			}
			conn, err := a.openDB()
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := vocab.Record(ctx, conn, m, files); err != nil {
				return err
			}
			a.log.Info("vocabulary recorded", zap.String("db", a.cfg.GlossaryDB), zap.Int("texts", len(files)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&record, "record", false, "Also store the vocabulary and word counts in the database")
	return cmd
}

func newVocabMissingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "missing",
		Short: "Write the list of entries lacking a translation or emoji",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := vocab.Load(a.cfg.VocabPath, a.log)
			if err != nil {
				return err
			}
			n, err := vocab.SaveMissingList(a.cfg.ListPath, m)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d of %d entries to %s\n", n, len(m), a.cfg.ListPath)
			return nil
		},
	}
}

func newVocabApplyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Apply a filled-in list to the master file",
		Long: `Apply reads the ready list (key;word;translation;emoji), copies its
non-empty values into the master and renames the list so it is not applied
again. The missing list is rewritten afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := vocab.Load(a.cfg.VocabPath, a.log)
			if err != nil {
				return err
			}
			applied, err := vocab.ApplyReadyList(a.cfg.ReadyPath, m, a.log)
			if err != nil {
				return err
			}
			if applied > 0 {
				if err := vocab.Save(a.cfg.VocabPath, m); err != nil {
					return err
				}
			}
			left, err := vocab.SaveMissingList(a.cfg.ListPath, m)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d entries, %d still missing\n", applied, left)
			return nil
		},
	}
}

func newVocabAudioCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "audio",
		Short: "Give every entry a forward-slash audio path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := vocab.Load(a.cfg.VocabPath, a.log)
			if err != nil {
				return err
			}
			changed := vocab.NormalizeAudio(m, a.cfg.AudioPrefix)
			if changed > 0 {
				if err := vocab.Save(a.cfg.VocabPath, m); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %d entries\n", changed)
			return nil
		},
	}
}
