package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/japaniel/wordgloss/pkg/lookup"
)

type annotateOutput struct {
	Source  string         `json:"source"`
	Error   string         `json:"error,omitempty"`
	Regions []regionOutput `json:"regions"`
	HTML    string         `json:"html"`
}

type regionOutput struct {
	Tag   string       `json:"tag"`
	ID    string       `json:"id,omitempty"`
	Words []wordOutput `json:"words"`
}

type wordOutput struct {
	Surface     string `json:"surface"`
	Key         string `json:"key"`
	Found       bool   `json:"found"`
	Translation string `json:"translation"`
	Emoji       string `json:"emoji"`
}

func newAnnotateCmd(a *app) *cobra.Command {
	var (
		asJSON   bool
		article  bool
		textsDir string
	)
	cmd := &cobra.Command{
		Use:   "annotate [file|url|name]",
		Short: "Wrap every word of a text's annotatable regions",
		Long: `Annotate loads an HTML text from disk or over HTTP, wraps each word inside
data-decorate="words" regions and prints the result. With --json the words
are listed per region together with their glossary lookup.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s := a.newSession(nil, nil)
			defer s.Close()

			if asJSON {
				release, err := a.loadGlossary(ctx, s)
				defer release()
				if err != nil {
					return err
				}
			}

			src, err := a.textSource(textsDir, args[0], article)
			if err != nil {
				return err
			}
			if _, err := s.LoadContent(ctx, src); err != nil {
				return err
			}
			s.Wait()
			view := s.Content()

			out := cmd.OutOrStdout()
			if !asJSON {
				fmt.Fprintln(out, view.Doc.HTML())
				return view.Err
			}

			res := annotateOutput{Source: view.Source, HTML: view.Doc.HTML(), Regions: []regionOutput{}}
			if view.Err != nil {
				res.Error = view.Err.Error()
			}
			for _, r := range view.Doc.Regions {
				ro := regionOutput{Tag: r.Tag, ID: r.ID, Words: []wordOutput{}}
				for _, tok := range r.Tokens() {
					o := s.Select(ctx, lookup.SelectionFor(tok))
					ro.Words = append(ro.Words, wordOutput{
						Surface:     tok.Surface,
						Key:         tok.Key,
						Found:       o.Found(),
						Translation: o.Translation,
						Emoji:       o.Emoji,
					})
				}
				res.Regions = append(res.Regions, ro)
			}

			encoder := json.NewEncoder(out)
			encoder.SetEscapeHTML(false)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(res); err != nil {
				return fmt.Errorf("encode JSON: %w", err)
			}
			return view.Err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output words and lookups as JSON")
	cmd.Flags().BoolVar(&article, "article", false, "Reduce the page to its main article first")
	cmd.Flags().StringVar(&textsDir, "texts-dir", "", "Resolve the text name inside this directory")
	return cmd
}
