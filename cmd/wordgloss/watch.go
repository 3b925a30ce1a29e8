package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/japaniel/wordgloss/pkg/content"
	"github.com/japaniel/wordgloss/pkg/glossary"
	"github.com/japaniel/wordgloss/pkg/session"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		printHTML bool
		textsDir  string
	)
	cmd := &cobra.Command{
		Use:   "watch [file]",
		Short: "Re-annotate a text whenever it or the glossary changes",
		Long: `Watch annotates a local text and keeps doing so as the file is edited.
When the glossary is a local file it is reloaded on change as well. Each
applied load prints one summary line; older loads that finish late are
discarded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := &syncWriter{w: cmd.OutOrStdout()}
			textPath := args[0]
			if textsDir != "" {
				var err error
				if textPath, err = content.Dir(textsDir).Path(textPath); err != nil {
					return err
				}
			}

			var s *session.Session
			s = a.newSession(nil, func(v session.View) {
				toks := v.Doc.Tokens()
				known := 0
				for _, tok := range toks {
					if _, ok := s.Glossary().Lookup(tok.Key); ok {
						known++
					}
				}
				status := "ok"
				if v.Err != nil {
					status = v.Err.Error()
				}
				fmt.Fprintf(out, "generation %d: %s, %d words, %d in glossary (%s)\n", v.Generation, v.Source, len(toks), known, status)
				if printHTML {
					fmt.Fprintln(out, v.Doc.HTML())
				}
			})
			defer s.Close()

			gsrc, release, err := a.glossarySource()
			defer release()
			if err != nil {
				return err
			}
			if _, err := s.LoadGlossary(ctx, gsrc); err != nil {
				return err
			}
			s.Wait()
			if _, err := s.LoadContent(ctx, content.File(textPath)); err != nil {
				return err
			}

			paths := []string{textPath}
			glossaryPath := ""
			if fs, ok := gsrc.(glossary.FileSource); ok {
				if _, err := os.Stat(string(fs)); err == nil {
					glossaryPath = string(fs)
					paths = append(paths, glossaryPath)
				}
			}

			w := &session.Watcher{Logger: a.log}
			return w.Watch(ctx, paths, func(path string) {
				var err error
				if path == glossaryPath {
					_, err = s.LoadGlossary(ctx, gsrc)
				} else {
					_, err = s.LoadContent(ctx, content.File(path))
				}
				if err != nil {
					a.log.Warn("reload failed", zap.String("path", path), zap.Error(err))
				}
			})
		},
	}
	cmd.Flags().BoolVar(&printHTML, "html", false, "Print the annotated markup after each load")
	cmd.Flags().StringVar(&textsDir, "texts-dir", "", "Resolve the text name inside this directory")
	return cmd
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
