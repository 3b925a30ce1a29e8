package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/japaniel/wordgloss/pkg/config"
	"github.com/japaniel/wordgloss/pkg/content"
	"github.com/japaniel/wordgloss/pkg/db"
	"github.com/japaniel/wordgloss/pkg/glossary"
	"github.com/japaniel/wordgloss/pkg/logger"
	"github.com/japaniel/wordgloss/pkg/lookup"
	"github.com/japaniel/wordgloss/pkg/session"
)

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	cfgPath     string
	glossaryLoc string
	dbPath      string
	verbose     bool

	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "wordgloss",
		Short: "Annotate the words of a text and look them up in a glossary",
		Long: `wordgloss wraps every word inside data-decorate="words" regions of an
HTML text so it can be selected, and resolves selected words against a
glossary of translations, emoji and pronunciation audio.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if a.glossaryLoc != "" {
				cfg.Glossary = a.glossaryLoc
			}
			if a.dbPath != "" {
				cfg.GlossaryDB = a.dbPath
			}
			a.cfg = cfg

			l, err := logger.New(cfg.LogMode, a.verbose)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			a.log = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", config.DefaultPath, "Path to the YAML config file")
	pf.StringVar(&a.glossaryLoc, "glossary", "", "Glossary JSON file or URL (overrides config)")
	pf.StringVar(&a.dbPath, "db", "", "Path to the SQLite vocabulary database (overrides config)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(
		newAnnotateCmd(a),
		newLookupCmd(a),
		newVocabCmd(a),
		newImportCmd(a),
		newWatchCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

func (a *app) httpClient() *http.Client {
	return &http.Client{Timeout: a.cfg.FetchTimeout}
}

// glossarySource resolves the configured glossary: an explicit file or URL
// first, then the sqlite database, then the vocab master file. The returned
// func releases anything the source holds open.
func (a *app) glossarySource() (glossary.Source, func(), error) {
	noop := func() {}
	switch {
	case a.cfg.Glossary != "":
		src := glossary.Open(a.cfg.Glossary)
		if h, ok := src.(*glossary.HTTPSource); ok {
			if a.cfg.GlossaryCache != "" {
				return &glossary.CachedSource{URL: h.URL, Path: a.cfg.GlossaryCache, Client: a.httpClient()}, noop, nil
			}
			h.Client = a.httpClient()
		}
		return src, noop, nil
	case a.cfg.GlossaryDB != "":
		conn, err := db.Open(a.cfg.GlossaryDB)
		if err != nil {
			return nil, noop, err
		}
		return glossary.DBSource{DB: conn}, func() { conn.Close() }, nil
	default:
		return glossary.FileSource(a.cfg.VocabPath), noop, nil
	}
}

// textSource opens the text named by arg. With a texts directory the name
// is resolved inside it; otherwise arg is a path or URL.
func (a *app) textSource(textsDir, arg string, article bool) (content.Source, error) {
	if textsDir == "" {
		return a.contentSource(arg, article), nil
	}
	dir := content.Dir(textsDir)
	if article {
		path, err := dir.Path(arg)
		if err != nil {
			return nil, err
		}
		return &content.ArticleFile{Path: path}, nil
	}
	return dir.Text(arg)
}

// contentSource opens markup at loc, reduced to its main article when asked.
func (a *app) contentSource(loc string, article bool) content.Source {
	src := content.Open(loc)
	if h, ok := src.(*content.HTTP); ok {
		h.Client = a.httpClient()
		h.MaxBytes = a.cfg.MaxBodyBytes
		h.Article = article
		return h
	}
	if article {
		return &content.ArticleFile{Path: loc}
	}
	return src
}

func (a *app) newSession(player lookup.Player, onContent func(session.View)) *session.Session {
	return session.New(session.Options{
		Workers:         a.cfg.Workers,
		Logger:          a.log,
		Player:          player,
		FallbackMessage: a.cfg.FallbackMessage,
		DefaultEmoji:    a.cfg.DefaultEmoji,
		UnknownEmoji:    a.cfg.UnknownEmoji,
		OnContent:       onContent,
	})
}

// loadGlossary loads the configured glossary into s and waits for it. A
// failed load is logged by the session and leaves the glossary empty.
func (a *app) loadGlossary(ctx context.Context, s *session.Session) (func(), error) {
	src, release, err := a.glossarySource()
	if err != nil {
		return release, err
	}
	if _, err := s.LoadGlossary(ctx, src); err != nil {
		return release, err
	}
	s.Wait()
	return release, nil
}

func (a *app) openDB() (*sql.DB, error) {
	if strings.TrimSpace(a.cfg.GlossaryDB) == "" {
		return nil, fmt.Errorf("no database configured, use --db or glossary_db")
	}
	return db.Open(a.cfg.GlossaryDB)
}
