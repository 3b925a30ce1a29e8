package vocab

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/japaniel/wordgloss/pkg/annotate"
	"github.com/japaniel/wordgloss/pkg/db"
	"github.com/japaniel/wordgloss/pkg/logger"
)

// DefaultPattern selects the texts to scan under a texts directory.
const DefaultPattern = "**/*.html"

// FileWords is what one text contributes to the vocabulary.
type FileWords struct {
	Path string
	// Counts maps key to number of occurrences.
	Counts map[string]int
	// Surfaces maps key to the first surface form seen.
	Surfaces map[string]string
}

// Extractor scans texts for annotatable words.
type Extractor struct {
	Annotator *annotate.Annotator
	Workers   int
	Logger    *zap.Logger
}

// Extract annotates every file under root matching pattern and returns the
// words found in their flagged regions, ordered by path.
func (x *Extractor) Extract(ctx context.Context, root, pattern string) ([]FileWords, error) {
	log := logger.Nop(x.Logger)
	a := x.Annotator
	if a == nil {
		a = annotate.New()
	}
	if pattern == "" {
		pattern = DefaultPattern
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("text directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("text directory: %s is not a directory", root)
	}

	fsys := os.DirFS(root)
	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	sort.Strings(matches)
	log.Info("scanning texts", zap.String("dir", root), zap.Int("files", len(matches)))

	out := make([]FileWords, len(matches))
	g, ctx := errgroup.WithContext(ctx)
	workers := x.Workers
	if workers <= 0 {
		workers = 4
	}
	g.SetLimit(workers)

	for i, name := range matches {
		i, name := i, name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw, err := fs.ReadFile(fsys, name)
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			doc, err := a.Annotate(bytes.NewReader(raw))
			if err != nil {
				return fmt.Errorf("annotate %s: %w", name, err)
			}
			fw := FileWords{
				Path:     filepath.Join(root, filepath.FromSlash(name)),
				Counts:   map[string]int{},
				Surfaces: map[string]string{},
			}
			for _, tok := range doc.Tokens() {
				fw.Counts[tok.Key]++
				if _, ok := fw.Surfaces[tok.Key]; !ok {
					fw.Surfaces[tok.Key] = tok.Surface
				}
			}
			log.Debug("read text", zap.String("file", name), zap.Int("unique", len(fw.Counts)))
			out[i] = fw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Surfaces returns the distinct surface forms across files.
func Surfaces(files []FileWords) []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range files {
		for _, s := range f.Surfaces {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Record stores the master in the database and links each key to the
// texts it occurs in.
func Record(ctx context.Context, conn *sql.DB, m Master, files []FileWords) error {
	rows := make([]db.VocabEntry, 0, len(m))
	for _, key := range m.Keys() {
		e := m[key]
		rows = append(rows, db.VocabEntry{Key: key, Word: e.Word, Translation: e.Translation, Emoji: e.Emoji, Audio: e.Audio})
	}
	if _, err := db.ImportVocab(ctx, conn, rows, 100); err != nil {
		return fmt.Errorf("import vocab: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, f := range files {
		sourceID, err := db.CreateOrGetSource(ctx, tx, filepath.Base(f.Path), "", f.Path)
		if err != nil {
			return fmt.Errorf("source %s: %w", f.Path, err)
		}
		if err := db.ClearSourceLinks(ctx, tx, sourceID); err != nil {
			return err
		}
		for key, n := range f.Counts {
			if _, ok := m[key]; !ok {
				continue
			}
			if err := db.LinkWordToSource(ctx, tx, key, sourceID, n); err != nil {
				return fmt.Errorf("link %s: %w", key, err)
			}
		}
	}
	return tx.Commit()
}
