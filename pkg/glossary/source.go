package glossary

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/japaniel/wordgloss/pkg/db"
)

// ErrMalformedSource is returned when source data is not a JSON object of
// key → entry records.
var ErrMalformedSource = errors.New("glossary: malformed source")

// DefaultMaxBytes caps how much of a remote glossary is read.
const DefaultMaxBytes = 32 * 1024 * 1024

// Source produces glossary entries keyed by normalized word.
type Source interface {
	Name() string
	Entries(ctx context.Context) (map[string]Entry, error)
}

// LoadFrom replaces the store's contents with src's entries. On failure the
// store is emptied and the error returned; it stays queryable either way.
func (s *Store) LoadFrom(ctx context.Context, src Source) (int, error) {
	entries, err := src.Entries(ctx)
	if err != nil {
		s.Load(nil)
		return 0, fmt.Errorf("load glossary %s: %w", src.Name(), err)
	}
	s.Load(entries)
	return s.Len(), nil
}

// Decode reads the vocabulary JSON format. Individual records that are not
// objects are skipped; a document that is not an object is malformed.
func Decode(r io.Reader) (map[string]Entry, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSource, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedSource)
	}

	out := make(map[string]Entry, len(raw))
	for k, v := range raw {
		v = bytes.TrimSpace(v)
		if len(v) == 0 || v[0] != '{' {
			continue
		}
		var e Entry
		if err := json.Unmarshal(v, &e); err != nil {
			continue
		}
		out[k] = e
	}
	return out, nil
}

// Open picks a source for location: http(s) URLs are fetched, anything else
// is read from disk.
func Open(location string) Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return &HTTPSource{URL: location}
	}
	return FileSource(location)
}

// FileSource reads a vocabulary JSON file.
type FileSource string

func (f FileSource) Name() string { return string(f) }

func (f FileSource) Entries(ctx context.Context) (map[string]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(string(f))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Decode(file)
}

// HTTPSource fetches a vocabulary JSON document.
type HTTPSource struct {
	URL      string
	Client   *http.Client
	MaxBytes int64
}

func (h *HTTPSource) Name() string { return h.URL }

func (h *HTTPSource) Entries(ctx context.Context) (map[string]Entry, error) {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	limit := h.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "wordgloss")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch glossary: %s", resp.Status)
	}
	if resp.ContentLength > limit {
		return nil, fmt.Errorf("glossary is %d bytes, limit is %d", resp.ContentLength, limit)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("glossary exceeds %d bytes", limit)
	}
	return Decode(bytes.NewReader(body))
}

// DBSource reads the vocabulary table of a wordgloss sqlite database.
type DBSource struct {
	DB *sql.DB
}

func (d DBSource) Name() string { return "sqlite" }

func (d DBSource) Entries(ctx context.Context) (map[string]Entry, error) {
	rows, err := db.ListVocab(ctx, d.DB)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Entry, len(rows))
	for _, r := range rows {
		out[r.Key] = Entry{Word: r.Word, Translation: r.Translation, Emoji: r.Emoji, Audio: r.Audio}
	}
	return out, nil
}

// MapSource serves a fixed mapping.
type MapSource map[string]Entry

func (m MapSource) Name() string { return "memory" }

func (m MapSource) Entries(context.Context) (map[string]Entry, error) {
	return m, nil
}
