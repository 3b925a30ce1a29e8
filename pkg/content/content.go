// Package content fetches the markup that gets annotated.
package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"
)

var (
	// ErrSourceUnavailable marks content that could not be fetched at all.
	ErrSourceUnavailable = errors.New("content source unavailable")
	// ErrTooLarge is returned when a body exceeds the configured limit.
	ErrTooLarge = errors.New("content exceeds size limit")
)

// DefaultMaxBytes is the default cap for fetched markup.
const DefaultMaxBytes = 10 * 1024 * 1024 // 10 MB

// Source yields markup to annotate.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]byte, error)
}

// Open picks a Source for location: http(s) URLs are fetched, anything else
// is read from disk.
func Open(location string) Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return &HTTP{URL: location}
	}
	return File(location)
}

// File is markup on disk.
type File string

func (f File) Name() string { return string(f) }

func (f File) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(string(f))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return b, nil
}

// Inline is markup already in memory.
type Inline string

func (i Inline) Name() string { return "inline" }

func (i Inline) Load(context.Context) ([]byte, error) { return []byte(i), nil }

// Dir serves named texts from a directory, the way a reader menu picks
// text1.html, text2.html and so on.
type Dir string

// Text returns the source for name, which must stay inside the directory.
func (d Dir) Text(name string) (Source, error) {
	path, err := d.Path(name)
	if err != nil {
		return nil, err
	}
	return File(path), nil
}

// Path resolves name inside the directory.
func (d Dir) Path(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("text %q is outside %s", name, string(d))
	}
	return filepath.Join(string(d), clean), nil
}

// ArticleFile is a saved web page on disk, reduced to its main article.
type ArticleFile struct {
	Path string
}

func (f *ArticleFile) Name() string { return f.Path }

func (f *ArticleFile) Load(ctx context.Context) ([]byte, error) {
	raw, err := File(f.Path).Load(ctx)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(f.Path)
	if err != nil {
		return nil, err
	}
	return FromArticle(bytes.NewReader(raw), &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)})
}

// HTTP fetches markup over HTTP. With Article set, the page is reduced to its
// main article and wrapped in an annotatable container.
type HTTP struct {
	URL      string
	Client   *http.Client
	MaxBytes int64
	Article  bool
}

func (h *HTTP) Name() string { return h.URL }

func (h *HTTP) Load(ctx context.Context) ([]byte, error) {
	body, err := h.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if !h.Article {
		return body, nil
	}
	u, err := url.Parse(h.URL)
	if err != nil {
		return nil, err
	}
	return FromArticle(bytes.NewReader(body), u)
}

func (h *HTTP) fetch(ctx context.Context) ([]byte, error) {
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
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; wordgloss/0.1)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ErrSourceUnavailable, h.URL, resp.Status)
	}
	if resp.ContentLength > limit {
		return nil, fmt.Errorf("%w: Content-Length %d, limit %d", ErrTooLarge, resp.ContentLength, limit)
	}

	// Read one byte past the limit to tell "exactly at limit" from "truncated".
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if int64(len(raw)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}

	r, err := charset.NewReader(bytes.NewReader(raw), resp.Header.Get("Content-Type"))
	if err != nil {
		// Unknown charset; hand back the bytes untouched.
		return raw, nil
	}
	return io.ReadAll(r)
}

// FromArticle extracts the main article from a page and wraps its content
// in a container flagged for annotation. The title is kept outside it.
func FromArticle(r io.Reader, pageURL *url.URL) ([]byte, error) {
	article, err := readability.FromReader(r, pageURL)
	if err != nil {
		return nil, fmt.Errorf("extract article: %w", err)
	}

	var b bytes.Buffer
	if article.Title != "" {
		fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(article.Title))
	}
	b.WriteString(`<article data-decorate="words">`)
	b.WriteString(article.Content)
	b.WriteString("</article>\n")
	return b.Bytes(), nil
}
