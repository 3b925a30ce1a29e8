package glossary

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CachedSource serves a remote glossary from a local copy, downloading it
// the first time. Archives published as .json.gz or .json.tgz are unpacked.
type CachedSource struct {
	URL      string
	Path     string
	Client   *http.Client
	MaxBytes int64
}

func (c *CachedSource) Name() string { return c.URL }

func (c *CachedSource) Entries(ctx context.Context) (map[string]Entry, error) {
	if err := c.Ensure(ctx); err != nil {
		return nil, err
	}
	return FileSource(c.Path).Entries(ctx)
}

// Ensure downloads the glossary to Path unless it already exists.
func (c *CachedSource) Ensure(ctx context.Context) error {
	if _, err := os.Stat(c.Path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	limit := c.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "wordgloss")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}

	body, err := unpack(io.LimitReader(resp.Body, limit+1), c.URL)
	if err != nil {
		return err
	}
	raw, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return err
	}
	if int64(len(raw)) > limit {
		return fmt.Errorf("glossary exceeds %d bytes", limit)
	}
	if _, err := Decode(bytes.NewReader(raw)); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return err
	}
	tmp := c.Path + ".download"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return os.Rename(tmp, c.Path)
}

// unpack returns the JSON stream inside a download named by url.
func unpack(r io.Reader, url string) (io.Reader, error) {
	name := strings.ToLower(url)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	switch {
	case strings.HasSuffix(name, ".tgz"), strings.HasSuffix(name, ".tar.gz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		tr := tar.NewReader(gz)
		for {
			header, err := tr.Next()
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("no json file found in downloaded archive")
			}
			if err != nil {
				return nil, fmt.Errorf("error reading tar archive: %w", err)
			}
			if header.Typeflag == tar.TypeReg && strings.HasSuffix(header.Name, ".json") {
				return tr, nil
			}
		}
	case strings.HasSuffix(name, ".gz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gz, nil
	default:
		return r, nil
	}
}
