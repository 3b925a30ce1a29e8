package glossary

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cacheDoc = `{"dog": {"word": "dog", "translation": "собака"}}`

func gzipped(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func tarGzipped(t *testing.T, name, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "README.txt", Mode: 0o644, Size: 2, Typeflag: tar.TypeReg}))
	_, err := tw.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err = tw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestCachedSourceDownloadsOnce(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		switch r.URL.Path {
		case "/vocab.json":
			_, _ = w.Write([]byte(cacheDoc))
		case "/vocab.json.gz":
			_, _ = w.Write(gzipped(t, cacheDoc))
		case "/vocab.json.tgz":
			_, _ = w.Write(tarGzipped(t, "dist/vocab.json", cacheDoc))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	for _, name := range []string{"vocab.json", "vocab.json.gz", "vocab.json.tgz"} {
		t.Run(name, func(t *testing.T) {
			atomic.StoreInt32(&hits, 0)
			src := &CachedSource{URL: srv.URL + "/" + name, Path: filepath.Join(t.TempDir(), "cache", "vocab.json")}

			for i := 0; i < 2; i++ {
				got, err := src.Entries(context.Background())
				require.NoError(t, err)
				assert.Equal(t, "собака", got["dog"].Translation)
			}
			assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

			raw, err := os.ReadFile(src.Path)
			require.NoError(t, err)
			assert.JSONEq(t, cacheDoc, string(raw))
		})
	}
}

func TestCachedSourceExistingFileSkipsDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.json")
	require.NoError(t, os.WriteFile(path, []byte(cacheDoc), 0o644))

	src := &CachedSource{URL: "http://127.0.0.1:1/unreachable.json", Path: path}
	require.NoError(t, src.Ensure(context.Background()))
	got, err := src.Entries(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCachedSourceRejectsBadDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken.json" {
			_, _ = w.Write([]byte(`["not", "an", "object"]`))
			return
		}
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := (&CachedSource{URL: srv.URL + "/broken.json", Path: filepath.Join(dir, "a.json")}).Entries(context.Background())
	assert.ErrorIs(t, err, ErrMalformedSource)
	_, statErr := os.Stat(filepath.Join(dir, "a.json"))
	assert.True(t, os.IsNotExist(statErr))

	_, err = (&CachedSource{URL: srv.URL + "/missing.json", Path: filepath.Join(dir, "b.json")}).Entries(context.Background())
	assert.Error(t, err)
}
