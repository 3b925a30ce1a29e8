package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/wordgloss/pkg/db"
	"github.com/japaniel/wordgloss/pkg/session"
)

const testGlossary = `{
  "dog": {"word": "dog", "translation": "собака", "emoji": "🐶", "audio": "audio/en/dog.mp3"},
  "village": {"word": "village", "translation": "деревня"}
}`

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func execute(ctx context.Context, out *lockedBuffer, args ...string) error {
	cmd := newRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// run executes the CLI against a config file that does not exist, so only
// defaults and flags apply.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &lockedBuffer{}
	args = append([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}, args...)
	err := execute(context.Background(), out, args...)
	return out.String(), err
}

func writeFile(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestAnnotateFile(t *testing.T) {
	text := writeFile(t, filepath.Join(t.TempDir(), "text1.html"),
		`<p>Skip me</p><div data-decorate="words">Dog, cat!</div>`)

	out, err := run(t, "annotate", text)
	require.NoError(t, err)
	assert.Contains(t, out, `<p>Skip me</p>`)
	assert.Contains(t, out, `<span class="word" data-word="dog">Dog</span>, <span class="word" data-word="cat">cat</span>!`)
}

func TestAnnotateMissingFileShowsError(t *testing.T) {
	out, err := run(t, "annotate", filepath.Join(t.TempDir(), "nope.html"))
	assert.Error(t, err)
	assert.Contains(t, out, session.ErrorMarkup)
}

func TestAnnotateFromTextsDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "part2", "text2.html"), `<div data-decorate="words">Hi ninja</div>`)

	out, err := run(t, "annotate", "--texts-dir", dir, "part2/text2.html")
	require.NoError(t, err)
	assert.Contains(t, out, `<span class="word" data-word="ninja">ninja</span>`)

	_, err = run(t, "annotate", "--texts-dir", dir, "../secret.html")
	assert.ErrorContains(t, err, "outside")
}

func TestAnnotateURLAsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><main data-decorate="words" id="story">The dog left the village.</main></body></html>`)
	}))
	defer srv.Close()
	gloss := writeFile(t, filepath.Join(t.TempDir(), "vocab.json"), testGlossary)

	out, err := run(t, "annotate", "--json", "--glossary", gloss, srv.URL+"/text1.html")
	require.NoError(t, err)

	var res annotateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, srv.URL+"/text1.html", res.Source)
	assert.Empty(t, res.Error)
	require.Len(t, res.Regions, 1)
	assert.Equal(t, "main", res.Regions[0].Tag)
	assert.Equal(t, "story", res.Regions[0].ID)

	words := res.Regions[0].Words
	require.Len(t, words, 5)
	assert.Equal(t, wordOutput{Surface: "dog", Key: "dog", Found: true, Translation: "собака", Emoji: "🐶"}, words[1])
	assert.Equal(t, wordOutput{Surface: "village", Key: "village", Found: true, Translation: "деревня", Emoji: "✨"}, words[4])
	assert.False(t, words[2].Found)
	assert.Equal(t, "❓", words[2].Emoji)
	assert.Equal(t, "нет перевода (добавь в словарь)", words[2].Translation)
}

func TestLookup(t *testing.T) {
	gloss := writeFile(t, filepath.Join(t.TempDir(), "vocab.json"), testGlossary)

	out, err := run(t, "lookup", "--glossary", gloss, "Dog", "ghost")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "🐶 dog: собака (audio/en/dog.mp3)", lines[0])
	assert.Equal(t, "❓ ghost: нет перевода (добавь в словарь)", lines[1])
}

func TestLookupWithUnavailableGlossaryFallsBack(t *testing.T) {
	out, err := run(t, "lookup", "--glossary", filepath.Join(t.TempDir(), "missing.json"), "dog")
	require.NoError(t, err)
	assert.Equal(t, "❓ dog: нет перевода (добавь в словарь)\n", out)
}

func TestImportThenLookupFromDB(t *testing.T) {
	dir := t.TempDir()
	gloss := writeFile(t, filepath.Join(dir, "vocab.json"), testGlossary)
	dbPath := filepath.Join(dir, "wordgloss.db")

	out, err := run(t, "import", "--db", dbPath, gloss)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 entries")

	out, err = run(t, "lookup", "--db", dbPath, "--json", "village")
	require.NoError(t, err)
	var res []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res, 1)
	assert.Equal(t, "деревня", res[0]["translation"])
}

func TestImportWithoutDB(t *testing.T) {
	gloss := writeFile(t, filepath.Join(t.TempDir(), "vocab.json"), testGlossary)
	_, err := run(t, "import", gloss)
	assert.Error(t, err)
}

func TestVocabWorkflow(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "texts", "text1.html"),
		`<h1>Title</h1><div data-decorate="words">The dog. The cat.</div>`)
	cfgPath := writeFile(t, filepath.Join(dir, "wordgloss.yaml"), fmt.Sprintf(`texts_dir: %q
vocab_path: %q
list_path: %q
ready_path: %q
glossary_db: %q
`,
		filepath.Join(dir, "texts"),
		filepath.Join(dir, "vocab", "vocab_master.json"),
		filepath.Join(dir, "vocab", "list.txt"),
		filepath.Join(dir, "vocab", "list_ready.txt"),
		filepath.Join(dir, "wordgloss.db")))

	vocabRun := func(args ...string) string {
		t.Helper()
		out := &lockedBuffer{}
		require.NoError(t, execute(context.Background(), out, append([]string{"--config", cfgPath, "vocab"}, args...)...))
		return out.String()
	}

	assert.Equal(t, "Scanned 1 texts, 3 distinct words, 3 new. Master has 3 entries.\n", vocabRun("extract", "--record"))
	assert.Contains(t, vocabRun("missing"), "Wrote 3 of 3 entries")

	list, err := os.ReadFile(filepath.Join(dir, "vocab", "list.txt"))
	require.NoError(t, err)
	assert.Equal(t, "key;word;translation;emoji\ncat;cat;;\ndog;dog;;\nthe;The;;\n", string(list))

	writeFile(t, filepath.Join(dir, "vocab", "list_ready.txt"), "key;word;translation;emoji\ndog;dog;собака;🐶\ncat;cat;кошка;🐱\n")
	assert.Equal(t, "Applied 2 entries, 1 still missing\n", vocabRun("apply"))
	_, err = os.Stat(filepath.Join(dir, "vocab", "list_ready_used.txt"))
	assert.NoError(t, err)
	assert.Equal(t, "Updated 0 entries\n", vocabRun("audio"))

	out := &lockedBuffer{}
	require.NoError(t, execute(context.Background(), out, "--config", cfgPath, "lookup", "--glossary", filepath.Join(dir, "vocab", "vocab_master.json"), "cat"))
	assert.Equal(t, "🐱 cat: кошка (audio/en/cat.mp3)\n", out.String())

	conn, err := db.Open(filepath.Join(dir, "wordgloss.db"))
	require.NoError(t, err)
	defer conn.Close()
	rows, err := db.ListVocab(context.Background(), conn)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestWatchReannotatesOnChange(t *testing.T) {
	dir := t.TempDir()
	text := writeFile(t, filepath.Join(dir, "text1.html"), `<div data-decorate="words">one dog</div>`)
	gloss := writeFile(t, filepath.Join(dir, "vocab.json"), testGlossary)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &lockedBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- execute(ctx, out, "--config", filepath.Join(dir, "absent.yaml"), "--glossary", gloss, "watch", text)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "generation 1: "+text+", 2 words, 1 in glossary (ok)")
	}, 5*time.Second, 20*time.Millisecond)

	// Keep rewriting until the watcher has picked a change up.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(text, []byte(`<div data-decorate="words">two dogs in a village</div>`), 0o644)
		return strings.Contains(out.String(), ", 5 words, 1 in glossary (ok)")
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestWatchFromTextsDir(t *testing.T) {
	dir := t.TempDir()
	text := writeFile(t, filepath.Join(dir, "texts", "text1.html"), `<div data-decorate="words">one dog</div>`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &lockedBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- execute(ctx, out, "--config", filepath.Join(dir, "absent.yaml"), "--glossary", filepath.Join(dir, "none.json"),
			"watch", "--texts-dir", filepath.Join(dir, "texts"), "text1.html")
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "generation 1: "+text+", 2 words, 0 in glossary (ok)")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "wordgloss version dev\n", out)
}

func TestLookupCachesRemoteGlossary(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		fmt.Fprint(w, testGlossary)
	}))
	defer srv.Close()

	dir := t.TempDir()
	cache := filepath.Join(dir, "cache", "vocab.json")
	cfgPath := writeFile(t, filepath.Join(dir, "wordgloss.yaml"), fmt.Sprintf("glossary: %q\nglossary_cache: %q\n", srv.URL+"/vocab.json", cache))

	for i := 0; i < 2; i++ {
		out := &lockedBuffer{}
		require.NoError(t, execute(context.Background(), out, "--config", cfgPath, "lookup", "village"))
		assert.Equal(t, "✨ village: деревня\n", out.String())
	}
	mu.Lock()
	assert.Equal(t, 1, hits)
	mu.Unlock()
	_, err := os.Stat(cache)
	assert.NoError(t, err)
}
