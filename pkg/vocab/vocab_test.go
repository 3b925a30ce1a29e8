package vocab

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/wordgloss/pkg/db"
	"github.com/japaniel/wordgloss/pkg/glossary"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadMissingAndGarbled(t *testing.T) {
	dir := t.TempDir()

	m, err := Load(filepath.Join(dir, "none.json"), nil)
	require.NoError(t, err)
	assert.Empty(t, m)

	bad := filepath.Join(dir, "bad.json")
	writeFile(t, bad, "{not json")
	m, err = Load(bad, nil)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestSaveLoadKeepsUnicode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab", "vocab_master.json")
	m := Master{"hello": {Word: "Hello", Translation: "Привет", Emoji: "👋", Audio: "audio/en/hello.mp3"}}
	require.NoError(t, Save(path, m))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Привет")
	assert.Contains(t, string(raw), "\n  \"hello\": {")

	back, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, m, back)
}

func TestSaveKeepsFieldsItDoesNotModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab_master.json")
	writeFile(t, path, `{
  "dog": {"word": "dog", "translation": "собака", "emoji": "", "note": "keep me", "tags": ["pet", "<animal>"]},
  "_comment": "edited by hand",
  "broken": {"word": 7}
}`)

	m, err := Load(path, nil)
	require.NoError(t, err)
	require.Len(t, m, 1)

	e := m["dog"]
	e.Audio = "audio/en/dog.mp3"
	m["dog"] = e
	Merge(m, []string{"Cat"}, DefaultAudioPrefix)
	require.NoError(t, Save(path, m))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"<animal>"`)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "edited by hand", doc["_comment"])
	assert.Equal(t, map[string]any{"word": float64(7)}, doc["broken"])
	assert.Equal(t, map[string]any{
		"word":        "dog",
		"translation": "собака",
		"emoji":       "",
		"audio":       "audio/en/dog.mp3",
		"note":        "keep me",
		"tags":        []any{"pet", "<animal>"},
	}, doc["dog"])
	assert.Equal(t, map[string]any{"word": "Cat", "translation": "", "audio": "audio/en/cat.mp3"}, doc["cat"])
	// Known fields lead each record.
	assert.Less(t, strings.Index(string(raw), `"audio": "audio/en/dog.mp3"`), strings.Index(string(raw), `"note"`))

	back, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, m, back)
}

func TestMerge(t *testing.T) {
	m := Master{"dog": {Word: "dog", Translation: "собака"}}
	added := Merge(m, []string{"Village", "dog", "village", "Don't", "Dog"}, DefaultAudioPrefix)

	assert.Equal(t, 2, added)
	assert.Equal(t, "собака", m["dog"].Translation)
	assert.Equal(t, glossary.Entry{Word: "Don't", Audio: "audio/en/don't.mp3"}, m["don't"])
	// Uppercase sorts first among equal keys.
	assert.Equal(t, "Village", m["village"].Word)
	assert.Equal(t, []string{"dog", "don't", "village"}, m.Keys())
}

func TestNormalizeAudio(t *testing.T) {
	m := Master{
		"a": {Word: "a", Audio: `audio\en\a.mp3`},
		"b": {Translation: "бэ"},
		"c": {Word: "c", Audio: "audio/en/c.mp3"},
	}
	changed := NormalizeAudio(m, "sounds")
	assert.Equal(t, 2, changed)
	assert.Equal(t, "audio/en/a.mp3", m["a"].Audio)
	assert.Equal(t, glossary.Entry{Word: "b", Translation: "бэ", Audio: "sounds/b.mp3"}, m["b"])
}

func TestMissingListRoundTrip(t *testing.T) {
	m := Master{
		"dog":     {Word: "dog", Translation: "собака", Emoji: "🐶"},
		"village": {Word: "village", Translation: "деревня"},
		"ninja":   {Word: "Ninja"},
	}

	var buf bytes.Buffer
	n, err := WriteMissingList(&buf, m)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "key;word;translation;emoji\nninja;Ninja;;\nvillage;village;деревня;\n", buf.String())

	dir := t.TempDir()
	ready := filepath.Join(dir, "list_ready.txt")
	writeFile(t, ready, "key;word;translation;emoji\nninja;Ninja;ниндзя;🥷\nvillage;;;🏘\nghost;Ghost;призрак;👻\nshort\n")

	applied, err := ApplyReadyList(ready, m, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.Equal(t, glossary.Entry{Word: "Ninja", Translation: "ниндзя", Emoji: "🥷"}, m["ninja"])
	assert.Equal(t, "деревня", m["village"].Translation)
	assert.Equal(t, "🏘", m["village"].Emoji)
	_, ok := m["ghost"]
	assert.False(t, ok)

	_, err = os.Stat(ready)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "list_ready_used.txt"))
	assert.NoError(t, err)

	assert.Empty(t, Missing(m))

	n, err = ApplyReadyList(ready, m, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestExtract(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "text1.html"), `<h1>Ignored Title</h1><div data-decorate="words"><p>The dog saw the Village.</p></div>`)
	writeFile(t, filepath.Join(root, "part2", "text2.html"), `<div data-decorate="words">Don't wake the dog</div>`)
	writeFile(t, filepath.Join(root, "notes.txt"), `not html at all`)

	x := &Extractor{Workers: 2}
	files, err := x.Extract(context.Background(), root, "")
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, filepath.Join(root, "part2", "text2.html"), files[0].Path)
	assert.Equal(t, 1, files[0].Counts["dog"])
	assert.Equal(t, 2, files[1].Counts["the"])
	assert.Equal(t, "The", files[1].Surfaces["the"])
	_, ok := files[1].Counts["ignored"]
	assert.False(t, ok)

	surf := Surfaces(files)
	assert.Contains(t, surf, "Don't")
	assert.Contains(t, surf, "Village")

	m := Master{}
	assert.Equal(t, 6, Merge(m, surf, DefaultAudioPrefix))
}

func TestExtractMissingDir(t *testing.T) {
	_, err := (&Extractor{}).Extract(context.Background(), filepath.Join(t.TempDir(), "nope"), "")
	assert.Error(t, err)
}

func TestRecord(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "text1.html"), `<div data-decorate="words">dog dog cat</div>`)

	files, err := (&Extractor{}).Extract(context.Background(), root, "*.html")
	require.NoError(t, err)
	m := Master{}
	Merge(m, Surfaces(files), DefaultAudioPrefix)

	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	defer conn.Close()

	ctx := context.Background()
	require.NoError(t, Record(ctx, conn, m, files))
	// Recording again replaces the counts.
	require.NoError(t, Record(ctx, conn, m, files))

	id, err := db.CreateOrGetSource(ctx, conn, "text1.html", "", files[0].Path)
	require.NoError(t, err)
	words, err := db.WordsBySource(ctx, conn, id)
	require.NoError(t, err)
	require.Len(t, words, 2)
	assert.Equal(t, db.WordCount{Key: "dog", Word: "dog", Count: 2}, words[0])

	all, err := db.ListVocab(ctx, conn)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.True(t, strings.HasSuffix(all[0].Audio, "cat.mp3"))
}
