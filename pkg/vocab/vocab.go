// Package vocab maintains the master vocabulary file the glossary is loaded
// from: collecting words from texts, tracking which still need a
// translation, and applying translations back.
package vocab

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/japaniel/wordgloss/pkg/annotate"
	"github.com/japaniel/wordgloss/pkg/glossary"
	"github.com/japaniel/wordgloss/pkg/logger"
)

// DefaultAudioPrefix is where pronunciation files live, relative to the site root.
const DefaultAudioPrefix = "audio/en/"

// Master is the vocabulary keyed by normalized word.
type Master map[string]glossary.Entry

// Keys returns the sorted keys.
func (m Master) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Load reads the master file. A missing file gives an empty master; a file
// that does not parse also gives an empty master, with a warning, so tools
// can start fresh.
func Load(path string, log *zap.Logger) (Master, error) {
	log = logger.Nop(log)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Info("no vocab file yet, starting a new one", zap.String("path", path))
		return Master{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := glossary.Decode(f)
	if err != nil {
		log.Warn("could not parse vocab file, starting fresh", zap.String("path", path), zap.Error(err))
		return Master{}, nil
	}
	return Master(entries), nil
}

// Save writes the master as indented JSON with keys sorted and non-ASCII
// text left readable. Fields and records the master does not model are
// carried over from the file already at path.
func Save(path string, m Master) error {
	b, err := encodeMaster(readRaw(path), m)
	if err != nil {
		return fmt.Errorf("encode vocab: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// AudioPath is the default pronunciation path for key.
func AudioPath(prefix, key string) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + key + ".mp3"
}

// Merge adds an empty entry for every word whose key is not yet in m and
// returns how many were added. Words are visited case-insensitively sorted
// so the first-seen display form is deterministic.
func Merge(m Master, words []string, audioPrefix string) int {
	sorted := append([]string(nil), words...)
	sort.SliceStable(sorted, func(i, j int) bool {
		li, lj := annotate.Normalize(sorted[i]), annotate.Normalize(sorted[j])
		if li != lj {
			return li < lj
		}
		return sorted[i] < sorted[j]
	})

	added := 0
	for _, w := range sorted {
		key := annotate.Normalize(w)
		if key == "" {
			continue
		}
		if _, ok := m[key]; ok {
			continue
		}
		m[key] = glossary.Entry{Word: w, Audio: AudioPath(audioPrefix, key)}
		added++
	}
	return added
}

// NormalizeAudio gives every entry an audio path, using forward slashes,
// and fills in a missing display word. It returns how many entries changed.
func NormalizeAudio(m Master, audioPrefix string) int {
	changed := 0
	for key, e := range m {
		orig := e
		if e.Word == "" {
			e.Word = key
		}
		if e.Audio == "" {
			e.Audio = AudioPath(audioPrefix, key)
		}
		e.Audio = strings.ReplaceAll(e.Audio, `\`, "/")
		if e != orig {
			m[key] = e
			changed++
		}
	}
	return changed
}

// Missing returns the sorted keys of entries lacking a translation or emoji.
func Missing(m Master) []string {
	var out []string
	for key, e := range m {
		if strings.TrimSpace(e.Translation) == "" || strings.TrimSpace(e.Emoji) == "" {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}
