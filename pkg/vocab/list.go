package vocab

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/japaniel/wordgloss/pkg/logger"
)

// The translation lists are semicolon separated: key;word;translation;emoji.
const listDelimiter = ';'

// UsedSuffix renames an applied ready list so it is not applied twice.
const UsedSuffix = "_used"

// WriteMissingList writes the entries still lacking a translation or emoji,
// sorted by key, with a header row. It returns the number of entries written.
func WriteMissingList(w io.Writer, m Master) (int, error) {
	cw := csv.NewWriter(w)
	cw.Comma = listDelimiter

	if err := cw.Write([]string{"key", "word", "translation", "emoji"}); err != nil {
		return 0, err
	}
	missing := Missing(m)
	for _, key := range missing {
		e := m[key]
		word := e.Word
		if word == "" {
			word = key
		}
		if err := cw.Write([]string{key, word, strings.TrimSpace(e.Translation), strings.TrimSpace(e.Emoji)}); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(missing), cw.Error()
}

// SaveMissingList rewrites the list file at path.
func SaveMissingList(path string, m Master) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := WriteMissingList(f, m)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// ApplyList reads a filled-in list and copies non-empty word, translation
// and emoji values into m. Rows for unknown keys are skipped. It returns the
// number of rows applied.
func ApplyList(r io.Reader, m Master, log *zap.Logger) (int, error) {
	log = logger.Nop(log)
	cr := csv.NewReader(r)
	cr.Comma = listDelimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	applied := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return applied, fmt.Errorf("read list: %w", err)
		}
		if len(row) < 2 {
			continue
		}
		key := strings.TrimSpace(row[0])
		if key == "" || strings.EqualFold(key, "key") || strings.EqualFold(key, "#key") {
			continue
		}

		e, ok := m[key]
		if !ok {
			log.Warn("key from list not found in vocab, skipping", zap.String("key", key))
			continue
		}
		if v := field(row, 1); v != "" {
			e.Word = v
		}
		if v := field(row, 2); v != "" {
			e.Translation = v
		}
		if v := field(row, 3); v != "" {
			e.Emoji = v
		}
		m[key] = e
		applied++
	}
	return applied, nil
}

// ApplyReadyList applies the list at path and renames it to
// <name>_used<ext>. A missing file applies nothing.
func ApplyReadyList(path string, m Master, log *zap.Logger) (int, error) {
	log = logger.Nop(log)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Info("ready list not found, skipping import", zap.String("path", path))
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := ApplyList(f, m, log)
	f.Close()
	if err != nil {
		return n, err
	}

	used := UsedPath(path)
	if err := os.Rename(path, used); err != nil {
		log.Warn("could not rename ready list", zap.String("path", path), zap.Error(err))
	} else {
		log.Info("renamed ready list", zap.String("to", used))
	}
	return n, nil
}

// UsedPath maps list_ready.txt to list_ready_used.txt.
func UsedPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + UsedSuffix + ext
}

func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
