package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a vocabulary key has no row.
var ErrNotFound = errors.New("db: not found")

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// isUniqueConstraintErr returns true when the error indicates a unique/constraint violation
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "constraint failed")
}

// UpsertVocab inserts an entry or updates the existing one. Empty fields in e
// never overwrite stored values.
func UpsertVocab(ctx context.Context, db DBExecutor, e VocabEntry) error {
	key := strings.TrimSpace(e.Key)
	if key == "" {
		return fmt.Errorf("key must be non-empty")
	}
	word := e.Word
	if word == "" {
		word = key
	}

	_, err := db.ExecContext(ctx, `INSERT INTO vocab (key, word, translation, emoji, audio, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		  word = COALESCE(NULLIF(excluded.word, excluded.key), vocab.word),
		  translation = COALESCE(NULLIF(excluded.translation, ''), vocab.translation),
		  emoji = COALESCE(NULLIF(excluded.emoji, ''), vocab.emoji),
		  audio = COALESCE(NULLIF(excluded.audio, ''), vocab.audio),
		  updated_at = excluded.updated_at`,
		key, word, e.Translation, e.Emoji, e.Audio, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert vocab %q: %w", key, err)
	}
	return nil
}

// GetVocab returns the entry for key or ErrNotFound.
func GetVocab(ctx context.Context, db DBExecutor, key string) (VocabEntry, error) {
	var e VocabEntry
	err := db.QueryRowContext(ctx,
		`SELECT key, word, translation, emoji, audio, updated_at FROM vocab WHERE key = ?`, key,
	).Scan(&e.Key, &e.Word, &e.Translation, &e.Emoji, &e.Audio, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return VocabEntry{}, ErrNotFound
	}
	if err != nil {
		return VocabEntry{}, err
	}
	return e, nil
}

// ListVocab returns every vocabulary entry ordered by key.
func ListVocab(ctx context.Context, db DBExecutor) ([]VocabEntry, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, word, translation, emoji, audio, updated_at FROM vocab ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VocabEntry
	for rows.Next() {
		var e VocabEntry
		if err := rows.Scan(&e.Key, &e.Word, &e.Translation, &e.Emoji, &e.Audio, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateOrGetSource returns existing source id or inserts a new source and returns its id.
func CreateOrGetSource(ctx context.Context, db DBExecutor, name, title, url string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("source name must be non-empty")
	}

	const maxRetries = 3

	var id int64
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := db.QueryRowContext(ctx, `SELECT id FROM sources WHERE name = ? AND url = ?`, name, url).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}

		res, err := db.ExecContext(ctx, `INSERT INTO sources (name, title, url) VALUES (?, ?, ?)`, name, title, url)
		if err != nil {
			// Lost a race with a concurrent insert; select again.
			if isUniqueConstraintErr(err) {
				continue
			}
			return 0, err
		}
		return res.LastInsertId()
	}

	return 0, fmt.Errorf("could not create or get source after %d retries", maxRetries)
}

// LinkWordToSource adds count occurrences of key to the given source.
func LinkWordToSource(ctx context.Context, db DBExecutor, key string, sourceID int64, count int) error {
	if key == "" {
		return fmt.Errorf("key must be non-empty")
	}
	if sourceID <= 0 {
		return fmt.Errorf("sourceID must be positive")
	}
	if count < 1 {
		return fmt.Errorf("count must be positive, got %d", count)
	}

	_, err := db.ExecContext(ctx, `INSERT INTO vocab_sources (vocab_key, source_id, occurrence_count, first_seen_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(vocab_key, source_id) DO UPDATE SET
	  occurrence_count = vocab_sources.occurrence_count + excluded.occurrence_count`,
		key, sourceID, count, time.Now().UTC())
	return err
}

// WordsBySource returns the vocabulary seen in a source, most frequent first.
func WordsBySource(ctx context.Context, db DBExecutor, sourceID int64) ([]WordCount, error) {
	rows, err := db.QueryContext(ctx, `SELECT v.key, v.word, vs.occurrence_count
		FROM vocab v JOIN vocab_sources vs ON vs.vocab_key = v.key
		WHERE vs.source_id = ?
		ORDER BY vs.occurrence_count DESC, v.key`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WordCount
	for rows.Next() {
		var w WordCount
		if err := rows.Scan(&w.Key, &w.Word, &w.Count); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ClearSourceLinks forgets every word recorded for a source, so a rescan
// replaces counts instead of adding to them.
func ClearSourceLinks(ctx context.Context, db DBExecutor, sourceID int64) error {
	_, err := db.ExecContext(ctx, `DELETE FROM vocab_sources WHERE source_id = ?`, sourceID)
	return err
}
