package db

import "time"

// VocabEntry is one row of the vocabulary table.
type VocabEntry struct {
	Key         string
	Word        string
	Translation string
	Emoji       string
	Audio       string
	UpdatedAt   time.Time
}

// Source is a text the vocabulary was extracted from.
type Source struct {
	ID      int64
	Name    string
	Title   string
	URL     string
	AddedAt time.Time
}

// WordCount is a vocabulary key with the number of times it occurs in a source.
type WordCount struct {
	Key   string
	Word  string
	Count int
}
