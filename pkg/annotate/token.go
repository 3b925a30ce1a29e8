package annotate

import (
	"regexp"
	"strings"
)

// wordRe matches a run of letters optionally followed by an apostrophe and
// more letters, so contractions like "don't" stay a single token.
var wordRe = regexp.MustCompile(`[A-Za-z]+(?:'[A-Za-z]+)?`)

// Kind tells a passthrough fragment apart from a word token.
type Kind uint8

const (
	Passthrough Kind = iota
	Word
)

func (k Kind) String() string {
	if k == Word {
		return "word"
	}
	return "text"
}

// WordToken is a single addressable word.
type WordToken struct {
	Surface string // exactly as it appeared in the source (e.g. "Don't")
	Key     string // Normalize(Surface), the only key used for glossary lookup
}

// Segment is one piece of annotated content. Key is empty for passthrough
// fragments.
type Segment struct {
	Kind Kind
	Text string
	Key  string
}

// Token returns the segment as a WordToken when it is a word.
func (s Segment) Token() (WordToken, bool) {
	if s.Kind != Word {
		return WordToken{}, false
	}
	return WordToken{Surface: s.Text, Key: s.Key}, true
}

// AnnotatedContent is an ordered run of segments whose texts, concatenated,
// give back the source text byte for byte.
type AnnotatedContent []Segment

// String concatenates the surface text of every segment.
func (c AnnotatedContent) String() string {
	var b strings.Builder
	for _, s := range c {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Tokens returns the word segments in order.
func (c AnnotatedContent) Tokens() []WordToken {
	var out []WordToken
	for _, s := range c {
		if tok, ok := s.Token(); ok {
			out = append(out, tok)
		}
	}
	return out
}

// Normalize derives the glossary key for a surface form. Glossary keys must
// be built with the same function or lookups silently miss.
func Normalize(surface string) string {
	return strings.ToLower(surface)
}

// Tokenize splits text into word tokens and the passthrough text around them.
// Empty input yields nil.
func Tokenize(text string) AnnotatedContent {
	if text == "" {
		return nil
	}
	matches := wordRe.FindAllStringIndex(text, -1)
	out := make(AnnotatedContent, 0, 2*len(matches)+1)

	last := 0
	for _, m := range matches {
		if m[0] > last {
			out = append(out, Segment{Kind: Passthrough, Text: text[last:m[0]]})
		}
		word := text[m[0]:m[1]]
		out = append(out, Segment{Kind: Word, Text: word, Key: Normalize(word)})
		last = m[1]
	}
	if last < len(text) {
		out = append(out, Segment{Kind: Passthrough, Text: text[last:]})
	}
	return out
}

// Words is a shortcut for Tokenize(text).Tokens().
func Words(text string) []WordToken {
	return Tokenize(text).Tokens()
}

// isSingleWord reports whether text is exactly one word token and nothing else.
func isSingleWord(text string) bool {
	loc := wordRe.FindStringIndex(text)
	return loc != nil && loc[0] == 0 && loc[1] == len(text)
}
