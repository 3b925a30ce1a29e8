package vocab

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/japaniel/wordgloss/pkg/glossary"
)

// The master file is shared with hand edits and other tools, so Save only
// owns the four glossary fields. Everything else in a record, and every
// record that is not an entry object, is written back as it was read.

var knownFields = []string{"word", "translation", "emoji", "audio"}

// readRaw returns the records of the master file at path. A missing or
// unparseable file gives no records.
func readRaw(path string) map[string]json.RawMessage {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	return raw
}

// encodeMaster merges m over the records in prev and returns the indented
// document.
func encodeMaster(prev map[string]json.RawMessage, m Master) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(prev)+len(m))
	for k, v := range prev {
		out[k] = v
	}
	for key, e := range m {
		rec, err := mergeRecord(prev[key], e)
		if errors.Is(err, errNotObject) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", key, err)
		}
		out[key] = rec
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var errNotObject = errors.New("not an object")

// mergeRecord writes e's fields into the previous record, keeping its other
// fields. Known fields are written in a fixed order ahead of the rest. An
// empty emoji or audio is only written when the record already had it.
func mergeRecord(prev json.RawMessage, e glossary.Entry) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if p := bytes.TrimSpace(prev); len(p) > 0 {
		if p[0] != '{' {
			return nil, errNotObject
		}
		if err := json.Unmarshal(p, &fields); err != nil {
			return nil, err
		}
	}

	values := map[string]string{
		"word":        e.Word,
		"translation": e.Translation,
		"emoji":       e.Emoji,
		"audio":       e.Audio,
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	n := 0
	writeField := func(name string, v json.RawMessage) error {
		if n > 0 {
			buf.WriteByte(',')
		}
		n++
		k, err := marshalString(name)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	}

	for _, name := range knownFields {
		v := values[name]
		_, had := fields[name]
		delete(fields, name)
		if v == "" && !had && name != "word" && name != "translation" {
			continue
		}
		s, err := marshalString(v)
		if err != nil {
			return nil, err
		}
		if err := writeField(name, s); err != nil {
			return nil, err
		}
	}

	rest := make([]string, 0, len(fields))
	for name := range fields {
		rest = append(rest, name)
	}
	sort.Strings(rest)
	for _, name := range rest {
		if err := writeField(name, fields[name]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalString(s string) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
