// Package lookup turns a selected word into something to display: the
// glossary entry when there is one, a fallback built from the word itself
// when there is not.
package lookup

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/japaniel/wordgloss/pkg/annotate"
	"github.com/japaniel/wordgloss/pkg/glossary"
	"github.com/japaniel/wordgloss/pkg/logger"
)

const (
	DefaultEmoji           = "✨"
	UnknownEmoji           = "❓"
	DefaultFallbackMessage = "нет перевода (добавь в словарь)"
)

// Selection is the "word selected" event.
type Selection struct {
	Key     string
	Surface string
}

// SelectionFor builds the event for an annotated token.
func SelectionFor(tok annotate.WordToken) Selection {
	return Selection{Key: tok.Key, Surface: tok.Surface}
}

// Kind says which display path an Outcome took.
type Kind uint8

const (
	ShowEntry Kind = iota + 1
	ShowFallback
)

func (k Kind) String() string {
	switch k {
	case ShowEntry:
		return "entry"
	case ShowFallback:
		return "fallback"
	}
	return "unknown"
}

// Outcome is what the presentation layer renders.
type Outcome struct {
	Kind        Kind   `json:"-"`
	Key         string `json:"key"`
	Word        string `json:"word"`
	Translation string `json:"translation"`
	Emoji       string `json:"emoji"`
	Audio       string `json:"audio,omitempty"`
}

// Found reports whether the glossary had an entry.
func (o Outcome) Found() bool { return o.Kind == ShowEntry }

// Glossary is the read side of a glossary store.
type Glossary interface {
	Lookup(key string) (glossary.Entry, bool)
}

// Player plays a pronunciation asset.
type Player interface {
	Play(ctx context.Context, ref string) error
}

// Presenter resolves selections against a glossary.
type Presenter struct {
	Glossary        Glossary
	Player          Player
	FallbackMessage string
	DefaultEmoji    string
	UnknownEmoji    string
	Logger          *zap.Logger

	playing sync.WaitGroup
}

// NewPresenter returns a Presenter with the default symbols and message.
func NewPresenter(g Glossary, p Player, log *zap.Logger) *Presenter {
	return &Presenter{
		Glossary:        g,
		Player:          p,
		FallbackMessage: DefaultFallbackMessage,
		DefaultEmoji:    DefaultEmoji,
		UnknownEmoji:    UnknownEmoji,
		Logger:          logger.Nop(log),
	}
}

// Select looks the selection up and returns the entry or the fallback; it
// always returns something displayable. Audio playback failures are logged
// and otherwise ignored.
func (p *Presenter) Select(ctx context.Context, sel Selection) Outcome {
	surface := strings.TrimSpace(sel.Surface)
	key := strings.TrimSpace(sel.Key)
	if key == "" {
		key = annotate.Normalize(surface)
	}

	if key != "" && p.Glossary != nil {
		if e, ok := p.Glossary.Lookup(key); ok {
			out := Outcome{
				Kind:        ShowEntry,
				Key:         key,
				Word:        e.Word,
				Translation: e.Translation,
				Emoji:       or(e.Emoji, p.DefaultEmoji, DefaultEmoji),
				Audio:       e.Audio,
			}
			p.play(ctx, out.Audio)
			return out
		}
	}

	if surface == "" {
		surface = key
	}
	return Outcome{
		Kind:        ShowFallback,
		Key:         key,
		Word:        surface,
		Translation: or(p.FallbackMessage, DefaultFallbackMessage),
		Emoji:       or(p.UnknownEmoji, UnknownEmoji),
	}
}

// play starts playback in the background; Select never waits for it.
func (p *Presenter) play(ctx context.Context, ref string) {
	if ref == "" || p.Player == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	p.playing.Add(1)
	go func() {
		defer p.playing.Done()
		if err := p.Player.Play(ctx, ref); err != nil {
			p.log().Warn("audio playback blocked", zap.String("audio", ref), zap.Error(err))
		}
	}()
}

// Wait blocks until playback started by Select has finished.
func (p *Presenter) Wait() {
	p.playing.Wait()
}

func (p *Presenter) log() *zap.Logger {
	return logger.Nop(p.Logger)
}

func or(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
