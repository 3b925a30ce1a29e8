// Package session owns the glossary and the annotated content a reader is
// looking at, and coordinates loading both. Loads run asynchronously; when
// loads of the same kind overlap, the most recently issued one that has
// completed wins and stale results are dropped.
package session

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/japaniel/wordgloss/pkg/annotate"
	"github.com/japaniel/wordgloss/pkg/content"
	"github.com/japaniel/wordgloss/pkg/glossary"
	"github.com/japaniel/wordgloss/pkg/logger"
	"github.com/japaniel/wordgloss/pkg/lookup"
)

// ErrorMarkup replaces content that failed to load.
const ErrorMarkup = `<p class="error">Error loading text.</p>`

// Pool abstracts the worker pool so tests can inject failing implementations.
type Pool interface {
	Start(ctx context.Context)
	SubmitCtx(ctx context.Context, job Job) error
	Close()
}

// View is the content currently on display.
type View struct {
	Source     string
	Generation uint64
	Doc        *annotate.Document
	// Err is set when the load failed and Doc holds ErrorMarkup.
	Err error
}

// Options configure a Session.
type Options struct {
	Workers   int
	Logger    *zap.Logger
	Annotator *annotate.Annotator
	Player    lookup.Player

	FallbackMessage string
	DefaultEmoji    string
	UnknownEmoji    string

	// OnContent is called each time new content is applied.
	OnContent func(View)
	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) Pool
}

// Session holds one glossary store and one content view.
type Session struct {
	log       *zap.Logger
	annotator *annotate.Annotator
	store     *glossary.Store
	presenter *lookup.Presenter
	pool      Pool
	onContent func(View)

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.Mutex
	glossaryIssued  uint64
	glossaryApplied uint64
	contentIssued   uint64
	contentApplied  uint64
	contentCancel   context.CancelFunc
	view            View
}

// New creates a Session and starts its workers. Call Close when done.
func New(opts Options) *Session {
	log := logger.Nop(opts.Logger)
	a := opts.Annotator
	if a == nil {
		a = annotate.New()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 2
	}

	var pool Pool
	if opts.PoolFactory != nil {
		pool = opts.PoolFactory(workers, workers*2)
	} else {
		pool = NewWorkerPool(workers, workers*2)
	}

	store := glossary.NewStore()
	p := lookup.NewPresenter(store, opts.Player, log)
	if opts.FallbackMessage != "" {
		p.FallbackMessage = opts.FallbackMessage
	}
	if opts.DefaultEmoji != "" {
		p.DefaultEmoji = opts.DefaultEmoji
	}
	if opts.UnknownEmoji != "" {
		p.UnknownEmoji = opts.UnknownEmoji
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		log:       log,
		annotator: a,
		store:     store,
		presenter: p,
		pool:      pool,
		onContent: opts.OnContent,
		cancel:    cancel,
		view:      View{Doc: &annotate.Document{}},
	}
	pool.Start(ctx)
	return s
}

// Glossary returns the session's store.
func (s *Session) Glossary() *glossary.Store { return s.store }

// Content returns the content currently on display.
func (s *Session) Content() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Select resolves a selected word against the current glossary.
func (s *Session) Select(ctx context.Context, sel lookup.Selection) lookup.Outcome {
	return s.presenter.Select(ctx, sel)
}

// LoadGlossary starts loading src and returns the load's generation. A
// failed load leaves an empty glossary, unless a newer load already applied.
func (s *Session) LoadGlossary(ctx context.Context, src glossary.Source) (uint64, error) {
	s.mu.Lock()
	s.glossaryIssued++
	gen := s.glossaryIssued
	s.mu.Unlock()

	return gen, s.submit(ctx, func(ctx context.Context) error {
		staged := glossary.NewStore()
		n, err := staged.LoadFrom(ctx, src)

		s.mu.Lock()
		defer s.mu.Unlock()
		if gen <= s.glossaryApplied {
			s.log.Debug("discarding stale glossary load", zap.Uint64("generation", gen), zap.String("source", src.Name()))
			return nil
		}
		s.glossaryApplied = gen
		s.store.Load(staged.Snapshot())

		if err != nil {
			s.log.Warn("glossary unavailable, continuing with empty glossary", zap.String("source", src.Name()), zap.Error(err))
			return err
		}
		s.log.Info("glossary loaded", zap.String("source", src.Name()), zap.Int("entries", n))
		return nil
	})
}

// LoadContent starts loading and annotating src and returns the load's
// generation. Issuing a load cancels the previous content load.
func (s *Session) LoadContent(ctx context.Context, src content.Source) (uint64, error) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.contentIssued++
	gen := s.contentIssued
	if s.contentCancel != nil {
		s.contentCancel()
	}
	s.contentCancel = cancel
	s.mu.Unlock()

	err := s.submit(ctx, func(context.Context) error {
		defer cancel()
		view, superseded := s.annotateSource(ctx, src, gen)

		s.mu.Lock()
		if superseded || gen <= s.contentApplied {
			s.mu.Unlock()
			s.log.Debug("discarding stale content load", zap.Uint64("generation", gen), zap.String("source", src.Name()))
			return nil
		}
		s.contentApplied = gen
		s.view = view
		s.mu.Unlock()

		if s.onContent != nil {
			s.onContent(view)
		}
		return view.Err
	})
	if err != nil {
		cancel()
	}
	return gen, err
}

// annotateSource loads and annotates src. A load that failed because a
// newer content load cancelled it reports superseded instead of an error view.
func (s *Session) annotateSource(ctx context.Context, src content.Source, gen uint64) (View, bool) {
	view := View{Source: src.Name(), Generation: gen}

	raw, err := src.Load(ctx)
	if err == nil {
		view.Doc, err = s.annotator.Annotate(bytes.NewReader(raw))
	}
	if err != nil {
		if ctx.Err() != nil && s.isSuperseded(gen) {
			return view, true
		}
		view.Err = fmt.Errorf("load content %s: %w", src.Name(), err)
		view.Doc, _ = s.annotator.Annotate(strings.NewReader(ErrorMarkup))
		s.log.Warn("content unavailable", zap.String("source", src.Name()), zap.Error(err))
		return view, false
	}
	s.log.Info("content annotated",
		zap.String("source", src.Name()),
		zap.Int("regions", len(view.Doc.Regions)),
		zap.Int("tokens", len(view.Doc.Tokens())))
	return view, false
}

func (s *Session) isSuperseded(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen < s.contentIssued
}

func (s *Session) submit(ctx context.Context, job Job) error {
	s.wg.Add(1)
	err := s.pool.SubmitCtx(ctx, func(ctx context.Context) error {
		defer s.wg.Done()
		return job(ctx)
	})
	if err != nil {
		s.wg.Done()
		return fmt.Errorf("submit load: %w", err)
	}
	return nil
}

// Wait blocks until every load issued so far, and any audio started by
// Select, has finished.
func (s *Session) Wait() {
	s.wg.Wait()
	s.presenter.Wait()
}

// Close waits for outstanding loads and playback and stops the workers.
func (s *Session) Close() {
	s.pool.Close()
	s.cancel()
	s.presenter.Wait()
}
