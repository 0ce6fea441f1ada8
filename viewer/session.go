// Package viewer implements the flipbook viewer: the session state machine,
// the book builder and the input controller. It has no browser or CGo
// dependencies; the display widget and the renderer are supplied through
// interfaces.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/drummonds/goflipbook/document"
)

// State of the viewer session
type State int

const (
	StateIdle State = iota
	StateLoading
	StateViewing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateViewing:
		return "viewing"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Renderer turns a document into page images
type Renderer interface {
	Render(ctx context.Context, file document.File, progress document.ProgressFunc) (*document.RenderedSet, error)
}

// Fetcher downloads the demo document
type Fetcher interface {
	Fetch(ctx context.Context) (document.File, error)
}

// Stage is the visual container the book lives in
type Stage interface {
	Bounds() Bounds
	// ApplyZoom scales the book container uniformly around its center
	ApplyZoom(zoom float64)
}

// NoticeLevel classifies user notifications
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a user visible message
type Notice struct {
	Level   NoticeLevel
	Message string
	Err     error
}

// Notifier shows notices to the user
type Notifier interface {
	Notify(Notice)
}

// Snapshot is a consistent view of the session for display
type Snapshot struct {
	State    State
	Page     int
	Total    int
	Zoom     float64
	Progress document.Progress
}

// Counter renders the page indicator, "0/0" when nothing is open
func (s Snapshot) Counter() string {
	return fmt.Sprintf("%d/%d", s.Page, s.Total)
}

// Observer is called after every state, page, zoom or progress change
type Observer func(Snapshot)

// Options for a Session
type Options struct {
	MinZoom  float64
	MaxZoom  float64
	ZoomStep float64
	// Settle is the pause between the final progress report and showing the book
	Settle time.Duration
	Logger *slog.Logger
}

// DefaultOptions returns the viewer defaults
func DefaultOptions() Options {
	return Options{
		MinZoom:  0.5,
		MaxZoom:  2.5,
		ZoomStep: 0.1,
		Settle:   300 * time.Millisecond,
	}
}

// Session is the single viewer session of the process. All mutation happens
// under mu; rendering and widget calls run outside it, and gen invalidates
// work started before a Close or a replacing open.
type Session struct {
	renderer Renderer
	builder  *Builder
	stage    Stage
	notifier Notifier
	opts     Options
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	set       *document.RenderedSet
	book      *Book
	page      int
	zoom      float64
	progress  document.Progress
	gen       uint64
	cancel    context.CancelFunc
	observers []Observer
}

// NewSession creates the session in Idle. stage and notifier may be nil.
func NewSession(renderer Renderer, builder *Builder, stage Stage, notifier Notifier, opts Options) *Session {
	def := DefaultOptions()
	if opts.MinZoom <= 0 {
		opts.MinZoom = def.MinZoom
	}
	if opts.MaxZoom < opts.MinZoom {
		opts.MaxZoom = math.Max(def.MaxZoom, opts.MinZoom)
	}
	if opts.ZoomStep <= 0 {
		opts.ZoomStep = def.ZoomStep
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		renderer: renderer,
		builder:  builder,
		stage:    stage,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
		state:    StateIdle,
		zoom:     ClampZoom(1, opts.MinZoom, opts.MaxZoom),
	}
}

// baseZoom is the zoom a fresh book starts at
func (s *Session) baseZoom() float64 {
	return ClampZoom(1, s.opts.MinZoom, s.opts.MaxZoom)
}

// Subscribe registers an observer
func (s *Session) Subscribe(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Snapshot returns the current session view
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:    s.state,
		Page:     s.page,
		Total:    s.set.Len(),
		Zoom:     s.zoom,
		Progress: s.progress,
	}
}

// emit must be called without holding mu
func (s *Session) emit() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		o(snap)
	}
}

func (s *Session) notify(level NoticeLevel, err error) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(Notice{Level: level, Message: Message(err), Err: err})
}

// OpenFile renders file and shows it as a book, replacing any open book.
// Unsupported input is rejected before any state change.
func (s *Session) OpenFile(ctx context.Context, file document.File) error {
	logger := s.logger.With("file", file.Name)

	if !document.IsSupported(file.Name, file.MediaType) {
		logger.Info("Rejected unsupported file", "mediaType", file.MediaType)
		s.notify(NoticeWarning, document.ErrInvalidInputType)
		return document.ErrInvalidInputType
	}

	s.mu.Lock()
	if s.state == StateLoading {
		s.mu.Unlock()
		return ErrBusy
	}
	previous := s.book
	s.book = nil
	s.set = nil
	s.gen++
	gen := s.gen
	renderCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateLoading
	s.page = 0
	s.zoom = s.baseZoom()
	s.progress = document.Progress{Status: "Reading document"}
	s.mu.Unlock()
	defer cancel()

	previous.Destroy()
	s.applyZoom(1)
	s.emit()
	logger.Info("Opening document", "bytes", len(file.Data))

	set, err := s.renderer.Render(renderCtx, file, func(p document.Progress) {
		s.mu.Lock()
		current := s.gen == gen
		if current {
			s.progress = p
		}
		s.mu.Unlock()
		if current {
			s.emit()
		}
	})
	if err != nil {
		return s.fail(gen, err)
	}

	if s.opts.Settle > 0 {
		timer := time.NewTimer(s.opts.Settle)
		select {
		case <-renderCtx.Done():
			timer.Stop()
			return s.fail(gen, renderCtx.Err())
		case <-timer.C:
		}
	}

	return s.show(gen, set, 1)
}

// OpenDemo downloads the demo document and opens it. A failed download is
// reported and leaves the session untouched.
func (s *Session) OpenDemo(ctx context.Context, fetcher Fetcher) error {
	if s.State() == StateLoading {
		return ErrBusy
	}

	file, err := fetcher.Fetch(ctx)
	if err != nil {
		var fetchErr *NetworkFetchError
		if !errors.As(err, &fetchErr) {
			err = &NetworkFetchError{URL: "demo", Err: err}
		}
		s.logger.Warn("Demo download failed", "error", err)
		s.notify(NoticeError, err)
		return err
	}
	return s.OpenFile(ctx, file)
}

// show builds the book for set and enters Viewing, unless gen is stale
func (s *Session) show(gen uint64, set *document.RenderedSet, startPage int) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return context.Canceled
	}
	s.mu.Unlock()

	book, err := s.builder.Build(set, s.bounds(), startPage, s.pageChanged(gen))
	if err != nil {
		return s.fail(gen, err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		book.Destroy()
		return context.Canceled
	}
	s.set = set
	s.book = book
	s.state = StateViewing
	s.page = clampPage(book.Current(), set.Len())
	zoom := s.zoom
	s.mu.Unlock()

	s.applyZoom(zoom)
	s.emit()
	return nil
}

// fail reports err and returns the session to Idle through Error. A stale
// gen means the session already moved on, so nothing is reported.
func (s *Session) fail(gen uint64, err error) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return err
	}
	s.state = StateError
	s.mu.Unlock()

	s.logger.Error("Open failed", "error", err)
	s.emit()
	s.notify(NoticeError, err)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return err
	}
	book := s.book
	s.resetLocked()
	s.mu.Unlock()

	book.Destroy()
	s.applyZoom(1)
	s.emit()
	return err
}

// resetLocked returns to Idle; the caller destroys the old book
func (s *Session) resetLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.book = nil
	s.set = nil
	s.state = StateIdle
	s.page = 0
	s.zoom = s.baseZoom()
	s.progress = document.Progress{}
}

// Close tears down the book and resets the session. Valid in every state;
// an in-flight render is cancelled and its result discarded.
func (s *Session) Close() {
	s.mu.Lock()
	book := s.book
	s.resetLocked()
	s.mu.Unlock()

	if s.builder != nil {
		s.builder.Teardown()
	}
	book.Destroy()
	s.applyZoom(1)
	s.logger.Info("Viewer closed")
	s.emit()
}

// Navigate turns one page. Turning past either end is a no-op.
func (s *Session) Navigate(d Direction) error {
	s.mu.Lock()
	if s.state != StateViewing {
		s.mu.Unlock()
		return ErrNotViewing
	}
	if (d == Prev && s.page <= 1) || (d == Next && s.page >= s.set.Len()) {
		s.mu.Unlock()
		return nil
	}
	book := s.book
	gen := s.gen
	s.mu.Unlock()

	book.Flip(d)

	s.mu.Lock()
	changed := false
	if s.gen == gen && s.book == book {
		if page := clampPage(book.Current(), s.set.Len()); page != s.page {
			s.page = page
			changed = true
		}
	}
	s.mu.Unlock()
	if changed {
		s.emit()
	}
	return nil
}

// pageChanged returns the widget callback for the book built in gen
func (s *Session) pageChanged(gen uint64) func(page int) {
	return func(page int) {
		s.mu.Lock()
		changed := false
		if s.gen == gen && s.state == StateViewing {
			if page = clampPage(page, s.set.Len()); page != s.page {
				s.page = page
				changed = true
			}
		}
		s.mu.Unlock()
		if changed {
			s.emit()
		}
	}
}

// SetZoom changes zoom by delta, clamped to the configured bounds and
// rounded to two decimals, and returns the new zoom.
func (s *Session) SetZoom(delta float64) (float64, error) {
	s.mu.Lock()
	if s.state != StateViewing {
		zoom := s.zoom
		s.mu.Unlock()
		return zoom, ErrNotViewing
	}
	s.zoom = ClampZoom(s.zoom+delta, s.opts.MinZoom, s.opts.MaxZoom)
	zoom := s.zoom
	s.mu.Unlock()

	s.applyZoom(zoom)
	s.emit()
	return zoom, nil
}

// ZoomIn increases zoom by one step
func (s *Session) ZoomIn() (float64, error) {
	return s.SetZoom(s.opts.ZoomStep)
}

// ZoomOut decreases zoom by one step
func (s *Session) ZoomOut() (float64, error) {
	return s.SetZoom(-s.opts.ZoomStep)
}

// Reflow rebuilds the book at the stage's current size from the images
// already rendered. The previous widget is destroyed first.
func (s *Session) Reflow() error {
	s.mu.Lock()
	if s.state != StateViewing {
		s.mu.Unlock()
		return ErrNotViewing
	}
	previous := s.book
	set := s.set
	page := s.page
	s.book = nil
	s.state = StateLoading
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	previous.Destroy()
	s.emit()
	s.logger.Debug("Reflowing book", "pages", set.Len(), "page", page)

	return s.show(gen, set, page)
}

func (s *Session) bounds() Bounds {
	if s.stage == nil {
		return Bounds{}
	}
	return s.stage.Bounds()
}

func (s *Session) applyZoom(zoom float64) {
	if s.stage != nil {
		s.stage.ApplyZoom(zoom)
	}
}

// ClampZoom rounds zoom to two decimals and bounds it to [min, max]. The
// bound wins over the rounding, so the result never leaves the range.
func ClampZoom(zoom, min, max float64) float64 {
	zoom = math.Round(zoom*100) / 100
	return math.Max(min, math.Min(max, zoom))
}

func clampPage(page, total int) int {
	if total < 1 {
		return 0
	}
	if page < 1 {
		return 1
	}
	if page > total {
		return total
	}
	return page
}
