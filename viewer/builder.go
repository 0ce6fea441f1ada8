package viewer

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/drummonds/goflipbook/document"
)

// Bounds is the size of the container the book is displayed in, in CSS pixels
type Bounds struct {
	Width  float64
	Height float64
}

// BuilderOptions control book sizing and change tracking
type BuilderOptions struct {
	Fill         float64 // fraction of the container the book may use
	MinWidth     float64
	MaxWidth     float64
	MinHeight    float64
	MaxHeight    float64
	PollInterval time.Duration
	Logger       *slog.Logger
}

// DefaultBuilderOptions returns the sizing used by the web viewer
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		Fill:         0.9,
		MinWidth:     240,
		MaxWidth:     1000,
		MinHeight:    320,
		MaxHeight:    1400,
		PollInterval: 250 * time.Millisecond,
	}
}

// Builder turns a rendered set into a live book. It holds at most one live
// instance and destroys it before creating the next.
type Builder struct {
	factory WidgetFactory
	opts    BuilderOptions
	logger  *slog.Logger

	mu   sync.Mutex
	live *Book
}

// NewBuilder creates a builder around a widget factory
func NewBuilder(factory WidgetFactory, opts BuilderOptions) *Builder {
	if opts.Fill <= 0 || opts.Fill > 1 {
		opts.Fill = DefaultBuilderOptions().Fill
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{factory: factory, opts: opts, logger: logger}
}

// Build destroys any live book and creates a new one for set. onPage is called
// with the 1-based page whenever the widget reports a page change.
func (b *Builder) Build(set *document.RenderedSet, bounds Bounds, startPage int, onPage func(page int)) (*Book, error) {
	b.Teardown()

	if set.Len() == 0 {
		return nil, errors.New("nothing to display: the rendered set is empty")
	}
	if b.factory == nil {
		return nil, ErrWidgetUnavailable
	}

	if startPage < 1 {
		startPage = 1
	}
	if startPage > set.Len() {
		startPage = set.Len()
	}

	width, height := Dimensions(bounds, set.Pages[0], b.opts)
	spec := BookSpec{
		Pages:     Pages(set),
		Width:     width,
		Height:    height,
		StartPage: startPage,
	}

	widget, err := b.factory.NewWidget(spec)
	if err != nil {
		if errors.Is(err, ErrWidgetUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("unable to create book widget: %w", err)
	}

	book := &Book{widget: widget, spec: spec, logger: b.logger}
	notify := func(index int) {
		if onPage != nil {
			onPage(index + 1)
		}
	}

	unsubscribe, err := widget.Subscribe(notify)
	if err != nil {
		b.logger.Warn("Page change notifications unavailable, polling instead", "error", err)
		poller := NewPollingWidget(widget, b.opts.PollInterval)
		book.widget = poller
		unsubscribe, _ = poller.Subscribe(notify)
	}
	book.unsubscribe = unsubscribe

	b.mu.Lock()
	b.live = book
	b.mu.Unlock()

	b.logger.Info("Book built", "pages", len(spec.Pages), "width", width, "height", height, "startPage", startPage)
	return book, nil
}

// Teardown destroys the live book, if any
func (b *Builder) Teardown() {
	b.mu.Lock()
	live := b.live
	b.live = nil
	b.mu.Unlock()

	live.Destroy()
}

// Live returns the current live book or nil
func (b *Builder) Live() *Book {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live
}

// Pages marks the first and last page as hard covers
func Pages(set *document.RenderedSet) []BookPage {
	pages := make([]BookPage, set.Len())
	last := len(pages) - 1
	for i, img := range set.Pages {
		pages[i] = BookPage{Image: img, Hard: i == 0 || i == last}
	}
	return pages
}

// Dimensions sizes a single page of the book: a Fill fraction of the
// container, clamped to the absolute bounds, then fitted to the first page's
// aspect ratio. The minimums also hold for the fitted size and take
// precedence over the maximums; a book that outgrows a tiny container
// overflows the stage.
func Dimensions(bounds Bounds, first document.PageImage, opts BuilderOptions) (int, int) {
	fill := opts.Fill
	if fill <= 0 {
		fill = 0.9
	}
	availW := clampRange(bounds.Width*fill, opts.MinWidth, opts.MaxWidth)
	availH := clampRange(bounds.Height*fill, opts.MinHeight, opts.MaxHeight)

	aspect := 1 / math.Sqrt2 // A-series portrait when the page reports no size
	if first.Width > 0 && first.Height > 0 {
		aspect = float64(first.Width) / float64(first.Height)
	}

	width, height := availW, availW/aspect
	if height > availH {
		width, height = availH*aspect, availH
	}
	if width < opts.MinWidth {
		width, height = opts.MinWidth, opts.MinWidth/aspect
	}
	if height < opts.MinHeight {
		width, height = opts.MinHeight*aspect, opts.MinHeight
	}
	return int(math.Round(width)), int(math.Round(height))
}

func clampRange(v, lo, hi float64) float64 {
	if hi > 0 && v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

// Book is the single live widget instance bound to a rendered set
type Book struct {
	widget      Widget
	spec        BookSpec
	unsubscribe func()
	logger      *slog.Logger

	destroyOnce sync.Once
}

// Spec returns what the book was built from
func (b *Book) Spec() BookSpec {
	return b.spec
}

// PageCount returns the number of pages in the book
func (b *Book) PageCount() int {
	return len(b.spec.Pages)
}

// Current returns the 1-based page the widget reports
func (b *Book) Current() int {
	return b.widget.CurrentIndex() + 1
}

// Flip turns one page. Widget failures are logged and otherwise ignored.
func (b *Book) Flip(d Direction) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("Page flip panicked", "direction", d, "panic", r)
		}
	}()

	var err error
	if d == Prev {
		err = b.widget.FlipPrev()
	} else {
		err = b.widget.FlipNext()
	}
	if err != nil {
		b.logger.Debug("Page flip ignored", "direction", d, "error", err)
	}
}

// Destroy tears the widget down once. Errors and panics are logged and
// swallowed so cleanup never blocks a return to idle.
func (b *Book) Destroy() {
	if b == nil {
		return
	}
	b.destroyOnce.Do(func() {
		if b.unsubscribe != nil {
			b.guard("unsubscribe", func() error {
				b.unsubscribe()
				return nil
			})
		}
		b.guard("destroy", b.widget.Destroy)
	})
}

// guard runs one teardown step so a failure in it cannot skip the next
func (b *Book) guard(step string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("Book teardown panicked", "step", step, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		b.logger.Warn("Book teardown failed", "step", step, "error", err)
	}
}
