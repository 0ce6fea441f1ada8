package viewer

import (
	"sync"
	"time"

	"github.com/drummonds/goflipbook/document"
)

// Direction of a page turn
type Direction int

const (
	Prev Direction = iota
	Next
)

func (d Direction) String() string {
	if d == Prev {
		return "prev"
	}
	return "next"
}

// BookPage is one page handed to the display widget
type BookPage struct {
	Image document.PageImage
	Hard  bool // covers turn as stiff boards
}

// BookSpec is everything a widget needs to display a book
type BookSpec struct {
	Pages     []BookPage
	Width     int
	Height    int
	StartPage int // 1-based
}

// Navigator is the part of a widget that turns pages
type Navigator interface {
	FlipPrev() error
	FlipNext() error
	// CurrentIndex is the 0-based page the widget shows
	CurrentIndex() int
}

// BasicWidget is a display instance without change notifications
type BasicWidget interface {
	Navigator
	Destroy() error
}

// Widget is the full capability surface the builder requires
type Widget interface {
	BasicWidget
	// Subscribe registers fn for page changes reported as 0-based indexes
	Subscribe(fn func(index int)) (unsubscribe func(), err error)
}

// WidgetFactory creates display instances. It returns ErrWidgetUnavailable
// when the display capability is missing.
type WidgetFactory interface {
	NewWidget(spec BookSpec) (Widget, error)
}

// PollingWidget provides change notifications for widgets that cannot push
// them, by sampling CurrentIndex on a fixed interval.
type PollingWidget struct {
	BasicWidget
	interval time.Duration

	mu    sync.Mutex
	stops []chan struct{}
}

// NewPollingWidget wraps w; interval should stay under a second
func NewPollingWidget(w BasicWidget, interval time.Duration) *PollingWidget {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &PollingWidget{BasicWidget: w, interval: interval}
}

// Subscribe starts a poller that calls fn whenever the index changes
func (p *PollingWidget) Subscribe(fn func(index int)) (func(), error) {
	stop := make(chan struct{})
	p.mu.Lock()
	p.stops = append(p.stops, stop)
	p.mu.Unlock()

	last := p.CurrentIndex()
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if idx := p.CurrentIndex(); idx != last {
					last = idx
					fn(idx)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { p.stopPoller(stop) })
	}, nil
}

func (p *PollingWidget) stopPoller(stop chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.stops {
		if s == stop {
			close(s)
			p.stops = append(p.stops[:i], p.stops[i+1:]...)
			return
		}
	}
}

// Destroy stops every poller and destroys the wrapped widget
func (p *PollingWidget) Destroy() error {
	p.mu.Lock()
	for _, s := range p.stops {
		close(s)
	}
	p.stops = nil
	p.mu.Unlock()
	return p.BasicWidget.Destroy()
}
