package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/drummonds/goflipbook/document"
)

type fakeWidget struct {
	mu          sync.Mutex
	idx         int
	total       int
	destroyed   bool
	destroyErr  error
	subscribers []func(int)
	spec        BookSpec
}

func (w *fakeWidget) FlipPrev() error { return w.move(-1) }
func (w *fakeWidget) FlipNext() error { return w.move(1) }

func (w *fakeWidget) move(delta int) error {
	w.mu.Lock()
	next := w.idx + delta
	if next < 0 || next >= w.total {
		w.mu.Unlock()
		return errors.New("no page there")
	}
	w.idx = next
	subs := append([]func(int){}, w.subscribers...)
	w.mu.Unlock()
	for _, fn := range subs {
		fn(next)
	}
	return nil
}

// swipe moves the widget without notifying, as a gesture the widget cannot report
func (w *fakeWidget) swipe(idx int) {
	w.mu.Lock()
	w.idx = idx
	w.mu.Unlock()
}

func (w *fakeWidget) CurrentIndex() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.idx
}

func (w *fakeWidget) Destroy() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.destroyed = true
	w.subscribers = nil
	return w.destroyErr
}

func (w *fakeWidget) isDestroyed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyed
}

func (w *fakeWidget) Subscribe(fn func(int)) (func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribers = append(w.subscribers, fn)
	return func() {
		w.mu.Lock()
		w.subscribers = nil
		w.mu.Unlock()
	}, nil
}

// mutedWidget has no change notifications
type mutedWidget struct{ *fakeWidget }

func (w mutedWidget) Subscribe(fn func(int)) (func(), error) {
	return nil, errors.New("on is not a function")
}

type fakeFactory struct {
	mu         sync.Mutex
	widgets    []*fakeWidget
	muted      bool
	destroyErr error
	err        error
}

func (f *fakeFactory) NewWidget(spec BookSpec) (Widget, error) {
	if f.err != nil {
		return nil, f.err
	}
	w := &fakeWidget{idx: spec.StartPage - 1, total: len(spec.Pages), spec: spec, destroyErr: f.destroyErr}
	f.mu.Lock()
	f.widgets = append(f.widgets, w)
	f.mu.Unlock()
	if f.muted {
		return mutedWidget{w}, nil
	}
	return w, nil
}

func (f *fakeFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.widgets)
}

func (f *fakeFactory) live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.widgets {
		if !w.isDestroyed() {
			n++
		}
	}
	return n
}

func (f *fakeFactory) last() *fakeWidget {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.widgets) == 0 {
		return nil
	}
	return f.widgets[len(f.widgets)-1]
}

type fakeRenderer struct {
	mu    sync.Mutex
	pages int
	err   error
	block bool          // wait for cancellation
	gate  chan struct{} // when set, wait for it to close
	calls int
}

func (r *fakeRenderer) Render(ctx context.Context, file document.File, progress document.ProgressFunc) (*document.RenderedSet, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	set := &document.RenderedSet{}
	for i := 0; i < r.pages; i++ {
		set.Pages = append(set.Pages, document.PageImage{
			Index: i + 1, MIME: document.MIMEJPEG, Width: 600, Height: 800,
			Data: []byte(fmt.Sprintf("page-%d", i+1)),
		})
		if progress != nil {
			progress(document.NewProgress(i+1, r.pages))
		}
	}
	return set, nil
}

func (r *fakeRenderer) renderCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeStage struct {
	mu    sync.Mutex
	zooms []float64
}

func (s *fakeStage) Bounds() Bounds { return Bounds{Width: 1000, Height: 800} }

func (s *fakeStage) ApplyZoom(z float64) {
	s.mu.Lock()
	s.zooms = append(s.zooms, z)
	s.mu.Unlock()
}

func (s *fakeStage) lastZoom() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.zooms) == 0 {
		return 0
	}
	return s.zooms[len(s.zooms)-1]
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *fakeNotifier) Notify(notice Notice) {
	n.mu.Lock()
	n.notices = append(n.notices, notice)
	n.mu.Unlock()
}

func (n *fakeNotifier) all() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}

type fakeFetcher struct {
	file document.File
	err  error
}

func (f fakeFetcher) Fetch(ctx context.Context) (document.File, error) {
	return f.file, f.err
}

// stateRecorder keeps the distinct state transitions seen by an observer
type stateRecorder struct {
	mu     sync.Mutex
	states []State
	last   Snapshot
}

func (r *stateRecorder) observe(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.states); n == 0 || r.states[n-1] != s.State {
		r.states = append(r.states, s.State)
	}
	r.last = s
}

func (r *stateRecorder) seen() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

type testRig struct {
	session  *Session
	factory  *fakeFactory
	renderer *fakeRenderer
	stage    *fakeStage
	notifier *fakeNotifier
	states   *stateRecorder
}

func newRig(pages int) *testRig {
	rig := &testRig{
		factory:  &fakeFactory{},
		renderer: &fakeRenderer{pages: pages},
		stage:    &fakeStage{},
		notifier: &fakeNotifier{},
		states:   &stateRecorder{},
	}
	bopts := DefaultBuilderOptions()
	bopts.PollInterval = 10 * time.Millisecond
	builder := NewBuilder(rig.factory, bopts)
	rig.session = NewSession(rig.renderer, builder, rig.stage, rig.notifier, Options{})
	rig.session.Subscribe(rig.states.observe)
	return rig
}

func pdfFile(name string) document.File {
	return document.File{Name: name, MediaType: document.MIMEPDF, Data: []byte("%PDF-1.4")}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
