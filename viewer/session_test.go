package viewer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/drummonds/goflipbook/document"
)

func TestSessionThreePageWalkthrough(t *testing.T) {
	rig := newRig(3)
	s := rig.session

	if got := s.Snapshot().Counter(); got != "0/0" {
		t.Fatalf("idle counter = %q, want 0/0", got)
	}

	if err := s.OpenFile(context.Background(), pdfFile("three.pdf")); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if got := s.Snapshot().Counter(); got != "1/3" {
		t.Errorf("counter after open = %q, want 1/3", got)
	}

	for i := 0; i < 2; i++ {
		if err := s.Navigate(Next); err != nil {
			t.Fatalf("Navigate(Next): %v", err)
		}
	}
	if got := s.Snapshot().Counter(); got != "3/3" {
		t.Errorf("counter after two flips = %q, want 3/3", got)
	}

	// past the end is a no-op
	if err := s.Navigate(Next); err != nil {
		t.Fatalf("Navigate(Next) at end: %v", err)
	}
	if got := s.Snapshot().Counter(); got != "3/3" {
		t.Errorf("counter after flip past end = %q, want 3/3", got)
	}

	s.Close()
	snap := s.Snapshot()
	if snap.Counter() != "0/0" || snap.State != StateIdle {
		t.Errorf("after close: state %s counter %s, want idle 0/0", snap.State, snap.Counter())
	}

	want := []State{StateLoading, StateViewing, StateIdle}
	if diff := cmp.Diff(want, rig.states.seen()); diff != "" {
		t.Errorf("state transitions mismatch (-want +got):\n%s", diff)
	}
	if rig.factory.live() != 0 {
		t.Errorf("%d widgets still live after close", rig.factory.live())
	}
}

func TestSessionNavigateBeforeStart(t *testing.T) {
	rig := newRig(2)
	s := rig.session
	if err := s.Navigate(Prev); !errors.Is(err, ErrNotViewing) {
		t.Fatalf("Navigate while idle = %v, want ErrNotViewing", err)
	}
	if err := s.OpenFile(context.Background(), pdfFile("two.pdf")); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if err := s.Navigate(Prev); err != nil {
		t.Fatalf("Navigate(Prev) on first page: %v", err)
	}
	if got := s.Snapshot().Page; got != 1 {
		t.Errorf("page = %d, want 1", got)
	}
}

func TestSessionProgressReported(t *testing.T) {
	rig := newRig(4)
	var percents []int
	rig.session.Subscribe(func(s Snapshot) {
		if s.State == StateLoading && s.Progress.Total > 0 {
			percents = append(percents, s.Progress.Percent)
		}
	})
	if err := rig.session.OpenFile(context.Background(), pdfFile("four.pdf")); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if diff := cmp.Diff([]int{25, 50, 75, 100}, percents); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionCorruptDocument(t *testing.T) {
	rig := newRig(0)
	rig.renderer.err = &document.DecodeError{Err: errors.New("no xref")}

	err := rig.session.OpenFile(context.Background(), pdfFile("broken.pdf"))
	var decodeErr *document.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("OpenFile error = %v, want DecodeError", err)
	}

	want := []State{StateLoading, StateError, StateIdle}
	if diff := cmp.Diff(want, rig.states.seen()); diff != "" {
		t.Errorf("state transitions mismatch (-want +got):\n%s", diff)
	}
	if rig.factory.created() != 0 {
		t.Errorf("created %d widgets for a corrupt document", rig.factory.created())
	}
	notices := rig.notifier.all()
	if len(notices) != 1 || notices[0].Level != NoticeError {
		t.Fatalf("notices = %+v, want one error", notices)
	}
	if !strings.Contains(notices[0].Message, "could not be read") {
		t.Errorf("notice message = %q", notices[0].Message)
	}
}

func TestSessionPageFailureLeavesNoPartialBook(t *testing.T) {
	rig := newRig(0)
	rig.renderer.err = &document.PageRenderError{Page: 2, Err: errors.New("bad stream")}

	if err := rig.session.OpenFile(context.Background(), pdfFile("five.pdf")); err == nil {
		t.Fatal("expected an error")
	}
	if got := rig.session.Snapshot(); got.State != StateIdle || got.Total != 0 {
		t.Errorf("snapshot = %+v, want idle with no pages", got)
	}
	if rig.factory.created() != 0 {
		t.Error("a widget was created for a failed render")
	}
}

func TestSessionRejectsUnsupportedFile(t *testing.T) {
	rig := newRig(3)
	file := document.File{Name: "notes.txt", MediaType: "text/plain", Data: []byte("hello")}

	err := rig.session.OpenFile(context.Background(), file)
	if !errors.Is(err, document.ErrInvalidInputType) {
		t.Fatalf("OpenFile error = %v, want ErrInvalidInputType", err)
	}
	if rig.renderer.renderCalls() != 0 {
		t.Error("renderer was called for an unsupported file")
	}
	if states := rig.states.seen(); len(states) != 0 {
		t.Errorf("state changed to %v", states)
	}
	if notices := rig.notifier.all(); len(notices) != 1 || notices[0].Level != NoticeWarning {
		t.Errorf("notices = %+v, want one warning", notices)
	}
}

func TestSessionZoomClamped(t *testing.T) {
	rig := newRig(2)
	s := rig.session

	if _, err := s.ZoomIn(); !errors.Is(err, ErrNotViewing) {
		t.Fatalf("ZoomIn while idle = %v, want ErrNotViewing", err)
	}
	if err := s.OpenFile(context.Background(), pdfFile("two.pdf")); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	zoom, err := s.ZoomIn()
	if err != nil || zoom != 1.1 {
		t.Fatalf("ZoomIn = %v, %v; want 1.1", zoom, err)
	}
	for i := 0; i < 30; i++ {
		zoom, _ = s.ZoomIn()
	}
	if zoom != 2.5 {
		t.Errorf("zoom after many steps in = %v, want 2.5", zoom)
	}
	for i := 0; i < 40; i++ {
		zoom, _ = s.ZoomOut()
	}
	if zoom != 0.5 {
		t.Errorf("zoom after many steps out = %v, want 0.5", zoom)
	}
	if got := rig.stage.lastZoom(); got != 0.5 {
		t.Errorf("stage zoom = %v, want 0.5", got)
	}

	s.Close()
	if got := s.Snapshot().Zoom; got != 1 {
		t.Errorf("zoom after close = %v, want 1", got)
	}
}

func TestClampZoom(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1.0, 1.0},
		{0.1, 0.5},
		{3.7, 2.5},
		{1.2000000000000002, 1.2},
		{0.7999999999999999, 0.8},
	}
	for _, tt := range tests {
		if got := ClampZoom(tt.in, 0.5, 2.5); got != tt.want {
			t.Errorf("ClampZoom(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	t.Run("Bounds finer than the rounding", func(t *testing.T) {
		bounded := []struct {
			in, min, max, want float64
		}{
			{0.1, 0.333, 2.5, 0.333},
			{9, 0.5, 2.555, 2.555},
			{1.004, 0.333, 2.555, 1.0},
		}
		for _, tt := range bounded {
			got := ClampZoom(tt.in, tt.min, tt.max)
			if got != tt.want {
				t.Errorf("ClampZoom(%v, %v, %v) = %v, want %v", tt.in, tt.min, tt.max, got, tt.want)
			}
			if got < tt.min || got > tt.max {
				t.Errorf("ClampZoom(%v, %v, %v) = %v escapes the range", tt.in, tt.min, tt.max, got)
			}
		}
	})
}

func TestSessionZoomStaysInConfiguredRange(t *testing.T) {
	rig := newRig(2)
	builder := NewBuilder(rig.factory, DefaultBuilderOptions())
	session := NewSession(rig.renderer, builder, rig.stage, nil, Options{MinZoom: 1.2, MaxZoom: 2.555, ZoomStep: 0.5})
	if err := session.OpenFile(context.Background(), pdfFile("two.pdf")); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if z := session.Snapshot().Zoom; z != 1.2 {
		t.Errorf("initial zoom = %v, want the configured minimum 1.2", z)
	}
	for i := 0; i < 5; i++ {
		z, err := session.ZoomIn()
		if err != nil {
			t.Fatalf("ZoomIn: %v", err)
		}
		if z < 1.2 || z > 2.555 {
			t.Fatalf("zoom %v left [1.2, 2.555]", z)
		}
	}
	if z := session.Snapshot().Zoom; z != 2.555 {
		t.Errorf("zoom after stepping in = %v, want 2.555", z)
	}
}

func TestSessionCloseDuringLoading(t *testing.T) {
	rig := newRig(3)
	rig.renderer.block = true

	done := make(chan error, 1)
	go func() {
		done <- rig.session.OpenFile(context.Background(), pdfFile("slow.pdf"))
	}()
	waitFor(t, "loading", func() bool { return rig.session.State() == StateLoading })

	if err := rig.session.OpenFile(context.Background(), pdfFile("other.pdf")); !errors.Is(err, ErrBusy) {
		t.Errorf("second open = %v, want ErrBusy", err)
	}

	rig.session.Close()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("open after close = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("render was not cancelled")
	}

	if got := rig.session.State(); got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
	if rig.factory.created() != 0 {
		t.Error("a widget was created after close")
	}
	if len(rig.notifier.all()) != 0 {
		t.Errorf("cancelled render produced notices: %+v", rig.notifier.all())
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	rig := newRig(1)
	rig.session.Close()
	rig.session.Close()
	if got := rig.session.State(); got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestSessionOpenReplacesBook(t *testing.T) {
	rig := newRig(3)
	ctx := context.Background()
	if err := rig.session.OpenFile(ctx, pdfFile("a.pdf")); err != nil {
		t.Fatalf("first open: %v", err)
	}
	first := rig.factory.last()
	if err := rig.session.OpenFile(ctx, pdfFile("b.pdf")); err != nil {
		t.Fatalf("second open: %v", err)
	}
	if !first.isDestroyed() {
		t.Error("first widget not destroyed")
	}
	if rig.factory.live() != 1 {
		t.Errorf("live widgets = %d, want 1", rig.factory.live())
	}
}

func TestSessionReflowKeepsPageAndImages(t *testing.T) {
	rig := newRig(5)
	s := rig.session
	if err := s.OpenFile(context.Background(), pdfFile("five.pdf")); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	_ = s.Navigate(Next)
	_ = s.Navigate(Next)
	_, _ = s.ZoomIn()

	if err := s.Reflow(); err != nil {
		t.Fatalf("Reflow: %v", err)
	}
	snap := s.Snapshot()
	if snap.Counter() != "3/5" || snap.State != StateViewing {
		t.Errorf("after reflow: %s %s, want viewing 3/5", snap.State, snap.Counter())
	}
	if snap.Zoom != 1.1 {
		t.Errorf("zoom after reflow = %v, want 1.1", snap.Zoom)
	}
	if rig.renderer.renderCalls() != 1 {
		t.Errorf("renderer called %d times, want 1", rig.renderer.renderCalls())
	}
	if rig.factory.created() != 2 || rig.factory.live() != 1 {
		t.Errorf("created %d live %d, want 2 and 1", rig.factory.created(), rig.factory.live())
	}
	if got := rig.factory.last().spec.Pages[2].Image.Data; string(got) != "page-3" {
		t.Errorf("rebuilt page 3 data = %q", got)
	}
}

func TestSessionWidgetUnavailable(t *testing.T) {
	rig := newRig(2)
	rig.factory.err = ErrWidgetUnavailable

	err := rig.session.OpenFile(context.Background(), pdfFile("two.pdf"))
	if !errors.Is(err, ErrWidgetUnavailable) {
		t.Fatalf("OpenFile = %v, want ErrWidgetUnavailable", err)
	}
	notices := rig.notifier.all()
	if len(notices) != 1 || notices[0].Message != Message(ErrWidgetUnavailable) {
		t.Errorf("notices = %+v", notices)
	}
	if got := rig.session.State(); got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestSessionPollingFallback(t *testing.T) {
	rig := newRig(4)
	rig.factory.muted = true
	if err := rig.session.OpenFile(context.Background(), pdfFile("four.pdf")); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	rig.factory.last().swipe(2)
	waitFor(t, "polled page change", func() bool { return rig.session.Snapshot().Page == 3 })

	rig.session.Close()
	if !rig.factory.last().isDestroyed() {
		t.Error("polled widget not destroyed on close")
	}
}

func TestSessionDemo(t *testing.T) {
	t.Run("download failure leaves session idle", func(t *testing.T) {
		rig := newRig(2)
		err := rig.session.OpenDemo(context.Background(), fakeFetcher{err: errors.New("connection refused")})
		var fetchErr *NetworkFetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("OpenDemo = %v, want NetworkFetchError", err)
		}
		if rig.renderer.renderCalls() != 0 || len(rig.states.seen()) != 0 {
			t.Error("session changed after a failed download")
		}
		if n := rig.notifier.all(); len(n) != 1 || n[0].Level != NoticeError {
			t.Errorf("notices = %+v", n)
		}
	})

	t.Run("downloaded document opens", func(t *testing.T) {
		rig := newRig(2)
		err := rig.session.OpenDemo(context.Background(), fakeFetcher{file: pdfFile("demo.pdf")})
		if err != nil {
			t.Fatalf("OpenDemo: %v", err)
		}
		if got := rig.session.Snapshot().Counter(); got != "1/2" {
			t.Errorf("counter = %q, want 1/2", got)
		}
	})
}

func TestSessionSettleDelay(t *testing.T) {
	rig := newRig(1)
	builder := NewBuilder(rig.factory, DefaultBuilderOptions())
	s := NewSession(rig.renderer, builder, rig.stage, nil, Options{Settle: 30 * time.Millisecond})

	start := time.Now()
	if err := s.OpenFile(context.Background(), pdfFile("one.pdf")); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("book shown after %v, before the settle delay", elapsed)
	}
}
