package viewer

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/drummonds/goflipbook/document"
)

func testSet(n int) *document.RenderedSet {
	set := &document.RenderedSet{}
	for i := 0; i < n; i++ {
		set.Pages = append(set.Pages, document.PageImage{Index: i + 1, MIME: document.MIMEJPEG, Width: 600, Height: 800})
	}
	return set
}

func TestPagesHardCovers(t *testing.T) {
	hard := func(pages []BookPage) []bool {
		out := make([]bool, len(pages))
		for i, p := range pages {
			out[i] = p.Hard
		}
		return out
	}

	tests := []struct {
		name  string
		pages int
		want  []bool
	}{
		{"single", 1, []bool{true}},
		{"two", 2, []bool{true, true}},
		{"four", 4, []bool{true, false, false, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, hard(Pages(testSet(tt.pages)))); diff != "" {
				t.Errorf("hard flags mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDimensions(t *testing.T) {
	opts := DefaultBuilderOptions()
	portrait := document.PageImage{Width: 600, Height: 800}

	tests := []struct {
		name          string
		bounds        Bounds
		first         document.PageImage
		width, height int
	}{
		{"height bound", Bounds{1000, 800}, portrait, 540, 720},
		{"width bound", Bounds{500, 2000}, portrait, 450, 600},
		{"clamped to minimum", Bounds{100, 100}, portrait, 240, 320},
		{"minimum width after fit", Bounds{100, 100}, document.PageImage{Width: 595, Height: 842}, 240, 340},
		{"minimum height after fit", Bounds{100, 100}, document.PageImage{Width: 800, Height: 400}, 640, 320},
		{"clamped to maximum", Bounds{4000, 4000}, portrait, 1000, 1333},
		{"landscape", Bounds{1000, 800}, document.PageImage{Width: 800, Height: 400}, 900, 450},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := Dimensions(tt.bounds, tt.first, opts)
			if w != tt.width || h != tt.height {
				t.Errorf("Dimensions = %dx%d, want %dx%d", w, h, tt.width, tt.height)
			}
		})
	}
}

func TestBuilderSingleLiveInstance(t *testing.T) {
	factory := &fakeFactory{}
	b := NewBuilder(factory, DefaultBuilderOptions())

	first, err := b.Build(testSet(3), Bounds{1000, 800}, 1, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := b.Build(testSet(3), Bounds{1000, 800}, 2, nil)
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}

	if factory.live() != 1 {
		t.Errorf("live widgets = %d, want 1", factory.live())
	}
	if b.Live() != second || b.Live() == first {
		t.Error("builder does not track the newest book")
	}
	if second.Current() != 2 {
		t.Errorf("start page = %d, want 2", second.Current())
	}

	b.Teardown()
	if factory.live() != 0 || b.Live() != nil {
		t.Error("teardown left a live widget")
	}
}

func TestBuilderStartPageClamped(t *testing.T) {
	b := NewBuilder(&fakeFactory{}, DefaultBuilderOptions())
	book, err := b.Build(testSet(3), Bounds{800, 600}, 9, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if book.Spec().StartPage != 3 {
		t.Errorf("start page = %d, want 3", book.Spec().StartPage)
	}
}

func TestBuilderErrors(t *testing.T) {
	if _, err := NewBuilder(nil, BuilderOptions{}).Build(testSet(1), Bounds{}, 1, nil); !errors.Is(err, ErrWidgetUnavailable) {
		t.Errorf("nil factory = %v, want ErrWidgetUnavailable", err)
	}
	if _, err := NewBuilder(&fakeFactory{}, BuilderOptions{}).Build(testSet(0), Bounds{}, 1, nil); err == nil {
		t.Error("expected an error for an empty set")
	}
	factory := &fakeFactory{err: errors.New("boom")}
	if _, err := NewBuilder(factory, BuilderOptions{}).Build(testSet(1), Bounds{}, 1, nil); err == nil || errors.Is(err, ErrWidgetUnavailable) {
		t.Errorf("factory failure = %v", err)
	}
}

func TestBookDestroySwallowsErrors(t *testing.T) {
	factory := &fakeFactory{destroyErr: errors.New("already gone")}
	b := NewBuilder(factory, DefaultBuilderOptions())
	book, err := b.Build(testSet(2), Bounds{800, 600}, 1, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	book.Destroy()
	book.Destroy()

	var nilBook *Book
	nilBook.Destroy()
}

func TestBookDestroyAfterUnsubscribePanic(t *testing.T) {
	factory := &fakeFactory{}
	book, err := NewBuilder(factory, DefaultBuilderOptions()).Build(testSet(2), Bounds{800, 600}, 1, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	book.unsubscribe = func() { panic("listener already detached") }

	book.Destroy()
	if factory.live() != 0 {
		t.Error("widget left alive after a failing unsubscribe")
	}
}

func TestBookOnPageReportsOneBased(t *testing.T) {
	var pages []int
	b := NewBuilder(&fakeFactory{}, DefaultBuilderOptions())
	book, err := b.Build(testSet(3), Bounds{800, 600}, 1, func(p int) { pages = append(pages, p) })
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	book.Flip(Next)
	book.Flip(Next)
	book.Flip(Next)
	book.Flip(Prev)
	if diff := cmp.Diff([]int{2, 3, 2}, pages); diff != "" {
		t.Errorf("page notifications mismatch (-want +got):\n%s", diff)
	}
}
