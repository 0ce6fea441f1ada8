package webapp

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/maxence-charriere/go-app/v10/pkg/app"

	"github.com/drummonds/goflipbook/viewer"
)

// Candidate method names, newest release first. Older page-flip builds
// expose shorter names.
var (
	nextMethods    = []string{"flipNext", "next", "turnToNextPage"}
	prevMethods    = []string{"flipPrev", "prev", "turnToPrevPage"}
	currentMethods = []string{"getCurrentPageIndex", "getCurrentPage"}
)

// PageFlipFactory creates StPageFlip books inside a host element
type PageFlipFactory struct {
	// HostID is the element the book container is appended to
	HostID string
}

// NewWidget implements viewer.WidgetFactory
func (f PageFlipFactory) NewWidget(spec viewer.BookSpec) (viewer.Widget, error) {
	if !app.IsClient {
		return nil, viewer.ErrWidgetUnavailable
	}
	ns := app.Window().Get("St")
	if !ns.Truthy() || !ns.Get("PageFlip").Truthy() {
		return nil, viewer.ErrWidgetUnavailable
	}

	doc := app.Window().Get("document")
	host := doc.Call("getElementById", f.HostID)
	if !host.Truthy() {
		return nil, fmt.Errorf("book host %q not found", f.HostID)
	}

	// a fresh container per book; the library takes ownership of it
	container := doc.Call("createElement", "div")
	container.Set("className", "flip-book")
	host.Call("appendChild", container)

	settings := map[string]any{
		"width":               spec.Width,
		"height":              spec.Height,
		"size":                "fixed",
		"showCover":           true,
		"usePortrait":         true,
		"mobileScrollSupport": false,
		"startPage":           spec.StartPage - 1,
		"maxShadowOpacity":    0.5,
	}

	var book app.Value
	if err := jsCall(func() { book = ns.Get("PageFlip").New(container, settings) }); err != nil {
		container.Call("remove")
		return nil, fmt.Errorf("unable to create page-flip instance: %w", err)
	}

	if err := loadPages(doc, book, spec); err != nil {
		container.Call("remove")
		return nil, err
	}

	return &pageFlipWidget{book: book, container: container}, nil
}

// loadPages hands the page images to the book. Pages are loaded as HTML so
// covers can be marked hard; builds without loadFromHTML get plain images.
func loadPages(doc, book app.Value, spec viewer.BookSpec) error {
	if book.Get("loadFromHTML").Type() == app.TypeFunction {
		items := make([]any, 0, len(spec.Pages))
		for _, p := range spec.Pages {
			page := doc.Call("createElement", "div")
			page.Set("className", "flip-page")
			if p.Hard {
				page.Call("setAttribute", "data-density", "hard")
			}
			img := doc.Call("createElement", "img")
			img.Set("src", dataURL(p))
			img.Set("alt", fmt.Sprintf("Page %d", p.Image.Index))
			page.Call("appendChild", img)
			items = append(items, page)
		}
		return jsCall(func() { book.Call("loadFromHTML", items) })
	}

	if book.Get("loadFromImages").Type() == app.TypeFunction {
		urls := make([]any, 0, len(spec.Pages))
		for _, p := range spec.Pages {
			urls = append(urls, dataURL(p))
		}
		return jsCall(func() { book.Call("loadFromImages", urls) })
	}
	return viewer.ErrWidgetUnavailable
}

func dataURL(p viewer.BookPage) string {
	return "data:" + p.Image.MIME + ";base64," + base64.StdEncoding.EncodeToString(p.Image.Data)
}

// jsCall converts a javascript exception into an error
func jsCall(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("javascript error: %v", r)
		}
	}()
	fn()
	return nil
}

// pageFlipWidget adapts a StPageFlip instance to viewer.Widget
type pageFlipWidget struct {
	book      app.Value
	container app.Value

	mu    sync.Mutex
	funcs []app.Func
}

func (w *pageFlipWidget) invoke(names []string, args ...any) (app.Value, error) {
	for _, name := range names {
		if w.book.Get(name).Type() != app.TypeFunction {
			continue
		}
		var v app.Value
		err := jsCall(func() { v = w.book.Call(name, args...) })
		return v, err
	}
	return nil, fmt.Errorf("page-flip instance has none of %v", names)
}

func (w *pageFlipWidget) FlipNext() error {
	_, err := w.invoke(nextMethods)
	return err
}

func (w *pageFlipWidget) FlipPrev() error {
	_, err := w.invoke(prevMethods)
	return err
}

func (w *pageFlipWidget) CurrentIndex() int {
	v, err := w.invoke(currentMethods)
	if err != nil || v == nil || v.Type() != app.TypeNumber {
		return 0
	}
	return v.Int()
}

// Subscribe listens for the library's flip event. Builds without on() make
// the builder fall back to polling.
func (w *pageFlipWidget) Subscribe(fn func(index int)) (func(), error) {
	if w.book.Get("on").Type() != app.TypeFunction {
		return nil, errors.New("page-flip instance has no event support")
	}
	handler := app.FuncOf(func(this app.Value, args []app.Value) any {
		index := w.CurrentIndex()
		if len(args) > 0 && args[0].Get("data").Type() == app.TypeNumber {
			index = args[0].Get("data").Int()
		}
		// javascript callbacks must not block on session locks
		go fn(index)
		return nil
	})
	if err := jsCall(func() { w.book.Call("on", "flip", handler) }); err != nil {
		handler.Release()
		return nil, err
	}

	w.mu.Lock()
	w.funcs = append(w.funcs, handler)
	w.mu.Unlock()

	return func() {
		if w.book.Get("off").Type() == app.TypeFunction {
			jsCall(func() { w.book.Call("off", "flip") })
		}
	}, nil
}

func (w *pageFlipWidget) Destroy() error {
	err := jsCall(func() {
		if w.book.Get("destroy").Type() == app.TypeFunction {
			w.book.Call("destroy")
		}
	})

	w.mu.Lock()
	for _, f := range w.funcs {
		f.Release()
	}
	w.funcs = nil
	w.mu.Unlock()

	if w.container.Get("isConnected").Bool() {
		w.container.Call("remove")
	}
	return err
}
