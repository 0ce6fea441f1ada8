package webapp

import (
	"errors"
	"fmt"

	"github.com/maxence-charriere/go-app/v10/pkg/app"

	"github.com/drummonds/goflipbook/viewer"
)

// Element ids shared by the viewer page and its collaborators
const (
	stageID    = "book-stage"
	bookHostID = "book-host"
)

// DOMStage measures the stage element and zooms the book host
type DOMStage struct {
	StageID string
	HostID  string
}

func (s DOMStage) element(id string) app.Value {
	if !app.IsClient {
		return nil
	}
	el := app.Window().Get("document").Call("getElementById", id)
	if !el.Truthy() {
		return nil
	}
	return el
}

// Bounds returns the stage's client size, or the window size when the stage
// is not rendered yet
func (s DOMStage) Bounds() viewer.Bounds {
	if el := s.element(s.StageID); el != nil {
		return viewer.Bounds{
			Width:  el.Get("clientWidth").Float(),
			Height: el.Get("clientHeight").Float(),
		}
	}
	if !app.IsClient {
		return viewer.Bounds{}
	}
	w, h := app.Window().Size()
	return viewer.Bounds{Width: float64(w), Height: float64(h)}
}

// ApplyZoom scales the host uniformly around its center
func (s DOMStage) ApplyZoom(zoom float64) {
	el := s.element(s.HostID)
	if el == nil {
		return
	}
	style := el.Get("style")
	style.Set("transformOrigin", "center center")
	style.Set("transform", fmt.Sprintf("scale(%.2f)", zoom))
}

// FullscreenHost toggles the document's fullscreen mode
type FullscreenHost struct{}

var errNoFullscreen = errors.New("fullscreen is not supported by this browser")

// ToggleFullscreen enters fullscreen, or leaves it when already active
func (FullscreenHost) ToggleFullscreen() error {
	if !app.IsClient {
		return errNoFullscreen
	}
	doc := app.Window().Get("document")
	if doc.Get("fullscreenElement").Truthy() {
		if doc.Get("exitFullscreen").Type() != app.TypeFunction {
			return errNoFullscreen
		}
		return jsCall(func() { doc.Call("exitFullscreen") })
	}

	root := doc.Get("documentElement")
	if root.Get("requestFullscreen").Type() != app.TypeFunction {
		return errNoFullscreen
	}
	return jsCall(func() { root.Call("requestFullscreen") })
}
