package webapp

import (
	"net/http"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// PageFlipScript is the StPageFlip browser bundle
const PageFlipScript = "https://cdn.jsdelivr.net/npm/page-flip@2.0.7/dist/js/page-flip.browser.js"

// RegisterRoutes binds every UI route to the App component
func RegisterRoutes() {
	for _, path := range Routes {
		app.Route(path, func() app.Composer { return &App{} })
	}
}

// Handler returns an HTTP handler for the web app
func Handler() http.Handler {
	RegisterRoutes()
	app.RunWhenOnBrowser()

	// app.wasm and wasm_exec.js are served from the web directory by echo
	return &app.Handler{
		Name:        "goflipbook",
		Title:       "goflipbook",
		Description: "Read PDF documents as page-turning books",
		Icon: app.Icon{
			Default: "/favicon.ico",
		},
		Styles: []string{
			"/web/webapp.css",
		},
		Scripts: []string{
			"/config.js",
			PageFlipScript,
		},
		RawHeaders: []string{
			`<meta name="viewport" content="width=device-width, initial-scale=1">`,
		},
	}
}
