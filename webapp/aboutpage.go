package webapp

import (
	"context"
	"fmt"

	"github.com/maxence-charriere/go-app/v10/pkg/app"

	"github.com/drummonds/goflipbook/apiclient"
)

// AboutPage displays server status and viewer settings
type AboutPage struct {
	app.Compo
	health  apiclient.Health
	loading bool
	error   string
}

// OnMount is called when the component is mounted
func (a *AboutPage) OnMount(ctx app.Context) {
	a.loading = true
	ctx.Async(func() {
		health, err := NewAPIClient().Health(context.Background())
		ctx.Dispatch(func(ctx app.Context) {
			a.loading = false
			if err != nil {
				a.error = err.Error()
				return
			}
			a.health = *health
		})
	})
}

// Render renders the about page
func (a *AboutPage) Render() app.UI {
	if a.loading {
		return app.Div().Class("about-page").Body(
			app.H2().Text("About goflipbook"),
			app.Div().Class("loading").Body(app.Text("Loading...")),
		)
	}

	if a.error != "" {
		return app.Div().Class("about-page").Body(
			app.H2().Text("About goflipbook"),
			app.Div().Class("error").Body(app.Text("Error: "+a.error)),
		)
	}

	settings := ViewerSettings()
	return app.Div().Class("about-page").Body(
		app.H2().Text("About goflipbook"),
		app.Div().Class("about-content").Body(
			app.Div().Class("about-section").Body(
				app.H3().Text("Server"),
				app.Div().Class("info-grid").Body(
					a.renderInfoItem("Version", a.health.Version),
					a.renderInfoItem("Render backend", backendDisplay(a.health.Backend)),
					a.renderInfoItem("Database", databaseDisplay(a.health.DatabaseType)),
					a.renderInfoItem("Rendering now", yesNo(a.health.Rendering)),
					a.renderInfoItem("Documents held", fmt.Sprint(a.health.StoredSets)),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("Viewer"),
				app.Div().Class("config-details").Body(
					app.P().Body(
						app.Strong().Text("Zoom range: "),
						app.Text(fmt.Sprintf("%.0f%% to %.0f%% in %.0f%% steps", settings.MinZoom*100, settings.MaxZoom*100, settings.ZoomStep*100)),
					),
					app.P().Body(
						app.Strong().Text("Keys: "),
						app.Text("← and → turn pages, + and - zoom, Esc closes the document"),
					),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("About goflipbook"),
				app.P().Text("goflipbook renders PDF documents to page images on the server and shows them as a page-turning book in the browser, built with Go and WebAssembly."),
			),
		),
	)
}

// renderInfoItem creates an info item display
func (a *AboutPage) renderInfoItem(label, value string) app.UI {
	return app.Div().Class("info-item").Body(
		app.Div().Class("info-label").Body(app.Text(label)),
		app.Div().Class("info-value").Body(app.Text(value)),
	)
}

func backendDisplay(backend string) string {
	switch backend {
	case "fitz":
		return "MuPDF (go-fitz)"
	case "pdfium":
		return "PDFium (WebAssembly)"
	default:
		return backend
	}
}

// databaseDisplay returns a user-friendly database display name
func databaseDisplay(dbType string) string {
	switch dbType {
	case "postgres":
		return "PostgreSQL"
	case "cockroachdb":
		return "CockroachDB"
	case "sqlite":
		return "SQLite"
	case "ephemeral":
		return "Ephemeral PostgreSQL"
	default:
		return dbType
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
