// Package uiserver serves the WebAssembly viewer and its static assets.
package uiserver

import (
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"
)

// Register serves the go-app handler and the files built into webDir.
// appHandler also becomes the catch-all route, so Register must be called
// after every API route.
func Register(e *echo.Echo, webDir string, appHandler http.Handler) {
	wrapped := echo.WrapHandler(appHandler)

	// go-app expects wasm_exec.js at the root
	e.GET("/wasm_exec.js", func(c echo.Context) error {
		return c.File(filepath.Join(webDir, "wasm_exec.js"))
	})
	e.GET("/favicon.ico", func(c echo.Context) error {
		return c.File(filepath.Join(webDir, "favicon.ico"))
	})

	// Register go-app specific resources
	e.GET("/app.js", wrapped)
	e.GET("/app.css", wrapped)
	e.GET("/app-worker.js", wrapped)
	e.GET("/manifest.webmanifest", wrapped)

	// app.wasm, webapp.css and anything else built into the web directory
	e.Static("/web", webDir)

	// The WASM app handles its own client-side routing and 404s
	e.Any("/*", wrapped)
}
