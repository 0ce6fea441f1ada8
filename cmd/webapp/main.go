//go:build js && wasm

package main

import (
	"log/slog"
	"os"

	"github.com/maxence-charriere/go-app/v10/pkg/app"

	"github.com/drummonds/goflipbook/webapp"
)

func main() {
	// stdout is the browser console
	webapp.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	webapp.RegisterRoutes()
	app.RunWhenOnBrowser()
}
