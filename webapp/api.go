package webapp

import (
	"encoding/json"
	"strings"

	"github.com/maxence-charriere/go-app/v10/pkg/app"

	"github.com/drummonds/goflipbook/apiclient"
	"github.com/drummonds/goflipbook/config"
)

// ViewerSettings returns the configuration served at /config.js.
// It reads window.flipbookConfig when available and falls back to defaults
// during server-side rendering or when the script failed to load.
func ViewerSettings() config.ViewerConfig {
	settings := config.DefaultViewerConfig()
	if !app.IsClient {
		return settings
	}

	cfg := app.Window().Get("flipbookConfig")
	if !cfg.Truthy() {
		return settings
	}
	jsonStr := app.Window().Get("JSON").Call("stringify", cfg).String()
	if err := json.Unmarshal([]byte(jsonStr), &settings); err != nil {
		app.Logf("Ignoring malformed viewer config: %v", err)
		return config.DefaultViewerConfig()
	}
	return settings
}

// GetAPIBaseURL returns the configured API base URL without a trailing
// slash, or "" for same-origin relative URLs
func GetAPIBaseURL() string {
	return strings.TrimSuffix(ViewerSettings().APIURL, "/")
}

// NewAPIClient creates a client for the render service
func NewAPIClient() *apiclient.Client {
	return apiclient.New(GetAPIBaseURL())
}
