package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/drummonds/goflipbook/config"
)

// StartupChecks performs all the checks to make sure everything works
func (serverHandler *ServerHandler) StartupChecks() error {
	if serverHandler.Renderer == nil {
		return fmt.Errorf("no renderer configured")
	}

	interrupted, err := serverHandler.DB.FailInterruptedJobs()
	if err != nil {
		Logger.Error("Unable to clear interrupted jobs", "error", err)
		return err
	}
	if interrupted > 0 {
		Logger.Warn("Marked jobs interrupted by a previous shutdown as failed", "count", interrupted)
	}

	webDirectoryChecks(serverHandler.ServerConfig)
	demoChecks(serverHandler.ServerConfig)
	return nil
}

// webDirectoryChecks warns when the browser client has not been built
func webDirectoryChecks(serverConfig config.ServerConfig) error {
	if serverConfig.WebDir == "" {
		Logger.Warn("Web directory not configured")
		return nil
	}

	webInfo, err := os.Stat(serverConfig.WebDir)
	if err != nil {
		Logger.Warn("Web directory not found, build the client with GOARCH=wasm GOOS=js", "path", serverConfig.WebDir, "error", err)
		return err
	}
	if !webInfo.IsDir() {
		Logger.Error("Web path exists but is not a directory", "path", serverConfig.WebDir)
		return fmt.Errorf("web path is not a directory: %s", serverConfig.WebDir)
	}

	wasm := filepath.Join(serverConfig.WebDir, "app.wasm")
	if _, err := os.Stat(wasm); err != nil {
		Logger.Warn("app.wasm missing, the viewer will not start", "path", wasm)
		return err
	}

	Logger.Info("Web directory exists", "path", serverConfig.WebDir)
	return nil
}

func demoChecks(serverConfig config.ServerConfig) {
	if serverConfig.DemoURL == "" {
		Logger.Info("No demo document configured, the demo button will report an error")
		return
	}
	Logger.Info("Demo document configured", "url", serverConfig.DemoURL)
}
