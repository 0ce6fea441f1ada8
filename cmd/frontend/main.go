package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/drummonds/goflipbook/config"
	"github.com/drummonds/goflipbook/internal/uiserver"
	"github.com/drummonds/goflipbook/webapp"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

func main() {
	port := flag.String("port", "3000", "Port to run frontend server on")
	apiURL := flag.String("api", "", "Render service URL (overrides SERVER_API_URL)")
	flag.Parse()

	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("   goflipbook frontend server")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("• Serves the WASM viewer")
	fmt.Println("• Proxies /api to the render service")
	fmt.Println(strings.Repeat("=", 50) + "\n")

	frontendConfig, logger := config.SetupFrontend(*apiURL)
	Logger = logger
	webapp.Logger = logger

	backendURL, err := url.Parse(frontendConfig.Viewer.APIURL)
	if err != nil {
		Logger.Error("Invalid render service URL", "url", frontendConfig.Viewer.APIURL, "error", err)
		return
	}

	// The browser talks to this server only; /api is proxied
	viewerConfig := frontendConfig.Viewer
	viewerConfig.APIURL = ""
	script, err := viewerConfig.Script()
	if err != nil {
		Logger.Error("Unable to encode viewer config", "error", err)
		return
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORS())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "method=${method}, uri=${uri}, status=${status}, latency=${latency_human}\n",
	}))

	e.GET("/config.js", func(c echo.Context) error {
		return c.Blob(http.StatusOK, "application/javascript", script)
	})
	e.Group("/api", middleware.ProxyWithConfig(middleware.ProxyConfig{
		Balancer: middleware.NewRoundRobinBalancer([]*middleware.ProxyTarget{
			{URL: backendURL},
		}),
	}))

	uiserver.Register(e, frontendConfig.WebDir, webapp.Handler())

	addr := fmt.Sprintf(":%s", *port)
	Logger.Info("Starting frontend server", "address", addr, "renderService", backendURL.String())
	fmt.Printf("Open http://localhost:%s in your browser\n", *port)
	fmt.Printf("API proxied to: %s\n\n", backendURL)

	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		Logger.Error("Server failed to start", "error", err)
	}
}
