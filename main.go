package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/drummonds/goflipbook/config"
	"github.com/drummonds/goflipbook/database"
	"github.com/drummonds/goflipbook/engine"
	"github.com/drummonds/goflipbook/engine/pdfrenderer"
	"github.com/drummonds/goflipbook/engine/pipeline"
	"github.com/drummonds/goflipbook/internal/uiserver"
	"github.com/drummonds/goflipbook/webapp"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	database.Logger = Logger
	config.Logger = Logger
	engine.Logger = Logger
	webapp.Logger = Logger
}

func main() {
	serverConfig, logger := config.SetupServer()
	injectGlobals(logger) //inject the logger into all of the packages

	if serverConfig.DatabaseType == "ephemeral" {
		fmt.Println("\n" + strings.Repeat("=", 50))
		fmt.Println("EPHEMERAL DATABASE MODE")
		fmt.Println(strings.Repeat("=", 50))
		fmt.Println("• Job history is destroyed on exit")
		fmt.Println(strings.Repeat("=", 50) + "\n")
	}

	Logger.Info("Setting up database", "type", serverConfig.DatabaseType)
	db, err := database.NewRepository(serverConfig)
	if err != nil {
		Logger.Error("Failed to setup database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	codec, err := pdfrenderer.NewCodec(serverConfig.Backend)
	if err != nil {
		Logger.Error("Failed to start render backend", "backend", serverConfig.Backend, "error", err)
		os.Exit(1)
	}
	defer codec.Close()
	renderer := pipeline.New(codec, pipeline.Options{
		MaxWidth:    serverConfig.MaxWidth,
		ScaleCap:    serverConfig.ScaleCap,
		DeviceScale: serverConfig.DeviceScale,
		Quality:     serverConfig.JPEGQuality,
		Logger:      Logger.With("component", "pipeline"),
	})

	e, serverHandler := newServer(db, serverConfig, renderer)
	defer serverHandler.Shutdown()

	scheduler := serverHandler.InitializeSchedules()
	defer scheduler.Stop()
	if err := serverHandler.StartupChecks(); err != nil {
		Logger.Error("Startup checks failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		Logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			Logger.Error("Server shutdown failed", "error", err)
		}
	}()

	if serverConfig.ListenAddrIP == "" {
		Logger.Info("No Ip Addr set, binding on ALL addresses")
	}
	startServer(e, &serverConfig)
}

// newServer builds the echo instance with the API and the viewer UI
func newServer(db database.Repository, serverConfig config.ServerConfig, renderer engine.Renderer) (*echo.Echo, *engine.ServerHandler) {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusNotFound && strings.HasPrefix(c.Request().URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, map[string]string{
				"error":   "Not Found",
				"message": "The requested API endpoint does not exist",
				"path":    c.Request().URL.Path,
			})
			return
		}
		e.DefaultHTTPErrorHandler(err, c)
	}

	e.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// job polling would drown everything else
			return strings.HasPrefix(c.Request().URL.Path, "/api/jobs/")
		},
		Format: "method=${method}, uri=${uri}, status=${status}, latency=${latency_human}\n",
	}))
	e.Use(middleware.Recover())

	serverHandler := engine.NewServerHandler(db, e, serverConfig, renderer)
	serverHandler.RegisterRoutes()
	e.Any("/api/*", func(c echo.Context) error {
		return echo.ErrNotFound
	})

	// must come last, it installs the catch-all UI route
	uiserver.Register(e, serverConfig.WebDir, webapp.Handler())
	return e, serverHandler
}

// startServer tries successive ports when the configured one is taken
func startServer(e *echo.Echo, serverConfig *config.ServerConfig) {
	maxRetries := 5
	startPort := serverConfig.ListenAddrPort

	for attempt := 0; attempt < maxRetries; attempt++ {
		addr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
		Logger.Info("Attempting to start server", "address", addr, "attempt", attempt+1)
		if serverConfig.ListenAddrPort != startPort {
			Logger.Warn("Server starting on alternative port due to conflicts",
				"requested_port", startPort,
				"actual_port", serverConfig.ListenAddrPort)
		}

		err := e.Start(addr)
		switch {
		case err == nil || errors.Is(err, http.ErrServerClosed):
			return
		case isAddressInUse(err):
			Logger.Warn("Port already in use, trying next port",
				"port", serverConfig.ListenAddrPort,
				"attempt", attempt+1,
				"max_attempts", maxRetries)
			portNum := 0
			fmt.Sscanf(serverConfig.ListenAddrPort, "%d", &portNum)
			serverConfig.ListenAddrPort = fmt.Sprintf("%d", portNum+1)
		default:
			Logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}

	Logger.Error("Failed to find available port after maximum retries",
		"start_port", startPort,
		"end_port", serverConfig.ListenAddrPort,
		"max_retries", maxRetries)
	os.Exit(1)
}

// isAddressInUse checks if the error is due to address already in use
func isAddressInUse(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "address already in use")
}
