package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerConfig contains all of the server settings
type ServerConfig struct {
	ListenAddrIP     string
	ListenAddrPort   string
	DatabaseType     string
	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string `json:"-"`
	DatabaseDbname   string
	DatabaseSslmode  string
	WebDir           string // directory holding app.wasm and static assets
	DemoURL          string
	JobRetention     time.Duration
	RenderConfig
	Viewer ViewerConfig
}

// RenderConfig controls the server side rasterization
type RenderConfig struct {
	Backend        string  // fitz or pdfium
	MaxWidth       float64 // target page width in pixels before device scaling
	ScaleCap       float64
	DeviceScale    float64
	JPEGQuality    int
	MaxUploadBytes int64
	TTL            time.Duration // how long a rendered set is kept
}

// ViewerConfig is handed to the browser client at /config.js
type ViewerConfig struct {
	MinZoom        float64 `json:"minZoom"`
	MaxZoom        float64 `json:"maxZoom"`
	ZoomStep       float64 `json:"zoomStep"`
	ResizeDebounce int     `json:"resizeDebounceMs"`
	PollInterval   int     `json:"pollIntervalMs"`
	Settle         int     `json:"settleMs"`
	MinBookWidth   float64 `json:"minBookWidth"`
	MaxBookWidth   float64 `json:"maxBookWidth"`
	MinBookHeight  float64 `json:"minBookHeight"`
	MaxBookHeight  float64 `json:"maxBookHeight"`
	APIURL         string  `json:"apiURL"`
}

// DefaultViewerConfig returns the viewer settings used when nothing is configured
func DefaultViewerConfig() ViewerConfig {
	return ViewerConfig{
		MinZoom:        0.5,
		MaxZoom:        2.5,
		ZoomStep:       0.1,
		ResizeDebounce: 250,
		PollInterval:   250,
		Settle:         300,
		MinBookWidth:   240,
		MaxBookWidth:   1000,
		MinBookHeight:  320,
		MaxBookHeight:  1400,
	}
}

// Script renders the config as a javascript assignment for /config.js
func (v ViewerConfig) Script() ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("window.flipbookConfig = %s;\n", body)), nil
}

// Duration converts a millisecond setting, falling back when unset
func Duration(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil || floatVal <= 0 {
		return defaultValue
	}
	return floatVal
}

// getEnvDuration gets a duration such as "30m" with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	serverConfigLive := Load()

	logger.Info("Database configuration loaded", "type", serverConfigLive.DatabaseType)
	logger.Info("Render configuration loaded",
		"backend", serverConfigLive.Backend,
		"maxWidth", serverConfigLive.MaxWidth,
		"quality", serverConfigLive.JPEGQuality,
		"ttl", serverConfigLive.TTL)

	if err := checkDirectory(serverConfigLive.WebDir, logger); err != nil {
		logger.Warn("Web directory missing, the viewer will not load until app.wasm is built", "path", serverConfigLive.WebDir)
	}

	fmt.Println("\n========================================")
	fmt.Println("   goflipbook - PDF page-flip viewer")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfigLive.ListenAddrIP, serverConfigLive.ListenAddrPort)
	if serverConfigLive.ListenAddrIP == "" {
		fmt.Println("(Listening on all network interfaces)")
	}
	fmt.Printf("Detailed logs: %s\n", getEnv("LOG_FILE", "goflipbook.log"))
	fmt.Println("Initializing...")

	return serverConfigLive, logger
}

// SetupFrontend configures a UI-only server whose API lives at apiURL
func SetupFrontend(apiURL string) (ServerConfig, *slog.Logger) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	frontendConfig := Load()
	if apiURL != "" {
		frontendConfig.Viewer.APIURL = apiURL
	}
	if frontendConfig.Viewer.APIURL == "" {
		frontendConfig.Viewer.APIURL = "http://localhost:8000"
	}
	if err := checkDirectory(frontendConfig.WebDir, logger); err != nil {
		logger.Warn("Web directory missing, the viewer will not load until app.wasm is built", "path", frontendConfig.WebDir)
	}
	return frontendConfig, logger
}

// Load reads the configuration from the environment without touching logging
func Load() ServerConfig {
	serverConfigLive := ServerConfig{}

	// Server configuration
	serverConfigLive.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	serverConfigLive.ListenAddrIP = getEnv("SERVER_ADDR", "")

	// Database configuration
	serverConfigLive.DatabaseType = getEnv("DATABASE_TYPE", "sqlite")
	serverConfigLive.DatabaseHost = getEnv("DATABASE_HOST", "localhost")
	serverConfigLive.DatabasePort = getEnv("DATABASE_PORT", "5432")
	serverConfigLive.DatabaseUser = getEnv("DATABASE_USER", "goflipbook")
	serverConfigLive.DatabasePassword = getEnv("DATABASE_PASSWORD", "")
	serverConfigLive.DatabaseDbname = getEnv("DATABASE_NAME", "databases/goflipbook.sqlite")
	serverConfigLive.DatabaseSslmode = getEnv("DATABASE_SSLMODE", "disable")
	serverConfigLive.JobRetention = getEnvDuration("JOB_RETENTION", 7*24*time.Hour)

	webDir, err := filepath.Abs(filepath.ToSlash(getEnv("WEB_DIR", "web")))
	if err != nil {
		webDir = "web"
	}
	serverConfigLive.WebDir = webDir
	serverConfigLive.DemoURL = getEnv("DEMO_URL", "https://www.w3.org/WAI/ER/tests/xhtml/testfiles/resources/pdf/dummy.pdf")

	// Render configuration
	serverConfigLive.Backend = getEnv("RENDER_BACKEND", "fitz")
	serverConfigLive.MaxWidth = getEnvFloat("RENDER_MAX_WIDTH", 1200)
	serverConfigLive.ScaleCap = getEnvFloat("RENDER_SCALE_CAP", 2.0)
	serverConfigLive.DeviceScale = getEnvFloat("RENDER_DEVICE_SCALE", 1.0)
	serverConfigLive.JPEGQuality = getEnvInt("RENDER_JPEG_QUALITY", 85)
	if serverConfigLive.JPEGQuality < 1 || serverConfigLive.JPEGQuality > 100 {
		serverConfigLive.JPEGQuality = 85
	}
	serverConfigLive.MaxUploadBytes = int64(getEnvInt("RENDER_MAX_UPLOAD_MB", 64)) << 20
	serverConfigLive.TTL = getEnvDuration("RENDER_TTL", 30*time.Minute)

	// Viewer configuration handed to the browser
	viewer := DefaultViewerConfig()
	viewer.MinZoom = getEnvFloat("VIEWER_MIN_ZOOM", viewer.MinZoom)
	viewer.MaxZoom = getEnvFloat("VIEWER_MAX_ZOOM", viewer.MaxZoom)
	if viewer.MaxZoom < viewer.MinZoom {
		viewer.MinZoom, viewer.MaxZoom = DefaultViewerConfig().MinZoom, DefaultViewerConfig().MaxZoom
	}
	viewer.ZoomStep = getEnvFloat("VIEWER_ZOOM_STEP", viewer.ZoomStep)
	viewer.ResizeDebounce = getEnvInt("VIEWER_RESIZE_DEBOUNCE_MS", viewer.ResizeDebounce)
	viewer.PollInterval = getEnvInt("VIEWER_POLL_MS", viewer.PollInterval)
	if viewer.PollInterval <= 0 || viewer.PollInterval > 1000 {
		viewer.PollInterval = DefaultViewerConfig().PollInterval
	}
	viewer.Settle = getEnvInt("VIEWER_SETTLE_MS", viewer.Settle)
	viewer.APIURL = getEnv("SERVER_API_URL", "")
	serverConfigLive.Viewer = viewer

	if getEnvBool("RENDER_HIDPI", false) && serverConfigLive.DeviceScale < 2 {
		serverConfigLive.DeviceScale = 2
	}

	return serverConfigLive
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	logLevel := getEnv("LOG_LEVEL", "debug")
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelDebug
	}

	handlerOptions := &slog.HandlerOptions{Level: level}

	logOutput := getEnv("LOG_OUTPUT", "file")
	var logWriter io.Writer

	if logOutput == "stdout" {
		logWriter = os.Stdout
	} else {
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "goflipbook.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stdout
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stdout
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}

// GetPreferredOutboundIP gets preferred outbound IP of this machine
func GetPreferredOutboundIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP, nil
}

// checkDirectory verifies that a directory exists at the given path
func checkDirectory(path string, logger *slog.Logger) error {
	info, err := os.Stat(path)
	if err != nil {
		logger.Debug("Cannot find directory at location specified", "path", path)
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	logger.Debug("Directory found", "path", path)
	return nil
}
