package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"

	"github.com/drummonds/goflipbook/config"
	"github.com/drummonds/goflipbook/database"
	"github.com/drummonds/goflipbook/document"
)

// Renderer turns an uploaded document into page images
type Renderer interface {
	Render(ctx context.Context, file document.File, progress document.ProgressFunc) (*document.RenderedSet, error)
}

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	DB           database.Repository
	Echo         *echo.Echo
	ServerConfig config.ServerConfig
	Renderer     Renderer
	Store        *SetStore
	HTTPClient   *http.Client // used for the demo download

	active    *semaphore.Weighted // one render at a time
	rendering atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewServerHandler wires the handler; renders run under a context that Shutdown cancels
func NewServerHandler(db database.Repository, e *echo.Echo, serverConfig config.ServerConfig, renderer Renderer) *ServerHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &ServerHandler{
		DB:           db,
		Echo:         e,
		ServerConfig: serverConfig,
		Renderer:     renderer,
		Store:        NewSetStore(serverConfig.TTL),
		HTTPClient:   &http.Client{Timeout: 60 * time.Second},
		active:       semaphore.NewWeighted(1),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Shutdown cancels any in-flight render and waits for it to record its outcome
func (serverHandler *ServerHandler) Shutdown() {
	serverHandler.cancel()
	serverHandler.wg.Wait()
}

// tryStartRender claims the single render slot
func (serverHandler *ServerHandler) tryStartRender() bool {
	if !serverHandler.active.TryAcquire(1) {
		return false
	}
	serverHandler.rendering.Store(true)
	return true
}

// finishRender frees the render slot
func (serverHandler *ServerHandler) finishRender() {
	serverHandler.rendering.Store(false)
	serverHandler.active.Release(1)
}

// Rendering reports whether a render is in progress
func (serverHandler *ServerHandler) Rendering() bool {
	return serverHandler.rendering.Load()
}

// renderJobFunc renders file for job and publishes the result to the store.
// It owns the render slot and releases it when done.
func (serverHandler *ServerHandler) renderJobFunc(jobID ulid.ULID, file document.File) {
	db := serverHandler.DB
	logger := Logger.With("jobID", jobID.String(), "file", file.Name)
	started := time.Now()

	defer serverHandler.wg.Done()
	defer serverHandler.finishRender()
	// Add panic recovery and update job status on panic
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered in render job", "panic", r)
			db.UpdateJobError(jobID, fmt.Sprintf("Panic: %v", r))
		}
	}()

	if err := db.StartJob(jobID, 0, "Reading document"); err != nil {
		logger.Error("Failed to update job status", "error", err)
	}

	reportedTotal := false
	set, err := serverHandler.Renderer.Render(serverHandler.ctx, file, func(p document.Progress) {
		if !reportedTotal {
			reportedTotal = true
			if err := db.StartJob(jobID, p.Total, "Rendering"); err != nil {
				logger.Warn("Failed to record page count", "error", err)
			}
		}
		if err := db.UpdateJobProgress(jobID, p.Percent, p.Status); err != nil {
			logger.Warn("Failed to update job progress", "error", err)
		}
	})
	if err != nil {
		logger.Error("Render failed", "error", err)
		if serverHandler.ctx.Err() != nil {
			db.UpdateJobStatus(jobID, database.JobStatusCancelled, "Server shutting down")
			return
		}
		if err := db.UpdateJobError(jobID, document.UserMessage(err)); err != nil {
			logger.Error("Failed to record job error", "error", err)
		}
		return
	}

	stored := serverHandler.Store.Put(jobID.String(), file.Name, set)
	result := database.RenderResult{
		SetID:      stored.ID,
		Name:       file.Name,
		Title:      set.Title,
		PDFVersion: set.PDFVersion,
		Pages:      set.Len(),
		Bytes:      stored.Bytes(),
		Backend:    serverHandler.ServerConfig.Backend,
		Duration:   time.Since(started).Round(time.Millisecond).String(),
	}
	if err := db.CompleteJob(jobID, result.Encode()); err != nil {
		logger.Error("Failed to mark job as complete", "error", err)
	}
	logger.Info("Render job completed", "pages", set.Len(), "bytes", result.Bytes, "duration", result.Duration)
}
