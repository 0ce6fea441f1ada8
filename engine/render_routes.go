package engine

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/drummonds/goflipbook/database"
	"github.com/drummonds/goflipbook/document"
	"github.com/drummonds/goflipbook/internal/build"
)

// RenderDocument accepts a PDF upload and starts rendering it in the background
// @Summary Render a PDF into page images
// @Description Upload a PDF; the response carries the job id to poll for progress. The rendered set is available under the same id once the job completes.
// @Tags Render
// @Accept multipart/form-data
// @Produce json
// @Param document formData file true "PDF document"
// @Success 202 {object} map[string]interface{} "Job created with jobId"
// @Failure 400 {object} map[string]interface{} "No document in request"
// @Failure 409 {object} map[string]interface{} "A render is already running"
// @Failure 413 {object} map[string]interface{} "Document too large"
// @Failure 415 {object} map[string]interface{} "Not a PDF"
// @Router /render [post]
func (serverHandler *ServerHandler) RenderDocument(c echo.Context) error {
	fileHeader, err := c.FormFile("document")
	if isTooLarge(err) {
		return serverHandler.tooLarge(c)
	}
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "No document provided",
		})
	}

	mediaType := fileHeader.Header.Get("Content-Type")
	if !document.IsSupported(fileHeader.Filename, mediaType) {
		Logger.Info("Rejected upload", "file", fileHeader.Filename, "mediaType", mediaType)
		return c.JSON(http.StatusUnsupportedMediaType, map[string]interface{}{
			"error": document.ErrInvalidInputType.Error(),
		})
	}

	limit := serverHandler.ServerConfig.MaxUploadBytes
	if limit > 0 && fileHeader.Size > limit {
		return serverHandler.tooLarge(c)
	}

	src, err := fileHeader.Open()
	if err != nil {
		Logger.Error("Unable to open upload", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Unable to read document",
		})
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		Logger.Error("Unable to read upload", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Unable to read document",
		})
	}

	if !serverHandler.tryStartRender() {
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error": "A document is already being rendered",
		})
	}

	job, err := serverHandler.DB.CreateJob(database.JobTypeRender, "Rendering "+fileHeader.Filename)
	if err != nil {
		serverHandler.finishRender()
		Logger.Error("Failed to create render job", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to create job",
		})
	}

	file := document.File{Name: fileHeader.Filename, MediaType: mediaType, Data: data}
	serverHandler.wg.Add(1)
	go serverHandler.renderJobFunc(job.ID, file)

	Logger.Info("Render started", "jobID", job.ID.String(), "file", file.Name, "bytes", len(data))
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "Render started",
		"jobId":   job.ID.String(),
	})
}

// GetRenderManifest lists the pages of a rendered set
// @Summary Get rendered set manifest
// @Description List the pages of a completed render with their sizes and image URLs
// @Tags Render
// @Produce json
// @Param id path string true "Set ID (the render job ULID)"
// @Success 200 {object} document.Manifest "Rendered set manifest"
// @Failure 404 {object} map[string]interface{} "Set not found or expired"
// @Router /render/{id} [get]
func (serverHandler *ServerHandler) GetRenderManifest(c echo.Context) error {
	stored, ok := serverHandler.Store.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "Rendered document not found",
		})
	}
	return c.JSON(http.StatusOK, document.NewManifest(stored.ID, stored.Name, stored.Set))
}

// GetRenderPage serves one encoded page image
// @Summary Get a page image
// @Description Serve the JPEG image of a single page of a rendered set
// @Tags Render
// @Produce jpeg
// @Param id path string true "Set ID"
// @Param page path int true "1-based page number"
// @Success 200 {file} binary "Page image"
// @Failure 400 {object} map[string]interface{} "Invalid page number"
// @Failure 404 {object} map[string]interface{} "Set or page not found"
// @Router /render/{id}/pages/{page} [get]
func (serverHandler *ServerHandler) GetRenderPage(c echo.Context) error {
	n, err := strconv.Atoi(c.Param("page"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Invalid page number",
		})
	}
	stored, ok := serverHandler.Store.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "Rendered document not found",
		})
	}
	page, ok := stored.Set.Page(n)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": fmt.Sprintf("Page %d not found", n),
		})
	}
	c.Response().Header().Set("Cache-Control", "private, max-age=3600")
	return c.Blob(http.StatusOK, page.MIME, page.Data)
}

// DeleteRender discards a rendered set
// @Summary Discard a rendered set
// @Tags Render
// @Param id path string true "Set ID"
// @Success 204 "Deleted"
// @Failure 404 {object} map[string]interface{} "Set not found"
// @Router /render/{id} [delete]
func (serverHandler *ServerHandler) DeleteRender(c echo.Context) error {
	if !serverHandler.Store.Delete(c.Param("id")) {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "Rendered document not found",
		})
	}
	return c.NoContent(http.StatusNoContent)
}

// GetDemo downloads the configured demo document and passes it through
// @Summary Fetch the demo document
// @Description Download the demo PDF server side so the browser avoids cross-origin restrictions
// @Tags Render
// @Produce application/pdf
// @Success 200 {file} binary "Demo PDF"
// @Failure 502 {object} map[string]interface{} "Demo download failed"
// @Router /demo [get]
func (serverHandler *ServerHandler) GetDemo(c echo.Context) error {
	name, data, err := serverHandler.fetchDemo(c.Request())
	if err != nil {
		Logger.Warn("Demo download failed", "url", serverHandler.ServerConfig.DemoURL, "error", err)
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"error": "Unable to download the demo document",
		})
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("inline", map[string]string{"filename": name}))
	return c.Blob(http.StatusOK, document.MIMEPDF, data)
}

func (serverHandler *ServerHandler) fetchDemo(r *http.Request) (string, []byte, error) {
	demoURL := serverHandler.ServerConfig.DemoURL
	if demoURL == "" {
		return "", nil, errors.New("no demo document configured")
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, demoURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := serverHandler.HTTPClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to download demo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("demo server returned status %d", resp.StatusCode)
	}

	limit := serverHandler.ServerConfig.MaxUploadBytes
	if limit <= 0 {
		limit = 64 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", nil, fmt.Errorf("failed to read demo: %w", err)
	}
	if int64(len(data)) > limit {
		return "", nil, fmt.Errorf("demo is larger than %d bytes", limit)
	}

	name := path.Base(req.URL.Path)
	if name == "" || name == "/" || name == "." {
		name = "demo.pdf"
	}
	return name, data, nil
}

// GetHealth reports server status
// @Summary Health check
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]interface{} "Server status"
// @Router /health [get]
func (serverHandler *ServerHandler) GetHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"version":      build.Version,
		"backend":      serverHandler.ServerConfig.Backend,
		"databaseType": serverHandler.ServerConfig.DatabaseType,
		"rendering":    serverHandler.Rendering(),
		"storedSets":   serverHandler.Store.Len(),
	})
}

// GetViewerConfig serves the browser configuration script
func (serverHandler *ServerHandler) GetViewerConfig(c echo.Context) error {
	script, err := serverHandler.ServerConfig.Viewer.Script()
	if err != nil {
		Logger.Error("Unable to encode viewer config", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Unable to encode viewer config",
		})
	}
	return c.Blob(http.StatusOK, "application/javascript", script)
}

// multipartOverhead is the allowance for boundaries and part headers on top of the document itself
const multipartOverhead = 64 << 10

// limitUpload refuses render uploads whose body passes the configured size,
// before the multipart form is read
func (serverHandler *ServerHandler) limitUpload() echo.MiddlewareFunc {
	limit := serverHandler.ServerConfig.MaxUploadBytes
	if limit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	bodyLimit := middleware.BodyLimit(fmt.Sprintf("%dK", (limit+multipartOverhead+1023)>>10))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		limited := bodyLimit(next)
		return func(c echo.Context) error {
			err := limited(c)
			if isTooLarge(err) {
				return serverHandler.tooLarge(c)
			}
			return err
		}
	}
}

func (serverHandler *ServerHandler) tooLarge(c echo.Context) error {
	return c.JSON(http.StatusRequestEntityTooLarge, map[string]interface{}{
		"error": fmt.Sprintf("Document is larger than %d MB", serverHandler.ServerConfig.MaxUploadBytes>>20),
	})
}

func isTooLarge(err error) bool {
	var httpErr *echo.HTTPError
	return errors.As(err, &httpErr) && httpErr.Code == http.StatusRequestEntityTooLarge
}

// RegisterRoutes adds every API route under /api
func (serverHandler *ServerHandler) RegisterRoutes() {
	e := serverHandler.Echo

	// Render API routes
	e.POST("/api/render", serverHandler.RenderDocument, serverHandler.limitUpload())
	e.GET("/api/render/:id", serverHandler.GetRenderManifest)
	e.GET("/api/render/:id/pages/:page", serverHandler.GetRenderPage)
	e.DELETE("/api/render/:id", serverHandler.DeleteRender)
	e.GET("/api/demo", serverHandler.GetDemo)

	// Job tracking API routes
	e.GET("/api/jobs", serverHandler.GetRecentJobs)
	e.GET("/api/jobs/active", serverHandler.GetActiveJobs)
	e.GET("/api/jobs/:id", serverHandler.GetJob)

	// Admin API routes
	e.GET("/api/health", serverHandler.GetHealth)
	e.GET("/config.js", serverHandler.GetViewerConfig)
}
