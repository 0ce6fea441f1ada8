package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/labstack/echo/v4"

	"github.com/drummonds/goflipbook/config"
	"github.com/drummonds/goflipbook/database"
	"github.com/drummonds/goflipbook/document"
)

// fakeRenderer produces numbered pages, or blocks until released
type fakeRenderer struct {
	pages   int
	err     error
	release chan struct{}
	panics  bool

	mu    sync.Mutex
	calls int
}

func (r *fakeRenderer) Render(ctx context.Context, file document.File, progress document.ProgressFunc) (*document.RenderedSet, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	if r.panics {
		panic("codec exploded")
	}
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	set := &document.RenderedSet{}
	for i := 1; i <= r.pages; i++ {
		set.Pages = append(set.Pages, document.PageImage{
			Index: i, MIME: document.MIMEJPEG, Width: 612, Height: 792,
			Data: []byte(fmt.Sprintf("jpeg-%d", i)),
		})
		progress(document.NewProgress(i, r.pages))
	}
	return set, nil
}

func setupTestServer(t *testing.T, renderer Renderer) (*echo.Echo, *ServerHandler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	Logger = logger
	database.Logger = logger

	serverConfig := config.ServerConfig{
		DatabaseType:   "sqlite",
		DatabaseDbname: filepath.Join(t.TempDir(), "jobs.sqlite"),
		RenderConfig: config.RenderConfig{
			Backend:        "fake",
			MaxUploadBytes: 1 << 20,
			TTL:            time.Minute,
		},
		Viewer: config.DefaultViewerConfig(),
	}
	db, err := database.NewRepository(serverConfig)
	if err != nil {
		t.Fatalf("Failed to setup database: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	serverHandler := NewServerHandler(db, e, serverConfig, renderer)
	serverHandler.RegisterRoutes()

	t.Cleanup(func() {
		serverHandler.Shutdown()
		db.Close()
	})
	return e, serverHandler
}

func uploadRequest(t *testing.T, field, name string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if field != "" {
		part, err := writer.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		part.Write(content)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/render", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func startRender(t *testing.T, e *echo.Echo, name string) string {
	t.Helper()
	rec := serve(e, uploadRequest(t, "document", name, []byte("%PDF-1.4 test")))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["jobId"] == "" {
		t.Fatalf("No jobId in response: %s", rec.Body.String())
	}
	return resp["jobId"]
}

func waitForJob(t *testing.T, e *echo.Echo, jobID string) jobResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200 polling job, got %d", rec.Code)
		}
		var job jobResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
			t.Fatalf("Failed to decode job: %v", err)
		}
		if job.Finished() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Job %s did not finish", jobID)
	return jobResponse{}
}

func TestRenderLifecycle(t *testing.T) {
	e, serverHandler := setupTestServer(t, &fakeRenderer{pages: 3})

	jobID := startRender(t, e, "brochure.pdf")
	job := waitForJob(t, e, jobID)
	if job.Status != database.JobStatusCompleted || job.Progress != 100 || job.TotalSteps != 3 {
		t.Fatalf("Unexpected job: %+v", job)
	}
	if job.SetURL != "/api/render/"+jobID {
		t.Errorf("SetURL = %q", job.SetURL)
	}
	result, err := database.RenderResultOf(&job.Job)
	if err != nil || result.Pages != 3 || result.Name != "brochure.pdf" {
		t.Errorf("Unexpected result %+v (%v)", result, err)
	}

	t.Run("Manifest", func(t *testing.T) {
		rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/render/"+jobID, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var manifest document.Manifest
		if err := json.Unmarshal(rec.Body.Bytes(), &manifest); err != nil {
			t.Fatalf("Failed to decode manifest: %v", err)
		}
		var urls []string
		for _, p := range manifest.Pages {
			urls = append(urls, p.URL)
		}
		want := []string{
			"/api/render/" + jobID + "/pages/1",
			"/api/render/" + jobID + "/pages/2",
			"/api/render/" + jobID + "/pages/3",
		}
		if diff := cmp.Diff(want, urls); diff != "" {
			t.Errorf("page URLs mismatch (-want +got):\n%s", diff)
		}
		if manifest.Pages[0].Width != 612 || manifest.Pages[0].MIME != document.MIMEJPEG {
			t.Errorf("Unexpected page entry: %+v", manifest.Pages[0])
		}
	})

	t.Run("Page image", func(t *testing.T) {
		rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/render/"+jobID+"/pages/2", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != document.MIMEJPEG {
			t.Errorf("Content-Type = %q", ct)
		}
		if rec.Body.String() != "jpeg-2" {
			t.Errorf("Body = %q, want jpeg-2", rec.Body.String())
		}

		for _, page := range []string{"0", "4", "x"} {
			rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/render/"+jobID+"/pages/"+page, nil))
			if rec.Code == http.StatusOK {
				t.Errorf("Page %s served", page)
			}
		}
	})

	t.Run("History", func(t *testing.T) {
		rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/jobs?limit=5", nil))
		var jobs []jobResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
			t.Fatalf("Failed to decode jobs: %v", err)
		}
		if len(jobs) != 1 || jobs[0].ID.String() != jobID {
			t.Errorf("Unexpected history: %+v", jobs)
		}

		rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/jobs/active", nil))
		if strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Errorf("Expected no active jobs, got %s", rec.Body.String())
		}
	})

	t.Run("Delete", func(t *testing.T) {
		rec := serve(e, httptest.NewRequest(http.MethodDelete, "/api/render/"+jobID, nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("Expected 204, got %d", rec.Code)
		}
		rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/render/"+jobID, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404 after delete, got %d", rec.Code)
		}
		rec = serve(e, httptest.NewRequest(http.MethodDelete, "/api/render/"+jobID, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404 on second delete, got %d", rec.Code)
		}
		if serverHandler.Store.Len() != 0 {
			t.Error("Store not empty")
		}
	})
}

func TestRenderRejectsBadUploads(t *testing.T) {
	renderer := &fakeRenderer{pages: 1}
	e, _ := setupTestServer(t, renderer)

	tests := []struct {
		name string
		req  *http.Request
		code int
	}{
		{"not a pdf", uploadRequest(t, "document", "notes.txt", []byte("hello")), http.StatusUnsupportedMediaType},
		{"missing field", uploadRequest(t, "", "", nil), http.StatusBadRequest},
		{"wrong field", uploadRequest(t, "upload", "a.pdf", []byte("%PDF-")), http.StatusBadRequest},
		{"too large", uploadRequest(t, "document", "big.pdf", bytes.Repeat([]byte("x"), 2<<20)), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(e, tt.req)
			if rec.Code != tt.code {
				t.Errorf("Expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), `"error"`) {
				t.Errorf("Expected JSON error body, got %s", rec.Body.String())
			}
		})
	}

	if renderer.calls != 0 {
		t.Errorf("Renderer called %d times for rejected uploads", renderer.calls)
	}
}

// countingReader records how much of a request body was consumed
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) Close() error { return nil }

func TestRenderRefusesOversizedBodyUnread(t *testing.T) {
	renderer := &fakeRenderer{pages: 1}
	e, _ := setupTestServer(t, renderer)

	req := uploadRequest(t, "document", "huge.pdf", bytes.Repeat([]byte("x"), 4<<20))
	body := &countingReader{r: req.Body}
	req.Body = body

	rec := serve(e, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "larger than 1 MB") {
		t.Errorf("Unexpected error body %s", rec.Body.String())
	}
	if body.n != 0 {
		t.Errorf("Expected the body to be refused unread, %d bytes were consumed", body.n)
	}

	// A document just under the limit still fits with its multipart framing
	rec = serve(e, uploadRequest(t, "document", "fits.pdf", append([]byte("%PDF-1.4 "), bytes.Repeat([]byte("x"), (1<<20)-16)...)))
	if rec.Code != http.StatusAccepted {
		t.Errorf("Expected 202 for a document within the limit, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRenderOneAtATime(t *testing.T) {
	renderer := &fakeRenderer{pages: 2, release: make(chan struct{})}
	e, serverHandler := setupTestServer(t, renderer)

	jobID := startRender(t, e, "first.pdf")
	if !serverHandler.Rendering() {
		t.Error("Expected a render in progress")
	}

	rec := serve(e, uploadRequest(t, "document", "second.pdf", []byte("%PDF-")))
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 while rendering, got %d", rec.Code)
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/jobs/active", nil))
	var active []jobResponse
	json.Unmarshal(rec.Body.Bytes(), &active)
	if len(active) != 1 || active[0].ID.String() != jobID {
		t.Errorf("Expected the first job active, got %s", rec.Body.String())
	}

	close(renderer.release)
	waitForJob(t, e, jobID)

	deadline := time.Now().Add(2 * time.Second)
	for serverHandler.Rendering() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	startRender(t, e, "third.pdf")
}

func TestRenderFailureRecorded(t *testing.T) {
	renderer := &fakeRenderer{err: &document.PageRenderError{Page: 2, Err: errors.New("bad stream")}}
	e, serverHandler := setupTestServer(t, renderer)

	jobID := startRender(t, e, "broken.pdf")
	job := waitForJob(t, e, jobID)
	if job.Status != database.JobStatusFailed {
		t.Fatalf("Expected failed job, got %+v", job)
	}
	if job.Error != "Page 2 could not be rendered." {
		t.Errorf("Error = %q", job.Error)
	}
	if job.SetURL != "" || serverHandler.Store.Len() != 0 {
		t.Error("Partial set published for a failed render")
	}
}

func TestRenderPanicRecovered(t *testing.T) {
	e, _ := setupTestServer(t, &fakeRenderer{panics: true})

	jobID := startRender(t, e, "boom.pdf")
	job := waitForJob(t, e, jobID)
	if job.Status != database.JobStatusFailed || !strings.Contains(job.Error, "Panic") {
		t.Errorf("Unexpected job after panic: %+v", job)
	}
}

func TestShutdownCancelsRender(t *testing.T) {
	renderer := &fakeRenderer{pages: 1, release: make(chan struct{})}
	e, serverHandler := setupTestServer(t, renderer)

	jobID := startRender(t, e, "slow.pdf")
	serverHandler.Shutdown()

	job := waitForJob(t, e, jobID)
	if job.Status != database.JobStatusCancelled {
		t.Errorf("Expected cancelled job, got %s", job.Status)
	}
}

func TestGetJobErrors(t *testing.T) {
	e, _ := setupTestServer(t, &fakeRenderer{})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/jobs/not-a-ulid", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/jobs/01ARZ3NDEKTSV4RRFFQ69G5FAV", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestDemo(t *testing.T) {
	pdf := []byte("%PDF-1.4 demo")
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.pdf" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(pdf)
	}))
	defer upstream.Close()

	e, serverHandler := setupTestServer(t, &fakeRenderer{})

	t.Run("Passes the document through", func(t *testing.T) {
		serverHandler.ServerConfig.DemoURL = upstream.URL + "/files/sample.pdf"
		rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/demo", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if !bytes.Equal(rec.Body.Bytes(), pdf) {
			t.Errorf("Body = %q", rec.Body.String())
		}
		if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "sample.pdf") {
			t.Errorf("Content-Disposition = %q", cd)
		}
	})

	t.Run("Upstream errors are bad gateway", func(t *testing.T) {
		for _, url := range []string{upstream.URL + "/missing.pdf", "http://127.0.0.1:1/demo.pdf", ""} {
			serverHandler.ServerConfig.DemoURL = url
			rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/demo", nil))
			if rec.Code != http.StatusBadGateway {
				t.Errorf("%q: expected 502, got %d", url, rec.Code)
			}
		}
	})
}

func TestHealthAndConfig(t *testing.T) {
	e, _ := setupTestServer(t, &fakeRenderer{})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	var health map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health["status"] != "ok" || health["rendering"] != false || health["backend"] != "fake" {
		t.Errorf("Unexpected health: %v", health)
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/config.js", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "window.flipbookConfig") {
		t.Errorf("Unexpected config.js: %d %s", rec.Code, rec.Body.String())
	}
}

func TestSetStoreExpiry(t *testing.T) {
	store := NewSetStore(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.Put("a", "a.pdf", &document.RenderedSet{})
	store.Put("b", "b.pdf", &document.RenderedSet{})

	now = now.Add(50 * time.Second)
	store.Get("a")

	now = now.Add(20 * time.Second)
	if pruned := store.Prune(); pruned != 1 {
		t.Errorf("Pruned %d, want 1", pruned)
	}
	if _, ok := store.Get("a"); !ok {
		t.Error("Recently used set expired")
	}
	if _, ok := store.Get("b"); ok {
		t.Error("Idle set kept")
	}
}

func TestPruneJobsJobFunc(t *testing.T) {
	_, serverHandler := setupTestServer(t, &fakeRenderer{})
	serverHandler.ServerConfig.JobRetention = time.Nanosecond

	job, err := serverHandler.DB.CreateJob(database.JobTypeRender, "old")
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	serverHandler.DB.CompleteJob(job.ID, "")
	time.Sleep(5 * time.Millisecond)

	serverHandler.pruneJobsJobFunc()
	if _, err := serverHandler.DB.GetJob(job.ID); err == nil {
		t.Error("Old job survived pruning")
	}
}

func TestStartupChecks(t *testing.T) {
	_, serverHandler := setupTestServer(t, &fakeRenderer{})

	job, _ := serverHandler.DB.CreateJob(database.JobTypeRender, "left over")
	serverHandler.ServerConfig.WebDir = t.TempDir()
	if err := serverHandler.StartupChecks(); err != nil {
		t.Fatalf("StartupChecks: %v", err)
	}
	got, _ := serverHandler.DB.GetJob(job.ID)
	if got.Status != database.JobStatusFailed {
		t.Errorf("Interrupted job status %s, want failed", got.Status)
	}
}
