package apiclient

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"time"

	"github.com/drummonds/goflipbook/document"
	"github.com/drummonds/goflipbook/viewer"
)

var parseDisposition = mime.ParseMediaType

// RemoteRenderer renders documents on the server and downloads the pages
type RemoteRenderer struct {
	client       *Client
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewRemoteRenderer polls job progress every pollInterval
func NewRemoteRenderer(client *Client, pollInterval time.Duration, logger *slog.Logger) *RemoteRenderer {
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteRenderer{client: client, pollInterval: pollInterval, logger: logger}
}

// Render uploads file, reports progress until the job finishes and returns
// the downloaded pages. The server copy is discarded once downloaded.
func (r *RemoteRenderer) Render(ctx context.Context, file document.File, progress document.ProgressFunc) (*document.RenderedSet, error) {
	id, err := r.client.Upload(ctx, file)
	if err != nil {
		return nil, err
	}
	logger := r.logger.With("jobID", id, "file", file.Name)
	logger.Info("Render job started")

	if err := r.wait(ctx, id, progress); err != nil {
		return nil, err
	}

	manifest, err := r.client.Manifest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch rendered pages: %w", err)
	}

	set := &document.RenderedSet{
		Pages:      make([]document.PageImage, 0, len(manifest.Pages)),
		Title:      manifest.Title,
		PDFVersion: manifest.PDFVersion,
	}
	for _, p := range manifest.Pages {
		data, err := r.client.Page(ctx, p.URL)
		if err != nil {
			return nil, fmt.Errorf("unable to fetch page %d: %w", p.Index, err)
		}
		page := p.PageImage
		page.Data = data
		set.Pages = append(set.Pages, page)
	}

	if err := r.client.Delete(ctx, id); err != nil {
		logger.Debug("Unable to discard server copy", "error", err)
	}
	logger.Info("Rendered pages downloaded", "pages", set.Len())
	return set, nil
}

func (r *RemoteRenderer) wait(ctx context.Context, id string, progress document.ProgressFunc) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	lastPercent := -1
	for {
		job, err := r.client.Job(ctx, id)
		if err != nil {
			return err
		}

		if job.TotalSteps > 0 && job.Progress != lastPercent && progress != nil {
			lastPercent = job.Progress
			progress(jobProgress(job))
		}

		switch job.Status {
		case StatusCompleted:
			return nil
		case StatusFailed, StatusCancelled:
			msg := job.Error
			if msg == "" {
				msg = job.Message
			}
			return &RenderFailedError{JobID: id, Message: msg}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// jobProgress rebuilds a progress report from a polled job
func jobProgress(job *Job) document.Progress {
	completed := (job.Progress*job.TotalSteps + 50) / 100
	if job.Status == StatusCompleted {
		completed = job.TotalSteps
	}
	p := document.NewProgress(completed, job.TotalSteps)
	p.Percent = job.Progress
	p.Fraction = float64(job.Progress) / 100
	if job.CurrentStep != "" {
		p.Status = job.CurrentStep
	}
	return p
}

// DemoFetcher downloads the demo document through the render service
type DemoFetcher struct {
	Client *Client
}

// Fetch returns the demo document or a NetworkFetchError
func (f DemoFetcher) Fetch(ctx context.Context) (document.File, error) {
	file, err := f.Client.Demo(ctx)
	if err != nil {
		return document.File{}, &viewer.NetworkFetchError{URL: f.Client.url("/api/demo"), Err: err}
	}
	return file, nil
}
