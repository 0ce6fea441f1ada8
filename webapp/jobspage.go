package webapp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/maxence-charriere/go-app/v10/pkg/app"

	"github.com/drummonds/goflipbook/apiclient"
)

// JobsPage lists recent render jobs
type JobsPage struct {
	app.Compo
	jobs          []apiclient.Job
	loading       bool
	error         string
	autoRefresh   bool
	refreshTicker *time.Ticker
}

// OnMount is called when the component is mounted
func (j *JobsPage) OnMount(ctx app.Context) {
	j.autoRefresh = true
	j.loadJobs(ctx)

	ctx.Async(func() {
		j.refreshTicker = time.NewTicker(2 * time.Second)
		for range j.refreshTicker.C {
			if j.autoRefresh {
				j.loadJobs(ctx)
			}
		}
	})
}

// OnDismount is called when the component is unmounted
func (j *JobsPage) OnDismount() {
	if j.refreshTicker != nil {
		j.refreshTicker.Stop()
	}
}

// Render renders the jobs page
func (j *JobsPage) Render() app.UI {
	return app.Div().
		Class("jobs-page").
		Body(
			app.H2().Text("Render Jobs"),
			app.P().Text("Every document opened in the viewer is rendered on the server. Progress and outcomes are listed here."),

			app.Div().Class("jobs-controls").Body(
				app.Button().
					Class("btn-primary").
					OnClick(j.onRefreshClick).
					Disabled(j.loading).
					Body(app.Text("Refresh")),
				app.Label().Class("auto-refresh-label").Body(
					app.Input().
						Type("checkbox").
						Checked(j.autoRefresh).
						OnChange(j.onAutoRefreshChange),
					app.Text(" Auto-refresh"),
				),
			),

			j.renderStatus(),
		)
}

// renderStatus renders the jobs list or status messages
func (j *JobsPage) renderStatus() app.UI {
	if j.loading && len(j.jobs) == 0 {
		return app.Div().Class("loading").Body(
			app.Text("Loading jobs..."),
		)
	}

	if j.error != "" {
		return app.Div().Class("error").Body(
			app.Text("Error: " + j.error),
		)
	}

	if len(j.jobs) == 0 {
		return app.Div().Class("info").Body(
			app.P().Text("No jobs yet. Open a document in the viewer to start one."),
		)
	}

	items := make([]app.UI, 0, len(j.jobs))
	for i := range j.jobs {
		items = append(items, j.renderJob(&j.jobs[i]))
	}
	return app.Div().Class("jobs-list").Body(items...)
}

// renderJob renders a single job card
func (j *JobsPage) renderJob(job *apiclient.Job) app.UI {
	return app.Div().
		Class("job-card job-"+job.Status).
		Body(
			app.Div().Class("job-header").Body(
				app.Div().Class("job-type").Body(
					app.Strong().Text(formatJobType(job.Type)),
					app.Span().Class("job-status-badge job-status-"+job.Status).
						Body(app.Text(job.Status)),
				),
				app.Div().Class("job-time").Body(
					app.Text(formatTime(job.CreatedAt, time.Now())),
				),
			),

			app.If(job.Status == "running",
				func() app.UI {
					return app.Div().Class("job-progress").Body(
						app.Div().Class("progress-bar").Body(
							app.Div().
								Class("progress-fill").
								Style("width", fmt.Sprintf("%d%%", job.Progress)),
						),
						app.Div().Class("progress-text").Body(
							app.Text(fmt.Sprintf("%d%% - %s", job.Progress, job.CurrentStep)),
						),
					)
				},
			),

			app.If(job.Message != "",
				func() app.UI {
					return app.Div().Class("job-message").Body(app.Text(job.Message))
				},
			),

			app.If(job.Error != "",
				func() app.UI {
					return app.Div().Class("job-error").Body(
						app.Strong().Text("Error: "),
						app.Text(job.Error),
					)
				},
			),

			app.If(job.Result != "",
				func() app.UI {
					return app.Div().Class("job-result").Body(app.Text(formatResult(job.Result)))
				},
			),

			app.Div().Class("job-footer").Body(
				app.Div().Class("job-id").Body(app.Text("ID: "+job.ID)),
				app.If(job.SetURL != "",
					func() app.UI {
						return app.Div().Class("job-set").Body(app.Text("Pages held on server"))
					},
				),
			),
		)
}

// formatJobType converts job type to readable format
func formatJobType(jobType string) string {
	switch jobType {
	case "render":
		return "Document Render"
	case "cleanup":
		return "Cleanup"
	default:
		return jobType
	}
}

// formatTime renders an RFC 3339 time relative to now when recent
func formatTime(timeStr string, now time.Time) string {
	if timeStr == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, timeStr)
	if err != nil {
		return timeStr
	}

	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "Just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	return t.Format("Jan 2, 2006 at 3:04 PM")
}

// formatResult summarises a render result
func formatResult(result string) string {
	var r struct {
		Name       string `json:"name"`
		Title      string `json:"title"`
		PDFVersion string `json:"pdfVersion"`
		Pages      int    `json:"pages"`
		Bytes      int64  `json:"bytes"`
		Backend    string `json:"backend"`
		Duration   string `json:"duration"`
	}
	if err := json.Unmarshal([]byte(result), &r); err != nil || r.Pages == 0 {
		return result
	}

	parts := []string{fmt.Sprintf("%d pages", r.Pages)}
	if r.Title != "" {
		parts = append([]string{fmt.Sprintf("%q", r.Title)}, parts...)
	}
	if r.PDFVersion != "" {
		parts = append(parts, "PDF "+r.PDFVersion)
	}
	if r.Bytes > 0 {
		parts = append(parts, fmt.Sprintf("%.1f MB", float64(r.Bytes)/(1<<20)))
	}
	if r.Duration != "" {
		parts = append(parts, "in "+r.Duration)
	}
	if r.Backend != "" {
		parts = append(parts, "with "+r.Backend)
	}
	return strings.Join(parts, ", ")
}

// onRefreshClick handles the refresh button click
func (j *JobsPage) onRefreshClick(ctx app.Context, e app.Event) {
	j.loadJobs(ctx)
}

// onAutoRefreshChange handles auto-refresh checkbox change
func (j *JobsPage) onAutoRefreshChange(ctx app.Context, e app.Event) {
	j.autoRefresh = ctx.JSSrc().Get("checked").Bool()
}

// loadJobs fetches jobs from the API
func (j *JobsPage) loadJobs(ctx app.Context) {
	ctx.Dispatch(func(ctx app.Context) {
		j.loading = true
	})

	ctx.Async(func() {
		jobs, err := NewAPIClient().RecentJobs(context.Background(), 50)
		ctx.Dispatch(func(ctx app.Context) {
			j.loading = false
			if err != nil {
				j.error = "Failed to load jobs: " + err.Error()
				return
			}
			j.error = ""
			j.jobs = jobs
		})
	})
}
