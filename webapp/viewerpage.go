package webapp

import (
	"context"
	"fmt"

	"github.com/maxence-charriere/go-app/v10/pkg/app"

	"github.com/drummonds/goflipbook/apiclient"
	"github.com/drummonds/goflipbook/config"
	"github.com/drummonds/goflipbook/document"
	"github.com/drummonds/goflipbook/viewer"
)

// ViewerPage is the flipbook viewer: toolbar, progress and book stage
type ViewerPage struct {
	app.Compo

	client     *apiclient.Client
	session    *viewer.Session
	controller *viewer.Controller
	removeKeys func()

	snap   viewer.Snapshot
	notice *viewer.Notice
}

// uiNotifier shows session notices on the page
type uiNotifier struct {
	ctx  app.Context
	page *ViewerPage
}

func (n uiNotifier) Notify(notice viewer.Notice) {
	Logger.Info("Notice", "level", notice.Level, "message", notice.Message, "error", notice.Err)
	n.ctx.Dispatch(func(ctx app.Context) {
		n.page.notice = &notice
	})
}

// OnMount wires the session to the browser
func (v *ViewerPage) OnMount(ctx app.Context) {
	if !app.IsClient {
		return
	}
	settings := ViewerSettings()
	pollInterval := config.Duration(settings.PollInterval, viewer.DefaultBuilderOptions().PollInterval)

	v.client = NewAPIClient()
	renderer := apiclient.NewRemoteRenderer(v.client, pollInterval, Logger)

	builderOpts := viewer.DefaultBuilderOptions()
	builderOpts.MinWidth = settings.MinBookWidth
	builderOpts.MaxWidth = settings.MaxBookWidth
	builderOpts.MinHeight = settings.MinBookHeight
	builderOpts.MaxHeight = settings.MaxBookHeight
	builderOpts.PollInterval = pollInterval
	builderOpts.Logger = Logger
	builder := viewer.NewBuilder(PageFlipFactory{HostID: bookHostID}, builderOpts)

	v.session = viewer.NewSession(renderer, builder, DOMStage{StageID: stageID, HostID: bookHostID}, uiNotifier{ctx: ctx, page: v}, viewer.Options{
		MinZoom:  settings.MinZoom,
		MaxZoom:  settings.MaxZoom,
		ZoomStep: settings.ZoomStep,
		Settle:   config.Duration(settings.Settle, viewer.DefaultOptions().Settle),
		Logger:   Logger,
	})
	v.session.Subscribe(func(s viewer.Snapshot) {
		ctx.Dispatch(func(ctx app.Context) {
			v.snap = s
		})
	})
	v.snap = v.session.Snapshot()

	v.controller = viewer.NewController(v.session, FullscreenHost{}, config.Duration(settings.ResizeDebounce, 0), Logger)
	v.removeKeys = app.Window().AddEventListener("keydown", v.onKeyDown)
}

// OnDismount releases the book and the key listener
func (v *ViewerPage) OnDismount() {
	if v.removeKeys != nil {
		v.removeKeys()
	}
	if v.controller != nil {
		v.controller.Stop()
	}
	if v.session != nil {
		v.session.Close()
	}
}

// OnResize rebuilds the book once resizing settles
func (v *ViewerPage) OnResize(ctx app.Context) {
	if v.controller != nil {
		v.controller.Resize()
	}
}

func (v *ViewerPage) onKeyDown(ctx app.Context, e app.Event) {
	if v.controller == nil {
		return
	}
	if v.controller.HandleKey(e.Get("key").String()) {
		e.PreventDefault()
	}
}

// Render renders the viewer page
func (v *ViewerPage) Render() app.UI {
	viewing := v.snap.State == viewer.StateViewing
	loading := v.snap.State == viewer.StateLoading

	stageClass := "book-stage"
	if !viewing {
		stageClass += " book-stage-empty"
	}

	return app.Div().
		Class("viewer-page").
		Body(
			v.renderToolbar(viewing, loading),
			app.If(loading, func() app.UI {
				return v.renderProgress()
			}),
			app.If(v.notice != nil, func() app.UI {
				return v.renderNotice()
			}),
			app.If(v.snap.State == viewer.StateIdle && v.notice == nil, func() app.UI {
				return app.Div().Class("info").Body(
					app.P().Text("Open a PDF to read it as a book, or load the demo document."),
				)
			}),
			app.Div().
				ID(stageID).
				Class(stageClass).
				Body(
					app.Div().ID(bookHostID).Class("book-host"),
				),
		)
}

func (v *ViewerPage) renderToolbar(viewing, loading bool) app.UI {
	return app.Div().Class("viewer-toolbar").Body(
		app.Label().Class("btn-primary file-picker").Body(
			app.Text("Open PDF"),
			app.Input().
				Type("file").
				Accept(".pdf,"+document.MIMEPDF).
				Disabled(loading).
				OnChange(v.onFileChange),
		),
		app.Button().
			Class("btn-secondary").
			Disabled(loading).
			OnClick(v.onDemoClick).
			Text("Demo"),
		app.Div().Class("toolbar-group").Body(
			v.commandButton("‹", "Previous page", viewer.CmdPrev, viewing),
			app.Span().Class("page-counter").Text(v.snap.Counter()),
			v.commandButton("›", "Next page", viewer.CmdNext, viewing),
		),
		app.Div().Class("toolbar-group").Body(
			v.commandButton("−", "Zoom out", viewer.CmdZoomOut, viewing),
			app.Span().Class("zoom-level").Text(fmt.Sprintf("%.0f%%", v.snap.Zoom*100)),
			v.commandButton("+", "Zoom in", viewer.CmdZoomIn, viewing),
		),
		v.commandButton("⛶", "Fullscreen", viewer.CmdFullscreen, viewing),
		v.commandButton("✕", "Close document", viewer.CmdClose, viewing || loading),
	)
}

func (v *ViewerPage) commandButton(label, title string, cmd viewer.Command, enabled bool) app.UI {
	return app.Button().
		Class("toolbar-button").
		Title(title).
		Disabled(!enabled).
		OnClick(func(ctx app.Context, e app.Event) {
			if err := v.controller.Execute(cmd); err != nil {
				Logger.Debug("Command ignored", "command", cmd, "error", err)
			}
		}).
		Text(label)
}

func (v *ViewerPage) renderProgress() app.UI {
	p := v.snap.Progress
	return app.Div().Class("job-progress").Body(
		app.Div().Class("progress-bar").Body(
			app.Div().
				Class("progress-fill").
				Style("width", fmt.Sprintf("%d%%", p.Percent)),
		),
		app.Div().Class("progress-text").Body(
			app.Text(fmt.Sprintf("%d%% - %s", p.Percent, p.Status)),
		),
	)
}

func (v *ViewerPage) renderNotice() app.UI {
	return app.Div().Class("notice notice-"+string(v.notice.Level)).Body(
		app.Span().Text(v.notice.Message),
		app.Button().
			Class("notice-dismiss").
			Title("Dismiss").
			OnClick(func(ctx app.Context, e app.Event) {
				v.notice = nil
			}).
			Text("✕"),
	)
}

// onFileChange reads the chosen file and opens it
func (v *ViewerPage) onFileChange(ctx app.Context, e app.Event) {
	input := ctx.JSSrc()
	files := input.Get("files")
	if !files.Truthy() || files.Length() == 0 {
		return
	}
	f := files.Index(0)
	file := document.File{
		Name:      f.Get("name").String(),
		MediaType: f.Get("type").String(),
	}
	input.Set("value", "")
	v.notice = nil

	// rejected files are never read
	if !document.IsSupported(file.Name, file.MediaType) {
		v.open(ctx, file)
		return
	}

	var onLoad app.Func
	onLoad = app.FuncOf(func(this app.Value, args []app.Value) any {
		defer onLoad.Release()
		if len(args) == 0 {
			return nil
		}
		buf := app.Window().Get("Uint8Array").New(args[0])
		file.Data = make([]byte, buf.Length())
		app.CopyBytesToGo(file.Data, buf)
		v.open(ctx, file)
		return nil
	})
	f.Call("arrayBuffer").Call("then", onLoad)
}

func (v *ViewerPage) open(ctx app.Context, file document.File) {
	ctx.Async(func() {
		if err := v.controller.Open(context.Background(), file); err != nil {
			Logger.Debug("Open finished with error", "file", file.Name, "error", err)
		}
	})
}

func (v *ViewerPage) onDemoClick(ctx app.Context, e app.Event) {
	v.notice = nil
	ctx.Async(func() {
		if err := v.controller.OpenDemo(context.Background(), apiclient.DemoFetcher{Client: v.client}); err != nil {
			Logger.Debug("Demo finished with error", "error", err)
		}
	})
}
