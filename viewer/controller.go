package viewer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/drummonds/goflipbook/document"
)

// Command is a toolbar or keyboard action
type Command int

const (
	CmdNone Command = iota
	CmdPrev
	CmdNext
	CmdZoomIn
	CmdZoomOut
	CmdClose
	CmdFullscreen
)

func (c Command) String() string {
	switch c {
	case CmdPrev:
		return "prev"
	case CmdNext:
		return "next"
	case CmdZoomIn:
		return "zoomIn"
	case CmdZoomOut:
		return "zoomOut"
	case CmdClose:
		return "close"
	case CmdFullscreen:
		return "fullscreen"
	default:
		return "none"
	}
}

// KeyCommand maps a KeyboardEvent.key value to a command
func KeyCommand(key string) Command {
	switch key {
	case "ArrowLeft":
		return CmdPrev
	case "ArrowRight":
		return CmdNext
	case "+", "=":
		return CmdZoomIn
	case "-":
		return CmdZoomOut
	case "Escape":
		return CmdClose
	default:
		return CmdNone
	}
}

// Host exposes page level capabilities of the environment
type Host interface {
	ToggleFullscreen() error
}

// Controller routes user input to the session
type Controller struct {
	session *Session
	host    Host
	reflow  *Debouncer
	logger  *slog.Logger
}

// NewController wires input handling; resizes settle for wait before a reflow
func NewController(session *Session, host Host, wait time.Duration, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{session: session, host: host, logger: logger}
	c.reflow = NewDebouncer(wait, c.doReflow)
	return c
}

func (c *Controller) doReflow() {
	err := c.session.Reflow()
	switch {
	case err == nil:
	case errors.Is(err, ErrNotViewing):
		// a book is still being built for older bounds; retry once it settles
		if c.session.State() == StateLoading {
			c.reflow.Trigger()
		}
	default:
		c.logger.Warn("Reflow failed", "error", err)
	}
}

// HandleKey runs the command bound to key. Keys are ignored unless a book
// is open. It reports whether the key was consumed.
func (c *Controller) HandleKey(key string) bool {
	cmd := KeyCommand(key)
	if cmd == CmdNone || c.session.State() != StateViewing {
		return false
	}
	if err := c.Execute(cmd); err != nil {
		c.logger.Debug("Key command ignored", "key", key, "error", err)
	}
	return true
}

// Execute runs a toolbar command
func (c *Controller) Execute(cmd Command) error {
	switch cmd {
	case CmdPrev:
		return c.session.Navigate(Prev)
	case CmdNext:
		return c.session.Navigate(Next)
	case CmdZoomIn:
		_, err := c.session.ZoomIn()
		return err
	case CmdZoomOut:
		_, err := c.session.ZoomOut()
		return err
	case CmdClose:
		c.reflow.Stop()
		c.session.Close()
		return nil
	case CmdFullscreen:
		if c.host == nil {
			return nil
		}
		// best effort: the host may refuse outside a user gesture
		if err := c.host.ToggleFullscreen(); err != nil {
			c.logger.Info("Fullscreen request refused", "error", err)
		}
		return nil
	default:
		return nil
	}
}

// Resize schedules a reflow once resizing has been quiet for the window.
// A resize during a load or reflow is kept and applied to the book that
// load produces; one while idle is dropped when the window closes.
func (c *Controller) Resize() {
	c.reflow.Trigger()
}

// Open renders and shows a user chosen file
func (c *Controller) Open(ctx context.Context, file document.File) error {
	c.reflow.Stop()
	return c.session.OpenFile(ctx, file)
}

// OpenDemo downloads and shows the demo document
func (c *Controller) OpenDemo(ctx context.Context, fetcher Fetcher) error {
	c.reflow.Stop()
	return c.session.OpenDemo(ctx, fetcher)
}

// Stop cancels pending work
func (c *Controller) Stop() {
	c.reflow.Stop()
}
