package viewer

import (
	"errors"
	"fmt"

	"github.com/drummonds/goflipbook/document"
)

var (
	// ErrBusy is returned when a document is opened while another is loading
	ErrBusy = errors.New("a document is already loading")

	// ErrNotViewing guards operations that need a live book
	ErrNotViewing = errors.New("no document is open")

	// ErrWidgetUnavailable means the page-flip display capability is missing
	ErrWidgetUnavailable = errors.New("page-flip display is not available")
)

// NetworkFetchError is returned when the demo document cannot be downloaded
type NetworkFetchError struct {
	URL string
	Err error
}

func (e *NetworkFetchError) Error() string {
	return fmt.Sprintf("unable to fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkFetchError) Unwrap() error { return e.Err }

// Message returns the notification text for err
func Message(err error) string {
	var fetchErr *NetworkFetchError
	switch {
	case errors.Is(err, ErrWidgetUnavailable):
		return "The page-flip viewer could not be started. The document was rendered but cannot be displayed."
	case errors.As(err, &fetchErr):
		return "The demo document could not be downloaded. Check your connection and try again."
	case errors.Is(err, ErrBusy):
		return "Please wait for the current document to finish loading."
	default:
		return document.UserMessage(err)
	}
}
