package document

import (
	"errors"
	"fmt"
)

// ErrInvalidInputType is returned before any processing when the input is not a PDF
var ErrInvalidInputType = errors.New("unsupported file type: please choose a PDF document")

// DecodeError means the binary could not be parsed as a PDF
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "unable to decode document"
	}
	return fmt.Sprintf("unable to decode document: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PageRenderError carries the 1-based page that failed to rasterize
type PageRenderError struct {
	Page int
	Err  error
}

func (e *PageRenderError) Error() string {
	return fmt.Sprintf("unable to render page %d: %v", e.Page, e.Err)
}

func (e *PageRenderError) Unwrap() error { return e.Err }

// userMessager is implemented by errors that already carry notification text
type userMessager interface {
	UserMessage() string
}

// UserMessage turns a render failure into text fit for a notification
func UserMessage(err error) string {
	var decodeErr *DecodeError
	var pageErr *PageRenderError
	var messager userMessager
	switch {
	case err == nil:
		return ""
	case errors.As(err, &messager):
		return messager.UserMessage()
	case errors.Is(err, ErrInvalidInputType):
		return ErrInvalidInputType.Error()
	case errors.As(err, &decodeErr):
		return "This file could not be read as a PDF document."
	case errors.As(err, &pageErr):
		return fmt.Sprintf("Page %d could not be rendered.", pageErr.Page)
	default:
		return "Something went wrong: " + err.Error()
	}
}
