// ABOUTME: Error types shared by the audio pipeline
// ABOUTME: Malformed input, retrieval, not-found and render failures
package audio

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned when a stored clip or remote audio resource is missing
var ErrNotFound = errors.New("audio not found")

// MalformedInputError reports bad base64, a bad container, an invalid format,
// or a payload that is not frame aligned.
type MalformedInputError struct {
	Op     string
	Reason string
	// Offset is the byte or character position of the problem, when known
	Offset int
}

func (e *MalformedInputError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("malformed %s input at offset %d: %s", e.Op, e.Offset, e.Reason)
	}
	return fmt.Sprintf("malformed %s input: %s", e.Op, e.Reason)
}

// RetrievalError reports a failed audio fetch
type RetrievalError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *RetrievalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("audio download failed: HTTP %d (%s)", e.StatusCode, e.URL)
	}
	if e.Err != nil {
		return fmt.Sprintf("audio download failed (%s): %v", e.URL, e.Err)
	}
	return fmt.Sprintf("audio download failed (%s)", e.URL)
}

// Unwrap yields ErrNotFound for a 404 and the transport cause otherwise
func (e *RetrievalError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return e.Err
}

// RenderError reports a failure inside a render session
type RenderError struct {
	Session uint64
	Reason  string
	Err     error
}

func (e *RenderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render session %d: %s: %v", e.Session, e.Reason, e.Err)
	}
	return fmt.Sprintf("render session %d: %s", e.Session, e.Reason)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
