// Package kberr defines the error categories shared by the retrieval core.
//
// Branch-level code wraps failures with one of the sentinels using
// fmt.Errorf("...: %w", kberr.ErrClient); callers match narrowly with
// errors.Is or broadly with IsRetrieval.
package kberr

import "errors"

var (
	// ErrClient marks a failed remote call: non-2xx status or timeout.
	ErrClient = errors.New("client error")
	// ErrParsing marks malformed JSON or claim structure from a remote
	// or generative response.
	ErrParsing = errors.New("parsing error")
	// ErrValidation marks a malformed request shape.
	ErrValidation = errors.New("validation error")
	// ErrConfig marks missing or invalid required settings.
	ErrConfig = errors.New("config error")
)

// IsRetrieval reports whether err belongs to any retrieval error category.
func IsRetrieval(err error) bool {
	return errors.Is(err, ErrClient) ||
		errors.Is(err, ErrParsing) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConfig)
}
