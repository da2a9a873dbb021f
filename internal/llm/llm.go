// Package llm holds the generative-text roles the retrieval pipeline
// delegates to: classifying a conversation into a knowledge request,
// choosing among ambiguous document candidates, and condensing long text.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable marks a provider that cannot serve requests, typically
// missing credentials or a dead endpoint.
var ErrUnavailable = errors.New("llm unavailable")

// Provider is one chat-completion backend.
type Provider interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// DocCandidate is a document search result offered to the selector.
type DocCandidate struct {
	Title   string
	Snippet string
	URL     string
}
