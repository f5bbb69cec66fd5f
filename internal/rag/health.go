package rag

import (
	"context"
)

// Counter reports how many chunks are stored.
type Counter interface {
	CountAll(ctx context.Context) (int64, error)
}

// Health describes whether retrieval can serve context.
type Health struct {
	Available     bool   `json:"available"`
	DocumentCount int64  `json:"documentCount"`
	Error         string `json:"error,omitempty"`
}

// CheckHealth counts stored chunks. A nil counter means no store is configured.
func CheckHealth(ctx context.Context, counter Counter) Health {
	if counter == nil {
		return Health{Error: "document store is not configured"}
	}
	n, err := counter.CountAll(ctx)
	if err != nil {
		return Health{Error: err.Error()}
	}
	return Health{Available: true, DocumentCount: n}
}
