package ingest

import (
	"context"
	"fmt"

	"github.com/hyperjump/stemrag/internal/embedding"
)

// Prober is the embedding side of the prerequisite checks.
type Prober interface {
	// ListModels returns nil, nil when the backend has no model catalog.
	ListModels(ctx context.Context) ([]string, error)
	Dimension(ctx context.Context) (int, error)
}

// StoreCheck opens or pings the document store. It receives the probed
// embedding dimension because some stores size their schema with it.
type StoreCheck func(ctx context.Context, dimension int) error

// Check names, in the order they run.
const (
	CheckBackend   = "embedding backend"
	CheckModel     = "embedding model"
	CheckDimension = "embedding dimension"
	CheckStore     = "document store"
)

// PrerequisiteError reports the first failed check.
type PrerequisiteError struct {
	Check string
	Hint  string
	Err   error
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("%s check failed: %v", e.Check, e.Err)
}

func (e *PrerequisiteError) Unwrap() error { return e.Err }

// Prerequisites is what the checks learned about the environment.
type Prerequisites struct {
	Models    []string
	Dimension int
}

// CheckPrerequisites verifies, in order, that the embedding backend answers,
// that model is installed, that an embedding can be produced, and that the
// store is reachable. It stops at the first failure.
func CheckPrerequisites(ctx context.Context, emb Prober, model string, storeCheck StoreCheck) (Prerequisites, error) {
	var p Prerequisites
	models, err := emb.ListModels(ctx)
	if err != nil {
		return p, &PrerequisiteError{Check: CheckBackend, Hint: "make sure Ollama is running: ollama serve", Err: err}
	}
	p.Models = models

	if models != nil && model != "" && !embedding.HasModel(models, model) {
		return p, &PrerequisiteError{
			Check: CheckModel,
			Hint:  "run: ollama pull " + model,
			Err:   fmt.Errorf("model %s is not installed", model),
		}
	}

	dim, err := emb.Dimension(ctx)
	if err != nil {
		return p, &PrerequisiteError{Check: CheckDimension, Err: err}
	}
	p.Dimension = dim

	if storeCheck == nil {
		return p, &PrerequisiteError{Check: CheckStore, Err: fmt.Errorf("document store is not configured")}
	}
	if err := storeCheck(ctx, dim); err != nil {
		return p, &PrerequisiteError{Check: CheckStore, Err: err}
	}
	return p, nil
}
