package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/stemrag/internal/embedding"
)

type fakeProber struct {
	models  []string
	listErr error
	dim     int
	dimErr  error
	order   *[]string
}

func (f fakeProber) ListModels(context.Context) ([]string, error) {
	*f.order = append(*f.order, CheckBackend)
	return f.models, f.listErr
}

func (f fakeProber) Dimension(context.Context) (int, error) {
	*f.order = append(*f.order, CheckDimension)
	return f.dim, f.dimErr
}

func TestCheckPrerequisites(t *testing.T) {
	storeErr := errors.New("connection refused")
	tests := []struct {
		name      string
		prober    fakeProber
		model     string
		storeErr  error
		wantCheck string
		wantOrder []string
	}{
		{
			name:      "all pass",
			prober:    fakeProber{models: []string{"nomic-embed-text:latest"}, dim: 768},
			model:     "nomic-embed-text",
			wantOrder: []string{CheckBackend, CheckDimension, CheckStore},
		},
		{
			name:      "backend down",
			prober:    fakeProber{listErr: embedding.ErrBackendUnavailable},
			model:     "nomic-embed-text",
			wantCheck: CheckBackend,
			wantOrder: []string{CheckBackend},
		},
		{
			name:      "model missing",
			prober:    fakeProber{models: []string{"llama3.1:8b"}, dim: 768},
			model:     "nomic-embed-text",
			wantCheck: CheckModel,
			wantOrder: []string{CheckBackend},
		},
		{
			name:      "dimension probe fails",
			prober:    fakeProber{models: []string{"nomic-embed-text"}, dimErr: embedding.ErrEmbeddingFailed},
			model:     "nomic-embed-text",
			wantCheck: CheckDimension,
			wantOrder: []string{CheckBackend, CheckDimension},
		},
		{
			name:      "store unreachable",
			prober:    fakeProber{models: []string{"nomic-embed-text"}, dim: 768},
			model:     "nomic-embed-text",
			storeErr:  storeErr,
			wantCheck: CheckStore,
			wantOrder: []string{CheckBackend, CheckDimension, CheckStore},
		},
		{
			name:      "no model catalog",
			prober:    fakeProber{dim: 384},
			model:     "nomic-embed-text",
			wantOrder: []string{CheckBackend, CheckDimension, CheckStore},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var order []string
			tt.prober.order = &order
			var gotDim int
			storeCheck := func(ctx context.Context, dim int) error {
				order = append(order, CheckStore)
				gotDim = dim
				return tt.storeErr
			}
			p, err := CheckPrerequisites(context.Background(), tt.prober, tt.model, storeCheck)
			if tt.wantCheck == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if p.Dimension != tt.prober.dim || gotDim != tt.prober.dim {
					t.Errorf("dimension = %d, store saw %d", p.Dimension, gotDim)
				}
			} else {
				var perr *PrerequisiteError
				if !errors.As(err, &perr) {
					t.Fatalf("expected PrerequisiteError, got %v", err)
				}
				if perr.Check != tt.wantCheck {
					t.Errorf("failed check = %s, want %s", perr.Check, tt.wantCheck)
				}
			}
			if len(order) != len(tt.wantOrder) {
				t.Fatalf("order = %v, want %v", order, tt.wantOrder)
			}
			for i := range order {
				if order[i] != tt.wantOrder[i] {
					t.Errorf("order = %v, want %v", order, tt.wantOrder)
					break
				}
			}
		})
	}

	t.Run("wrapped cause", func(t *testing.T) {
		var order []string
		_, err := CheckPrerequisites(context.Background(), fakeProber{listErr: embedding.ErrBackendUnavailable, order: &order}, "m", nil)
		if !errors.Is(err, embedding.ErrBackendUnavailable) {
			t.Errorf("cause lost: %v", err)
		}
	})

	t.Run("no store", func(t *testing.T) {
		var order []string
		_, err := CheckPrerequisites(context.Background(), fakeProber{dim: 4, order: &order}, "", nil)
		var perr *PrerequisiteError
		if !errors.As(err, &perr) || perr.Check != CheckStore {
			t.Errorf("expected store check failure, got %v", err)
		}
	})
}
