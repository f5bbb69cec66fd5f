package models

import (
	"fmt"
	"strings"
)

// RetrieveQuery is a retrieval request.
type RetrieveQuery struct {
	Query     string   `json:"query"`
	TopK      int      `json:"topK,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
	Prompt    bool     `json:"prompt,omitempty"`
}

// Validate ensures the query is non-empty and fills topK and threshold defaults.
// topK is capped at maxTopK when maxTopK is positive.
func (q *RetrieveQuery) Validate(defaultTopK int, defaultThreshold float64, maxTopK int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK <= 0 {
		q.TopK = defaultTopK
	}
	if maxTopK > 0 && q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	if q.Threshold == nil {
		t := defaultThreshold
		q.Threshold = &t
	}
	if *q.Threshold < -1 || *q.Threshold > 1 {
		return fmt.Errorf("threshold must be between -1 and 1")
	}
	return nil
}

// TextIngestRequest is raw text submitted for ingestion under a source label.
type TextIngestRequest struct {
	Content  string                 `json:"content"`
	Source   string                 `json:"source"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Validate requires non-empty content and source.
func (r *TextIngestRequest) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return fmt.Errorf("content cannot be empty")
	}
	if strings.TrimSpace(r.Source) == "" {
		return fmt.Errorf("source cannot be empty")
	}
	return nil
}
