package ingest

import (
	"time"

	"github.com/hyperjump/stemrag/internal/models"
)

// State is the position of one document in the ingestion pipeline.
type State int

const (
	StatePending State = iota
	StateParsed
	StateChunked
	StateEmbedded
	StateStored
	// StateSkipped marks a document whose text was empty after parsing.
	StateSkipped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateParsed:
		return "parsed"
	case StateChunked:
		return "chunked"
	case StateEmbedded:
		return "embedded"
	case StateStored:
		return "stored"
	case StateSkipped:
		return "skipped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of ingesting one document.
type Outcome struct {
	// Source is the sourceFile label the chunks are stored under.
	Source string
	// Path is the file path, empty for uploads and direct text.
	Path       string
	Type       models.SourceType
	State      State
	Chunks     int
	Characters int
	// Err is set when State is StateFailed.
	Err      error
	Duration time.Duration
	// FailedAt is the last state reached before the failure.
	FailedAt State
}

// OK reports whether the document did not fail. Skipped documents are OK.
func (o Outcome) OK() bool {
	return o.State != StateFailed
}

// Summary aggregates the outcomes of a batch run.
type Summary struct {
	Outcomes []Outcome
	// Files is the number of documents the batch was asked to ingest.
	Files      int
	Succeeded  int
	Failed     int
	Chunks     int
	Characters int
	// Canceled is set when the context was canceled before every document ran.
	Canceled bool
	Duration time.Duration
}

func (s *Summary) add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	if !o.OK() {
		s.Failed++
		return
	}
	s.Succeeded++
	s.Chunks += o.Chunks
	s.Characters += o.Characters
}
