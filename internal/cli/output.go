// Package cli formats ingestion, retrieval, and status output for the stemrag CLI.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hyperjump/stemrag/internal/ingest"
	"github.com/hyperjump/stemrag/internal/models"
	"github.com/hyperjump/stemrag/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const previewChars = 300

// WriteSummary writes one line per document followed by batch totals.
func WriteSummary(w io.Writer, s ingest.Summary) {
	for _, o := range s.Outcomes {
		writeOutcome(w, o)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Files processed: %d/%d\n", s.Succeeded, s.Files)
	fmt.Fprintf(w, "Errors: %d\n", s.Failed)
	fmt.Fprintf(w, "Total chunks: %s\n", humanize.Comma(int64(s.Chunks)))
	fmt.Fprintf(w, "Total characters: %s\n", humanize.Comma(int64(s.Characters)))
	if s.Canceled {
		fmt.Fprintf(w, "Canceled: %d file(s) not processed\n", s.Files-len(s.Outcomes))
	}
	fmt.Fprintf(w, "Completed in %s\n", s.Duration.Round(time.Millisecond))
}

func writeOutcome(w io.Writer, o ingest.Outcome) {
	switch o.State {
	case ingest.StateFailed:
		fmt.Fprintf(w, "✗ %s: %v\n", o.Source, o.Err)
	case ingest.StateSkipped:
		fmt.Fprintf(w, "- %s: skipped, no text\n", o.Source)
	default:
		fmt.Fprintf(w, "✓ %s: %d chunks\n", o.Source, o.Chunks)
	}
}

// WriteRetrieval writes retrieved contexts and, when prompt is non-empty,
// the assembled system prompt.
func WriteRetrieval(w io.Writer, resp models.RetrieveResponse, format OutputFormat) error {
	if format == OutputJSON {
		if resp.Context == nil {
			resp.Context = []models.RetrievedContext{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	if len(resp.Context) == 0 {
		fmt.Fprintf(w, "No context found for %q above the similarity threshold.\n", resp.Query)
	} else {
		fmt.Fprintf(w, "Found %d result(s) for %q\n\n", len(resp.Context), resp.Query)
		for i, c := range resp.Context {
			fmt.Fprintf(w, "[%d] %s (similarity %.4f)\n", i+1, c.Source, c.Similarity)
			fmt.Fprintf(w, "%s\n\n", utils.Preview(c.Content, previewChars))
		}
	}
	if resp.Prompt != "" {
		fmt.Fprintln(w, "--- Assembled prompt ---")
		fmt.Fprintln(w, resp.Prompt)
	}
	return nil
}

// Status describes the document store for the status command.
type Status struct {
	Backend  string              `json:"backend"`
	Location string              `json:"location,omitempty"`
	Chunks   int64               `json:"chunks"`
	Sources  []models.SourceInfo `json:"sources"`
	// DiskUsageBytes is negative when unknown.
	DiskUsageBytes   int64  `json:"disk_usage_bytes"`
	EmbeddingBackend string `json:"embedding_backend"`
	EmbeddingModel   string `json:"embedding_model"`
}

// WriteStatus writes the store summary in the given format.
func WriteStatus(w io.Writer, s Status, format OutputFormat) error {
	if format == OutputJSON {
		if s.Sources == nil {
			s.Sources = []models.SourceInfo{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	fmt.Fprintf(w, "Store:      %s", s.Backend)
	if s.Location != "" {
		fmt.Fprintf(w, " (%s)", s.Location)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Embedding:  %s / %s\n", s.EmbeddingBackend, s.EmbeddingModel)
	fmt.Fprintf(w, "Chunks:     %s\n", humanize.Comma(s.Chunks))
	fmt.Fprintf(w, "Sources:    %d\n", len(s.Sources))
	if s.DiskUsageBytes >= 0 {
		fmt.Fprintf(w, "Disk usage: %s\n", humanize.Bytes(uint64(s.DiskUsageBytes)))
	}
	for _, src := range s.Sources {
		fmt.Fprintf(w, "  %-40s %-8s %d chunks\n", src.SourceFile, src.SourceType, src.Chunks)
	}
	return nil
}

// WritePrerequisites reports passed prerequisite checks.
func WritePrerequisites(w io.Writer, p ingest.Prerequisites, model string) {
	if p.Models != nil {
		fmt.Fprintf(w, "✓ %s reachable (%d models)\n", ingest.CheckBackend, len(p.Models))
		fmt.Fprintf(w, "✓ %s %s installed\n", ingest.CheckModel, model)
	} else {
		fmt.Fprintf(w, "✓ %s ready\n", ingest.CheckBackend)
	}
	fmt.Fprintf(w, "✓ %s: %d\n", ingest.CheckDimension, p.Dimension)
	fmt.Fprintf(w, "✓ %s reachable\n", ingest.CheckStore)
}

// WritePrerequisiteError reports a failed prerequisite check with its hint.
func WritePrerequisiteError(w io.Writer, err error) {
	var pe *ingest.PrerequisiteError
	if !errors.As(err, &pe) {
		fmt.Fprintf(w, "✗ %v\n", err)
		return
	}
	fmt.Fprintf(w, "✗ %s: %v\n", pe.Check, pe.Err)
	if pe.Hint != "" {
		fmt.Fprintf(w, "  %s\n", pe.Hint)
	}
}
