// Package cli formats command output for the ragserve CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vishalkoriyalearning/rag-serve/internal/eval"
	"github.com/vishalkoriyalearning/rag-serve/internal/models"
	"github.com/vishalkoriyalearning/rag-serve/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat returns the format named s.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

// previewLen is how much chunk text the text format shows per result.
const previewLen = 200

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results\n\n", len(response.Results))
	for i, r := range response.Results {
		fmt.Fprintf(w, "-----------------------------------------------------------\n")
		fmt.Fprintf(w, "Rank: %d | Chunk: %d | Distance: %.4f\n", i+1, r.ChunkIndex, r.Distance)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(r.Text, previewLen))
	}
	return nil
}

// WriteAnswer writes a generated answer to w in the given format.
func WriteAnswer(w io.Writer, response *models.GenerateResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "%s\n\n(source: %s)\n", strings.TrimSpace(response.Response), response.Source)
	return nil
}

// WriteJob writes a job record to w in the given format.
func WriteJob(w io.Writer, job *models.Job, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, job)
	}
	fmt.Fprintf(w, "Job %s: %s\n", job.ID, job.Status)
	switch job.Status {
	case models.JobCompleted:
		persisted := job.IndexPersisted != nil && *job.IndexPersisted
		fmt.Fprintf(w, "  chunks: %d, dimensions: %d, published: %t\n", job.ChunksIndexed, job.EmbeddingDim, persisted)
	case models.JobFailed:
		fmt.Fprintf(w, "  error: %s\n", job.Error)
	}
	return nil
}

// WriteReport writes an evaluation report to w in the given format.
func WriteReport(w io.Writer, report *eval.Report, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	for _, c := range report.Cases {
		mark := "miss"
		if c.Hit {
			mark = fmt.Sprintf("hit@%d", c.Rank)
		}
		fmt.Fprintf(w, "%-8s %s\n", mark, c.Query)
	}
	fmt.Fprintf(w, "Recall@%d: %.3f\n", report.K, report.Recall)
	return nil
}
