// Package eval measures retrieval quality against a set of known answers.
package eval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vishalkoriyalearning/rag-serve/internal/models"
)

// ErrNoCases is returned when there is nothing to evaluate.
var ErrNoCases = errors.New("no evaluation cases")

// Searcher retrieves the k chunks nearest to a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) (*models.SearchResponse, error)
}

// Case is one query and a piece of text a good retrieval must contain.
type Case struct {
	Query  string `yaml:"query" json:"query"`
	Answer string `yaml:"answer" json:"answer"`
}

// CaseResult is the outcome of one Case.
type CaseResult struct {
	Case
	Hit  bool `json:"hit"`
	// Rank is the 1-based position of the first chunk containing the answer, 0 on a miss.
	Rank int  `json:"rank,omitempty"`
}

// Report is the outcome of a run.
type Report struct {
	K      int          `json:"k"`
	Recall float64      `json:"recall"`
	Cases  []CaseResult `json:"cases"`
}

// LoadCases reads cases from a YAML file, either a list or a map with a "cases" key.
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cases: %w", err)
	}
	var wrapped struct {
		Cases []Case `yaml:"cases"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err == nil && len(wrapped.Cases) > 0 {
		return validate(wrapped.Cases)
	}
	var cases []Case
	if err := yaml.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("failed to parse cases: %w", err)
	}
	return validate(cases)
}

func validate(cases []Case) ([]Case, error) {
	if len(cases) == 0 {
		return nil, ErrNoCases
	}
	for i, c := range cases {
		if strings.TrimSpace(c.Query) == "" || strings.TrimSpace(c.Answer) == "" {
			return nil, fmt.Errorf("case %d: query and answer are required", i)
		}
	}
	return cases, nil
}

// RecallAtK runs every case and reports the fraction whose answer appears,
// case-insensitively, in one of the top k chunks.
func RecallAtK(ctx context.Context, s Searcher, cases []Case, k int) (*Report, error) {
	if len(cases) == 0 {
		return nil, ErrNoCases
	}
	report := &Report{K: k, Cases: make([]CaseResult, 0, len(cases))}
	hits := 0
	for _, c := range cases {
		resp, err := s.Search(ctx, c.Query, k)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", c.Query, err)
		}
		res := CaseResult{Case: c}
		answer := strings.ToLower(c.Answer)
		for i, r := range resp.Results {
			if strings.Contains(strings.ToLower(r.Text), answer) {
				res.Hit = true
				res.Rank = i + 1
				hits++
				break
			}
		}
		report.Cases = append(report.Cases, res)
	}
	report.Recall = float64(hits) / float64(len(cases))
	return report, nil
}
