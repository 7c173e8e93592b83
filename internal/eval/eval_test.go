package eval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishalkoriyalearning/rag-serve/internal/models"
)

type fixedSearcher map[string][]string

func (f fixedSearcher) Search(_ context.Context, query string, k int) (*models.SearchResponse, error) {
	texts, ok := f[query]
	if !ok {
		return nil, errors.New("no index")
	}
	if k < len(texts) {
		texts = texts[:k]
	}
	resp := &models.SearchResponse{}
	for i, t := range texts {
		resp.Results = append(resp.Results, models.SearchResult{ChunkIndex: i, Text: t})
	}
	return resp, nil
}

func TestRecallAtK(t *testing.T) {
	s := fixedSearcher{
		"What is AI?":      {"bananas", "AI is a branch of computer science"},
		"What is chatbot?": {"weather", "rivers"},
	}
	cases := []Case{
		{Query: "What is AI?", Answer: "ai is a BRANCH"},
		{Query: "What is chatbot?", Answer: "A chatbot is"},
	}

	report, err := RecallAtK(context.Background(), s, cases, 5)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, report.Recall, 1e-9)
	assert.True(t, report.Cases[0].Hit)
	assert.Equal(t, 2, report.Cases[0].Rank)
	assert.False(t, report.Cases[1].Hit)

	report, err = RecallAtK(context.Background(), s, cases[:1], 1)
	require.NoError(t, err)
	assert.Zero(t, report.Recall)
}

func TestRecallAtK_errors(t *testing.T) {
	_, err := RecallAtK(context.Background(), fixedSearcher{}, nil, 5)
	assert.ErrorIs(t, err, ErrNoCases)

	_, err = RecallAtK(context.Background(), fixedSearcher{}, []Case{{Query: "q", Answer: "a"}}, 5)
	assert.EqualError(t, err, `search "q": no index`)
}

func TestLoadCases(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "list.yaml")
	require.NoError(t, os.WriteFile(list, []byte("- query: What is AI?\n  answer: AI is\n"), 0644))
	wrapped := filepath.Join(dir, "wrapped.yaml")
	require.NoError(t, os.WriteFile(wrapped, []byte("cases:\n  - query: q1\n    answer: a1\n  - query: q2\n    answer: a2\n"), 0644))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("- query: q\n"), 0644))

	cases, err := LoadCases(list)
	require.NoError(t, err)
	assert.Equal(t, []Case{{Query: "What is AI?", Answer: "AI is"}}, cases)

	cases, err = LoadCases(wrapped)
	require.NoError(t, err)
	assert.Len(t, cases, 2)

	_, err = LoadCases(bad)
	assert.Error(t, err)

	_, err = LoadCases(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
