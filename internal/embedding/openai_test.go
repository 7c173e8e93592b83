package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func fakeEmbeddingsServer(t *testing.T, gotAuth *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		*gotAuth = r.Header.Get("Authorization")
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		// Reverse order to check rows are placed by index.
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = item{Object: "embedding", Embedding: []float32{float32(j), 1, 2}, Index: j}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "test"})
	}))
}

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	var auth string
	srv := fakeEmbeddingsServer(t, &auth)
	defer srv.Close()

	e := NewOpenAIEmbedder(RemoteConfig{
		Model:   func() string { return "text-embedding-3-small" },
		BaseURL: srv.URL + "/v1",
		APIKey:  func() string { return "shared" },
	})
	if e.Dimensions() != 1536 {
		t.Errorf("initial dimensions = %d", e.Dimensions())
	}
	out, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	for i, row := range out {
		if row[0] != float32(i) {
			t.Errorf("row %d placed out of order: %v", i, row)
		}
	}
	if auth != "Bearer shared" {
		t.Errorf("Authorization = %q", auth)
	}
	if e.Dimensions() != 3 {
		t.Errorf("dimensions after response = %d, want 3", e.Dimensions())
	}

	if _, err := e.Embed(ContextWithAPIKey(context.Background(), "one-off"), "q"); err != nil {
		t.Fatal(err)
	}
	if auth != "Bearer one-off" {
		t.Errorf("one-off key not used, Authorization = %q", auth)
	}
}

func TestOpenAIEmbedder_missingKey(t *testing.T) {
	e := NewOpenAIEmbedder(RemoteConfig{APIKey: func() string { return "" }})
	if _, err := e.Embed(context.Background(), "q"); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
	out, err := e.EmbedBatch(context.Background(), nil)
	if err != nil || len(out) != 0 {
		t.Errorf("empty batch should not call the API: %v, %v", out, err)
	}
}

func TestOpenAIEmbedder_upstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream down","type":"server_error"}}`))
	}))
	defer srv.Close()
	e := NewOpenAIEmbedder(RemoteConfig{BaseURL: srv.URL + "/v1", APIKey: func() string { return "k" }})
	if _, err := e.Embed(context.Background(), "q"); err == nil {
		t.Error("expected error from failing upstream")
	}
}
