package embedding

import (
	"context"
	"errors"
	"testing"
)

func TestLazy_buildsOnceOnFirstUse(t *testing.T) {
	calls := 0
	l := NewLazy(16, func() (Embedder, error) {
		calls++
		return NewHashingEmbedder(16), nil
	})
	if l.Loaded() || calls != 0 {
		t.Fatal("embedder should not be built before first use")
	}
	if l.Dimensions() != 16 {
		t.Errorf("Dimensions() before load = %d", l.Dimensions())
	}
	for i := 0; i < 3; i++ {
		if _, err := l.Embed(context.Background(), "hello"); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Errorf("build called %d times, want 1", calls)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if l.Loaded() {
		t.Error("Close should drop the instance")
	}
}

func TestLazy_retriesFailedBuild(t *testing.T) {
	errBoom := errors.New("boom")
	fail := true
	l := NewLazy(8, func() (Embedder, error) {
		if fail {
			return nil, errBoom
		}
		return NewHashingEmbedder(8), nil
	})
	if _, err := l.EmbedBatch(context.Background(), []string{"x"}); !errors.Is(err, errBoom) {
		t.Fatalf("expected build error, got %v", err)
	}
	fail = false
	out, err := l.EmbedBatch(context.Background(), []string{"x"})
	if err != nil || len(out) != 1 {
		t.Fatalf("retry: got %v, %v", out, err)
	}
}
