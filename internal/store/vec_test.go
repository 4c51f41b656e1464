//go:build sqlite_vec && cgo

package store

import (
	"context"
	"testing"
)

// Runs only with -tags sqlite_vec on a cgo build, where chunk KNN goes
// through the vec0 index instead of the pure-Go cosine scan.
func TestVecIndexSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	engine := &MockEngine{
		EmbedFunc: func(_ context.Context, text string) ([]float32, error) {
			switch text {
			case "osmosis moves water":
				return []float32{1, 0, 0, 0}, nil
			case "diffusion of solutes":
				return []float32{0.8, 0.2, 0, 0}, nil
			case "cell wall structure":
				return []float32{0, 0, 1, 0}, nil
			}
			return []float32{0, 0, 0, 0}, nil
		},
	}
	s.SetEmbeddingEngine(engine)

	contents := []string{"osmosis moves water", "diffusion of solutes", "cell wall structure"}
	if _, err := s.AddChunkBatch(ctx, "bio-101", contents, make([]map[string]interface{}, 3)); err != nil {
		t.Fatalf("AddChunkBatch failed: %v", err)
	}
	if !s.vecReady {
		t.Fatal("first chunk write must initialize the vec0 index")
	}

	results, err := s.searchChunksVec(ctx, "bio-101", []float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("searchChunksVec failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Content != "osmosis moves water" {
		t.Errorf("top result should be the exact match, got %q", results[0].Content)
	}
	if results[0].Similarity < results[1].Similarity {
		t.Error("results must be ordered by similarity descending")
	}

	// The public entry point routes through the same index.
	viaPublic, err := s.SearchChunks(ctx, "bio-101", []float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SearchChunks failed: %v", err)
	}
	if len(viaPublic) != 2 || viaPublic[0].Content != results[0].Content {
		t.Errorf("SearchChunks must serve from the vec index, got %+v", viaPublic)
	}
}

func TestVecIndexSessionScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SetEmbeddingEngine(&MockEngine{})
	if _, err := s.AddChunkBatch(ctx, "session-a", []string{"alpha"}, make([]map[string]interface{}, 1)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddChunkBatch(ctx, "session-b", []string{"beta"}, make([]map[string]interface{}, 1)); err != nil {
		t.Fatal(err)
	}

	results, err := s.searchChunksVec(ctx, "session-b", []float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("searchChunksVec failed: %v", err)
	}
	if len(results) != 1 || results[0].Content != "beta" {
		t.Errorf("vec search must stay session-scoped, got %+v", results)
	}
}
