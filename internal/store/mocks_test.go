package store

import (
	"context"
	"sync/atomic"
)

// MockEngine is a deterministic embedding engine for tests. It hashes words
// onto a small vector so related strings land near each other only when the
// test fixes the vectors explicitly.
type MockEngine struct {
	EmbedFunc  func(ctx context.Context, text string) ([]float32, error)
	embedCalls atomic.Int64
	batchCalls atomic.Int64
}

func (m *MockEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return []float32{1, 0, 0, 0}, nil
}

func (m *MockEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (m *MockEngine) Dimensions() int { return 4 }
func (m *MockEngine) Name() string    { return "mock" }

func (m *MockEngine) BatchCalls() int64 { return m.batchCalls.Load() }
