// Package rerank implements corrective reranking over retrieved chunk
// candidates: a cross-encoder relevance scorer plus a three-way decision
// (accept, filter, reject) with a knowledge-base fallback policy for the
// reject branch.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"

	"sensei/internal/config"
)

// =============================================================================
// CROSS-ENCODER SCORER
// =============================================================================

// CrossEncoder scores passages for relevance against a query. Scores are in
// [0,1], one per passage, in input order.
type CrossEncoder interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
	Name() string
}

// HTTPCrossEncoder calls a reranker service exposing a /rerank endpoint
// (TEI/bge-reranker style).
type HTTPCrossEncoder struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewHTTPCrossEncoder creates a cross-encoder client from config.
func NewHTTPCrossEncoder(cfg config.RerankerConfig) *HTTPCrossEncoder {
	return &HTTPCrossEncoder{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.TimeoutDuration()},
	}
}

func (e *HTTPCrossEncoder) Name() string {
	return fmt.Sprintf("cross-encoder/%s", e.model)
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// Score sends the query and passages in one request and returns per-passage
// relevance in input order, normalized into [0,1].
func (e *HTTPCrossEncoder) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{
		Model:     e.model,
		Query:     query,
		Documents: passages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank service returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	if len(parsed.Results) != len(passages) {
		return nil, fmt.Errorf("rerank service returned %d scores for %d passages",
			len(parsed.Results), len(passages))
	}

	scores := make([]float64, len(passages))
	for _, r := range parsed.Results {
		if r.Index < 0 || r.Index >= len(scores) {
			return nil, fmt.Errorf("rerank service returned out-of-range index %d", r.Index)
		}
		scores[r.Index] = normalizeScore(r.RelevanceScore)
	}
	return scores, nil
}

// normalizeScore maps raw relevance into [0,1]. Cross-encoder services differ:
// some emit probabilities, some raw logits. Values outside [0,1] go through a
// sigmoid so thresholds stay comparable across backends.
func normalizeScore(raw float64) float64 {
	if raw >= 0 && raw <= 1 {
		return raw
	}
	return 1.0 / (1.0 + math.Exp(-raw))
}

var _ CrossEncoder = (*HTTPCrossEncoder)(nil)
