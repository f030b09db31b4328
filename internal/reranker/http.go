package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yektalaw/pasokhd/internal/config"
)

// ErrScoringFailed indicates the reranking service call failed.
var ErrScoringFailed = errors.New("rerank scoring failed")

// HTTPScorerConfig holds configuration for the HTTP reranking service.
type HTTPScorerConfig struct {
	BaseURL string
	Model   string
	APIKey  config.Secret
	Timeout time.Duration
}

// HTTPScorer scores candidates via a remote reranking endpoint.
type HTTPScorer struct {
	config HTTPScorerConfig
	client *http.Client
}

// NewHTTPScorer creates a scorer for the given endpoint. Returns nil
// when BaseURL is empty: absence of configuration means pass-through,
// not an error.
func NewHTTPScorer(cfg HTTPScorerConfig) *HTTPScorer {
	if cfg.BaseURL == "" {
		return nil
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPScorer{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// rerankRequest is the request body for the /rerank endpoint.
type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

// rerankResponse is the response body: scores aligned by index with
// the submitted documents.
type rerankResponse struct {
	Scores []float32 `json:"scores"`
}

// Score implements Scorer.
func (s *HTTPScorer) Score(ctx context.Context, query string, candidates []string) ([]float32, error) {
	body, err := json.Marshal(rerankRequest{
		Model:     s.config.Model,
		Query:     query,
		Documents: candidates,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.config.APIKey.IsSet() {
		httpReq.Header.Set("Authorization", "Bearer "+s.config.APIKey.Value())
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScoringFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrScoringFailed, resp.StatusCode, string(respBody))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(parsed.Scores) != len(candidates) {
		return nil, fmt.Errorf("%w: got %d scores for %d candidates", ErrScoringFailed, len(parsed.Scores), len(candidates))
	}

	return parsed.Scores, nil
}

var _ Scorer = (*HTTPScorer)(nil)
