package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"video_clip_service/pkg/config"
)

// embedderLocal talks to a local sentence-transformers sidecar over
// HTTP.
type embedderLocal struct {
	baseURL string
	client  *http.Client
}

// NewEmbedderLocal builds the local-inference embedding backend.
func NewEmbedderLocal(cfg config.ProviderConfig) Embedder {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &embedderLocal{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type embedLocalRequest struct {
	Texts []string `json:"texts"`
}

type embedLocalResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Model      string      `json:"model"`
}

func (e *embedderLocal) Embed(ctx context.Context, text string) (*Embedding, error) {
	vecs, model, err := e.post(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding server returned %d vectors for 1 input", len(vecs))
	}
	return &Embedding{Vector: vecs[0], Text: text, Model: model}, nil
}

func (e *embedderLocal) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	return guardedBatch(ctx, texts, e.post, e.Embed)
}

func (e *embedderLocal) post(ctx context.Context, texts []string) ([][]float32, string, error) {
	payload, err := json.Marshal(embedLocalRequest{Texts: texts})
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, "", classifyStatus(resp.StatusCode, string(b))
	}

	var out embedLocalResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, "", fmt.Errorf("decode embedding response: %w", err)
	}
	return out.Embeddings, out.Model, nil
}
