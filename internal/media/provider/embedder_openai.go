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

// embedderOpenAI talks to an OpenAI-compatible embeddings API.
type embedderOpenAI struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewEmbedderOpenAI builds the cloud-API embedding backend.
func NewEmbedderOpenAI(cfg config.ProviderConfig) Embedder {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &embedderOpenAI{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type embedAPIRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedAPIResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

func (e *embedderOpenAI) Embed(ctx context.Context, text string) (*Embedding, error) {
	vecs, model, err := e.post(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embeddings API returned %d vectors for 1 input", len(vecs))
	}
	return &Embedding{Vector: vecs[0], Text: text, Model: model}, nil
}

func (e *embedderOpenAI) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	return guardedBatch(ctx, texts, e.post, e.Embed)
}

func (e *embedderOpenAI) post(ctx context.Context, texts []string) ([][]float32, string, error) {
	payload, err := json.Marshal(embedAPIRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, "", classifyStatus(resp.StatusCode, string(b))
	}

	var out embedAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, "", fmt.Errorf("decode embeddings response: %w", err)
	}

	// The API does not guarantee response order; index does.
	vecs := make([][]float32, len(out.Data))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, "", fmt.Errorf("embeddings API returned out-of-range index %d", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			v[i] = float32(f)
		}
		vecs[d.Index] = v
	}
	return vecs, out.Model, nil
}
