package openaiapi

import (
	"context"
	"fmt"
	"sort"
)

// Embedder implements ports.Embedder. Callers treat every error as "no
// vector": ingestion stores chunks without embeddings and retrieval falls
// back to lexical scoring.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedTexts(ctx context.Context, tenantID string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.client.checkCredentials("embed"); err != nil {
		return nil, err
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
		"user":  tenantID,
	}

	var response struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	err := e.client.execute(ctx, "provider.embed", func(callCtx context.Context) error {
		return e.client.postJSON(callCtx, "/v1/embeddings", request, &response, "embed")
	})
	if err != nil {
		return nil, err
	}
	if len(response.Data) != len(texts) {
		return nil, fmt.Errorf("embed result mismatch: got %d vectors for %d inputs", len(response.Data), len(texts))
	}

	sort.Slice(response.Data, func(i, j int) bool {
		return response.Data[i].Index < response.Data[j].Index
	})
	out := make([][]float32, len(response.Data))
	for i, item := range response.Data {
		out[i] = item.Embedding
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, tenantID string, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, tenantID, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}
