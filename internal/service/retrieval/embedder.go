package retrieval

import (
	"context"
	"fmt"

	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	arkmodel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
)

// Embedder converts query text to a vector in the space the video chunks
// were indexed with.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ArkEmbedder implements Embedder against the Ark embeddings endpoint, the
// same service family the generation model runs on.
type ArkEmbedder struct {
	client *arkruntime.Client
	model  string
}

// NewArkEmbedder creates an embedder for the given model.
func NewArkEmbedder(apiKey, baseURL, model string) *ArkEmbedder {
	opts := []arkruntime.ConfigOption{}
	if baseURL != "" {
		opts = append(opts, arkruntime.WithBaseUrl(baseURL))
	}
	return &ArkEmbedder{
		client: arkruntime.NewClientWithApiKey(apiKey, opts...),
		model:  model,
	}
}

// Embed implements Embedder.
func (e *ArkEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, arkmodel.EmbeddingRequestStrings{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no vectors")
	}

	return resp.Data[0].Embedding, nil
}
