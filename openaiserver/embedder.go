package openaiserver

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/datar-psa/divbench/api"
)

// Embedder serves text embeddings from an OpenAI-compatible server.
type Embedder struct {
	client    openai.Client
	modelName string
}

// NewEmbedder creates an embedder for the backend's server.
// modelName: the embedding model to use (e.g., "text-embedding-3-small").
func NewEmbedder(b *Backend, modelName string) *Embedder {
	return &Embedder{client: b.client, modelName: modelName}
}

// Embed implements Embedder.Embed.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.modelName),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return nil, classify("embeddings", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	if len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding vector")
	}
	return resp.Data[0].Embedding, nil
}

// Verify that Embedder implements api.Embedder
var _ api.Embedder = (*Embedder)(nil)
