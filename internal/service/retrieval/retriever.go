// Package retrieval finds the video passages most relevant to an utterance:
// embed the query, similarity-search the vector store scoped to the video,
// and cache the result for repeated questions.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// PassageStore performs vector similarity search over one video's chunks.
type PassageStore interface {
	Search(ctx context.Context, vector []float32, videoID string, limit int) ([]string, error)
	Close() error
}

// Retriever is the retrieval collaborator used by the generation coordinator.
type Retriever struct {
	embedder Embedder
	store    PassageStore
	cache    Cache
	topK     int
}

// NewRetriever wires embedder, store, and cache. topK is the default result
// count when the caller passes k <= 0.
func NewRetriever(embedder Embedder, store PassageStore, cache Cache, topK int) *Retriever {
	if topK < 1 {
		topK = 3
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		cache:    cache,
		topK:     topK,
	}
}

// Retrieve returns the top-k most relevant passages, highest ranked first.
func (r *Retriever) Retrieve(ctx context.Context, query, videoID string, k int) ([]string, error) {
	if k <= 0 {
		k = r.topK
	}

	key := cacheKey(videoID, query, k)
	if r.cache != nil {
		if passages, ok := r.cache.Get(ctx, key); ok {
			return passages, nil
		}
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	passages, err := r.store.Search(ctx, vector, videoID, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search passages: %w", err)
	}

	if r.cache != nil {
		r.cache.Set(ctx, key, passages)
	}

	return passages, nil
}

// Close releases the store and cache.
func (r *Retriever) Close() error {
	var firstErr error
	if r.store != nil {
		firstErr = r.store.Close()
	}
	if r.cache != nil {
		if err := r.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func cacheKey(videoID, query string, k int) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("%s:%d:%s", videoID, k, hex.EncodeToString(sum[:]))
}
