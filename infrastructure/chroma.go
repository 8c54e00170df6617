package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Embedder is the slice of the ai client the retriever needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChromaRetriever fetches scoring context snippets from a Chroma collection
// over its HTTP API, embedding queries and documents through the configured
// ai provider.
type ChromaRetriever struct {
	baseURL    string
	collection string
	embedder   Embedder
	http       *http.Client
	log        *zap.Logger

	collectionID string
}

func NewChromaRetriever(baseURL, collection string, embedder Embedder, log *zap.Logger) *ChromaRetriever {
	return &ChromaRetriever{
		baseURL:    baseURL,
		collection: collection,
		embedder:   embedder,
		http:       &http.Client{Timeout: 30 * time.Second},
		log:        log.With(zap.String("component", "chroma"), zap.String("collection", collection)),
	}
}

// Seed drops and recreates the collection with the given documents. Called
// once at serve startup so scoring always has a context corpus.
func (r *ChromaRetriever) Seed(ctx context.Context, docs []string) error {
	// Best effort: the collection may not exist yet.
	_ = r.do(ctx, http.MethodDelete, "/api/v1/collections/"+r.collection, nil, nil)
	r.collectionID = ""

	id, err := r.ensureCollection(ctx)
	if err != nil {
		return err
	}

	vectors, err := r.embedder.Embed(ctx, docs)
	if err != nil {
		return fmt.Errorf("embed seed documents: %w", err)
	}

	ids := make([]string, len(docs))
	for i := range docs {
		ids[i] = uuid.NewString()
	}

	payload := map[string]any{
		"ids":        ids,
		"embeddings": vectors,
		"documents":  docs,
	}
	if err := r.do(ctx, http.MethodPost, "/api/v1/collections/"+id+"/add", payload, nil); err != nil {
		return fmt.Errorf("add seed documents: %w", err)
	}

	r.log.Info("seeded context collection", zap.Int("documents", len(docs)))
	return nil
}

// Query returns up to limit matching snippets, most similar first.
func (r *ChromaRetriever) Query(ctx context.Context, query string, limit int) ([]string, error) {
	id, err := r.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	payload := map[string]any{
		"query_embeddings": vectors,
		"n_results":        limit,
		"include":          []string{"documents"},
	}

	var resp struct {
		Documents [][]string `json:"documents"`
	}
	if err := r.do(ctx, http.MethodPost, "/api/v1/collections/"+id+"/query", payload, &resp); err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	if len(resp.Documents) == 0 {
		return nil, nil
	}
	return resp.Documents[0], nil
}

func (r *ChromaRetriever) ensureCollection(ctx context.Context) (string, error) {
	if r.collectionID != "" {
		return r.collectionID, nil
	}

	payload := map[string]any{
		"name":          r.collection,
		"get_or_create": true,
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := r.do(ctx, http.MethodPost, "/api/v1/collections", payload, &resp); err != nil {
		return "", fmt.Errorf("get or create collection: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("chroma returned empty collection id for %s", r.collection)
	}

	r.collectionID = resp.ID
	return resp.ID, nil
}

func (r *ChromaRetriever) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("chroma request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chroma %s %s: status %d: %s", method, path, resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
