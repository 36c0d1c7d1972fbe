package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/killallgit/scout/pkg/config"
	"github.com/killallgit/scout/pkg/event"
	"github.com/killallgit/scout/pkg/logger"
	"github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const collectionName = "sources"

// Hit is one semantic search result
type Hit struct {
	Source     event.Source
	Similarity float32
}

// Index is a semantic index over discovered sources
type Index struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	log        *logger.Logger
}

// NewIndex creates an in-memory index embedding documents with embed
func NewIndex(embed chromem.EmbeddingFunc) (*Index, error) {
	db := chromem.NewDB()
	collection, err := db.CreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create source collection: %w", err)
	}
	return &Index{
		db:         db,
		collection: collection,
		log:        logger.WithComponent("source_index"),
	}, nil
}

// Add embeds and stores a source. Sources are keyed by normalised URL, so
// re-adding one is a no-op.
func (i *Index) Add(ctx context.Context, src event.Source) error {
	id := Normalize(src.URL)
	if id == "" {
		return errors.New("source has no url")
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, err := i.collection.GetByID(ctx, id); err == nil {
		return nil
	}

	doc := chromem.Document{
		ID:      id,
		Content: documentText(src),
		Metadata: map[string]string{
			"url":     src.URL,
			"title":   src.Title,
			"snippet": src.Snippet,
			"agent":   src.Agent,
		},
	}
	if err := i.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to index source %s: %w", src.URL, err)
	}
	i.log.Debug("Source indexed", "url", src.URL)
	return nil
}

// Search returns up to n sources most similar to query
func (i *Index) Search(ctx context.Context, query string, n int) ([]Hit, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	// chromem rejects n larger than the collection
	count := i.collection.Count()
	if n > count {
		n = count
	}
	if n <= 0 {
		return []Hit{}, nil
	}

	results, err := i.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}

	hits := make([]Hit, len(results))
	for j, r := range results {
		hits[j] = Hit{
			Source: event.Source{
				URL:     r.Metadata["url"],
				Title:   r.Metadata["title"],
				Agent:   r.Metadata["agent"],
				Snippet: r.Metadata["snippet"],
			},
			Similarity: r.Similarity,
		}
	}
	return hits, nil
}

// Count returns the number of indexed sources
func (i *Index) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.collection.Count()
}

func documentText(src event.Source) string {
	parts := []string{src.Title, src.Snippet, src.URL}
	var b strings.Builder
	for _, p := range parts {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p)
	}
	return b.String()
}

// NewEmbeddingFunc builds a chromem embedding function backed by a
// langchaingo embedder for the configured provider
func NewEmbeddingFunc(cfg config.EmbedderConfig) (chromem.EmbeddingFunc, error) {
	var client embeddings.EmbedderClient

	switch strings.ToLower(cfg.Provider) {
	case "", "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(strings.TrimSuffix(cfg.BaseURL, "/api")))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama embedder: %w", err)
		}
		client = llm
	case "openai":
		opts := []openai.Option{}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		if cfg.Model != "" {
			opts = append(opts, openai.WithEmbeddingModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI embedder: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s", cfg.Provider)
	}

	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}, nil
}
