package integration

import (
	"context"
	"time"

	"github.com/killallgit/scout/pkg/config"
	"github.com/killallgit/scout/pkg/event"
	"github.com/killallgit/scout/pkg/sources"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"
)

var _ = Describe("Semantic source index", func() {
	var index *sources.Index

	BeforeEach(func() {
		url, _ := requireIntegration()
		viper.SetDefault("OLLAMA_EMBED_MODEL", "nomic-embed-text")

		embed, err := sources.NewEmbeddingFunc(config.EmbedderConfig{
			Provider: "ollama",
			Model:    viper.GetString("OLLAMA_EMBED_MODEL"),
			BaseURL:  url,
		})
		Expect(err).ToNot(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := embed(ctx, "ping"); err != nil {
			Skip("Embedding model not available: " + err.Error())
		}

		index, err = sources.NewIndex(embed)
		Expect(err).ToNot(HaveOccurred())
	})

	It("should rank the closest source first", func() {
		ctx := context.Background()
		Expect(index.Add(ctx, event.Source{URL: "https://go.dev/doc", Title: "Go documentation", Snippet: "The Go programming language"})).To(Succeed())
		Expect(index.Add(ctx, event.Source{URL: "https://example.com/bread", Title: "Sourdough basics", Snippet: "Baking bread with a starter"})).To(Succeed())

		hits, err := index.Search(ctx, "programming languages", 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(hits).To(HaveLen(1))
		Expect(hits[0].Source.URL).To(Equal("https://go.dev/doc"))
	})
})
