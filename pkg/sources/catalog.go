package sources

import (
	"net/url"
	"slices"
	"strings"

	"github.com/killallgit/scout/pkg/event"
)

// Catalog keeps discovered sources in discovery order, one per URL
type Catalog struct {
	items []event.Source
	seen  map[string]int
}

func NewCatalog() *Catalog {
	return &Catalog{seen: make(map[string]int)}
}

// Add records a source. It returns false when the URL is empty or already
// known; a known source only gains missing title and snippet.
func (c *Catalog) Add(src event.Source) bool {
	key := Normalize(src.URL)
	if key == "" {
		return false
	}
	if i, ok := c.seen[key]; ok {
		existing := &c.items[i]
		if existing.Title == "" {
			existing.Title = src.Title
		}
		if existing.Snippet == "" {
			existing.Snippet = src.Snippet
		}
		return false
	}
	c.seen[key] = len(c.items)
	c.items = append(c.items, src)
	return true
}

// All returns a copy of every source
func (c *Catalog) All() []event.Source {
	return slices.Clone(c.items)
}

func (c *Catalog) Len() int {
	return len(c.items)
}

// Normalize returns the identity key of a URL: scheme and host lower-cased,
// fragment and trailing slash dropped
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""
	return u.String()
}
