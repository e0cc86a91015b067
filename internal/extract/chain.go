// Package extract locates a representative image in a recipe page by walking
// an ordered chain of HTML heuristics.
package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/recipe-image-enricher/internal/enrichment"
)

// Heuristic names, in default evaluation order.
const (
	HeuristicOpenGraph     = "og:image"
	HeuristicTwitter       = "twitter:image"
	HeuristicRecipeImage   = "recipe-image"
	HeuristicPostThumbnail = "post-thumbnail"
	HeuristicItemprop      = "itemprop-image"
	HeuristicArticleImage  = "article-img"
)

// Heuristic is one independent attempt to find an image in a document.
type Heuristic struct {
	Name string
	Find func(doc *goquery.Document) string
}

// AttrOf builds a Heuristic reading attr from the first element matching selector.
func AttrOf(name, selector, attr string) Heuristic {
	return Heuristic{
		Name: name,
		Find: func(doc *goquery.Document) string {
			v, _ := doc.Find(selector).First().Attr(attr)
			return v
		},
	}
}

// DefaultHeuristics returns the built-in chain, most explicit marker first.
func DefaultHeuristics() []Heuristic {
	return []Heuristic{
		AttrOf(HeuristicOpenGraph, `meta[property="og:image"]`, "content"),
		AttrOf(HeuristicTwitter, `meta[name="twitter:image"]`, "content"),
		AttrOf(HeuristicRecipeImage, ".recipe-image img", "src"),
		AttrOf(HeuristicPostThumbnail, ".post-thumbnail img", "src"),
		AttrOf(HeuristicItemprop, `img[itemprop="image"]`, "src"),
		AttrOf(HeuristicArticleImage, "article img", "src"),
	}
}

// Chain evaluates heuristics in order and stops at the first non-empty value.
type Chain struct {
	heuristics []Heuristic
}

// New builds a Chain from the default heuristics followed by extra.
func New(extra ...Heuristic) *Chain {
	hs := DefaultHeuristics()
	for _, h := range extra {
		if h.Find != nil {
			hs = append(hs, h)
		}
	}
	return &Chain{heuristics: hs}
}

// Heuristics returns the names of the configured heuristics in evaluation order.
func (c *Chain) Heuristics() []string {
	names := make([]string, 0, len(c.heuristics))
	for _, h := range c.heuristics {
		names = append(names, h.Name)
	}
	return names
}

// Extract parses body as HTML and returns the first match. The returned URL
// is the attribute value exactly as found in the page. A value that is empty
// or only whitespace is not a match; the chain moves on to the next heuristic.
func (c *Chain) Extract(body []byte) (enrichment.Match, bool) {
	if c == nil || len(body) == 0 {
		return enrichment.Match{}, false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return enrichment.Match{}, false
	}
	return c.ExtractDocument(doc)
}

// ExtractDocument runs the chain against an already parsed document.
func (c *Chain) ExtractDocument(doc *goquery.Document) (enrichment.Match, bool) {
	for _, h := range c.heuristics {
		v := h.Find(doc)
		if strings.TrimSpace(v) == "" {
			continue
		}
		return enrichment.Match{ImageURL: v, Heuristic: h.Name}, true
	}
	return enrichment.Match{}, false
}
