package core

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/murshid-ai/murshid/internal/utils"
)

// LocalVectorWidth is the dimensionality of the deterministic fallback
// vectorizer.
const LocalVectorWidth = 256

// EmbeddingClient turns text into a fixed-length vector. Name identifies the
// strategy; vectors from different strategies are never compared.
type EmbeddingClient interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LocalEmbedder is a deterministic hashed bag-of-words vectorizer. It needs
// no network or credentials, which keeps retrieval functioning when the
// embedding provider is down or unconfigured.
type LocalEmbedder struct {
	width int
}

func NewLocalEmbedder() *LocalEmbedder {
	return &LocalEmbedder{width: LocalVectorWidth}
}

func (e *LocalEmbedder) Name() string { return "local-hash" }

// Embed hashes each distinct term (lowercase, longer than 3 runes) into one
// of width buckets by summing character codes, accumulates term frequencies,
// and L2-normalizes. The zero vector stays zero.
func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.width)
	for _, word := range tokenize(text) {
		bucket := 0
		for _, r := range word {
			bucket += int(r)
		}
		vec[bucket%e.width]++
	}
	if mag := utils.Magnitude(vec); mag > 0 {
		for i := range vec {
			vec[i] /= mag
		}
	}
	return vec, nil
}

// tokenize lowercases and keeps words longer than 3 runes, so the length
// filter treats non-ASCII scripts the same as ASCII. Shared by the local
// embedder and the keyword-overlap retrieval tier.
func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	kept := words[:0]
	for _, w := range words {
		if utf8.RuneCountInString(w) > 3 {
			kept = append(kept, w)
		}
	}
	return kept
}

// EmbeddingGateway embeds through the configured provider and falls back to
// the local vectorizer on any provider failure. Degraded retrieval beats no
// retrieval.
type EmbeddingGateway struct {
	primary  EmbeddingClient // nil when no provider is configured
	fallback *LocalEmbedder
}

func NewEmbeddingGateway(primary EmbeddingClient) *EmbeddingGateway {
	return &EmbeddingGateway{primary: primary, fallback: NewLocalEmbedder()}
}

// Strategy is the name the next Embed call will record, assuming the primary
// provider is reachable.
func (g *EmbeddingGateway) Strategy() string {
	if g.primary != nil {
		return g.primary.Name()
	}
	return g.fallback.Name()
}

// Embed returns the vector and the name of the strategy that produced it.
func (g *EmbeddingGateway) Embed(ctx context.Context, text string) ([]float32, string, error) {
	if g.primary != nil {
		vec, err := g.primary.Embed(ctx, text)
		if err == nil {
			return vec, g.primary.Name(), nil
		}
		slog.Warn("embedding provider failed, using local fallback",
			"provider", g.primary.Name(), "error", err)
	}
	vec, err := g.fallback.Embed(ctx, text)
	return vec, g.fallback.Name(), err
}
