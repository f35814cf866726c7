package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/murshid-ai/murshid/internal/store"
	"github.com/murshid-ai/murshid/internal/utils"
)

const (
	DefaultTopK     = 3
	DefaultMinScore = 0.3
)

// errStrategyMismatch signals that stored vectors exist but none were
// produced by the strategy the query vector came from, so cosine scores
// would be meaningless. Triggers the keyword tier.
var errStrategyMismatch = errors.New("no chunks match the active embedding strategy")

// RetrievalStore is the chunk persistence the retriever reads from. Only
// chunks of trained items are ever visible through it.
type RetrievalStore interface {
	TrainedChunksByOwner(ownerID int64) ([]store.Chunk, error)
	TrainedItemsByOwner(ownerID int64) ([]store.KnowledgeItem, error)
}

// Result is one retrieved chunk with its relevance score.
type Result struct {
	Chunk store.Chunk
	Score float32
}

// Retriever ranks an owner's chunk corpus against a query. Semantic cosine
// ranking is the primary tier; keyword overlap is the fallback when the
// semantic path fails, so retrieval never hard-fails on a provider outage.
type Retriever struct {
	store    RetrievalStore
	gateway  *EmbeddingGateway
	topK     int
	minScore float32
}

func NewRetriever(st RetrievalStore, gateway *EmbeddingGateway, topK int, minScore float32) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	return &Retriever{store: st, gateway: gateway, topK: topK, minScore: minScore}
}

// Retrieve returns up to topK chunks for the owner ranked by relevance to the
// query. An empty result is "no knowledge", not an error.
func (r *Retriever) Retrieve(ctx context.Context, ownerID int64, query string) ([]Result, error) {
	results, err := r.semantic(ctx, ownerID, query)
	if err != nil {
		slog.Warn("semantic retrieval failed, falling back to keyword overlap",
			"owner_id", ownerID, "error", err)
		return r.keyword(ownerID, query)
	}
	return results, nil
}

func (r *Retriever) semantic(ctx context.Context, ownerID int64, query string) ([]Result, error) {
	chunks, err := r.store.TrainedChunksByOwner(ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	queryVec, strategy, err := r.gateway.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	comparable := 0
	var results []Result
	for _, chunk := range chunks {
		if chunk.Strategy != strategy {
			continue
		}
		comparable++
		score := utils.CosineSimilarity(queryVec, chunk.Embedding)
		if score >= r.minScore {
			results = append(results, Result{Chunk: chunk, Score: score})
		}
	}
	if comparable == 0 {
		return nil, errStrategyMismatch
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ItemTrainedAt.After(results[j].Chunk.ItemTrainedAt)
	})
	if len(results) > r.topK {
		results = results[:r.topK]
	}
	return results, nil
}

// keyword is the lexical tier: count query-word occurrences in each trained
// item's content and pick the best-matching chunk of each as its
// representative source.
func (r *Retriever) keyword(ownerID int64, query string) ([]Result, error) {
	items, err := r.store.TrainedItemsByOwner(ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load items for keyword retrieval: %w", err)
	}
	queryWords := tokenize(query)
	if len(queryWords) == 0 {
		return nil, nil
	}

	type scoredItem struct {
		item store.KnowledgeItem
		hits int
	}
	var scored []scoredItem
	for _, item := range items {
		content := strings.ToLower(item.Content)
		hits := 0
		for _, w := range queryWords {
			hits += strings.Count(content, w)
		}
		if hits > 0 {
			scored = append(scored, scoredItem{item: item, hits: hits})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].hits > scored[j].hits })
	if len(scored) > r.topK {
		scored = scored[:r.topK]
	}

	var results []Result
	for _, si := range scored {
		text, hits := bestChunkByKeywords(si.item.Content, queryWords)
		if text == "" {
			continue
		}
		results = append(results, Result{
			Chunk: store.Chunk{
				ItemID:    si.item.ID,
				OwnerID:   si.item.OwnerID,
				Content:   text,
				Title:     si.item.Title,
				SourceURL: si.item.SourceURL,
			},
			// Coarse confidence; lexical hits are not cosine scores.
			Score: float32(hits) / float32(hits+1),
		})
	}
	return results, nil
}

// bestChunkByKeywords segments the content and returns the chunk with the
// highest keyword hit count.
func bestChunkByKeywords(content string, queryWords []string) (string, int) {
	best := ""
	bestHits := 0
	for _, chunk := range Segment(content, DefaultChunkSize, DefaultChunkOverlap) {
		lower := strings.ToLower(chunk)
		hits := 0
		for _, w := range queryWords {
			hits += strings.Count(lower, w)
		}
		if hits > bestHits {
			best, bestHits = chunk, hits
		}
	}
	return best, bestHits
}
