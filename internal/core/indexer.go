package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/murshid-ai/murshid/internal/store"
)

// DefaultEmbedDelay spaces consecutive embedding calls during a reindex to
// stay under provider rate limits.
const DefaultEmbedDelay = 40 * time.Millisecond

// IndexerStore is the knowledge persistence the indexer drives.
type IndexerStore interface {
	KnowledgeItemByID(itemID string) (*store.KnowledgeItem, error)
	UpdateKnowledgeStatus(itemID string, status store.TrainingStatus, trainedAt *time.Time) error
	DeleteChunksByItem(itemID string) error
	InsertChunks(chunks []store.Chunk) error
}

// Indexer (re)builds the chunk corpus for one knowledge item: delete the old
// generation, segment, embed, persist, mark trained. A failed run marks the
// item failed so the owner can retry; it never leaves an item claiming
// trained with partial chunks.
type Indexer struct {
	store      IndexerStore
	gateway    *EmbeddingGateway
	chunkSize  int
	overlap    int
	embedDelay time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewIndexer(st IndexerStore, gateway *EmbeddingGateway, chunkSize, overlap int, embedDelay time.Duration) *Indexer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	return &Indexer{
		store:      st,
		gateway:    gateway,
		chunkSize:  chunkSize,
		overlap:    overlap,
		embedDelay: embedDelay,
		inFlight:   make(map[string]struct{}),
	}
}

// Start triggers a background reindex of the item. At most one run per item
// may be active; a second trigger while one is running returns
// ErrIndexingInProgress rather than racing on delete-then-insert.
func (ix *Indexer) Start(ctx context.Context, itemID string) error {
	if err := ix.acquire(itemID); err != nil {
		return err
	}
	go func() {
		defer ix.release(itemID)
		if err := ix.reindex(ctx, itemID); err != nil {
			slog.Error("indexing failed", "item_id", itemID, "error", err)
		}
	}()
	return nil
}

// Reindex runs one indexing pass synchronously. Exposed for tests and CLI
// use; HTTP triggers go through Start.
func (ix *Indexer) Reindex(ctx context.Context, itemID string) error {
	if err := ix.acquire(itemID); err != nil {
		return err
	}
	defer ix.release(itemID)
	return ix.reindex(ctx, itemID)
}

func (ix *Indexer) acquire(itemID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, running := ix.inFlight[itemID]; running {
		return ErrIndexingInProgress
	}
	ix.inFlight[itemID] = struct{}{}
	return nil
}

func (ix *Indexer) release(itemID string) {
	ix.mu.Lock()
	delete(ix.inFlight, itemID)
	ix.mu.Unlock()
}

func (ix *Indexer) reindex(ctx context.Context, itemID string) error {
	item, err := ix.store.KnowledgeItemByID(itemID)
	if err != nil {
		return fmt.Errorf("failed to load item: %w", err)
	}

	if err := ix.store.UpdateKnowledgeStatus(itemID, store.StatusTraining, nil); err != nil {
		return fmt.Errorf("failed to mark item training: %w", err)
	}
	if err := ix.run(ctx, item); err != nil {
		if statusErr := ix.store.UpdateKnowledgeStatus(itemID, store.StatusFailed, nil); statusErr != nil {
			slog.Error("failed to mark item failed", "item_id", itemID, "error", statusErr)
		}
		return err
	}

	now := time.Now()
	if err := ix.store.UpdateKnowledgeStatus(itemID, store.StatusTrained, &now); err != nil {
		return fmt.Errorf("failed to mark item trained: %w", err)
	}
	return nil
}

func (ix *Indexer) run(ctx context.Context, item *store.KnowledgeItem) error {
	// Full replace, never incremental: stale chunks from a previous
	// generation of content must not survive.
	if err := ix.store.DeleteChunksByItem(item.ID); err != nil {
		return err
	}

	segments := Segment(item.Content, ix.chunkSize, ix.overlap)
	if len(segments) == 0 {
		slog.Warn("item produced no chunks", "item_id", item.ID, "chars", item.CharCount)
		return nil
	}

	chunks := make([]store.Chunk, 0, len(segments))
	for i, text := range segments {
		if i > 0 && ix.embedDelay > 0 {
			select {
			case <-time.After(ix.embedDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		vec, strategy, err := ix.gateway.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("failed to embed chunk %d: %w", i, err)
		}
		chunks = append(chunks, store.Chunk{
			ItemID:    item.ID,
			OwnerID:   item.OwnerID,
			Position:  i,
			Content:   text,
			Embedding: vec,
			Strategy:  strategy,
			Title:     item.Title,
			SourceURL: item.SourceURL,
		})
	}

	if err := ix.store.InsertChunks(chunks); err != nil {
		return fmt.Errorf("failed to persist chunks: %w", err)
	}
	slog.Info("item indexed", "item_id", item.ID, "chunks", len(chunks))
	return nil
}
