package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// KnowledgeItem methods

func (s *SQLiteStore) CreateKnowledgeItem(item *KnowledgeItem) error {
	if item.Status == "" {
		item.Status = StatusUntrained
	}
	item.CharCount = len(item.Content)
	item.CreatedAt = time.Now()

	_, err := s.db.Exec(`
        INSERT INTO knowledge_items (id, owner_id, kind, title, content, char_count, status, source_url, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.OwnerID, item.Kind, item.Title, item.Content, item.CharCount,
		item.Status, nullString(item.SourceURL), item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert knowledge item: %w", err)
	}
	return nil
}

func (s *SQLiteStore) KnowledgeItemByID(itemID string) (*KnowledgeItem, error) {
	row := s.db.QueryRow(`
        SELECT id, owner_id, kind, title, content, char_count, status, source_url, last_trained, created_at
        FROM knowledge_items WHERE id = ?`, itemID)
	return scanKnowledgeItem(row)
}

// KnowledgeItemForOwner is KnowledgeItemByID scoped to the requesting owner.
func (s *SQLiteStore) KnowledgeItemForOwner(itemID string, ownerID int64) (*KnowledgeItem, error) {
	row := s.db.QueryRow(`
        SELECT id, owner_id, kind, title, content, char_count, status, source_url, last_trained, created_at
        FROM knowledge_items WHERE id = ? AND owner_id = ?`, itemID, ownerID)
	return scanKnowledgeItem(row)
}

func scanKnowledgeItem(row *sql.Row) (*KnowledgeItem, error) {
	var item KnowledgeItem
	var sourceURL sql.NullString
	var lastTrained sql.NullTime
	err := row.Scan(&item.ID, &item.OwnerID, &item.Kind, &item.Title, &item.Content,
		&item.CharCount, &item.Status, &sourceURL, &lastTrained, &item.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan knowledge item: %w", err)
	}
	if sourceURL.Valid {
		item.SourceURL = sourceURL.String
	}
	if lastTrained.Valid {
		item.LastTrained = &lastTrained.Time
	}
	return &item, nil
}

// KnowledgeItemsByOwner lists the owner's items without their content, newest
// first. Content is omitted to keep dashboard listings light.
func (s *SQLiteStore) KnowledgeItemsByOwner(ownerID int64) ([]KnowledgeItem, error) {
	rows, err := s.db.Query(`
        SELECT id, owner_id, kind, title, char_count, status, source_url, last_trained, created_at
        FROM knowledge_items WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge items: %w", err)
	}
	defer rows.Close()

	var items []KnowledgeItem
	for rows.Next() {
		var item KnowledgeItem
		var sourceURL sql.NullString
		var lastTrained sql.NullTime
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Kind, &item.Title,
			&item.CharCount, &item.Status, &sourceURL, &lastTrained, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge item row: %w", err)
		}
		if sourceURL.Valid {
			item.SourceURL = sourceURL.String
		}
		if lastTrained.Valid {
			item.LastTrained = &lastTrained.Time
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// TrainedItemsByOwner returns the owner's trained items with content, for the
// keyword-overlap retrieval tier.
func (s *SQLiteStore) TrainedItemsByOwner(ownerID int64) ([]KnowledgeItem, error) {
	rows, err := s.db.Query(`
        SELECT id, owner_id, kind, title, content, char_count, status, source_url, last_trained, created_at
        FROM knowledge_items WHERE owner_id = ? AND status = ? ORDER BY last_trained DESC`,
		ownerID, StatusTrained)
	if err != nil {
		return nil, fmt.Errorf("failed to query trained items: %w", err)
	}
	defer rows.Close()

	var items []KnowledgeItem
	for rows.Next() {
		var item KnowledgeItem
		var sourceURL sql.NullString
		var lastTrained sql.NullTime
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Kind, &item.Title, &item.Content,
			&item.CharCount, &item.Status, &sourceURL, &lastTrained, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trained item row: %w", err)
		}
		if sourceURL.Valid {
			item.SourceURL = sourceURL.String
		}
		if lastTrained.Valid {
			item.LastTrained = &lastTrained.Time
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) UpdateKnowledgeStatus(itemID string, status TrainingStatus, trainedAt *time.Time) error {
	res, err := s.db.Exec("UPDATE knowledge_items SET status = ?, last_trained = COALESCE(?, last_trained) WHERE id = ?",
		status, trainedAt, itemID)
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteKnowledgeItem removes the item; its chunks go with it via the
// foreign-key cascade.
func (s *SQLiteStore) DeleteKnowledgeItem(itemID string, ownerID int64) error {
	res, err := s.db.Exec("DELETE FROM knowledge_items WHERE id = ? AND owner_id = ?", itemID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete knowledge item: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Chunk methods

func (s *SQLiteStore) DeleteChunksByItem(itemID string) error {
	if _, err := s.db.Exec("DELETE FROM chunks WHERE item_id = ?", itemID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// InsertChunks writes one generation of an item's chunks in a single
// transaction, so readers never observe a partial set.
func (s *SQLiteStore) InsertChunks(chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin chunk insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
        INSERT INTO chunks (item_id, owner_id, position, content, embedding_json, strategy, title, source_url)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		c := &chunks[i]
		embeddingJSON, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		res, err := stmt.Exec(c.ItemID, c.OwnerID, c.Position, c.Content,
			string(embeddingJSON), c.Strategy, c.Title, nullString(c.SourceURL))
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.Position, err)
		}
		c.ID, _ = res.LastInsertId()
	}
	return tx.Commit()
}

// TrainedChunksByOwner loads every chunk belonging to the owner's trained
// items, joined with the item's training timestamp for tie-breaking.
func (s *SQLiteStore) TrainedChunksByOwner(ownerID int64) ([]Chunk, error) {
	rows, err := s.db.Query(`
        SELECT c.id, c.item_id, c.owner_id, c.position, c.content, c.embedding_json,
               c.strategy, c.title, c.source_url, COALESCE(i.last_trained, i.created_at)
        FROM chunks c
        JOIN knowledge_items i ON i.id = c.item_id
        WHERE c.owner_id = ? AND i.status = ?`, ownerID, StatusTrained)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var embeddingJSON string
		var sourceURL sql.NullString
		if err := rows.Scan(&c.ID, &c.ItemID, &c.OwnerID, &c.Position, &c.Content,
			&embeddingJSON, &c.Strategy, &c.Title, &sourceURL, &c.ItemTrainedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if sourceURL.Valid {
			c.SourceURL = sourceURL.String
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &c.Embedding); err != nil {
			slog.Warn("skipping chunk with unreadable embedding", "chunk_id", c.ID, "error", err)
			continue
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ChunksByItem returns an item's chunks ordered by position. Used by the
// reindex tests and the dashboard chunk preview.
func (s *SQLiteStore) ChunksByItem(itemID string) ([]Chunk, error) {
	rows, err := s.db.Query(`
        SELECT id, item_id, owner_id, position, content, embedding_json, strategy, title, source_url
        FROM chunks WHERE item_id = ? ORDER BY position ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query item chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var embeddingJSON string
		var sourceURL sql.NullString
		if err := rows.Scan(&c.ID, &c.ItemID, &c.OwnerID, &c.Position, &c.Content,
			&embeddingJSON, &c.Strategy, &c.Title, &sourceURL); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if sourceURL.Valid {
			c.SourceURL = sourceURL.String
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &c.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding for chunk %d: %w", c.ID, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
