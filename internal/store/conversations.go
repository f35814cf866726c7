package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation methods

func (s *SQLiteStore) CreateConversation(conv *Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now()
	conv.CreatedAt = now
	conv.LastActivity = now

	_, err := s.db.Exec(`
        INSERT INTO conversations (id, owner_id, title, unread, last_activity, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.OwnerID, conv.Title, conv.Unread, conv.LastActivity, conv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ConversationByID(conversationID string) (*Conversation, error) {
	var conv Conversation
	err := s.db.QueryRow(`
        SELECT id, owner_id, title, unread, last_activity, created_at
        FROM conversations WHERE id = ?`, conversationID).
		Scan(&conv.ID, &conv.OwnerID, &conv.Title, &conv.Unread, &conv.LastActivity, &conv.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (s *SQLiteStore) ConversationsByOwner(ownerID int64) ([]Conversation, error) {
	rows, err := s.db.Query(`
        SELECT id, owner_id, title, unread, last_activity, created_at
        FROM conversations WHERE owner_id = ? ORDER BY last_activity DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.OwnerID, &conv.Title, &conv.Unread,
			&conv.LastActivity, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// TouchConversation bumps last_activity and sets the unread flag after a
// completed turn.
func (s *SQLiteStore) TouchConversation(conversationID string, at time.Time, unread bool) error {
	res, err := s.db.Exec("UPDATE conversations SET last_activity = ?, unread = ? WHERE id = ?",
		at, unread, conversationID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) MarkConversationRead(conversationID string, ownerID int64) error {
	res, err := s.db.Exec("UPDATE conversations SET unread = FALSE WHERE id = ? AND owner_id = ?",
		conversationID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteConversation(conversationID string, ownerID int64) error {
	res, err := s.db.Exec("DELETE FROM conversations WHERE id = ? AND owner_id = ?",
		conversationID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Message methods

// AppendMessage stores one turn. Messages are append-only; nothing updates
// them afterwards.
func (s *SQLiteStore) AppendMessage(msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now()

	var sourcesJSON any
	if len(msg.Sources) > 0 {
		b, err := json.Marshal(msg.Sources)
		if err != nil {
			return fmt.Errorf("failed to marshal sources: %w", err)
		}
		sourcesJSON = string(b)
	}

	_, err := s.db.Exec(`
        INSERT INTO messages (id, conversation_id, role, content, sources_json, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, sourcesJSON, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// SetMessageFeedback flags or unflags an assistant message, scoped to the
// owner's conversations so one operator cannot rate another's messages.
func (s *SQLiteStore) SetMessageFeedback(messageID string, ownerID int64, negative bool) error {
	res, err := s.db.Exec(`
        UPDATE messages SET negative_feedback = ?
        WHERE id = ? AND role = 'assistant' AND conversation_id IN
            (SELECT id FROM conversations WHERE owner_id = ?)`,
		negative, messageID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to set message feedback: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) MessagesByConversation(conversationID string, limit, offset int) ([]Message, error) {
	rows, err := s.db.Query(`
        SELECT id, conversation_id, role, content, sources_json, negative_feedback, created_at
        FROM messages WHERE conversation_id = ?
        ORDER BY created_at ASC, rowid ASC LIMIT ? OFFSET ?`, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentMessages returns the last n messages in chronological order.
func (s *SQLiteStore) RecentMessages(conversationID string, n int) ([]Message, error) {
	rows, err := s.db.Query(`
        SELECT id, conversation_id, role, content, sources_json, negative_feedback, created_at
        FROM (
            SELECT rowid AS rid, id, conversation_id, role, content, sources_json, negative_feedback, created_at
            FROM messages WHERE conversation_id = ?
            ORDER BY created_at DESC, rowid DESC LIMIT ?
        ) ORDER BY created_at ASC, rid ASC`, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var msg Message
		var sourcesJSON sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content,
			&sourcesJSON, &msg.Negative, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		if sourcesJSON.Valid && sourcesJSON.String != "" {
			if err := json.Unmarshal([]byte(sourcesJSON.String), &msg.Sources); err != nil {
				return nil, fmt.Errorf("failed to unmarshal sources for message %s: %w", msg.ID, err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
