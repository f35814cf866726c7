package store

import "time"

type User struct {
	ID             int64     `json:"id"`
	ExternalUserID string    `json:"external_user_id"`
	PasswordHash   string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt      time.Time `json:"created_at"`
}

// TrainingStatus is the lifecycle state of a KnowledgeItem.
type TrainingStatus string

const (
	StatusUntrained TrainingStatus = "untrained"
	StatusTraining  TrainingStatus = "training"
	StatusTrained   TrainingStatus = "trained"
	StatusFailed    TrainingStatus = "failed"
)

// KnowledgeItem is one piece of training material (a file's extracted text,
// a fetched link, or free text) owned by a single account.
type KnowledgeItem struct {
	ID          string         `json:"id"` // UUID
	OwnerID     int64          `json:"owner_id"`
	Kind        string         `json:"kind"` // "file", "link" or "text"
	Title       string         `json:"title"`
	Content     string         `json:"content,omitempty"`
	CharCount   int            `json:"char_count"`
	Status      TrainingStatus `json:"status"`
	SourceURL   string         `json:"source_url,omitempty"`
	LastTrained *time.Time     `json:"last_trained,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Chunk is the unit of embedding and retrieval. Title and SourceURL are
// denormalized from the owning item so context assembly needs no join.
// Strategy names the embedder that produced the vector; vectors from
// different strategies are never compared against each other.
type Chunk struct {
	ID        int64     `json:"id"`
	ItemID    string    `json:"item_id"`
	OwnerID   int64     `json:"owner_id"`
	Position  int       `json:"position"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	Strategy  string    `json:"-"`
	Title     string    `json:"title"`
	SourceURL string    `json:"source_url,omitempty"`

	// ItemTrainedAt is populated on read from the owning item, for
	// recency tie-breaking during retrieval. Not a column of chunks.
	ItemTrainedAt time.Time `json:"-"`
}

type Conversation struct {
	ID           string    `json:"id"` // UUID
	OwnerID      int64     `json:"owner_id"`
	Title        string    `json:"title"`
	Unread       bool      `json:"unread"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
}

// Source is a reference attached to an assistant message, pointing back at
// the knowledge that grounded the answer.
type Source struct {
	Title  string `json:"title"`
	URL    string `json:"url,omitempty"`
	ItemID string `json:"item_id,omitempty"`
}

type Message struct {
	ID             string    `json:"id"` // UUID
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"` // "user" or "assistant"
	Content        string    `json:"content"`
	Sources        []Source  `json:"sources,omitempty"`
	Negative       bool      `json:"negative_feedback"`
	CreatedAt      time.Time `json:"created_at"`
}

// UsageCounter accumulates per-account consumption for the current calendar
// month. Counters are zeroed lazily the first time a new month is observed.
type UsageCounter struct {
	AccountID    int64     `json:"account_id"`
	MessagesUsed int       `json:"messages_used"`
	TokensUsed   int       `json:"tokens_used"`
	LastReset    time.Time `json:"last_reset"`
}

// Personality holds the operator-configured identity settings that shape the
// system prompt for their bot.
type Personality struct {
	OwnerID      int64  `json:"owner_id"`
	BotName      string `json:"bot_name"`
	Role         string `json:"role"`
	Company      string `json:"company"`
	Tone         string `json:"tone"`     // "formal", "friendly" or "professional"
	Language     string `json:"language"` // "arabic", "english" or "mirror"
	Instructions string `json:"instructions"`
}
