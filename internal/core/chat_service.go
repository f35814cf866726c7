package core

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/murshid-ai/murshid/internal/store"
)

const (
	// maxMessageChars bounds a single user message.
	maxMessageChars = 4000

	// historyTurns is how many recent exchanges are replayed to the
	// completion provider.
	historyTurns = 5

	maxTitleChars = 60
)

// ConversationStore is the persistence the orchestrator needs for one turn.
type ConversationStore interface {
	ConversationByID(conversationID string) (*store.Conversation, error)
	CreateConversation(conv *store.Conversation) error
	AppendMessage(msg *store.Message) error
	RecentMessages(conversationID string, n int) ([]store.Message, error)
	TouchConversation(conversationID string, at time.Time, unread bool) error
	Personality(ownerID int64) (*store.Personality, error)
}

// TurnRequest is one inbound chat message against an owner's knowledge base.
// An empty ConversationID starts a new conversation.
type TurnRequest struct {
	OwnerID        int64
	ConversationID string
	Message        string
}

// TurnResponse is the completed turn returned to the chat surface.
type TurnResponse struct {
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"message_id"`
	Answer         string         `json:"answer"`
	Sources        []store.Source `json:"sources"`
	Timestamp      time.Time      `json:"timestamp"`
}

// ChatService runs the per-turn state machine: validate, quota gate,
// resolve conversation, retrieve context, complete, persist, consume usage.
// Turns within one conversation are serialized by a per-id lock; turns across
// conversations run concurrently.
type ChatService struct {
	store      ConversationStore
	retriever  *Retriever
	completion CompletionClient
	enforcer   *UsageEnforcer
	timeout    time.Duration

	locksMu sync.Mutex
	locks   map[string]*convLock
}

// convLock serializes turns within one conversation. Entries are refcounted
// and removed from the map once the last holder releases, so the map tracks
// only conversations with a turn in flight.
type convLock struct {
	mu   sync.Mutex
	refs int
}

func NewChatService(st ConversationStore, retriever *Retriever, completion CompletionClient,
	enforcer *UsageEnforcer, completionTimeout time.Duration) *ChatService {
	if completionTimeout <= 0 {
		completionTimeout = 30 * time.Second
	}
	return &ChatService{
		store:      st,
		retriever:  retriever,
		completion: completion,
		enforcer:   enforcer,
		timeout:    completionTimeout,
		locks:      make(map[string]*convLock),
	}
}

// SendMessage processes one chat turn. Quota and validation failures return
// before any side effect. A completion failure leaves the user message in
// place with no assistant reply and consumes no quota; the client may retry.
// Retrieval failures degrade to an ungrounded answer, never a failed turn.
func (s *ChatService) SendMessage(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, &ValidationError{Msg: "message cannot be empty"}
	}
	if len(message) > maxMessageChars {
		return nil, &ValidationError{Msg: "message is too long"}
	}

	if err := s.enforcer.Check(req.OwnerID); err != nil {
		return nil, err
	}

	conv, err := s.resolveConversation(req.OwnerID, req.ConversationID, message)
	if err != nil {
		return nil, err
	}

	unlock := s.lockConversation(conv.ID)
	defer unlock()

	history, err := s.store.RecentMessages(conv.ID, 2*historyTurns)
	if err != nil {
		slog.Warn("failed to load history, answering without it", "conversation_id", conv.ID, "error", err)
		history = nil
	}

	userMsg := store.Message{ConversationID: conv.ID, Role: "user", Content: message}
	if err := s.store.AppendMessage(&userMsg); err != nil {
		return nil, err
	}

	// Retrieval failure only removes grounding; it must not block the answer.
	results, err := s.retriever.Retrieve(ctx, req.OwnerID, message)
	if err != nil {
		slog.Warn("retrieval degraded to empty context", "conversation_id", conv.ID, "error", err)
		results = nil
	}
	contextBlock, sources := AssembleContext(results)

	personality, err := s.store.Personality(req.OwnerID)
	if err != nil {
		slog.Warn("failed to load personality, using defaults", "owner_id", req.OwnerID, "error", err)
		personality = &store.Personality{Tone: "professional", Language: "mirror"}
	}
	systemPrompt := BuildSystemPrompt(contextBlock, personality)

	completionCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result, err := s.completion.Complete(completionCtx, systemPrompt, toChatTurns(history), message)
	if err != nil {
		return nil, err
	}

	if sources == nil {
		sources = []store.Source{}
	}
	assistantMsg := store.Message{
		ConversationID: conv.ID,
		Role:           "assistant",
		Content:        result.Text,
		Sources:        sources,
	}
	if err := s.store.AppendMessage(&assistantMsg); err != nil {
		return nil, err
	}
	if err := s.store.TouchConversation(conv.ID, assistantMsg.CreatedAt, true); err != nil {
		slog.Warn("failed to touch conversation", "conversation_id", conv.ID, "error", err)
	}

	tokens := result.TotalTokens
	if tokens == 0 {
		tokens = EstimateTokens(message, result.Text)
	}
	if err := s.enforcer.Consume(req.OwnerID, tokens); err != nil {
		slog.Error("failed to record usage", "owner_id", req.OwnerID, "error", err)
	}

	return &TurnResponse{
		ConversationID: conv.ID,
		MessageID:      assistantMsg.ID,
		Answer:         result.Text,
		Sources:        sources,
		Timestamp:      assistantMsg.CreatedAt,
	}, nil
}

// resolveConversation loads an existing conversation (it must belong to the
// owner) or creates one titled from the first user message.
func (s *ChatService) resolveConversation(ownerID int64, conversationID, firstMessage string) (*store.Conversation, error) {
	if conversationID != "" {
		conv, err := s.store.ConversationByID(conversationID)
		if err != nil {
			return nil, err
		}
		if conv.OwnerID != ownerID {
			return nil, store.ErrNotFound
		}
		return conv, nil
	}
	conv := &store.Conversation{OwnerID: ownerID, Title: TitleFromMessage(firstMessage)}
	if err := s.store.CreateConversation(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ChatService) lockConversation(conversationID string) func() {
	s.locksMu.Lock()
	lock, ok := s.locks[conversationID]
	if !ok {
		lock = &convLock{}
		s.locks[conversationID] = lock
	}
	lock.refs++
	s.locksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.locksMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, conversationID)
		}
		s.locksMu.Unlock()
	}
}

func toChatTurns(messages []store.Message) []ChatTurn {
	turns := make([]ChatTurn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, ChatTurn{Role: m.Role, Content: m.Content})
	}
	return turns
}

// TitleFromMessage derives a conversation title from the first user message,
// truncated at a word boundary.
func TitleFromMessage(message string) string {
	title := strings.TrimSpace(message)
	if len(title) <= maxTitleChars {
		return title
	}
	cut := title[:maxTitleChars]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
