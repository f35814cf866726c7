package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/murshid-ai/murshid/internal/store"
)

// fakeStore is an in-memory implementation of the persistence interfaces the
// core services consume.
type fakeStore struct {
	mu sync.Mutex

	items         map[string]*store.KnowledgeItem
	chunksByItem  map[string][]store.Chunk
	convs         map[string]*store.Conversation
	msgs          map[string][]store.Message
	counters      map[int64]*store.UsageCounter
	personalities map[int64]*store.Personality

	chunksErr      error // TrainedChunksByOwner failure
	insertErr      error // InsertChunks failure
	counterSaveErr error

	nextID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:         make(map[string]*store.KnowledgeItem),
		chunksByItem:  make(map[string][]store.Chunk),
		convs:         make(map[string]*store.Conversation),
		msgs:          make(map[string][]store.Message),
		counters:      make(map[int64]*store.UsageCounter),
		personalities: make(map[int64]*store.Personality),
	}
}

func (f *fakeStore) genID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

// RetrievalStore

func (f *fakeStore) TrainedChunksByOwner(ownerID int64) ([]store.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chunksErr != nil {
		return nil, f.chunksErr
	}
	var out []store.Chunk
	for _, item := range f.items {
		if item.OwnerID != ownerID || item.Status != store.StatusTrained {
			continue
		}
		trainedAt := item.CreatedAt
		if item.LastTrained != nil {
			trainedAt = *item.LastTrained
		}
		for _, c := range f.chunksByItem[item.ID] {
			c.ItemTrainedAt = trainedAt
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) TrainedItemsByOwner(ownerID int64) ([]store.KnowledgeItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.KnowledgeItem
	for _, item := range f.items {
		if item.OwnerID == ownerID && item.Status == store.StatusTrained {
			out = append(out, *item)
		}
	}
	return out, nil
}

// IndexerStore

func (f *fakeStore) KnowledgeItemByID(itemID string) (*store.KnowledgeItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (f *fakeStore) UpdateKnowledgeStatus(itemID string, status store.TrainingStatus, trainedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok {
		return store.ErrNotFound
	}
	item.Status = status
	if trainedAt != nil {
		item.LastTrained = trainedAt
	}
	return nil
}

func (f *fakeStore) DeleteChunksByItem(itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.chunksByItem, itemID)
	return nil
}

func (f *fakeStore) InsertChunks(chunks []store.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, c := range chunks {
		f.chunksByItem[c.ItemID] = append(f.chunksByItem[c.ItemID], c)
	}
	return nil
}

// ConversationStore

func (f *fakeStore) ConversationByID(conversationID string) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[conversationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *conv
	return &cp, nil
}

func (f *fakeStore) CreateConversation(conv *store.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv.ID == "" {
		conv.ID = f.genID("conv")
	}
	now := time.Now()
	conv.CreatedAt = now
	conv.LastActivity = now
	cp := *conv
	f.convs[conv.ID] = &cp
	return nil
}

func (f *fakeStore) AppendMessage(msg *store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.ID == "" {
		msg.ID = f.genID("msg")
	}
	msg.CreatedAt = time.Now()
	f.msgs[msg.ConversationID] = append(f.msgs[msg.ConversationID], *msg)
	return nil
}

func (f *fakeStore) RecentMessages(conversationID string, n int) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.msgs[conversationID]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return append([]store.Message(nil), msgs...), nil
}

func (f *fakeStore) TouchConversation(conversationID string, at time.Time, unread bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[conversationID]
	if !ok {
		return store.ErrNotFound
	}
	conv.LastActivity = at
	conv.Unread = unread
	return nil
}

func (f *fakeStore) Personality(ownerID int64) (*store.Personality, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.personalities[ownerID]; ok {
		cp := *p
		return &cp, nil
	}
	return &store.Personality{OwnerID: ownerID, Tone: "professional", Language: "mirror"}, nil
}

// UsageStore

func (f *fakeStore) UsageCounter(accountID int64) (*store.UsageCounter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.counters[accountID]; ok {
		cp := *c
		return &cp, nil
	}
	c := &store.UsageCounter{AccountID: accountID, LastReset: time.Now()}
	f.counters[accountID] = c
	cp := *c
	return &cp, nil
}

func (f *fakeStore) SaveUsageCounter(c *store.UsageCounter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counterSaveErr != nil {
		return f.counterSaveErr
	}
	cp := *c
	f.counters[c.AccountID] = &cp
	return nil
}

// fakeEmbedder is a canned EmbeddingClient.
type fakeEmbedder struct {
	name string
	vecs map[string][]float32 // by input text
	vec  []float32            // default when text not in vecs
	err  error
	mu   sync.Mutex
	call int
}

func (f *fakeEmbedder) Name() string { return f.name }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.call++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vecs[text]; ok {
		return v, nil
	}
	return f.vec, nil
}

// fakeCompletion is a canned CompletionClient that records what it was asked.
type fakeCompletion struct {
	result *CompletionResult
	err    error

	lastSystemPrompt string
	lastHistory      []ChatTurn
	lastUserMessage  string
	calls            int
}

func (f *fakeCompletion) Complete(_ context.Context, systemPrompt string, history []ChatTurn, userMessage string) (*CompletionResult, error) {
	f.calls++
	f.lastSystemPrompt = systemPrompt
	f.lastHistory = history
	f.lastUserMessage = userMessage
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &CompletionResult{Text: "Happy to help!"}, nil
}

func trainedItem(f *fakeStore, id string, ownerID int64, title, content string, trainedAt time.Time) *store.KnowledgeItem {
	item := &store.KnowledgeItem{
		ID:          id,
		OwnerID:     ownerID,
		Kind:        "text",
		Title:       title,
		Content:     content,
		CharCount:   len(content),
		Status:      store.StatusTrained,
		LastTrained: &trainedAt,
		CreatedAt:   trainedAt,
	}
	f.items[id] = item
	return item
}
