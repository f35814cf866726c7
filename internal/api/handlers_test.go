package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murshid-ai/murshid/internal/config"
	"github.com/murshid-ai/murshid/internal/core"
	"github.com/murshid-ai/murshid/internal/store"
)

// stubCompletion answers every turn with a fixed reply.
type stubCompletion struct {
	err error
}

func (s *stubCompletion) Complete(_ context.Context, _ string, _ []core.ChatTurn, _ string) (*core.CompletionResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &core.CompletionResult{Text: "Here is your answer.", TotalTokens: 10}, nil
}

type testEnv struct {
	router     http.Handler
	store      *store.SQLiteStore
	completion *stubCompletion
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	config.AppConfig.JWTSecret = "test-secret"

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	gateway := core.NewEmbeddingGateway(nil)
	indexer := core.NewIndexer(st, gateway, 200, 40, 0)
	retriever := core.NewRetriever(st, gateway, 3, 0.3)
	enforcer := core.NewUsageEnforcer(st, core.UsageLimits{Messages: 100, Tokens: 100000})
	completion := &stubCompletion{}
	chat := core.NewChatService(st, retriever, completion, enforcer, time.Second)

	return &testEnv{
		router:     NewRouter(NewAPIHandler(st, chat, indexer, enforcer)),
		store:      st,
		completion: completion,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// signupAndLogin registers an operator account and returns its token.
func (e *testEnv) signupAndLogin(t *testing.T, userID string) string {
	t.Helper()
	creds := map[string]string{"user_id": userID, "password": "hunter22"}

	rec := e.do(t, http.MethodPost, "/api/signup", "", creds)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/api/login", "", creds)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["token"])
	return resp["token"]
}

func TestSignupAndLogin(t *testing.T) {
	env := newTestEnv(t)
	env.signupAndLogin(t, "acme")

	rec := env.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"user_id": "acme", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"user_id": "ghost", "password": "hunter22",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/materials", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/materials", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMaterialFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.signupAndLogin(t, "acme")

	rec := env.do(t, http.MethodPost, "/api/materials", token, map[string]string{
		"kind":    "text",
		"title":   "Shipping FAQ",
		"content": "Orders are shipped within two business days from our warehouse in Rotterdam.",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created store.KnowledgeItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Empty(t, created.Content, "listing responses must not carry content")

	rec = env.do(t, http.MethodGet, "/api/materials", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []store.KnowledgeItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)

	rec = env.do(t, http.MethodGet, "/api/materials/"+created.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/materials/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/materials/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMaterialValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.signupAndLogin(t, "acme")

	rec := env.do(t, http.MethodPost, "/api/materials", token, map[string]string{
		"kind": "carrier-pigeon", "title": "T", "content": "C",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/materials", token, map[string]string{
		"kind": "text", "title": "  ", "content": "C",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrainMissingMaterial(t *testing.T) {
	env := newTestEnv(t)
	token := env.signupAndLogin(t, "acme")

	rec := env.do(t, http.MethodPost, "/api/materials/nope/train", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPersonalityRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	token := env.signupAndLogin(t, "acme")

	rec := env.do(t, http.MethodGet, "/api/personality", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p store.Personality
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "professional", p.Tone)

	rec = env.do(t, http.MethodPut, "/api/personality", token, map[string]string{
		"bot_name": "Nadia", "tone": "friendly", "language": "arabic",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/personality", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "Nadia", p.BotName)
	assert.Equal(t, "friendly", p.Tone)

	rec = env.do(t, http.MethodPut, "/api/personality", token, map[string]string{"tone": "sarcastic"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWidgetChat(t *testing.T) {
	env := newTestEnv(t)
	token := env.signupAndLogin(t, "acme")

	rec := env.do(t, http.MethodPost, "/api/widget/acme/messages", "", map[string]string{
		"message": "When do orders ship?",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var turn core.TurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turn))
	assert.Equal(t, "Here is your answer.", turn.Answer)
	require.NotEmpty(t, turn.ConversationID)
	require.NotNil(t, turn.Sources)

	// A follow-up stays in the same conversation.
	rec = env.do(t, http.MethodPost, "/api/widget/acme/messages", "", map[string]string{
		"message":         "And weekends?",
		"conversation_id": turn.ConversationID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var second core.TurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, turn.ConversationID, second.ConversationID)

	// The operator sees it in the dashboard, marked unread.
	rec = env.do(t, http.MethodGet, "/api/conversations", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var convs []store.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &convs))
	require.Len(t, convs, 1)
	assert.True(t, convs[0].Unread)

	rec = env.do(t, http.MethodGet, "/api/conversations/"+turn.ConversationID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var details ConversationDetailsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
	assert.Len(t, details.Messages, 4)
}

func TestMessageFeedback(t *testing.T) {
	env := newTestEnv(t)
	token := env.signupAndLogin(t, "acme")

	rec := env.do(t, http.MethodPost, "/api/widget/acme/messages", "", map[string]string{
		"message": "When do orders ship?",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var turn core.TurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turn))

	rec = env.do(t, http.MethodPost, "/api/messages/"+turn.MessageID+"/feedback", token,
		map[string]bool{"negative": true})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/conversations/"+turn.ConversationID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var details ConversationDetailsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
	require.Len(t, details.Messages, 2)
	assert.True(t, details.Messages[1].Negative)

	rec = env.do(t, http.MethodPost, "/api/messages/unknown/feedback", token,
		map[string]bool{"negative": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWidgetValidationAndUnknownAccount(t *testing.T) {
	env := newTestEnv(t)
	env.signupAndLogin(t, "acme")

	rec := env.do(t, http.MethodPost, "/api/widget/nobody/messages", "", map[string]string{
		"message": "Hello?",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/widget/acme/messages", "", map[string]string{
		"message": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWidgetCompletionErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	env.signupAndLogin(t, "acme")

	cases := []struct {
		kind       core.CompletionErrorKind
		wantStatus int
	}{
		{core.CompletionAuth, http.StatusBadGateway},
		{core.CompletionRateLimited, http.StatusServiceUnavailable},
		{core.CompletionTimeout, http.StatusGatewayTimeout},
		{core.CompletionGeneric, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			env.completion.err = &core.CompletionError{
				Kind: tc.kind,
				Err:  errors.New("provider said: key sk-12345 rejected"),
			}

			rec := env.do(t, http.MethodPost, "/api/widget/acme/messages", "", map[string]string{
				"message": "Hello?",
			})
			require.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())

			// Clients get a short apology, never provider detail.
			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["error"])
			assert.NotContains(t, resp["error"], "sk-12345")
			assert.NotContains(t, resp["error"], string(tc.kind))
		})
	}

	// Once the provider recovers, the same conversation works again.
	env.completion.err = nil
	rec := env.do(t, http.MethodPost, "/api/widget/acme/messages", "", map[string]string{
		"message": "Still there?",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWidgetQuotaExceeded(t *testing.T) {
	env := newTestEnv(t)
	env.signupAndLogin(t, "acme")
	user, err := env.store.GetUserByExternalID("acme")
	require.NoError(t, err)

	counter, err := env.store.UsageCounter(user.ID)
	require.NoError(t, err)
	counter.MessagesUsed = 100
	require.NoError(t, env.store.SaveUsageCounter(counter))

	rec := env.do(t, http.MethodPost, "/api/widget/acme/messages", "", map[string]string{
		"message": "One more?",
	})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "messages", resp["reason"])
	assert.Equal(t, float64(100), resp["used"])
}

func TestUsageEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := env.signupAndLogin(t, "acme")

	rec := env.do(t, http.MethodPost, "/api/widget/acme/messages", "", map[string]string{
		"message": "Count me",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/usage", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var usage map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usage))
	assert.Equal(t, float64(1), usage["messages_used"])
	assert.Equal(t, float64(100), usage["messages_limit"])
	assert.Equal(t, float64(10), usage["tokens_used"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
