package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/rag-chatbot/backend/internal/config"
	"github.com/zhouzirui/rag-chatbot/backend/internal/model/chat"
	docmodel "github.com/zhouzirui/rag-chatbot/backend/internal/model/document"
	chatservice "github.com/zhouzirui/rag-chatbot/backend/internal/service/chat"
)

// fakeChatModel answers with a fixed reply and remembers the last prompt.
type fakeChatModel struct {
	mu     sync.Mutex
	reply  string
	err    error
	prompt []*schema.Message
}

func (m *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompt = input
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *fakeChatModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompt = input
	if m.err != nil {
		return nil, m.err
	}
	var parts []*schema.Message
	for _, word := range strings.SplitAfter(m.reply, " ") {
		parts = append(parts, schema.AssistantMessage(word, nil))
	}
	return schema.StreamReaderFromArray(parts), nil
}

func (m *fakeChatModel) lastPrompt() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompt
}

// fakeRetriever returns canned chunks.
type fakeRetriever struct {
	docs []*schema.Document
	err  error
	topK int
}

func (r *fakeRetriever) Retrieve(_ context.Context, _ string, opts ...retriever.Option) ([]*schema.Document, error) {
	options := retriever.GetCommonOptions(&retriever.Options{}, opts...)
	if options.TopK != nil {
		r.topK = *options.TopK
	}
	return r.docs, r.err
}

var testRAG = config.RAGConfig{TopK: 3, HistoryLimit: 10}

func menuDocs() []*schema.Document {
	return []*schema.Document{
		docmodel.Chunk{ID: "a:0", Source: "menu.pdf", Text: "Chicken karahi costs 1800 rupees.", Index: 0, Score: 0.9}.ToSchema(),
		docmodel.Chunk{ID: "a:1", Source: "menu.pdf", Text: "   ", Index: 1, Score: 0.5}.ToSchema(),
	}
}

func newTestService(t *testing.T, m *fakeChatModel, r *fakeRetriever) (*Service, chatservice.Store) {
	t.Helper()
	store := chatservice.NewMemoryStore()
	svc, err := NewService(context.Background(), m, r, store, testRAG)
	require.NoError(t, err)
	return svc, store
}

func TestChatWithoutHistoryUsesRetrievedContext(t *testing.T) {
	ctx := context.Background()
	m := &fakeChatModel{reply: "Karahi is 1800 rupees."}
	r := &fakeRetriever{docs: menuDocs()}
	svc, store := newTestService(t, m, r)

	reply, err := svc.Chat(ctx, "", "How much is the karahi?")
	require.NoError(t, err)
	assert.Equal(t, "Karahi is 1800 rupees.", reply.Text)
	assert.Equal(t, chat.DefaultSessionID, reply.SessionID)
	require.Len(t, reply.Sources, 1)
	assert.Equal(t, "menu.pdf", reply.Sources[0].Source)
	assert.Equal(t, 3, r.topK)

	prompt := m.lastPrompt()
	require.Len(t, prompt, 2)
	assert.Equal(t, schema.System, prompt[0].Role)
	assert.Contains(t, prompt[0].Content, "Chicken karahi costs 1800 rupees.")
	assert.Contains(t, prompt[0].Content, contextHeader)
	assert.Equal(t, schema.User, prompt[1].Role)
	assert.Equal(t, "How much is the karahi?", prompt[1].Content)

	history, err := store.History(ctx, chat.DefaultSessionID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, chat.RoleUser, history[0].Role)
	assert.Equal(t, "How much is the karahi?", history[0].Content)
	assert.Equal(t, chat.RoleAssistant, history[1].Role)
	assert.Equal(t, "Karahi is 1800 rupees.", history[1].Content)
}

func TestChatIncludesRecentHistory(t *testing.T) {
	ctx := context.Background()
	m := &fakeChatModel{reply: "ok"}
	svc, store := newTestService(t, m, &fakeRetriever{})

	for i := 0; i < 6; i++ {
		_, err := store.Append(ctx, "s1", chat.RoleUser, "question")
		require.NoError(t, err)
		_, err = store.Append(ctx, "s1", chat.RoleAssistant, "answer")
		require.NoError(t, err)
	}

	_, err := svc.Chat(ctx, "s1", "next")
	require.NoError(t, err)

	prompt := m.lastPrompt()
	// system + 10 history + query
	require.Len(t, prompt, 12)
	assert.Contains(t, prompt[0].Content, limitedContextNote)
	assert.Equal(t, schema.User, prompt[1].Role)
	assert.Equal(t, schema.Assistant, prompt[2].Role)
	assert.Equal(t, "next", prompt[11].Content)
}

func TestChatUpstreamFailureStoresNothing(t *testing.T) {
	ctx := context.Background()

	t.Run("model", func(t *testing.T) {
		svc, store := newTestService(t, &fakeChatModel{err: errors.New("connection refused")}, &fakeRetriever{docs: menuDocs()})
		_, err := svc.Chat(ctx, "s1", "hello")
		require.ErrorIs(t, err, ErrUpstream)

		history, err := store.History(ctx, "s1", 0)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("retriever", func(t *testing.T) {
		m := &fakeChatModel{reply: "unused"}
		svc, store := newTestService(t, m, &fakeRetriever{err: errors.New("embedder down")})
		_, err := svc.Chat(ctx, "s1", "hello")
		require.ErrorIs(t, err, ErrUpstream)
		assert.Nil(t, m.lastPrompt())

		history, err := store.History(ctx, "s1", 0)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	svc, _ := newTestService(t, &fakeChatModel{reply: "x"}, &fakeRetriever{})
	_, err := svc.Chat(context.Background(), "s1", "  ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestStreamChatDeliversDeltasAndRecords(t *testing.T) {
	ctx := context.Background()
	m := &fakeChatModel{reply: "Open daily from noon."}
	svc, store := newTestService(t, m, &fakeRetriever{docs: menuDocs()})

	var deltas []string
	reply, err := svc.StreamChat(ctx, "s2", "When do you open?", func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Open daily from noon.", reply.Text)
	assert.Equal(t, "Open daily from noon.", strings.Join(deltas, ""))
	assert.Greater(t, len(deltas), 1)

	history, err := store.History(ctx, "s2", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Open daily from noon.", history[1].Content)
}

func TestStreamChatAbortedByCallerStoresNothing(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, &fakeChatModel{reply: "one two three"}, &fakeRetriever{})

	_, err := svc.StreamChat(ctx, "s3", "hi", func(string) error {
		return errors.New("client gone")
	})
	require.Error(t, err)

	history, err := store.History(ctx, "s3", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestBuildSystemPrompt(t *testing.T) {
	pb := NewPromptBuilder("")
	limited := pb.BuildSystemPrompt(nil)
	assert.True(t, strings.HasPrefix(limited, DefaultInstructions))
	assert.Contains(t, limited, limitedContextNote)

	custom := NewPromptBuilder("You answer questions about TKR Restaurant.")
	withContext := custom.BuildSystemPrompt([]docmodel.Chunk{{Source: "menu.pdf", Index: 2, Text: "Lassi is sweet."}})
	assert.True(t, strings.HasPrefix(withContext, "You answer questions about TKR Restaurant."))
	assert.Contains(t, withContext, "[menu.pdf, part 3]\nLassi is sweet.")
	assert.NotContains(t, withContext, limitedContextNote)
}
