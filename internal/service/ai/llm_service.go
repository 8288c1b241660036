package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/rag-chatbot/backend/internal/config"
	"github.com/zhouzirui/rag-chatbot/backend/internal/model/chat"
	docmodel "github.com/zhouzirui/rag-chatbot/backend/internal/model/document"
	chatservice "github.com/zhouzirui/rag-chatbot/backend/internal/service/chat"
)

var (
	// ErrUpstream marks a failure of the retrieval backend or the language model.
	ErrUpstream = errors.New("upstream service unavailable")
	// ErrEmptyMessage is returned for a blank user message.
	ErrEmptyMessage = errors.New("message is required")
)

// Reply is the outcome of one chat turn.
type Reply struct {
	SessionID string           `json:"session_id"`
	Text      string           `json:"reply"`
	Sources   []docmodel.Chunk `json:"sources"`
}

// Service answers user messages with retrieved context and recent history.
type Service struct {
	retriever retriever.Retriever
	history   chatservice.Store
	prompts   *PromptBuilder
	cfg       config.RAGConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the prompt + model chain.
func NewService(ctx context.Context, chatModel model.BaseChatModel, r retriever.Retriever, history chatservice.Store, cfg config.RAGConfig) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is nil")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		retriever: r,
		history:   history,
		prompts:   NewPromptBuilder(cfg.SystemPrompt),
		cfg:       cfg,
		chain:     runnable,
	}, nil
}

// Chat runs one retrieval-augmented turn and stores the user message and the
// reply. Nothing is stored when retrieval or generation fails.
func (s *Service) Chat(ctx context.Context, sessionID, message string) (Reply, error) {
	sessionID = chat.SessionOrDefault(sessionID)
	input, sources, err := s.prepare(ctx, sessionID, message)
	if err != nil {
		return Reply{}, err
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		log.Printf("[ai] generation failed for session=%s: %v", sessionID, err)
		return Reply{}, fmt.Errorf("%w: generate reply: %v", ErrUpstream, err)
	}

	if err := s.record(ctx, sessionID, message, response.Content); err != nil {
		return Reply{}, err
	}

	log.Printf("[ai] generated response for session=%s, sources=%d, length=%d", sessionID, len(sources), len(response.Content))
	return Reply{SessionID: sessionID, Text: response.Content, Sources: sources}, nil
}

// StreamChat is Chat with the reply delivered incrementally through onDelta.
// The exchange is stored only after the stream completes. An error returned by
// onDelta aborts the turn.
func (s *Service) StreamChat(ctx context.Context, sessionID, message string, onDelta func(string) error) (Reply, error) {
	sessionID = chat.SessionOrDefault(sessionID)
	input, sources, err := s.prepare(ctx, sessionID, message)
	if err != nil {
		return Reply{}, err
	}

	stream, err := s.chain.Stream(ctx, input)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: start stream: %v", ErrUpstream, err)
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return Reply{}, fmt.Errorf("%w: receive stream: %v", ErrUpstream, recvErr)
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" && onDelta != nil {
			if err := onDelta(chunk.Content); err != nil {
				return Reply{}, err
			}
		}
	}

	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: concat stream: %v", ErrUpstream, err)
	}

	if err := s.record(ctx, sessionID, message, response.Content); err != nil {
		return Reply{}, err
	}

	log.Printf("[ai] streamed response for session=%s, sources=%d, length=%d", sessionID, len(sources), len(response.Content))
	return Reply{SessionID: sessionID, Text: response.Content, Sources: sources}, nil
}

// prepare retrieves context and history and assembles the chain input.
func (s *Service) prepare(ctx context.Context, sessionID, message string) (map[string]any, []docmodel.Chunk, error) {
	if strings.TrimSpace(message) == "" {
		return nil, nil, ErrEmptyMessage
	}

	sources, err := s.retrieve(ctx, message)
	if err != nil {
		log.Printf("[ai] retrieval failed for session=%s: %v", sessionID, err)
		return nil, nil, fmt.Errorf("%w: retrieve context: %v", ErrUpstream, err)
	}

	messages, err := s.history.History(ctx, sessionID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("load history: %w", err)
	}

	return map[string]any{
		"system":  s.prompts.BuildSystemPrompt(sources),
		"history": buildHistoryMessages(messages),
		"query":   message,
	}, sources, nil
}

func (s *Service) retrieve(ctx context.Context, query string) ([]docmodel.Chunk, error) {
	if s.retriever == nil {
		return nil, nil
	}
	var opts []retriever.Option
	if s.cfg.TopK > 0 {
		opts = append(opts, retriever.WithTopK(s.cfg.TopK))
	}
	docs, err := s.retriever.Retrieve(ctx, query, opts...)
	if err != nil {
		return nil, err
	}
	chunks := make([]docmodel.Chunk, 0, len(docs))
	for _, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		chunks = append(chunks, docmodel.FromSchema(doc))
	}
	return chunks, nil
}

// record appends the user message then the reply.
func (s *Service) record(ctx context.Context, sessionID, message, reply string) error {
	if _, err := s.history.Append(ctx, sessionID, chat.RoleUser, message); err != nil {
		return fmt.Errorf("save user message: %w", err)
	}
	if _, err := s.history.Append(ctx, sessionID, chat.RoleAssistant, reply); err != nil {
		return fmt.Errorf("save assistant message: %w", err)
	}
	return nil
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
