package ai

import (
	"fmt"
	"strings"

	docmodel "github.com/zhouzirui/rag-chatbot/backend/internal/model/document"
)

// DefaultInstructions is the base system prompt used when none is configured.
const DefaultInstructions = `You are a friendly and knowledgeable assistant. You answer questions using the documents that have been loaded into your knowledge base.

IMPORTANT GUIDELINES:
1. Be warm, conversational and helpful.
2. When context is provided, use it to give detailed, accurate answers.
3. When the context does not contain the answer, say what you can, suggest related topics you can help with, and offer to help with other questions.
4. Format answers with clear paragraphs and keep them easy to read.`

const limitedContextNote = `NOTE: Limited specific context was found for this query. Still give a helpful, friendly answer from general knowledge, keep a positive tone, and suggest related questions the documents may be able to answer.`

const contextHeader = "RELEVANT CONTEXT FROM THE KNOWLEDGE BASE:"

const contextFooter = `Use the above context to answer the user's question. If it does not fully answer the question, share what it does say and then offer related suggestions.`

// PromptBuilder renders the system prompt around retrieved chunks.
type PromptBuilder struct {
	instructions string
}

// NewPromptBuilder uses instructions as the base prompt, or
// DefaultInstructions when it is blank.
func NewPromptBuilder(instructions string) *PromptBuilder {
	if strings.TrimSpace(instructions) == "" {
		instructions = DefaultInstructions
	}
	return &PromptBuilder{instructions: instructions}
}

// BuildSystemPrompt appends the retrieved context, or the limited-context
// note when nothing usable was retrieved.
func (pb *PromptBuilder) BuildSystemPrompt(chunks []docmodel.Chunk) string {
	knowledge := formatContext(chunks)

	var b strings.Builder
	b.WriteString(pb.instructions)
	b.WriteString("\n\n")
	if knowledge == "" {
		b.WriteString(limitedContextNote)
		return b.String()
	}
	b.WriteString(contextHeader)
	b.WriteString("\n")
	b.WriteString(knowledge)
	b.WriteString("\n\n")
	b.WriteString(contextFooter)
	return b.String()
}

func formatContext(chunks []docmodel.Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		if c.Source != "" {
			text = fmt.Sprintf("[%s, part %d]\n%s", c.Source, c.Index+1, text)
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}
