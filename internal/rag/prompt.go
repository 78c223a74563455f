package rag

import (
	"strings"

	"github.com/spetr/ragchat/pkg/provider"
	"github.com/spetr/ragchat/pkg/types"
)

const contextSeparator = "\n---\n"

const ragInstruction = "You are an expert question-answering assistant. Use the following retrieved context to answer the user's question. If the context doesn't contain the answer, state that you don't know. Do not use any other information."

// BuildSystemPrompt returns the caller's system prompt (if any) followed by
// the fixed instruction block and the context documents.
func BuildSystemPrompt(callerPrompt *string, docs []types.Document) string {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	var b strings.Builder
	if callerPrompt != nil && *callerPrompt != "" {
		b.WriteString(*callerPrompt)
		b.WriteString("\n\n")
	}
	b.WriteString(ragInstruction)
	b.WriteString("\n\n---\nCONTEXT:\n")
	b.WriteString(strings.Join(texts, contextSeparator))
	b.WriteString("\n---")
	return b.String()
}

// BuildMessages returns the system turn, the prior history and the query as
// the final user turn.
func BuildMessages(system string, history []types.ChatTurn, query string) []types.ChatTurn {
	msgs := make([]types.ChatTurn, 0, len(history)+2)
	if system != "" {
		msgs = append(msgs, types.ChatTurn{Role: types.RoleSystem, Content: system})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, types.ChatTurn{Role: types.RoleUser, Content: query})
	return msgs
}

func chatRequest(model string, msgs []types.ChatTurn, temperature *float64) provider.ChatRequest {
	return provider.ChatRequest{Model: model, Messages: msgs, Temperature: temperature}
}
