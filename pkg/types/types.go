// Package types contains shared data types used across the ragchat project.
package types

import (
	"strings"
	"time"
)

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatTurn is a single message of a conversation.
type ChatTurn struct {
	Role    Role   `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content"`
}

// Document is a text chunk returned by a vector store query.
// The JSON shape ({id, pageContent, metadata}) is what chat clients render as sources.
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"pageContent"`
	Metadata map[string]any `json:"metadata"`
}

// Source returns the "source" metadata value, if any.
func (d Document) Source() string {
	if d.Metadata == nil {
		return ""
	}
	s, _ := d.Metadata["source"].(string)
	return s
}

// Collection describes a named document collection in a vector store.
type Collection struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RerankRequest is the input of a rerank call.
type RerankRequest struct {
	Query      string     `json:"query"`
	Candidates []Document `json:"candidates"`
}

// RankingResult is the structured response expected from a ranking model.
type RankingResult struct {
	RankedIDs []string `json:"ranked_ids"`
}

// RerankStatus tells how a rerank call ended.
type RerankStatus string

const (
	// RerankRanked means the model produced at least one known id.
	RerankRanked RerankStatus = "ranked"
	// RerankEmptyFallback means the model produced no usable id and the
	// head of the original candidate list was used instead.
	RerankEmptyFallback RerankStatus = "empty_fallback"
	// RerankFailed means the model call or its response was unusable.
	// Documents holds the original candidates unchanged.
	RerankFailed RerankStatus = "failed"
	// RerankSkipped means no ranking was attempted (passthrough reranker,
	// empty candidate list).
	RerankSkipped RerankStatus = "skipped"
)

// RerankOutcome is the result of a rerank call. Rerankers never return an
// error to their caller; failures are reported through Status and Err.
type RerankOutcome struct {
	Documents []Document
	Status    RerankStatus
	Err       error
}

// ApplyRanking resolves ranked ids against the candidate list.
// Unknown and repeated ids are dropped. When nothing resolves, the first
// fallback candidates are returned with RerankEmptyFallback.
func ApplyRanking(candidates []Document, rankedIDs []string, fallback int) RerankOutcome {
	byID := make(map[string]int, len(candidates))
	for i, d := range candidates {
		if _, ok := byID[d.ID]; !ok {
			byID[d.ID] = i
		}
	}

	seen := make(map[string]bool, len(rankedIDs))
	ranked := make([]Document, 0, len(rankedIDs))
	for _, id := range rankedIDs {
		idx, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ranked = append(ranked, candidates[idx])
	}

	if len(ranked) > 0 {
		return RerankOutcome{Documents: ranked, Status: RerankRanked}
	}

	if fallback > len(candidates) {
		fallback = len(candidates)
	}
	if fallback < 0 {
		fallback = 0
	}
	return RerankOutcome{
		Documents: append([]Document(nil), candidates[:fallback]...),
		Status:    RerankEmptyFallback,
	}
}

// ParseChatHistory splits a message list into the latest user query and the
// turns that precede it. Turns after the latest user message are dropped so
// the query stays the final turn sent to generation.
func ParseChatHistory(messages []ChatTurn) (query string, history []ChatTurn, err error) {
	last := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			last = i
			break
		}
	}
	if last < 0 {
		return "", nil, NewInvalidRequest("messages", "no user message in conversation")
	}
	query = messages[last].Content
	if strings.TrimSpace(query) == "" {
		return "", nil, NewInvalidRequest("messages", "latest user message is empty")
	}

	history = append(make([]ChatTurn, 0, last), messages[:last]...)
	return query, history, nil
}

// IngestResult summarises an ingestion run.
type IngestResult struct {
	Collection string        `json:"collection"`
	Source     string        `json:"source"`
	Chunks     int           `json:"count"`
	Duration   time.Duration `json:"-"`
}
