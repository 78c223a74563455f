// Package llm implements Reranker by asking a chat model to order documents
// by relevance and return their ids as JSON.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spetr/ragchat/pkg/provider"
	"github.com/spetr/ragchat/pkg/types"
)

// DefaultFallback is the number of candidates kept when the model ranks nothing.
const DefaultFallback = 2

// Config contains LLM reranker configuration.
type Config struct {
	// Model is the chat model used for ranking. Empty means the model named
	// in the context via provider.WithModel.
	Model    string
	Fallback int
}

// Reranker implements provider.Reranker on top of a ChatModel.
type Reranker struct {
	config Config
	chat   provider.ChatModel
}

// New creates a new LLM reranker.
func New(cfg Config, chat provider.ChatModel) *Reranker {
	if cfg.Fallback <= 0 {
		cfg.Fallback = DefaultFallback
	}
	return &Reranker{config: cfg, chat: chat}
}

// Name returns the reranker name.
func (r *Reranker) Name() string {
	return "llm"
}

func (r *Reranker) model(ctx context.Context) string {
	if r.config.Model != "" {
		return r.config.Model
	}
	return provider.ModelFromContext(ctx)
}

// Rerank orders candidates by the model's ranking. It never fails the
// caller: on any error the outcome has status RerankFailed and carries the
// original candidates unchanged.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []types.Document) types.RerankOutcome {
	if len(candidates) == 0 {
		return types.RerankOutcome{Status: types.RerankSkipped}
	}

	failed := func(err error) types.RerankOutcome {
		return types.RerankOutcome{Documents: candidates, Status: types.RerankFailed, Err: err}
	}

	model := r.model(ctx)
	if model == "" {
		return failed(errors.New("no ranking model configured"))
	}

	zero := 0.0
	answer, err := r.chat.Chat(ctx, provider.ChatRequest{
		Model:       model,
		Messages:    []types.ChatTurn{{Role: types.RoleUser, Content: BuildPrompt(query, candidates)}},
		Temperature: &zero,
		Format:      "json",
	})
	if err != nil {
		return failed(fmt.Errorf("ranking call failed: %w", err))
	}

	ids, err := ParseRanking(answer)
	if err != nil {
		return failed(err)
	}

	return types.ApplyRanking(candidates, ids, r.config.Fallback)
}

// ParseRanking extracts ranked_ids from a model answer. The answer must be a
// JSON object whose ranked_ids member is an array of strings.
func ParseRanking(answer string) ([]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(answer)), &raw); err != nil {
		return nil, fmt.Errorf("ranking answer is not a JSON object: %w", err)
	}
	field, ok := raw["ranked_ids"]
	if !ok {
		return nil, errors.New("ranking answer has no ranked_ids")
	}
	var result types.RankingResult
	if err := json.Unmarshal(field, &result.RankedIDs); err != nil {
		return nil, fmt.Errorf("ranked_ids is not a string array: %w", err)
	}
	if result.RankedIDs == nil {
		return nil, errors.New("ranked_ids is null")
	}
	return result.RankedIDs, nil
}

// BuildPrompt renders the ranking instruction for query and candidates.
func BuildPrompt(query string, candidates []types.Document) string {
	blocks := make([]string, len(candidates))
	for i, doc := range candidates {
		blocks[i] = fmt.Sprintf("--- Document %d (ID: %s) ---\n%s", i, doc.ID, doc.Text)
	}

	var sb strings.Builder
	sb.WriteString("You are a highly intelligent relevance-ranking assistant. Your task is to re-rank a list of retrieved documents based on their relevance to a user's query.\n\n")
	fmt.Fprintf(&sb, "User Query: \"%s\"\n\n", query)
	sb.WriteString("Documents to rank:\n")
	sb.WriteString(strings.Join(blocks, "\n"))
	sb.WriteString(`

Instructions:
1. Carefully read the user query and each document.
2. Determine which documents are most relevant to answering the query.
3. Return a JSON object containing a single key "ranked_ids" with a value that is an array of the document IDs, sorted from most to least relevant.
4. Only include IDs of documents that are clearly relevant. Do not include irrelevant documents.
5. If no documents are relevant, return an empty array.
6. Your response MUST be only the JSON object, with no other text or explanation.

Example Response:
{
  "ranked_ids": ["doc-3-1", "doc-1-0", "doc-2-2"]
}
`)
	return sb.String()
}

// Close releases resources.
func (r *Reranker) Close() error {
	return nil
}

// Ensure Reranker implements the Reranker interface
var _ provider.Reranker = (*Reranker)(nil)
