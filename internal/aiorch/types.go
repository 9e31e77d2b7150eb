// Package aiorch fans LLM calls out across chats: one task per chat,
// gathered into a single cached result. All three orchestrators share the
// same cache-key/short-circuit/fan-out/assemble shape.
package aiorch

import (
	"context"
	"time"

	"github.com/hrygo/telecopilot/internal/llmclient"
	"github.com/hrygo/telecopilot/internal/model"
)

// resultTTL is the freshness window honored by every orchestrator's cache
// lookup; force_refresh bypasses it but still overwrites the cached entry.
const resultTTL = 10 * time.Minute

// ChatSource is the subset of the session client the orchestrators read
// from. *tgclient.Client satisfies it.
type ChatSource interface {
	GetChat(ctx context.Context, chatID int64) (model.Chat, error)
	GetChatMessages(ctx context.Context, chatID int64, limit int) ([]model.Message, error)
}

// Completer is the subset of the LLM client the orchestrators call.
// *llmclient.Client satisfies it.
type Completer interface {
	AcquirePermit(ctx context.Context) (*llmclient.Permit, error)
	ChatCompletion(ctx context.Context, req llmclient.Request) (string, error)
}

// Priority is the triage classification the briefing orchestrator assigns
// each chat.
type Priority string

const (
	PriorityUrgent     Priority = "urgent"
	PriorityNeedsReply Priority = "needs_reply"
	PriorityFYI        Priority = "fyi"
)

// ChatBrief is one chat's priority-classification result.
type ChatBrief struct {
	ChatID         int64
	ChatTitle      string
	Priority       Priority
	Summary        string
	SuggestedReply *string
}

// BriefingResult partitions the account's chats into what needs a
// response and what's merely informational.
type BriefingResult struct {
	NeedsResponse []ChatBrief
	FYISummaries  []ChatBrief
}

// ChatSummary is one chat's detailed-summary result.
type ChatSummary struct {
	ChatID        int64
	ChatTitle     string
	Summary       string
	KeyPoints     []string
	ActionItems   []string
	Sentiment     string
	NeedsResponse bool
}

// SummaryResult preserves the caller's chat-id submission order.
type SummaryResult struct {
	Summaries []ChatSummary
}

// DraftResult is a single chat's generated reply draft.
type DraftResult struct {
	ChatID int64
	Draft  string
}
