package aiorch

import (
	"context"
	"encoding/json"

	"github.com/hrygo/telecopilot/internal/cache"
	"github.com/hrygo/telecopilot/internal/llmclient"
	"github.com/hrygo/telecopilot/internal/prompt"
)

const summaryTailLen = 50

// BatchSummary produces a detailed summary per chat, preserving chatIDs'
// submission order in the result regardless of which task finishes first.
func (o *Orchestrator) BatchSummary(ctx context.Context, chatIDs []int64, forceRefresh bool) (SummaryResult, error) {
	key := cache.ChatSetKey(chatIDs)
	if !forceRefresh {
		if cached, _, ok := o.summaries.Get(key, resultTTL); ok {
			return cached, nil
		}
	}

	summaries := parallelMap(chatIDs, func(chatID int64) ChatSummary {
		return o.summarizeChat(ctx, chatID)
	})

	result := SummaryResult{Summaries: summaries}
	o.summaries.Set(key, result)
	return result, nil
}

func (o *Orchestrator) summarizeChat(ctx context.Context, chatID int64) ChatSummary {
	fallback := ChatSummary{ChatID: chatID, Summary: "Unable to analyze this chat"}

	chat, err := o.chats.GetChat(ctx, chatID)
	if err != nil {
		return fallback
	}
	fallback.ChatTitle = chat.Title

	messages, err := o.chats.GetChatMessages(ctx, chatID, summaryTailLen)
	if err != nil {
		return fallback
	}

	permit, err := o.llm.AcquirePermit(ctx)
	if err != nil {
		return fallback
	}
	defer permit.Release()

	content, err := o.llm.ChatCompletion(ctx, llmclient.Request{
		Messages: []llmclient.Message{
			llmclient.SystemPrompt(prompt.DetailedSummarySystemPrompt),
			llmclient.UserMessage(prompt.BuildSummaryUserContent(formatMessagesTail(messages, false))),
		},
		Temperature:  0.3,
		MaxTokens:    600,
		JSONResponse: true,
	})
	if err != nil {
		return fallback
	}

	summary, err := parseSummaryJSON(content)
	if err != nil {
		return fallback
	}
	summary.ChatID = chatID
	summary.ChatTitle = chat.Title
	return summary
}

type summaryJSON struct {
	Summary       string   `json:"summary"`
	KeyPoints     []string `json:"key_points"`
	ActionItems   []string `json:"action_items"`
	Sentiment     string   `json:"sentiment"`
	NeedsResponse bool     `json:"needs_response"`
}

func parseSummaryJSON(content string) (ChatSummary, error) {
	extracted, err := llmclient.ExtractJSON(content)
	if err != nil {
		return ChatSummary{}, err
	}
	var parsed summaryJSON
	if err := json.Unmarshal([]byte(extracted), &parsed); err != nil {
		return ChatSummary{}, err
	}
	return ChatSummary{
		Summary:       parsed.Summary,
		KeyPoints:     parsed.KeyPoints,
		ActionItems:   parsed.ActionItems,
		Sentiment:     parsed.Sentiment,
		NeedsResponse: parsed.NeedsResponse,
	}, nil
}
