package aiorch

import (
	"context"
	"strings"

	"github.com/hrygo/telecopilot/internal/apperr"
	"github.com/hrygo/telecopilot/internal/cache"
	"github.com/hrygo/telecopilot/internal/llmclient"
	"github.com/hrygo/telecopilot/internal/prompt"
)

const draftTailLen = 15

// Draft generates a reply draft for a single chat. Unlike Briefing and
// BatchSummary, a failure here is returned to the caller rather than
// papered over with a placeholder — there is no sensible fallback draft.
func (o *Orchestrator) Draft(ctx context.Context, chatID int64, forceRefresh bool) (DraftResult, error) {
	key := cache.ChatSetKey([]int64{chatID})
	if !forceRefresh {
		if cached, _, ok := o.drafts.Get(key, resultTTL); ok {
			return cached, nil
		}
	}

	if _, err := o.chats.GetChat(ctx, chatID); err != nil {
		return DraftResult{}, err
	}

	messages, err := o.chats.GetChatMessages(ctx, chatID, draftTailLen)
	if err != nil {
		return DraftResult{}, err
	}

	permit, err := o.llm.AcquirePermit(ctx)
	if err != nil {
		return DraftResult{}, err
	}
	defer permit.Release()

	content, err := o.llm.ChatCompletion(ctx, llmclient.Request{
		Messages: []llmclient.Message{
			llmclient.SystemPrompt(prompt.DraftGenerationSystemPrompt),
			llmclient.UserMessage(prompt.BuildDraftUserContent(formatMessagesTail(messages, true))),
		},
		Temperature:  0.7,
		MaxTokens:    300,
		JSONResponse: false,
	})
	if err != nil {
		return DraftResult{}, apperr.Internal("draft generation failed", err)
	}

	result := DraftResult{ChatID: chatID, Draft: strings.TrimSpace(content)}
	o.drafts.Set(key, result)
	return result, nil
}
