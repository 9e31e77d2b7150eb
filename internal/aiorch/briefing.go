package aiorch

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/hrygo/telecopilot/internal/cache"
	"github.com/hrygo/telecopilot/internal/llmclient"
	"github.com/hrygo/telecopilot/internal/model"
	"github.com/hrygo/telecopilot/internal/prompt"
)

const briefingTailLen = 30

// Briefing classifies every chat in chatIDs into urgent / needs_reply /
// fyi and partitions the results: needs_response holds urgent before
// needs_reply, fyi_summaries holds everything else.
func (o *Orchestrator) Briefing(ctx context.Context, chatIDs []int64, forceRefresh bool) (BriefingResult, error) {
	key := cache.ChatSetKey(chatIDs)
	if !forceRefresh {
		if cached, _, ok := o.briefings.Get(key, resultTTL); ok {
			return cached, nil
		}
	}

	briefs := parallelMap(chatIDs, func(chatID int64) ChatBrief {
		return o.briefChat(ctx, chatID)
	})

	result := partitionBriefs(briefs)
	o.briefings.Set(key, result)
	return result, nil
}

func partitionBriefs(briefs []ChatBrief) BriefingResult {
	var result BriefingResult
	for _, b := range briefs {
		if b.Priority == PriorityUrgent || b.Priority == PriorityNeedsReply {
			result.NeedsResponse = append(result.NeedsResponse, b)
		} else {
			result.FYISummaries = append(result.FYISummaries, b)
		}
	}
	sort.SliceStable(result.NeedsResponse, func(i, j int) bool {
		return result.NeedsResponse[i].Priority == PriorityUrgent && result.NeedsResponse[j].Priority != PriorityUrgent
	})
	return result
}

func (o *Orchestrator) briefChat(ctx context.Context, chatID int64) ChatBrief {
	fallback := ChatBrief{ChatID: chatID, Priority: PriorityFYI, Summary: "Unable to analyze this chat"}

	chat, err := o.chats.GetChat(ctx, chatID)
	if err != nil {
		return fallback
	}
	fallback.ChatTitle = chat.Title

	messages, err := o.chats.GetChatMessages(ctx, chatID, briefingTailLen)
	if err != nil {
		return fallback
	}

	permit, err := o.llm.AcquirePermit(ctx)
	if err != nil {
		return fallback
	}
	defer permit.Release()

	signals := computeSignals(chat, messages)
	content, err := o.llm.ChatCompletion(ctx, llmclient.Request{
		Messages: []llmclient.Message{
			llmclient.SystemPrompt(prompt.PriorityClassificationSystemPrompt),
			llmclient.UserMessage(prompt.BuildPriorityUserContent(signals, formatMessagesTail(messages, false))),
		},
		Temperature:  0.3,
		MaxTokens:    500,
		JSONResponse: true,
	})
	if err != nil {
		return fallback
	}

	brief, err := parseBriefJSON(content)
	if err != nil {
		return fallback
	}
	brief.ChatID = chatID
	brief.ChatTitle = chat.Title
	return brief
}

func computeSignals(chat model.Chat, messages []model.Message) prompt.PrioritySignals {
	signals := prompt.PrioritySignals{
		UnreadCount:   chat.UnreadCount,
		IsPrivateChat: chat.Kind == model.ChatKindPrivate,
	}
	if chat.LastMessage != nil {
		signals.LastMessageIsOutgoing = chat.LastMessage.IsOutgoing
		signals.HoursSinceLastActivity = time.Since(time.Unix(chat.LastMessage.Date, 0)).Hours()
	}
	if len(messages) > 0 {
		last := messages[0]
		signals.HasUnansweredQuestion = !last.IsOutgoing && strings.HasSuffix(strings.TrimSpace(last.Content.Text), "?")
	}
	return signals
}

type briefJSON struct {
	Priority       string  `json:"priority"`
	Summary        string  `json:"summary"`
	SuggestedReply *string `json:"suggested_reply"`
}

func parseBriefJSON(content string) (ChatBrief, error) {
	extracted, err := llmclient.ExtractJSON(content)
	if err != nil {
		return ChatBrief{}, err
	}
	var parsed briefJSON
	if err := json.Unmarshal([]byte(extracted), &parsed); err != nil {
		return ChatBrief{}, err
	}
	return ChatBrief{
		Priority:       Priority(parsed.Priority),
		Summary:        parsed.Summary,
		SuggestedReply: parsed.SuggestedReply,
	}, nil
}
