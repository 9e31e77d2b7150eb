package prompt

import "fmt"

// PrioritySignals are the pre-computed signals fed to the priority
// classification prompt alongside the message tail.
type PrioritySignals struct {
	HoursSinceLastActivity float64
	UnreadCount            int
	LastMessageIsOutgoing  bool
	HasUnansweredQuestion  bool
	IsPrivateChat          bool
}

// PriorityClassificationSystemPrompt classifies a chat as
// urgent | needs_reply | fyi and produces a one-line summary plus an
// optional suggested reply.
const PriorityClassificationSystemPrompt = `You triage a messaging inbox for its owner. Given a chat's recent ` +
	`messages and a few precomputed signals, classify it into exactly one priority: ` +
	`"urgent" (needs attention now), "needs_reply" (owner should respond, not time-critical), ` +
	`or "fyi" (no action needed). Respond with JSON only: ` +
	`{"priority": "urgent"|"needs_reply"|"fyi", "summary": "<one line>", "suggested_reply": "<string or null>"}.`

// DetailedSummarySystemPrompt produces a structured summary of a chat
//.
const DetailedSummarySystemPrompt = `You summarize a messaging conversation for its owner. Given the recent ` +
	`messages, produce JSON only: {"summary": "<paragraph>", "key_points": ["..."], ` +
	`"action_items": ["..."], "sentiment": "positive"|"neutral"|"negative", "needs_response": true|false}.`

// DraftGenerationSystemPrompt asks for the raw text of a reply the
// account owner might send, with no decoration.
const DraftGenerationSystemPrompt = `You draft a reply on behalf of the messaging account owner, in their ` +
	`voice, based on the recent conversation. Reply with the raw draft text only — no preamble, no quotes, ` +
	`no markdown.`

// BuildPriorityUserContent assembles the user turn for priority
// classification: the signals followed by the sanitized message tail.
func BuildPriorityUserContent(signals PrioritySignals, messagesTail string) string {
	return fmt.Sprintf(
		"Signals: unread_count=%d, last_message_is_outgoing=%t, has_unanswered_question=%t, "+
			"hours_since_last_activity=%.1f, is_private_chat=%t\n\nMessages:\n%s",
		signals.UnreadCount,
		signals.LastMessageIsOutgoing,
		signals.HasUnansweredQuestion,
		signals.HoursSinceLastActivity,
		signals.IsPrivateChat,
		Sanitize(messagesTail),
	)
}

// BuildSummaryUserContent assembles the user turn for batch summary.
func BuildSummaryUserContent(messagesTail string) string {
	return "Messages:\n" + Sanitize(messagesTail)
}

// BuildDraftUserContent assembles the user turn for draft generation.
func BuildDraftUserContent(messagesTail string) string {
	return "Messages:\n" + Sanitize(messagesTail)
}
