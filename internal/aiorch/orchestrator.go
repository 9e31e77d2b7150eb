package aiorch

import (
	"fmt"
	"strings"

	"github.com/hrygo/telecopilot/internal/cache"
	"github.com/hrygo/telecopilot/internal/model"
)

// Orchestrator holds the shared dependencies every fan-out call needs: a
// chat/message source, an LLM caller, and one result cache per
// orchestrator kind so a briefing refresh never evicts a cached draft.
type Orchestrator struct {
	chats ChatSource
	llm   Completer

	briefings *cache.TTLCache[BriefingResult]
	summaries *cache.TTLCache[SummaryResult]
	drafts    *cache.TTLCache[DraftResult]
}

// Option configures an Orchestrator at construction.
type Option func(*Orchestrator)

// WithMetrics wires a cache-hit/miss recorder into every result cache this
// orchestrator owns.
func WithMetrics(m cache.Recorder) Option {
	return func(o *Orchestrator) {
		o.briefings = cache.New[BriefingResult]("briefing", m)
		o.summaries = cache.New[SummaryResult]("summary", m)
		o.drafts = cache.New[DraftResult]("draft", m)
	}
}

// New constructs an Orchestrator over the given chat source and LLM
// caller.
func New(chats ChatSource, llm Completer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		chats:     chats,
		llm:       llm,
		briefings: cache.New[BriefingResult]("briefing", nil),
		summaries: cache.New[SummaryResult]("summary", nil),
		drafts:    cache.New[DraftResult]("draft", nil),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// InvalidateAll drops every cached AI result — called on logout or LLM
// config change.
func (o *Orchestrator) InvalidateAll() {
	o.briefings.InvalidateAll()
	o.summaries.InvalidateAll()
	o.drafts.InvalidateAll()
}

// parallelMap runs work once per input, concurrently, preserving the
// input's index in the output slice regardless of completion order.
func parallelMap[T any, R any](items []T, work func(T) R) []R {
	out := make([]R, len(items))
	done := make(chan struct{}, len(items))
	for i, item := range items {
		go func(i int, item T) {
			defer func() { done <- struct{}{} }()
			out[i] = work(item)
		}(i, item)
	}
	for range items {
		<-done
	}
	return out
}

// formatMessagesTail renders messages (oldest first) as one line each,
// optionally tagging the sender with "You" for outgoing messages — the
// form the draft prompt needs so the model can tell whose turn is whose.
func formatMessagesTail(messages []model.Message, tagSender bool) string {
	var b strings.Builder
	// GetChatMessages returns most-recent-first; the model reads the
	// conversation in chronological order.
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if tagSender {
			who := m.SenderName
			if m.IsOutgoing {
				who = "You"
			}
			fmt.Fprintf(&b, "%s: %s\n", who, m.Content.Text)
		} else {
			b.WriteString(m.Content.Text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
