package aiorch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/telecopilot/internal/llmclient"
	"github.com/hrygo/telecopilot/internal/model"
)

type fakeChatSource struct {
	chats    map[int64]model.Chat
	messages map[int64][]model.Message
	getErr   error
}

func (f *fakeChatSource) GetChat(ctx context.Context, chatID int64) (model.Chat, error) {
	if f.getErr != nil {
		return model.Chat{}, f.getErr
	}
	chat, ok := f.chats[chatID]
	if !ok {
		return model.Chat{}, errors.New("not found")
	}
	return chat, nil
}

func (f *fakeChatSource) GetChatMessages(ctx context.Context, chatID int64, limit int) ([]model.Message, error) {
	return f.messages[chatID], nil
}

// fakeCompleter returns a fixed response per call, counting invocations.
type fakeCompleter struct {
	response string
	err      error
	calls    int
}

func (f *fakeCompleter) AcquirePermit(ctx context.Context) (*llmclient.Permit, error) {
	return nil, nil
}

func (f *fakeCompleter) ChatCompletion(ctx context.Context, req llmclient.Request) (string, error) {
	f.calls++
	return f.response, f.err
}

func TestBriefingPartitionsByPriorityAndCaches(t *testing.T) {
	chats := &fakeChatSource{
		chats: map[int64]model.Chat{
			1: {ID: 1, Title: "Urgent chat"},
			2: {ID: 2, Title: "FYI chat"},
		},
		messages: map[int64][]model.Message{
			1: {{ChatID: 1, Content: model.MessageContent{Text: "help now"}}},
			2: {{ChatID: 2, Content: model.MessageContent{Text: "fyi"}}},
		},
	}
	llm := &fakeCompleter{response: `{"priority":"urgent","summary":"needs attention"}`}
	o := New(chats, llm)

	result, err := o.Briefing(context.Background(), []int64{1, 2}, false)
	require.NoError(t, err)
	assert.Len(t, result.NeedsResponse, 2)
	assert.Equal(t, 2, llm.calls)

	_, err = o.Briefing(context.Background(), []int64{1, 2}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, llm.calls, "second call within TTL should be served from cache")
}

func TestBriefingFallsBackOnLLMFailure(t *testing.T) {
	chats := &fakeChatSource{
		chats:    map[int64]model.Chat{1: {ID: 1, Title: "chat"}},
		messages: map[int64][]model.Message{1: {}},
	}
	llm := &fakeCompleter{err: errors.New("provider unavailable")}
	o := New(chats, llm)

	result, err := o.Briefing(context.Background(), []int64{1}, false)
	require.NoError(t, err)
	require.Len(t, result.FYISummaries, 1)
	assert.Equal(t, "Unable to analyze this chat", result.FYISummaries[0].Summary)
}

func TestBriefingFallsBackOnUnparseableJSON(t *testing.T) {
	chats := &fakeChatSource{
		chats:    map[int64]model.Chat{1: {ID: 1, Title: "chat"}},
		messages: map[int64][]model.Message{1: {}},
	}
	llm := &fakeCompleter{response: "not json at all"}
	o := New(chats, llm)

	result, err := o.Briefing(context.Background(), []int64{1}, false)
	require.NoError(t, err)
	require.Len(t, result.FYISummaries, 1)
	assert.Equal(t, "Unable to analyze this chat", result.FYISummaries[0].Summary)
}

func TestBatchSummaryPreservesSubmissionOrder(t *testing.T) {
	chats := &fakeChatSource{
		chats: map[int64]model.Chat{
			1: {ID: 1, Title: "a"},
			2: {ID: 2, Title: "b"},
			3: {ID: 3, Title: "c"},
		},
		messages: map[int64][]model.Message{1: {}, 2: {}, 3: {}},
	}
	llm := &fakeCompleter{response: `{"summary":"s","sentiment":"neutral"}`}
	o := New(chats, llm)

	result, err := o.BatchSummary(context.Background(), []int64{3, 1, 2}, false)
	require.NoError(t, err)
	require.Len(t, result.Summaries, 3)
	assert.Equal(t, []int64{3, 1, 2}, []int64{result.Summaries[0].ChatID, result.Summaries[1].ChatID, result.Summaries[2].ChatID})
}

func TestDraftReturnsTrimmedContentAndCaches(t *testing.T) {
	chats := &fakeChatSource{
		chats:    map[int64]model.Chat{1: {ID: 1, Title: "chat"}},
		messages: map[int64][]model.Message{1: {{ChatID: 1, SenderName: "Bob", Content: model.MessageContent{Text: "hi"}}}},
	}
	llm := &fakeCompleter{response: "  Sure thing!  \n"}
	o := New(chats, llm)

	result, err := o.Draft(context.Background(), 1, false)
	require.NoError(t, err)
	assert.Equal(t, "Sure thing!", result.Draft)
	assert.Equal(t, 1, llm.calls)

	_, err = o.Draft(context.Background(), 1, false)
	require.NoError(t, err)
	assert.Equal(t, 1, llm.calls, "second call within TTL should be served from cache")
}

func TestDraftPropagatesGetChatError(t *testing.T) {
	chats := &fakeChatSource{getErr: errors.New("transport down")}
	llm := &fakeCompleter{}
	o := New(chats, llm)

	_, err := o.Draft(context.Background(), 1, false)
	require.Error(t, err)
}
