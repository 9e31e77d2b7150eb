package outreach

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/telecopilot/internal/model"
	"github.com/hrygo/telecopilot/internal/ratelimit"
)

// fakeStore is an in-memory Persister double.
type fakeStore struct {
	mu     sync.Mutex
	queues map[string]model.OutreachQueue
}

func newFakeStore() *fakeStore {
	return &fakeStore{queues: make(map[string]model.OutreachQueue)}
}

func (s *fakeStore) CreateOutreachQueue(ctx context.Context, q model.OutreachQueue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[q.ID] = q
	return nil
}

func (s *fakeStore) UpsertRecipient(ctx context.Context, queueID string, r model.OutreachRecipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[queueID]
	if !ok {
		return errors.New("queue not found")
	}
	for i := range q.Recipients {
		if q.Recipients[i].UserID == r.UserID {
			q.Recipients[i] = r
		}
	}
	s.queues[queueID] = q
	return nil
}

func (s *fakeStore) UpdateQueueStatus(ctx context.Context, q model.OutreachQueue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.queues[q.ID]
	if !ok {
		return errors.New("queue not found")
	}
	existing.Status = q.Status
	existing.StartedAt = q.StartedAt
	existing.CompletedAt = q.CompletedAt
	s.queues[q.ID] = existing
	return nil
}

func (s *fakeStore) GetQueue(ctx context.Context, id string) (model.OutreachQueue, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[id]
	// Like store.GetQueue, derive the counters from the recipient rows.
	q.SentCount, q.FailedCount = 0, 0
	for _, r := range q.Recipients {
		switch r.Status {
		case model.RecipientSent:
			q.SentCount++
		case model.RecipientFailed:
			q.FailedCount++
		}
	}
	return q, ok, nil
}

func (s *fakeStore) ListQueuesByStatus(ctx context.Context, statuses []model.QueueStatus) ([]model.OutreachQueue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[model.QueueStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []model.OutreachQueue
	for _, q := range s.queues {
		if want[q.Status] {
			out = append(out, q)
		}
	}
	return out, nil
}

// fakeSender is a Sender double recording every send and letting tests
// block or fail individual sends.
type fakeSender struct {
	mu      sync.Mutex
	sent    []string
	block   chan struct{}
	failAll error
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, text string) (model.Message, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return model.Message{}, f.failAll
	}
	f.sent = append(f.sent, text)
	return model.Message{ChatID: chatID, Content: model.MessageContent{Text: text}}, nil
}

func (f *fakeSender) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not reached within %s", timeout)
}

func TestQueueSendsToEveryRecipientAndCompletes(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{}
	sched := New(store, sender, ratelimit.New(0))

	recipients := []model.OutreachRecipient{
		{UserID: 1, FirstName: "Ann"},
		{UserID: 2, FirstName: ""},
	}
	id, err := sched.Queue(context.Background(), recipients, "Hi {first_name}!")
	require.NoError(t, err)

	waitUntil(t, time.Second, func() bool {
		q, _ := sched.Status(context.Background(), id)
		return q.Status == model.QueueCompleted
	})

	q, err := sched.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.QueueCompleted, q.Status)
	assert.Equal(t, 2, q.SentCount)
	assert.ElementsMatch(t, []string{"Hi Ann!", "Hi there!"}, sender.sent)
}

func TestQueueRejectsEmptyTemplateOrRecipients(t *testing.T) {
	sched := New(newFakeStore(), &fakeSender{}, ratelimit.New(0))

	_, err := sched.Queue(context.Background(), []model.OutreachRecipient{{UserID: 1}}, "")
	require.Error(t, err)

	_, err = sched.Queue(context.Background(), nil, "hello")
	require.Error(t, err)
}

func TestCancelStopsQueueMidRun(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{block: make(chan struct{})}
	sched := New(store, sender, ratelimit.New(0))

	recipients := []model.OutreachRecipient{{UserID: 1}, {UserID: 2}, {UserID: 3}}
	id, err := sched.Queue(context.Background(), recipients, "hi")
	require.NoError(t, err)

	require.NoError(t, sched.Cancel(context.Background(), id))
	close(sender.block)

	waitUntil(t, time.Second, func() bool {
		q, _ := sched.Status(context.Background(), id)
		return q.Status == model.QueueCancelled || q.Status == model.QueueCompleted
	})

	q, err := sched.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.QueueCancelled, q.Status)
}

func TestCancelUnknownQueueFails(t *testing.T) {
	sched := New(newFakeStore(), &fakeSender{}, ratelimit.New(0))
	err := sched.Cancel(context.Background(), "nonexistent")
	require.Error(t, err)
}

func TestFailedSendRecordsErrorAndContinues(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{failAll: errors.New("permanent failure")}
	sched := New(store, sender, ratelimit.New(0))

	id, err := sched.Queue(context.Background(), []model.OutreachRecipient{{UserID: 1}}, "hi")
	require.NoError(t, err)

	waitUntil(t, time.Second, func() bool {
		q, _ := sched.Status(context.Background(), id)
		return q.Status == model.QueueCompleted
	})

	q, err := sched.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, q.FailedCount)
	require.Len(t, q.Recipients, 1)
	assert.Equal(t, model.RecipientFailed, q.Recipients[0].Status)
	require.NotNil(t, q.Recipients[0].Error)
}

func TestRestoreFromStoreDoesNotAutoResume(t *testing.T) {
	store := newFakeStore()
	running := model.OutreachQueue{ID: "q-running", Status: model.QueueRunning, CreatedAt: time.Now()}
	completed := model.OutreachQueue{ID: "q-done", Status: model.QueueCompleted, CreatedAt: time.Now()}
	store.queues[running.ID] = running
	store.queues[completed.ID] = completed

	sched := New(store, &fakeSender{}, ratelimit.New(0))
	queues, err := sched.RestoreFromStore(context.Background())
	require.NoError(t, err)
	require.Len(t, queues, 1)
	assert.Equal(t, "q-running", queues[0].ID)

	// Restoring must not start a driver: cancelling the restored queue's id
	// should fail since no background goroutine claimed it.
	err = sched.Cancel(context.Background(), "q-running")
	require.Error(t, err)
}
