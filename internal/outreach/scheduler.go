package outreach

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hrygo/telecopilot/internal/apperr"
	"github.com/hrygo/telecopilot/internal/model"
	"github.com/hrygo/telecopilot/internal/ratelimit"
)

// pollInterval is the queue driver's tick granularity while waiting out a
// rate-limit delay or polling for cancellation.
const pollInterval = time.Second

// Sender is the subset of the session client the scheduler depends on.
// *tgclient.Client satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) (model.Message, error)
}

// Recorder receives outreach send outcomes and the active-queue gauge.
// *metrics.Exporter satisfies it.
type Recorder interface {
	RecordOutreachSend(status string)
	SetActiveQueues(n int)
}

// Persister is the subset of the embedded store the scheduler depends on.
// *store.Store satisfies it.
type Persister interface {
	CreateOutreachQueue(ctx context.Context, q model.OutreachQueue) error
	UpsertRecipient(ctx context.Context, queueID string, r model.OutreachRecipient) error
	UpdateQueueStatus(ctx context.Context, q model.OutreachQueue) error
	GetQueue(ctx context.Context, id string) (model.OutreachQueue, bool, error)
	ListQueuesByStatus(ctx context.Context, statuses []model.QueueStatus) ([]model.OutreachQueue, error)
}

// runningQueue tracks the in-memory state of one queue's background
// driver: its cancellation flag, queried by the driver on each step.
type runningQueue struct {
	cancelled bool
	mu        sync.Mutex
}

func (r *runningQueue) cancel() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
}

func (r *runningQueue) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// Scheduler drives durable outreach queues: one background goroutine per
// active queue, obeying the rate limiter's pacing and persisting every
// state transition so a crash loses at most the in-flight send.
type Scheduler struct {
	store   Persister
	sender  Sender
	limiter *ratelimit.Limiter
	metrics Recorder

	mu      sync.Mutex
	running map[string]*runningQueue
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithMetrics wires a send-outcome/active-queue recorder into the
// scheduler.
func WithMetrics(m Recorder) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New constructs a Scheduler. limiter is shared with any other caller
// pacing sends to the same session.
func New(store Persister, sender Sender, limiter *ratelimit.Limiter, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:   store,
		sender:  sender,
		limiter: limiter,
		running: make(map[string]*runningQueue),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Queue persists a new outreach batch and starts its background driver.
func (s *Scheduler) Queue(ctx context.Context, recipients []model.OutreachRecipient, template string) (string, error) {
	if template == "" {
		return "", apperr.EmptyTemplate()
	}
	if len(recipients) == 0 {
		return "", apperr.NoRecipients()
	}

	for i := range recipients {
		recipients[i].Status = model.RecipientPending
	}

	q := model.OutreachQueue{
		ID:         uuid.NewString(),
		Template:   template,
		Status:     model.QueuePending,
		CreatedAt:  time.Now(),
		Recipients: recipients,
	}
	if err := s.store.CreateOutreachQueue(ctx, q); err != nil {
		return "", apperr.Database(err)
	}

	s.startDriver(q.ID)
	return q.ID, nil
}

// Status returns the current state of a queue, reloaded from the store so
// it reflects every persisted transition.
func (s *Scheduler) Status(ctx context.Context, queueID string) (model.OutreachQueue, error) {
	q, found, err := s.store.GetQueue(ctx, queueID)
	if err != nil {
		return model.OutreachQueue{}, apperr.Database(err)
	}
	if !found {
		return model.OutreachQueue{}, apperr.QueueNotFound(queueID)
	}
	return q, nil
}

// Cancel marks a running queue cancelled; the next driver iteration
// observes it and stops. Cancelling an unknown queue fails loudly.
func (s *Scheduler) Cancel(ctx context.Context, queueID string) error {
	s.mu.Lock()
	rq, ok := s.running[queueID]
	s.mu.Unlock()
	if !ok {
		return apperr.QueueNotFound(queueID)
	}
	rq.cancel()
	return nil
}

// RestoreFromStore loads every queue left in a pending/running/paused
// state by a prior process. It deliberately does not resume their
// drivers: the prior generation's decision to stop stays visible instead
// of silently resuming network activity the user didn't ask for this run.
func (s *Scheduler) RestoreFromStore(ctx context.Context) ([]model.OutreachQueue, error) {
	queues, err := s.store.ListQueuesByStatus(ctx, []model.QueueStatus{
		model.QueuePending, model.QueueRunning, model.QueuePaused,
	})
	if err != nil {
		return nil, apperr.Database(err)
	}
	return queues, nil
}

func (s *Scheduler) startDriver(queueID string) {
	rq := &runningQueue{}
	s.mu.Lock()
	s.running[queueID] = rq
	n := len(s.running)
	s.mu.Unlock()
	s.setActiveQueues(n)

	go s.drive(context.Background(), queueID, rq)
}

func (s *Scheduler) setActiveQueues(n int) {
	if s.metrics != nil {
		s.metrics.SetActiveQueues(n)
	}
}

func (s *Scheduler) recordSend(status string) {
	if s.metrics != nil {
		s.metrics.RecordOutreachSend(status)
	}
}

// drive runs one queue to completion or cancellation. It is the queue
// driver: cooperative, one task per queue, checking status every step.
func (s *Scheduler) drive(ctx context.Context, queueID string, rq *runningQueue) {
	defer func() {
		s.mu.Lock()
		delete(s.running, queueID)
		n := len(s.running)
		s.mu.Unlock()
		s.setActiveQueues(n)
	}()

	q, found, err := s.store.GetQueue(ctx, queueID)
	if err != nil || !found {
		slog.Error("outreach: failed to load queue for driver", "queue_id", queueID, "error", err)
		return
	}

	now := time.Now()
	q.Status = model.QueueRunning
	q.StartedAt = &now
	if err := s.store.UpdateQueueStatus(ctx, q); err != nil {
		slog.Error("outreach: failed to mark queue running", "queue_id", queueID, "error", err)
	}

	for i := range q.Recipients {
		r := &q.Recipients[i]
		if r.Status != model.RecipientPending {
			continue
		}
		if rq.isCancelled() {
			s.finishCancelled(ctx, q)
			return
		}

		if !s.waitForSendWindow(ctx, r.UserID, rq) {
			s.finishCancelled(ctx, q)
			return
		}

		text := personalize(q.Template, *r)
		_, sendErr := s.sender.SendMessage(ctx, r.UserID, text)
		if sendErr == nil {
			s.limiter.RecordSend(r.UserID)
			sentAt := time.Now()
			r.Status = model.RecipientSent
			r.SentAt = &sentAt
			r.Error = nil
			s.recordSend("sent")
		} else {
			reason := sendErr.Error()
			r.Status = model.RecipientFailed
			r.Error = &reason
			if n, ok := apperr.FloodWaitSeconds(reason); ok {
				s.limiter.HandleFloodWait(n)
			}
			s.recordSend("failed")
		}
		if err := s.store.UpsertRecipient(ctx, queueID, *r); err != nil {
			slog.Error("outreach: failed to persist recipient", "queue_id", queueID, "user_id", r.UserID, "error", err)
		}
	}

	completedAt := time.Now()
	q.Status = model.QueueCompleted
	q.CompletedAt = &completedAt
	if err := s.store.UpdateQueueStatus(ctx, q); err != nil {
		slog.Error("outreach: failed to mark queue completed", "queue_id", queueID, "error", err)
	}
}

// waitForSendWindow blocks until userID may send, polling cancellation
// every second while waiting. Returns false if cancelled mid-wait.
func (s *Scheduler) waitForSendWindow(ctx context.Context, userID int64, rq *runningQueue) bool {
	for {
		if ok, _ := s.limiter.CanSend(userID); ok {
			return true
		}
		if rq.isCancelled() {
			return false
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return false
		}
	}
}

func (s *Scheduler) finishCancelled(ctx context.Context, q model.OutreachQueue) {
	q.Status = model.QueueCancelled
	if err := s.store.UpdateQueueStatus(ctx, q); err != nil {
		slog.Error("outreach: failed to mark queue cancelled", "queue_id", q.ID, "error", err)
	}
}
