package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/telecopilot/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOutreachQueueRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	q := model.OutreachQueue{
		ID:       uuid.NewString(),
		Template: "Hi {first_name}",
		Status:   model.QueueRunning,
		CreatedAt: time.Now(),
		Recipients: []model.OutreachRecipient{
			{UserID: 1, FirstName: "Ada", Status: model.RecipientPending},
			{UserID: 2, FirstName: "Bo", Status: model.RecipientPending},
		},
	}
	require.NoError(t, s.CreateOutreachQueue(ctx, q))

	sentAt := time.Now()
	require.NoError(t, s.UpsertRecipient(ctx, q.ID, model.OutreachRecipient{
		UserID: 1, FirstName: "Ada", Status: model.RecipientSent, SentAt: &sentAt,
	}))

	loaded, found, err := s.GetQueue(ctx, q.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, loaded.Recipients, 2)
	require.Equal(t, 1, loaded.SentCount)
	require.Equal(t, 0, loaded.FailedCount)

	restored, err := s.ListQueuesByStatus(ctx, []model.QueueStatus{model.QueueRunning, model.QueuePaused, model.QueuePending})
	require.NoError(t, err)
	require.Len(t, restored, 1)
}

func TestScopeProfileDefaultSwap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p1 := model.ScopeProfile{ID: uuid.NewString(), Name: "work", Config: model.DefaultChatFilters(), IsDefault: true, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	p2 := model.ScopeProfile{ID: uuid.NewString(), Name: "personal", Config: model.DefaultChatFilters(), CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.CreateScopeProfile(ctx, p1))
	require.NoError(t, s.CreateScopeProfile(ctx, p2))

	require.NoError(t, s.SetDefaultScopeProfile(ctx, p2.ID))

	got1, _, err := s.GetScopeProfile(ctx, p1.ID)
	require.NoError(t, err)
	require.False(t, got1.IsDefault)

	got2, _, err := s.GetScopeProfile(ctx, p2.ID)
	require.NoError(t, err)
	require.True(t, got2.IsDefault)

	require.NoError(t, s.DeleteScopeProfile(ctx, p2.ID))
	_, found, err := s.GetScopeProfile(ctx, p2.ID)
	require.NoError(t, err)
	require.False(t, found)
}

func TestContactAnnotations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddContactTag(ctx, 7, "vip"))
	require.NoError(t, s.AddContactTag(ctx, 7, "vip")) // idempotent
	tags, err := s.ListContactTags(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []string{"vip"}, tags)

	require.NoError(t, s.SetContactNotes(ctx, 7, "met at conf"))
	notes, err := s.GetContactNotes(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "met at conf", notes)
}
