package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/telecopilot/internal/model"
)

// CreateOutreachQueue writes the queue row and one recipient row per
// entry in a single logical transaction.
func (s *Store) CreateOutreachQueue(ctx context.Context, q model.OutreachQueue) error {
	return s.withDB(ctx, func(ctx context.Context, db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrap(err, "failed to begin transaction")
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO outreach_queue (id, template, status, created_at, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, q.ID, q.Template, string(q.Status), q.CreatedAt.Unix(), unixOrNil(q.StartedAt), unixOrNil(q.CompletedAt))
		if err != nil {
			return errors.Wrap(err, "failed to create outreach queue")
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO outreach_recipients (queue_id, user_id, first_name, last_name, status, error, sent_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (queue_id, user_id) DO UPDATE SET
				first_name = excluded.first_name,
				last_name = excluded.last_name,
				status = excluded.status,
				error = excluded.error,
				sent_at = excluded.sent_at
		`)
		if err != nil {
			return errors.Wrap(err, "failed to prepare recipient insert")
		}
		defer stmt.Close()

		for _, r := range q.Recipients {
			if _, err := stmt.ExecContext(ctx, q.ID, r.UserID, r.FirstName, r.LastName, string(r.Status), strOrNil(r.Error), unixOrNil(r.SentAt)); err != nil {
				return errors.Wrap(err, "failed to insert outreach recipient")
			}
		}

		return errors.Wrap(tx.Commit(), "failed to commit transaction")
	})
}

// UpsertRecipient persists a single recipient's transition, upserting on
// (queue_id, user_id).
func (s *Store) UpsertRecipient(ctx context.Context, queueID string, r model.OutreachRecipient) error {
	return s.withDB(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO outreach_recipients (queue_id, user_id, first_name, last_name, status, error, sent_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (queue_id, user_id) DO UPDATE SET
				status = excluded.status,
				error = excluded.error,
				sent_at = excluded.sent_at
		`, queueID, r.UserID, r.FirstName, r.LastName, string(r.Status), strOrNil(r.Error), unixOrNil(r.SentAt))
		if err != nil {
			return errors.Wrap(err, "failed to upsert outreach recipient")
		}
		return nil
	})
}

// UpdateQueueStatus persists a queue-level status transition.
func (s *Store) UpdateQueueStatus(ctx context.Context, q model.OutreachQueue) error {
	return s.withDB(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			UPDATE outreach_queue SET status = ?, started_at = ?, completed_at = ? WHERE id = ?
		`, string(q.Status), unixOrNil(q.StartedAt), unixOrNil(q.CompletedAt), q.ID)
		if err != nil {
			return errors.Wrap(err, "failed to update outreach queue status")
		}
		return nil
	})
}

// GetQueue reloads a full queue with its recipients.
func (s *Store) GetQueue(ctx context.Context, id string) (model.OutreachQueue, bool, error) {
	var q model.OutreachQueue
	var found bool
	err := s.withDB(ctx, func(ctx context.Context, db *sql.DB) error {
		row := db.QueryRowContext(ctx, `
			SELECT id, template, status, created_at, started_at, completed_at FROM outreach_queue WHERE id = ?
		`, id)
		var createdAt int64
		var startedAt, completedAt sql.NullInt64
		if err := row.Scan(&q.ID, &q.Template, (*string)(&q.Status), &createdAt, &startedAt, &completedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return errors.Wrap(err, "failed to get outreach queue")
		}
		q.CreatedAt = time.Unix(createdAt, 0)
		q.StartedAt = nullToTime(startedAt)
		q.CompletedAt = nullToTime(completedAt)

		recipients, err := loadRecipients(ctx, db, id)
		if err != nil {
			return err
		}
		q.Recipients = recipients
		for _, r := range recipients {
			switch r.Status {
			case model.RecipientSent:
				q.SentCount++
			case model.RecipientFailed:
				q.FailedCount++
			}
		}
		found = true
		return nil
	})
	return q, found, err
}

// ListQueuesByStatus loads every queue whose status is in statuses — used
// by restore_from_store at process start.
func (s *Store) ListQueuesByStatus(ctx context.Context, statuses []model.QueueStatus) ([]model.OutreachQueue, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := ""
	args := make([]any, 0, len(statuses))
	for i, st := range statuses {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, string(st))
	}

	var ids []string
	err := s.withDB(ctx, func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `SELECT id FROM outreach_queue WHERE status IN (`+placeholders+`)`, args...)
		if err != nil {
			return errors.Wrap(err, "failed to list outreach queues")
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return errors.Wrap(err, "failed to scan outreach queue id")
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	queues := make([]model.OutreachQueue, 0, len(ids))
	for _, id := range ids {
		q, found, err := s.GetQueue(ctx, id)
		if err != nil {
			return nil, err
		}
		if found {
			queues = append(queues, q)
		}
	}
	return queues, nil
}

func loadRecipients(ctx context.Context, db *sql.DB, queueID string) ([]model.OutreachRecipient, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT user_id, first_name, last_name, status, error, sent_at
		FROM outreach_recipients WHERE queue_id = ? ORDER BY id ASC
	`, queueID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list outreach recipients")
	}
	defer rows.Close()

	var out []model.OutreachRecipient
	for rows.Next() {
		var r model.OutreachRecipient
		var errText sql.NullString
		var sentAt sql.NullInt64
		if err := rows.Scan(&r.UserID, &r.FirstName, &r.LastName, (*string)(&r.Status), &errText, &sentAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan outreach recipient")
		}
		if errText.Valid {
			r.Error = &errText.String
		}
		r.SentAt = nullToTime(sentAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func strOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nullToTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0)
	return &t
}
