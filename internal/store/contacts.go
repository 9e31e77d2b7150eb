package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// AddContactTag inserts a tag for userID, ignoring the call if the tag is
// already present (UNIQUE(user_id, tag)).
func (s *Store) AddContactTag(ctx context.Context, userID int64, tag string) error {
	return s.withDB(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO contact_tags (user_id, tag, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT (user_id, tag) DO NOTHING
		`, userID, tag, time.Now().Unix())
		if err != nil {
			return errors.Wrap(err, "failed to add contact tag")
		}
		return nil
	})
}

// RemoveContactTag deletes a single tag for userID.
func (s *Store) RemoveContactTag(ctx context.Context, userID int64, tag string) error {
	return s.withDB(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `DELETE FROM contact_tags WHERE user_id = ? AND tag = ?`, userID, tag)
		if err != nil {
			return errors.Wrap(err, "failed to remove contact tag")
		}
		return nil
	})
}

// ListContactTags returns every tag stored for userID.
func (s *Store) ListContactTags(ctx context.Context, userID int64) ([]string, error) {
	var tags []string
	err := s.withDB(ctx, func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `SELECT tag FROM contact_tags WHERE user_id = ? ORDER BY tag`, userID)
		if err != nil {
			return errors.Wrap(err, "failed to list contact tags")
		}
		defer rows.Close()
		for rows.Next() {
			var tag string
			if err := rows.Scan(&tag); err != nil {
				return errors.Wrap(err, "failed to scan contact tag")
			}
			tags = append(tags, tag)
		}
		return rows.Err()
	})
	return tags, err
}

// SetContactNotes upserts the free-text notes for userID.
func (s *Store) SetContactNotes(ctx context.Context, userID int64, notes string) error {
	return s.withDB(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO contact_notes (user_id, notes, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET notes = excluded.notes, updated_at = excluded.updated_at
		`, userID, notes, time.Now().Unix())
		if err != nil {
			return errors.Wrap(err, "failed to set contact notes")
		}
		return nil
	})
}

// GetContactNotes returns the stored notes for userID, or "" if none.
func (s *Store) GetContactNotes(ctx context.Context, userID int64) (string, error) {
	var notes string
	err := s.withDB(ctx, func(ctx context.Context, db *sql.DB) error {
		err := db.QueryRowContext(ctx, `SELECT notes FROM contact_notes WHERE user_id = ?`, userID).Scan(&notes)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to get contact notes")
		}
		return nil
	})
	return notes, err
}

// TouchLastContact records that we last messaged userID at when.
func (s *Store) TouchLastContact(ctx context.Context, userID int64, when time.Time) error {
	return s.withDB(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO last_contact (user_id, last_message_date, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET last_message_date = excluded.last_message_date, updated_at = excluded.updated_at
		`, userID, when.Unix(), time.Now().Unix())
		if err != nil {
			return errors.Wrap(err, "failed to touch last contact")
		}
		return nil
	})
}

// GetLastContact returns the last tracked contact date for userID.
func (s *Store) GetLastContact(ctx context.Context, userID int64) (time.Time, bool, error) {
	var ts int64
	var found bool
	err := s.withDB(ctx, func(ctx context.Context, db *sql.DB) error {
		err := db.QueryRowContext(ctx, `SELECT last_message_date FROM last_contact WHERE user_id = ?`, userID).Scan(&ts)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to get last contact")
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return time.Time{}, found, err
	}
	return time.Unix(ts, 0), true, nil
}
