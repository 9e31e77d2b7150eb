package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/telecopilot/internal/model"
)

const llmConfigKey = "llm_config"

// SetSetting upserts a raw string value under key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	return s.withDB(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO app_settings (key, value, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, time.Now().Unix())
		if err != nil {
			return errors.Wrap(err, "failed to set app setting")
		}
		return nil
	})
}

// GetSetting returns the raw string value stored under key.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	var found bool
	err := s.withDB(ctx, func(ctx context.Context, db *sql.DB) error {
		err := db.QueryRowContext(ctx, `SELECT value FROM app_settings WHERE key = ?`, key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to get app setting")
		}
		found = true
		return nil
	})
	return value, found, err
}

// SetLLMConfig persists the serialized LLM config under the llm_config key
//.
func (s *Store) SetLLMConfig(ctx context.Context, cfg model.LLMConfig) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal llm config")
	}
	return s.SetSetting(ctx, llmConfigKey, string(b))
}

// GetLLMConfig loads the persisted LLM config, if any.
func (s *Store) GetLLMConfig(ctx context.Context) (model.LLMConfig, bool, error) {
	raw, found, err := s.GetSetting(ctx, llmConfigKey)
	if err != nil || !found {
		return model.LLMConfig{}, found, err
	}
	var cfg model.LLMConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return model.LLMConfig{}, false, errors.Wrap(err, "failed to unmarshal llm config")
	}
	return cfg, true, nil
}
