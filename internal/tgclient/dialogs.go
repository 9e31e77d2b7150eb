package tgclient

import (
	"context"

	"github.com/hrygo/telecopilot/internal/apperr"
	"github.com/hrygo/telecopilot/internal/model"
)

// dialogScanLimit bounds the single dialog page a scan fetches; dialogs
// beyond it are not scanned.
const dialogScanLimit = 500

// GetChats returns every known chat passing filters (model.DefaultChatFilters
// if nil), scanning dialogs on first call (or after invalidation) and
// serving from the in-memory cache thereafter. limit caps the returned
// slice; a non-positive limit returns every match. Concurrent scans are
// serialized so a second caller waits for the first scan rather than
// duplicating it.
func (c *Client) GetChats(ctx context.Context, limit int, filters *model.ChatFilters) ([]model.Chat, error) {
	if err := c.ensureDialogsLoaded(ctx); err != nil {
		return nil, err
	}

	f := model.DefaultChatFilters()
	if filters != nil {
		f = *filters
	}

	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()
	out := make([]model.Chat, 0, len(c.cache.byID))
	for _, chat := range c.cache.byID {
		if !model.FilterPasses(f, chat) {
			continue
		}
		out = append(out, chat)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ensureDialogsLoaded triggers a dialog scan on first call (or after
// invalidation); later calls are no-ops.
func (c *Client) ensureDialogsLoaded(ctx context.Context) error {
	if c.cache.isLoaded() {
		return nil
	}
	return c.cache.withScanPermit(ctx, func(ctx context.Context) error {
		if c.cache.isLoaded() {
			return nil
		}
		return c.scanDialogs(ctx)
	})
}

func (c *Client) scanDialogs(ctx context.Context) error {
	_, err := withReconnect(ctx, c, func(ctx context.Context) (struct{}, error) {
		it, err := c.transport.IterDialogs(ctx, dialogScanLimit)
		if err != nil {
			return struct{}{}, apperr.Connection(err)
		}
		for it.Next(ctx) {
			c.cache.put(it.Value())
		}
		if err := it.Err(); err != nil {
			return struct{}{}, apperr.Connection(err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}
	c.cache.markLoaded()
	return nil
}

// GetChat returns a single chat by id, populating the cache from a full
// dialog scan if it isn't loaded yet or the chat is unknown.
func (c *Client) GetChat(ctx context.Context, chatID int64) (model.Chat, error) {
	if chat, ok := c.cache.get(chatID); ok {
		return chat, nil
	}
	if err := c.cache.withScanPermit(ctx, c.scanDialogs); err != nil {
		return model.Chat{}, err
	}
	chat, ok := c.cache.get(chatID)
	if !ok {
		return model.Chat{}, apperr.ChatNotFound(chatID)
	}
	return chat, nil
}

// GetChatMessages returns up to limit recent messages for a chat, most
// recent first.
func (c *Client) GetChatMessages(ctx context.Context, chatID int64, limit int) ([]model.Message, error) {
	chat, err := c.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}

	return withReconnect(ctx, c, func(ctx context.Context) ([]model.Message, error) {
		it, err := c.transport.IterMessages(ctx, chat, limit)
		if err != nil {
			return nil, apperr.Connection(err)
		}
		var msgs []model.Message
		for len(msgs) < limit && it.Next(ctx) {
			msgs = append(msgs, it.Value())
		}
		if err := it.Err(); err != nil {
			return nil, apperr.Connection(err)
		}
		return msgs, nil
	})
}

// SendMessage sends text to chatID and returns the sent message.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (model.Message, error) {
	chat, err := c.GetChat(ctx, chatID)
	if err != nil {
		return model.Message{}, err
	}

	return withReconnect(ctx, c, func(ctx context.Context) (model.Message, error) {
		msg, err := c.transport.SendMessage(ctx, chat, text)
		if err != nil {
			return model.Message{}, apperr.SendFailed(chatID, err.Error())
		}
		return msg, nil
	})
}

// GetContacts returns the account's contact list.
func (c *Client) GetContacts(ctx context.Context) ([]model.User, error) {
	return withReconnect(ctx, c, func(ctx context.Context) ([]model.User, error) {
		users, err := c.transport.GetContacts(ctx)
		if err != nil {
			return nil, apperr.Connection(err)
		}
		return users, nil
	})
}

// GetContactsWithAccessHash returns contacts paired with the access hash
// the offboard tool needs to address group-removal RPCs.
func (c *Client) GetContactsWithAccessHash(ctx context.Context) ([]ContactWithAccessHash, error) {
	return withReconnect(ctx, c, func(ctx context.Context) ([]ContactWithAccessHash, error) {
		contacts, err := c.transport.GetContactsWithAccessHash(ctx)
		if err != nil {
			return nil, apperr.Connection(err)
		}
		return contacts, nil
	})
}

// GetFolders returns the account's server-defined chat folders.
func (c *Client) GetFolders(ctx context.Context) ([]model.Folder, error) {
	return withReconnect(ctx, c, func(ctx context.Context) ([]model.Folder, error) {
		folders, err := c.transport.GetDialogFilters(ctx)
		if err != nil {
			return nil, apperr.Connection(err)
		}
		return folders, nil
	})
}
