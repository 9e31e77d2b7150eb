// Package offboard implements the two offboarding operations: listing the
// groups shared with a contact and removing them from one, dispatching
// the removal RPC by chat kind.
package offboard

import (
	"context"
	"sync"

	"github.com/hrygo/telecopilot/internal/apperr"
	"github.com/hrygo/telecopilot/internal/tgclient"
)

// CommonChatClient is the subset of the session client the tool depends
// on. *tgclient.Client satisfies it.
type CommonChatClient interface {
	GetCommonChats(ctx context.Context, userID, accessHash int64) ([]tgclient.RawChat, error)
	GetContactsWithAccessHash(ctx context.Context) ([]tgclient.ContactWithAccessHash, error)
	RemoveUserFromBasicGroup(ctx context.Context, chatID, userID int64) error
	BanUserFromChannel(ctx context.Context, channelID, accessHash, userID int64) error
}

// Tool maintains the per-process access-hash and raw-chat caches the two
// offboard operations share: get_common_groups seeds both, and
// remove_from_group leans on the chat cache to pick its RPC.
type Tool struct {
	client CommonChatClient

	mu         sync.RWMutex
	accessHash map[int64]int64
	chatsByID  map[int64]tgclient.RawChat
}

// New constructs a Tool over client.
func New(client CommonChatClient) *Tool {
	return &Tool{
		client:     client,
		accessHash: make(map[int64]int64),
		chatsByID:  make(map[int64]tgclient.RawChat),
	}
}

// GetCommonGroups returns the groups the current account shares with
// userID. It resolves userID's access hash from the per-process contact
// cache, refreshing that cache once on a miss before giving up.
func (t *Tool) GetCommonGroups(ctx context.Context, userID int64) ([]tgclient.RawChat, error) {
	hash, ok := t.lookupAccessHash(userID)
	if !ok {
		if err := t.refreshAccessHashCache(ctx); err != nil {
			return nil, err
		}
		hash, ok = t.lookupAccessHash(userID)
		if !ok {
			return nil, apperr.API("user not in contacts, cannot look up common groups")
		}
	}

	chats, err := t.client.GetCommonChats(ctx, userID, hash)
	if err != nil {
		return nil, err
	}
	t.cacheChats(chats)
	return chats, nil
}

// RemoveFromGroup removes userID from chatID, picking the RPC by the
// cached chat's kind. GetCommonGroups must have been called first to
// populate the cache for this chat.
func (t *Tool) RemoveFromGroup(ctx context.Context, chatID, userID int64) error {
	chat, ok := t.lookupChat(chatID)
	if !ok {
		return apperr.API("chat not known; call get_common_groups first")
	}

	switch {
	case !chat.IsChannel:
		return t.client.RemoveUserFromBasicGroup(ctx, chatID, userID)
	case chat.IsChannel:
		return t.client.BanUserFromChannel(ctx, chatID, chat.AccessHash, userID)
	default:
		return apperr.API("cannot remove user from this type of chat")
	}
}

func (t *Tool) refreshAccessHashCache(ctx context.Context) error {
	contacts, err := t.client.GetContactsWithAccessHash(ctx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range contacts {
		t.accessHash[c.User.ID] = c.AccessHash
	}
	return nil
}

func (t *Tool) lookupAccessHash(userID int64) (int64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	hash, ok := t.accessHash[userID]
	return hash, ok
}

func (t *Tool) cacheChats(chats []tgclient.RawChat) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range chats {
		t.chatsByID[c.ID] = c
	}
}

func (t *Tool) lookupChat(chatID int64) (tgclient.RawChat, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	chat, ok := t.chatsByID[chatID]
	return chat, ok
}
