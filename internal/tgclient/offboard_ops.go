package tgclient

import (
	"context"

	"github.com/hrygo/telecopilot/internal/apperr"
)

// GetCommonChats returns the raw chat records shared with a user,
// identified by id and access hash, for the offboard tool to inspect.
func (c *Client) GetCommonChats(ctx context.Context, userID, accessHash int64) ([]RawChat, error) {
	return withReconnect(ctx, c, func(ctx context.Context) ([]RawChat, error) {
		chats, err := c.transport.GetCommonChats(ctx, userID, accessHash)
		if err != nil {
			return nil, apperr.Connection(err)
		}
		return chats, nil
	})
}

// RemoveUserFromBasicGroup removes userID from a plain (non-channel) group.
func (c *Client) RemoveUserFromBasicGroup(ctx context.Context, chatID, userID int64) error {
	_, err := withReconnect(ctx, c, func(ctx context.Context) (struct{}, error) {
		if err := c.transport.DeleteChatUser(ctx, chatID, userID); err != nil {
			return struct{}{}, apperr.API(err.Error())
		}
		return struct{}{}, nil
	})
	return err
}

// BanUserFromChannel removes userID from a channel or supergroup by
// setting the banned rights flag.
func (c *Client) BanUserFromChannel(ctx context.Context, channelID, accessHash, userID int64) error {
	_, err := withReconnect(ctx, c, func(ctx context.Context) (struct{}, error) {
		if err := c.transport.EditBanned(ctx, channelID, accessHash, userID); err != nil {
			return struct{}{}, apperr.API(err.Error())
		}
		return struct{}{}, nil
	})
	return err
}
