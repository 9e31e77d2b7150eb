package tgclient

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/gotd/td/tg"
)

func randomMessageID() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("generate random id: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

func (t *gotdTransport) GetCommonChats(ctx context.Context, userID, accessHash int64) ([]RawChat, error) {
	resp, err := t.api.MessagesGetCommonChats(ctx, &tg.MessagesGetCommonChatsRequest{
		UserID: &tg.InputUser{UserID: userID, AccessHash: accessHash},
		MaxID:  0,
		Limit:  100,
	})
	if err != nil {
		return nil, fmt.Errorf("messages.getCommonChats: %w", err)
	}

	var raw []tg.ChatClass
	switch v := resp.(type) {
	case *tg.MessagesChats:
		raw = v.Chats
	case *tg.MessagesChatsSlice:
		raw = v.Chats
	default:
		return nil, fmt.Errorf("unexpected common-chats response %T", resp)
	}

	out := make([]RawChat, 0, len(raw))
	for _, c := range raw {
		switch v := c.(type) {
		case *tg.Chat:
			out = append(out, RawChat{
				Title:     v.Title,
				ID:        v.ID,
				CanRemove: !v.Left && v.Creator,
			})
		case *tg.Channel:
			adminRights, hasAdminRights := v.GetAdminRights()
			out = append(out, RawChat{
				Title:       v.Title,
				ID:          v.ID,
				AccessHash:  v.AccessHash,
				IsChannel:   true,
				IsMegagroup: v.Megagroup,
				CanRemove:   v.Creator || (hasAdminRights && adminRights.BanUsers),
			})
		}
	}
	return out, nil
}

func (t *gotdTransport) DeleteChatUser(ctx context.Context, chatID, userID int64) error {
	_, err := t.api.MessagesDeleteChatUser(ctx, &tg.MessagesDeleteChatUserRequest{
		ChatID: chatID,
		UserID: &tg.InputUser{UserID: userID},
	})
	if err != nil {
		return fmt.Errorf("messages.deleteChatUser: %w", err)
	}
	return nil
}

func (t *gotdTransport) EditBanned(ctx context.Context, channelID, accessHash, userID int64) error {
	_, err := t.api.ChannelsEditBanned(ctx, &tg.ChannelsEditBannedRequest{
		Channel: &tg.InputChannel{ChannelID: channelID, AccessHash: accessHash},
		Participant: &tg.InputPeerUser{UserID: userID},
		BannedRights: tg.ChatBannedRights{
			ViewMessages: true,
			SendMessages: true,
			SendMedia:    true,
		},
	})
	if err != nil {
		return fmt.Errorf("channels.editBanned: %w", err)
	}
	return nil
}
