// Package tgclient is the Session Client (D), Chat Object Cache (E), and
// Event Bus (F): the single authenticated transport, its login state
// machine, auto-reconnect, the in-memory dialog cache, and the broadcast
// bus of auth/message events.
package tgclient

import (
	"context"

	"github.com/hrygo/telecopilot/internal/model"
)

// Transport is the Go interface capturing the MTProto contract the
// session client assumes of the underlying library, independent of
// which one backs it. gotd.go is the github.com/gotd/td implementation.
type Transport interface {
	Connect(ctx context.Context) error
	IsAuthorized(ctx context.Context) (bool, error)
	RequestLoginCode(ctx context.Context, phone string) (loginToken string, err error)
	SignIn(ctx context.Context, loginToken, code string) (SignInResult, error)
	CheckPassword(ctx context.Context, password string) (model.User, error)
	SignOut(ctx context.Context) error
	SessionBlob() []byte

	IterDialogs(ctx context.Context, limit int) (DialogIterator, error)
	IterMessages(ctx context.Context, chat model.Chat, limit int) (MessageIterator, error)
	SendMessage(ctx context.Context, chat model.Chat, text string) (model.Message, error)
	GetMe(ctx context.Context) (model.User, error)
	GetContacts(ctx context.Context) ([]model.User, error)
	GetContactsWithAccessHash(ctx context.Context) ([]ContactWithAccessHash, error)
	GetDialogFilters(ctx context.Context) ([]model.Folder, error)

	GetCommonChats(ctx context.Context, userID, accessHash int64) ([]RawChat, error)
	DeleteChatUser(ctx context.Context, chatID, userID int64) error
	EditBanned(ctx context.Context, channelID, accessHash, userID int64) error
}

// SignInResultKind tags SignInResult's union.
type SignInResultKind int

const (
	SignedIn SignInResultKind = iota
	PasswordRequired
	InvalidLoginCode
)

// SignInResult is the outcome of submitting a login code.
type SignInResult struct {
	User          model.User
	PasswordToken string
	Hint          string
	Kind          SignInResultKind
}

// ContactWithAccessHash pairs a contact with the opaque authorization
// token certain RPCs require.
type ContactWithAccessHash struct {
	User       model.User
	AccessHash int64
}

// RawChat is a minimal server-side chat record, used by the offboard tool
// to decide removal strategy and admin rights.
type RawChat struct {
	Title        string
	ID           int64
	AccessHash   int64
	IsChannel    bool
	IsMegagroup  bool
	CanRemove    bool
}

// DialogIterator walks a dialog scan page by page.
type DialogIterator interface {
	Next(ctx context.Context) bool
	Value() model.Chat
	Err() error
}

// MessageIterator walks a chat's message history.
type MessageIterator interface {
	Next(ctx context.Context) bool
	Value() model.Message
	Err() error
}
