package tgclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/telecopilot/internal/apperr"
	"github.com/hrygo/telecopilot/internal/model"
)

// fakeTransport is a hand-rolled Transport double; no chat needs a real
// MTProto connection to exercise the auth state machine or the cache.
type fakeTransport struct {
	authorized    bool
	signInResult  SignInResult
	signInErr     error
	checkPwdUser  model.User
	checkPwdErr   error
	connectErr    error
	dialogs       []model.Chat
	iterDialogErr error
	resetOnce     bool
}

func (f *fakeTransport) Connect(ctx context.Context) error { return f.connectErr }
func (f *fakeTransport) IsAuthorized(ctx context.Context) (bool, error) {
	return f.authorized, nil
}
func (f *fakeTransport) RequestLoginCode(ctx context.Context, phone string) (string, error) {
	return "hash-" + phone, nil
}
func (f *fakeTransport) SignIn(ctx context.Context, loginToken, code string) (SignInResult, error) {
	return f.signInResult, f.signInErr
}
func (f *fakeTransport) CheckPassword(ctx context.Context, password string) (model.User, error) {
	return f.checkPwdUser, f.checkPwdErr
}
func (f *fakeTransport) SignOut(ctx context.Context) error { return nil }
func (f *fakeTransport) SessionBlob() []byte               { return nil }
func (f *fakeTransport) IterDialogs(ctx context.Context, limit int) (DialogIterator, error) {
	if f.iterDialogErr != nil {
		err := f.iterDialogErr
		if f.resetOnce {
			f.iterDialogErr = nil
		}
		return nil, err
	}
	return &sliceDialogIterator{chats: f.dialogs}, nil
}
func (f *fakeTransport) IterMessages(ctx context.Context, chat model.Chat, limit int) (MessageIterator, error) {
	return &sliceMessageIterator{}, nil
}
func (f *fakeTransport) SendMessage(ctx context.Context, chat model.Chat, text string) (model.Message, error) {
	return model.Message{ChatID: chat.ID, Content: model.MessageContent{Text: text}}, nil
}
func (f *fakeTransport) GetMe(ctx context.Context) (model.User, error) { return model.User{ID: 1}, nil }
func (f *fakeTransport) GetContacts(ctx context.Context) ([]model.User, error) { return nil, nil }
func (f *fakeTransport) GetContactsWithAccessHash(ctx context.Context) ([]ContactWithAccessHash, error) {
	return nil, nil
}
func (f *fakeTransport) GetDialogFilters(ctx context.Context) ([]model.Folder, error) { return nil, nil }
func (f *fakeTransport) GetCommonChats(ctx context.Context, userID, accessHash int64) ([]RawChat, error) {
	return nil, nil
}
func (f *fakeTransport) DeleteChatUser(ctx context.Context, chatID, userID int64) error { return nil }
func (f *fakeTransport) EditBanned(ctx context.Context, channelID, accessHash, userID int64) error {
	return nil
}

func newTestClient(ft *fakeTransport) *Client {
	return New(ft, func(ctx context.Context) (Transport, error) { return ft, nil })
}

func TestAuthStateMachineHappyPath(t *testing.T) {
	ft := &fakeTransport{signInResult: SignInResult{Kind: SignedIn, User: model.User{ID: 42}}}
	c := newTestClient(ft)

	require.IsType(t, model.WaitPhoneNumber{}, c.GetAuthState())

	require.NoError(t, c.SendPhone(context.Background(), "+15551234"))
	require.IsType(t, model.WaitCode{}, c.GetAuthState())

	require.NoError(t, c.SendCode(context.Background(), "12345"))
	require.IsType(t, model.Ready{}, c.GetAuthState())

	user, ok := c.GetCurrentUser()
	require.True(t, ok)
	assert.Equal(t, int64(42), user.ID)
}

func TestAuthStateMachinePasswordRequired(t *testing.T) {
	ft := &fakeTransport{
		signInResult: SignInResult{Kind: PasswordRequired, Hint: "pet name"},
		checkPwdUser: model.User{ID: 7},
	}
	c := newTestClient(ft)

	require.NoError(t, c.SendPhone(context.Background(), "+15551234"))
	err := c.SendCode(context.Background(), "12345")
	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeTwoFactorRequired, appErr.Code)

	st, ok := c.GetAuthState().(model.WaitPassword)
	require.True(t, ok)
	assert.Equal(t, "pet name", st.Hint)

	require.NoError(t, c.SendPassword(context.Background(), "correct horse"))
	require.IsType(t, model.Ready{}, c.GetAuthState())
}

func TestAuthStateMachineInvalidCodeStaysInWaitCode(t *testing.T) {
	ft := &fakeTransport{signInResult: SignInResult{Kind: InvalidLoginCode}}
	c := newTestClient(ft)

	require.NoError(t, c.SendPhone(context.Background(), "+15551234"))
	err := c.SendCode(context.Background(), "00000")
	require.Error(t, err)
	require.IsType(t, model.WaitCode{}, c.GetAuthState())
}

func TestSendCodeRejectedOutsideWaitCode(t *testing.T) {
	c := newTestClient(&fakeTransport{})
	err := c.SendCode(context.Background(), "12345")
	require.Error(t, err)
}

func TestLogoutClearsStateAndCache(t *testing.T) {
	ft := &fakeTransport{signInResult: SignInResult{Kind: SignedIn, User: model.User{ID: 1}}}
	c := newTestClient(ft)
	require.NoError(t, c.SendPhone(context.Background(), "+1"))
	require.NoError(t, c.SendCode(context.Background(), "1"))

	c.cache.put(model.Chat{ID: 99})
	require.NoError(t, c.Logout(context.Background()))

	require.IsType(t, model.WaitPhoneNumber{}, c.GetAuthState())
	_, ok := c.GetCurrentUser()
	require.False(t, ok)
	_, found := c.cache.get(99)
	require.False(t, found)
}

func TestGetChatsScansOnceThenServesFromCache(t *testing.T) {
	ft := &fakeTransport{dialogs: []model.Chat{{ID: 1, Kind: model.ChatKindPrivate}, {ID: 2, Kind: model.ChatKindGroup}}}
	c := newTestClient(ft)

	chats, err := c.GetChats(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Len(t, chats, 2)
	assert.True(t, c.cache.isLoaded())

	ft.dialogs = nil
	chats, err = c.GetChats(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Len(t, chats, 2, "second call should be served from cache, not a fresh scan")
}

func TestGetChatsReconnectsOnTransportReset(t *testing.T) {
	ft := &fakeTransport{
		authorized:    true,
		iterDialogErr: errors.New("connection reset by peer"),
		resetOnce:     true,
		dialogs:       []model.Chat{{ID: 5, Kind: model.ChatKindPrivate}},
	}
	c := newTestClient(ft)

	chats, err := c.GetChats(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func TestGetChatsAppliesFiltersAndLimit(t *testing.T) {
	ft := &fakeTransport{dialogs: []model.Chat{
		{ID: 1, Kind: model.ChatKindPrivate},
		{ID: 2, Kind: model.ChatKindPrivate, IsBot: true},
		{ID: 3, Kind: model.ChatKindGroup},
	}}
	c := newTestClient(ft)

	filters := model.DefaultChatFilters()
	chats, err := c.GetChats(context.Background(), 0, &filters)
	require.NoError(t, err)
	assert.Len(t, chats, 2, "bots excluded by the default filter set")

	chats, err = c.GetChats(context.Background(), 1, &filters)
	require.NoError(t, err)
	assert.Len(t, chats, 1, "limit caps the returned slice")
}

func TestGetChatNotFound(t *testing.T) {
	ft := &fakeTransport{dialogs: nil}
	c := newTestClient(ft)
	_, err := c.GetChat(context.Background(), 123)
	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeChatNotFound, appErr.Code)
}
