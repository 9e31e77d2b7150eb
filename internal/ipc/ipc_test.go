package ipc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/telecopilot/internal/aiorch"
	"github.com/hrygo/telecopilot/internal/apperr"
	"github.com/hrygo/telecopilot/internal/llmclient"
	"github.com/hrygo/telecopilot/internal/model"
	"github.com/hrygo/telecopilot/internal/tgclient"
)

type fakeSession struct {
	state    model.AuthState
	sendErr  error
	chats    []model.Chat
	contacts []model.User
	getErr   error
	sendMsg  model.Message
	sendMErr error
	bus      chan tgclient.Event
}

func (f *fakeSession) GetAuthState() model.AuthState                    { return f.state }
func (f *fakeSession) SendPhone(ctx context.Context, phone string) error { return f.sendErr }
func (f *fakeSession) SendCode(ctx context.Context, code string) error  { return f.sendErr }
func (f *fakeSession) SendPassword(ctx context.Context, password string) error {
	return f.sendErr
}
func (f *fakeSession) Logout(ctx context.Context) error { return f.sendErr }
func (f *fakeSession) GetChats(ctx context.Context, limit int, filters *model.ChatFilters) ([]model.Chat, error) {
	return f.chats, f.getErr
}
func (f *fakeSession) GetContacts(ctx context.Context) ([]model.User, error) {
	return f.contacts, f.getErr
}
func (f *fakeSession) GetChat(ctx context.Context, chatID int64) (model.Chat, error) {
	return model.Chat{ID: chatID}, f.getErr
}
func (f *fakeSession) GetChatMessages(ctx context.Context, chatID int64, limit int) ([]model.Message, error) {
	return nil, f.getErr
}
func (f *fakeSession) SendMessage(ctx context.Context, chatID int64, text string) (model.Message, error) {
	return f.sendMsg, f.sendMErr
}
func (f *fakeSession) Subscribe() (<-chan tgclient.Event, func()) {
	if f.bus == nil {
		f.bus = make(chan tgclient.Event, 10)
	}
	return f.bus, func() {}
}

func TestToErrorResponseMapsAppErr(t *testing.T) {
	resp := ToErrorResponse(apperr.ChatNotFound(42))
	require.NotNil(t, resp)
	assert.Equal(t, "CHAT_NOT_FOUND", resp.Code)
}

func TestToErrorResponseMapsUnknownErrToInternal(t *testing.T) {
	resp := ToErrorResponse(errors.New("boom"))
	require.NotNil(t, resp)
	assert.Equal(t, "INTERNAL", resp.Code)
}

func TestToErrorResponseNilIsNil(t *testing.T) {
	assert.Nil(t, ToErrorResponse(nil))
}

func TestToAuthStateDTOFlattensEachVariant(t *testing.T) {
	assert.Equal(t, AuthStateDTO{State: "wait_phone_number"}, ToAuthStateDTO(model.WaitPhoneNumber{}))
	assert.Equal(t, AuthStateDTO{State: "wait_code", Phone: "+1"}, ToAuthStateDTO(model.WaitCode{Phone: "+1"}))
	assert.Equal(t, AuthStateDTO{State: "wait_password", Hint: "pet"}, ToAuthStateDTO(model.WaitPassword{Hint: "pet"}))
	assert.Equal(t, AuthStateDTO{State: "ready"}, ToAuthStateDTO(model.Ready{}))
}

func TestServiceGetAuthStateDelegates(t *testing.T) {
	svc := New(&fakeSession{state: model.Ready{}}, nil, nil, nil, nil, nil)
	assert.Equal(t, AuthStateDTO{State: "ready"}, svc.GetAuthState())
}

func TestServiceSendPhonePropagatesError(t *testing.T) {
	svc := New(&fakeSession{sendErr: apperr.InvalidCode()}, nil, nil, nil, nil, nil)
	resp := svc.SendPhone(context.Background(), "+1")
	require.NotNil(t, resp)
	assert.Equal(t, "INVALID_CODE", resp.Code)
}

func TestSubscribeTranslatesEventsAndStopsOnUnsubscribe(t *testing.T) {
	session := &fakeSession{bus: make(chan tgclient.Event, 10)}
	svc := New(session, nil, nil, nil, nil, nil)

	out, unsubscribe := svc.Subscribe()
	session.bus <- tgclient.Event{Kind: tgclient.EventAuthStateChanged, AuthState: model.Ready{}}

	dto := <-out
	assert.Equal(t, "auth_state_changed", dto.Kind)
	require.NotNil(t, dto.AuthState)
	assert.Equal(t, "ready", dto.AuthState.State)

	unsubscribe()
	_, ok := <-out
	assert.False(t, ok, "channel should close after unsubscribe")
}

// fakeStore is an in-memory StoreClient double.
type fakeStore struct {
	tags       map[int64][]string
	notes      map[int64]string
	lastAt     map[int64]time.Time
	profiles   map[string]model.ScopeProfile
	setCfgCall model.LLMConfig
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tags:     make(map[int64][]string),
		notes:    make(map[int64]string),
		lastAt:   make(map[int64]time.Time),
		profiles: make(map[string]model.ScopeProfile),
	}
}

func (f *fakeStore) CreateScopeProfile(ctx context.Context, p model.ScopeProfile) error {
	f.profiles[p.ID] = p
	return nil
}
func (f *fakeStore) ListScopeProfiles(ctx context.Context) ([]model.ScopeProfile, error) {
	out := make([]model.ScopeProfile, 0, len(f.profiles))
	for _, p := range f.profiles {
		out = append(out, p)
	}
	return out, nil
}
func (f *fakeStore) GetScopeProfile(ctx context.Context, id string) (model.ScopeProfile, bool, error) {
	p, ok := f.profiles[id]
	return p, ok, nil
}
func (f *fakeStore) SetDefaultScopeProfile(ctx context.Context, id string) error {
	for k, p := range f.profiles {
		p.IsDefault = k == id
		f.profiles[k] = p
	}
	return nil
}
func (f *fakeStore) DeleteScopeProfile(ctx context.Context, id string) error {
	delete(f.profiles, id)
	return nil
}
func (f *fakeStore) AddContactTag(ctx context.Context, userID int64, tag string) error {
	f.tags[userID] = append(f.tags[userID], tag)
	return nil
}
func (f *fakeStore) RemoveContactTag(ctx context.Context, userID int64, tag string) error {
	return nil
}
func (f *fakeStore) ListContactTags(ctx context.Context, userID int64) ([]string, error) {
	return f.tags[userID], nil
}
func (f *fakeStore) SetContactNotes(ctx context.Context, userID int64, notes string) error {
	f.notes[userID] = notes
	return nil
}
func (f *fakeStore) GetContactNotes(ctx context.Context, userID int64) (string, error) {
	return f.notes[userID], nil
}
func (f *fakeStore) TouchLastContact(ctx context.Context, userID int64, when time.Time) error {
	f.lastAt[userID] = when
	return nil
}
func (f *fakeStore) GetLastContact(ctx context.Context, userID int64) (time.Time, bool, error) {
	t, ok := f.lastAt[userID]
	return t, ok, nil
}
func (f *fakeStore) SetLLMConfig(ctx context.Context, cfg model.LLMConfig) error {
	f.setCfgCall = cfg
	return nil
}

// fakeLLM is a stub LLMConfigClient double.
type fakeLLM struct {
	updated model.LLMConfig
}

func (f *fakeLLM) UpdateConfig(cfg model.LLMConfig) { f.updated = cfg }

func TestListContactsWithAnnotationsCombinesAndCaches(t *testing.T) {
	session := &fakeSession{contacts: []model.User{{ID: 1}}}
	st := newFakeStore()
	require.NoError(t, st.AddContactTag(context.Background(), 1, "vip"))
	require.NoError(t, st.SetContactNotes(context.Background(), 1, "met at conference"))

	svc := New(session, nil, nil, nil, st, nil)
	out, errResp := svc.ListContactsWithAnnotations(context.Background(), false)
	require.Nil(t, errResp)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"vip"}, out[0].Annotation.Tags)
	assert.Equal(t, "met at conference", out[0].Annotation.Notes)

	session.contacts = nil
	out, errResp = svc.ListContactsWithAnnotations(context.Background(), false)
	require.Nil(t, errResp)
	assert.Len(t, out, 1, "second call within TTL should be served from cache")
}

func TestAddContactTagInvalidatesContactsCache(t *testing.T) {
	session := &fakeSession{contacts: []model.User{{ID: 1}}}
	st := newFakeStore()
	svc := New(session, nil, nil, nil, st, nil)

	_, errResp := svc.ListContactsWithAnnotations(context.Background(), false)
	require.Nil(t, errResp)

	errResp = svc.AddContactTag(context.Background(), 1, "vip")
	require.Nil(t, errResp)

	out, errResp := svc.ListContactsWithAnnotations(context.Background(), false)
	require.Nil(t, errResp)
	assert.Equal(t, []string{"vip"}, out[0].Annotation.Tags, "tag visible without forceRefresh once the stale cache entry was invalidated")
}

func TestScopeProfileCRUDDelegatesToStore(t *testing.T) {
	st := newFakeStore()
	svc := New(nil, nil, nil, nil, st, nil)

	errResp := svc.CreateScopeProfile(context.Background(), model.ScopeProfile{ID: "a", Name: "Work"})
	require.Nil(t, errResp)

	profiles, errResp := svc.ListScopeProfiles(context.Background())
	require.Nil(t, errResp)
	require.Len(t, profiles, 1)

	errResp = svc.SetDefaultScopeProfile(context.Background(), "a")
	require.Nil(t, errResp)
	p, errResp := svc.GetScopeProfile(context.Background(), "a")
	require.Nil(t, errResp)
	assert.True(t, p.IsDefault)

	errResp = svc.DeleteScopeProfile(context.Background(), "a")
	require.Nil(t, errResp)
	profiles, errResp = svc.ListScopeProfiles(context.Background())
	require.Nil(t, errResp)
	assert.Empty(t, profiles)
}

func TestUpdateLLMConfigPersistsAppliesAndInvalidatesAICaches(t *testing.T) {
	st := newFakeStore()
	llm := &fakeLLM{}
	ai := aiorch.New(&fakeChatSourceStub{}, &fakeCompleterStub{})
	svc := New(nil, nil, ai, nil, st, llm)

	cfg := model.LLMConfig{Provider: model.ProviderOllama, Model: "llama3"}
	errResp := svc.UpdateLLMConfig(context.Background(), cfg)
	require.Nil(t, errResp)
	assert.Equal(t, cfg, st.setCfgCall)
	assert.Equal(t, cfg, llm.updated)
}

func TestLogoutInvalidatesAIAndContactsCaches(t *testing.T) {
	session := &fakeSession{contacts: []model.User{{ID: 1}}}
	ai := aiorch.New(&fakeChatSourceStub{}, &fakeCompleterStub{})
	svc := New(session, nil, ai, nil, newFakeStore(), nil)

	_, errResp := svc.ListContactsWithAnnotations(context.Background(), false)
	require.Nil(t, errResp)

	errResp = svc.Logout(context.Background())
	require.Nil(t, errResp)

	session.contacts = []model.User{{ID: 1}, {ID: 2}}
	out, errResp := svc.ListContactsWithAnnotations(context.Background(), false)
	require.Nil(t, errResp)
	assert.Len(t, out, 2, "contacts cache must have been dropped by logout, not served stale")
}

// fakeChatSourceStub and fakeCompleterStub satisfy aiorch.ChatSource and
// aiorch.Completer with no behavior: the config/logout invalidation tests
// above never actually call an orchestrator method.
type fakeChatSourceStub struct{}

func (fakeChatSourceStub) GetChat(ctx context.Context, chatID int64) (model.Chat, error) {
	return model.Chat{}, nil
}
func (fakeChatSourceStub) GetChatMessages(ctx context.Context, chatID int64, limit int) ([]model.Message, error) {
	return nil, nil
}

type fakeCompleterStub struct{}

func (fakeCompleterStub) AcquirePermit(ctx context.Context) (*llmclient.Permit, error) {
	return nil, nil
}
func (fakeCompleterStub) ChatCompletion(ctx context.Context, req llmclient.Request) (string, error) {
	return "", nil
}
