// Package ipc is the thin command layer binding the session client,
// outreach scheduler, AI orchestrators, and offboard tool to an external
// UI process. It does not own a transport of its own — the wire protocol
// to the UI (stdio, a local socket, whatever the embedding application
// chooses) is an external collaborator; this package only shapes request
// and response values and translates component errors into stable codes.
package ipc

import (
	"context"
	"time"

	"github.com/hrygo/telecopilot/internal/aiorch"
	"github.com/hrygo/telecopilot/internal/apperr"
	"github.com/hrygo/telecopilot/internal/cache"
	"github.com/hrygo/telecopilot/internal/model"
	"github.com/hrygo/telecopilot/internal/offboard"
	"github.com/hrygo/telecopilot/internal/outreach"
	"github.com/hrygo/telecopilot/internal/tgclient"
)

// contactsTTL bounds how long the annotated contact list is served from
// cache before a read forces a fresh combine of server contacts and local
// annotations.
const contactsTTL = 10 * time.Minute

// SessionClient is the subset of *tgclient.Client the command layer calls.
type SessionClient interface {
	GetAuthState() model.AuthState
	SendPhone(ctx context.Context, phone string) error
	SendCode(ctx context.Context, code string) error
	SendPassword(ctx context.Context, password string) error
	Logout(ctx context.Context) error
	GetChats(ctx context.Context, limit int, filters *model.ChatFilters) ([]model.Chat, error)
	GetChat(ctx context.Context, chatID int64) (model.Chat, error)
	GetChatMessages(ctx context.Context, chatID int64, limit int) ([]model.Message, error)
	SendMessage(ctx context.Context, chatID int64, text string) (model.Message, error)
	GetContacts(ctx context.Context) ([]model.User, error)
	Subscribe() (<-chan tgclient.Event, func())
}

// StoreClient is the subset of *store.Store the command layer reaches for
// directly: scope-profile and contact-annotation persistence, plus the
// LLM config row UpdateLLMConfig keeps in sync with the live llmclient.
type StoreClient interface {
	CreateScopeProfile(ctx context.Context, p model.ScopeProfile) error
	ListScopeProfiles(ctx context.Context) ([]model.ScopeProfile, error)
	GetScopeProfile(ctx context.Context, id string) (model.ScopeProfile, bool, error)
	SetDefaultScopeProfile(ctx context.Context, id string) error
	DeleteScopeProfile(ctx context.Context, id string) error

	AddContactTag(ctx context.Context, userID int64, tag string) error
	RemoveContactTag(ctx context.Context, userID int64, tag string) error
	ListContactTags(ctx context.Context, userID int64) ([]string, error)
	SetContactNotes(ctx context.Context, userID int64, notes string) error
	GetContactNotes(ctx context.Context, userID int64) (string, error)
	TouchLastContact(ctx context.Context, userID int64, when time.Time) error
	GetLastContact(ctx context.Context, userID int64) (time.Time, bool, error)

	SetLLMConfig(ctx context.Context, cfg model.LLMConfig) error
}

// LLMConfigClient is the subset of *llmclient.Client UpdateLLMConfig
// applies a freshly persisted config to.
type LLMConfigClient interface {
	UpdateConfig(cfg model.LLMConfig)
}

// Option configures a Service at construction.
type Option func(*Service)

// WithMetrics wires a cache-hit/miss recorder into the annotated contact
// list cache.
func WithMetrics(m cache.Recorder) Option {
	return func(s *Service) {
		s.contacts = cache.New[[]ContactWithAnnotations]("contacts", m)
	}
}

// Service wires every command-layer dependency together. Each exported
// method is a thin adapter: validate nothing beyond what the callee
// already validates, translate the callee's result or error, return.
type Service struct {
	session  SessionClient
	outreach *outreach.Scheduler
	ai       *aiorch.Orchestrator
	offboard *offboard.Tool
	store    StoreClient
	llm      LLMConfigClient

	contacts *cache.TTLCache[[]ContactWithAnnotations]
}

// New constructs a Service over its collaborators.
func New(session SessionClient, sched *outreach.Scheduler, ai *aiorch.Orchestrator, off *offboard.Tool, store StoreClient, llm LLMConfigClient, opts ...Option) *Service {
	s := &Service{
		session:  session,
		outreach: sched,
		ai:       ai,
		offboard: off,
		store:    store,
		llm:      llm,
		contacts: cache.New[[]ContactWithAnnotations]("contacts", nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ErrorResponse is the stable, UI-facing shape of any component error.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToErrorResponse converts any error into its stable IPC shape, mapping
// unrecognized errors to the generic internal code with the error's own
// text as the message.
func ToErrorResponse(err error) *ErrorResponse {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if ok := asAppErr(err, &appErr); ok {
		return &ErrorResponse{Code: string(appErr.Code), Message: appErr.Message}
	}
	return &ErrorResponse{Code: string(apperr.CodeInternal), Message: err.Error()}
}

func asAppErr(err error, target **apperr.Error) bool {
	for err != nil {
		if e, ok := err.(*apperr.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// AuthStateDTO is the JSON-serializable projection of model.AuthState.
type AuthStateDTO struct {
	State string `json:"state"`
	Phone string `json:"phone,omitempty"`
	Hint  string `json:"hint,omitempty"`
}

// ToAuthStateDTO flattens the sum type into its wire shape.
func ToAuthStateDTO(s model.AuthState) AuthStateDTO {
	dto := AuthStateDTO{State: model.AuthStateName(s)}
	switch st := s.(type) {
	case model.WaitCode:
		dto.Phone = st.Phone
	case model.WaitPassword:
		dto.Hint = st.Hint
	}
	return dto
}

// GetAuthState returns the session's current login state.
func (s *Service) GetAuthState() AuthStateDTO {
	return ToAuthStateDTO(s.session.GetAuthState())
}

// SendPhone advances the login state machine with a phone number.
func (s *Service) SendPhone(ctx context.Context, phone string) *ErrorResponse {
	return ToErrorResponse(s.session.SendPhone(ctx, phone))
}

// SendCode advances the login state machine with a received code.
func (s *Service) SendCode(ctx context.Context, code string) *ErrorResponse {
	return ToErrorResponse(s.session.SendCode(ctx, code))
}

// SendPassword completes two-factor login.
func (s *Service) SendPassword(ctx context.Context, password string) *ErrorResponse {
	return ToErrorResponse(s.session.SendPassword(ctx, password))
}

// Logout tears down the session and drops every AI result and the
// annotated contact list cache, since both are scoped to the account that
// just logged out.
func (s *Service) Logout(ctx context.Context) *ErrorResponse {
	if err := s.session.Logout(ctx); err != nil {
		return ToErrorResponse(err)
	}
	s.ai.InvalidateAll()
	s.contacts.InvalidateAll()
	return nil
}

// GetChats lists known chats passing filters (every chat, under
// model.DefaultChatFilters, if filters is nil), up to limit entries.
func (s *Service) GetChats(ctx context.Context, limit int, filters *model.ChatFilters) ([]model.Chat, *ErrorResponse) {
	chats, err := s.session.GetChats(ctx, limit, filters)
	return chats, ToErrorResponse(err)
}

// GetChat fetches a single chat by id.
func (s *Service) GetChat(ctx context.Context, chatID int64) (model.Chat, *ErrorResponse) {
	chat, err := s.session.GetChat(ctx, chatID)
	return chat, ToErrorResponse(err)
}

// GetChatMessages fetches up to limit recent messages for a chat.
func (s *Service) GetChatMessages(ctx context.Context, chatID int64, limit int) ([]model.Message, *ErrorResponse) {
	messages, err := s.session.GetChatMessages(ctx, chatID, limit)
	return messages, ToErrorResponse(err)
}

// SendMessage sends text to a chat.
func (s *Service) SendMessage(ctx context.Context, chatID int64, text string) (model.Message, *ErrorResponse) {
	msg, err := s.session.SendMessage(ctx, chatID, text)
	return msg, ToErrorResponse(err)
}

// QueueOutreachRequest is the UI-facing shape of a new outreach batch.
type QueueOutreachRequest struct {
	Template   string                     `json:"template"`
	Recipients []model.OutreachRecipient `json:"recipients"`
}

// QueueOutreach starts a new outreach batch, returning its queue id.
func (s *Service) QueueOutreach(ctx context.Context, req QueueOutreachRequest) (string, *ErrorResponse) {
	id, err := s.outreach.Queue(ctx, req.Recipients, req.Template)
	return id, ToErrorResponse(err)
}

// OutreachStatus reports a queue's current state.
func (s *Service) OutreachStatus(ctx context.Context, queueID string) (model.OutreachQueue, *ErrorResponse) {
	q, err := s.outreach.Status(ctx, queueID)
	return q, ToErrorResponse(err)
}

// CancelOutreach stops a running queue.
func (s *Service) CancelOutreach(ctx context.Context, queueID string) *ErrorResponse {
	return ToErrorResponse(s.outreach.Cancel(ctx, queueID))
}

// Briefing triages chats into what needs a response and what's FYI.
func (s *Service) Briefing(ctx context.Context, chatIDs []int64, forceRefresh bool) (aiorch.BriefingResult, *ErrorResponse) {
	result, err := s.ai.Briefing(ctx, chatIDs, forceRefresh)
	return result, ToErrorResponse(err)
}

// BatchSummary summarizes every chat in chatIDs.
func (s *Service) BatchSummary(ctx context.Context, chatIDs []int64, forceRefresh bool) (aiorch.SummaryResult, *ErrorResponse) {
	result, err := s.ai.BatchSummary(ctx, chatIDs, forceRefresh)
	return result, ToErrorResponse(err)
}

// Draft generates a reply draft for one chat.
func (s *Service) Draft(ctx context.Context, chatID int64, forceRefresh bool) (aiorch.DraftResult, *ErrorResponse) {
	result, err := s.ai.Draft(ctx, chatID, forceRefresh)
	return result, ToErrorResponse(err)
}

// UpdateLLMConfig persists a new LLM configuration, applies it to the live
// LLM client, and invalidates every cached AI result: a changed provider
// or model invalidates any completion generated under the old one.
func (s *Service) UpdateLLMConfig(ctx context.Context, cfg model.LLMConfig) *ErrorResponse {
	if err := s.store.SetLLMConfig(ctx, cfg); err != nil {
		return ToErrorResponse(err)
	}
	s.llm.UpdateConfig(cfg)
	s.ai.InvalidateAll()
	return nil
}

// ContactWithAnnotations pairs a server contact with the local metadata
// layered over it.
type ContactWithAnnotations struct {
	User       model.User             `json:"user"`
	Annotation model.ContactAnnotation `json:"annotation"`
}

// ListContactsWithAnnotations combines the account's server contacts with
// their locally stored tags, notes, and last-contact date, serving from
// cache within contactsTTL unless forceRefresh is set.
func (s *Service) ListContactsWithAnnotations(ctx context.Context, forceRefresh bool) ([]ContactWithAnnotations, *ErrorResponse) {
	if !forceRefresh {
		if cached, _, ok := s.contacts.Get(cache.ContactsKey, contactsTTL); ok {
			return cached, nil
		}
	}

	users, err := s.session.GetContacts(ctx)
	if err != nil {
		return nil, ToErrorResponse(err)
	}

	out := make([]ContactWithAnnotations, 0, len(users))
	for _, u := range users {
		tags, err := s.store.ListContactTags(ctx, u.ID)
		if err != nil {
			return nil, ToErrorResponse(err)
		}
		notes, err := s.store.GetContactNotes(ctx, u.ID)
		if err != nil {
			return nil, ToErrorResponse(err)
		}
		ann := model.ContactAnnotation{UserID: u.ID, Tags: tags, Notes: notes}
		if last, found, err := s.store.GetLastContact(ctx, u.ID); err != nil {
			return nil, ToErrorResponse(err)
		} else if found {
			ann.LastContactDate = &last
		}
		out = append(out, ContactWithAnnotations{User: u, Annotation: ann})
	}

	s.contacts.Set(cache.ContactsKey, out)
	return out, nil
}

// CreateScopeProfile persists a new named filter variant.
func (s *Service) CreateScopeProfile(ctx context.Context, p model.ScopeProfile) *ErrorResponse {
	return ToErrorResponse(s.store.CreateScopeProfile(ctx, p))
}

// ListScopeProfiles returns every saved scope profile.
func (s *Service) ListScopeProfiles(ctx context.Context) ([]model.ScopeProfile, *ErrorResponse) {
	profiles, err := s.store.ListScopeProfiles(ctx)
	return profiles, ToErrorResponse(err)
}

// GetScopeProfile fetches a single scope profile by id.
func (s *Service) GetScopeProfile(ctx context.Context, id string) (model.ScopeProfile, *ErrorResponse) {
	p, _, err := s.store.GetScopeProfile(ctx, id)
	return p, ToErrorResponse(err)
}

// SetDefaultScopeProfile marks id as the default scope profile.
func (s *Service) SetDefaultScopeProfile(ctx context.Context, id string) *ErrorResponse {
	return ToErrorResponse(s.store.SetDefaultScopeProfile(ctx, id))
}

// DeleteScopeProfile removes a scope profile.
func (s *Service) DeleteScopeProfile(ctx context.Context, id string) *ErrorResponse {
	return ToErrorResponse(s.store.DeleteScopeProfile(ctx, id))
}

// AddContactTag tags userID and drops the cached annotated contact list so
// the next read reflects it.
func (s *Service) AddContactTag(ctx context.Context, userID int64, tag string) *ErrorResponse {
	if err := s.store.AddContactTag(ctx, userID, tag); err != nil {
		return ToErrorResponse(err)
	}
	s.contacts.Invalidate(cache.ContactsKey)
	return nil
}

// RemoveContactTag removes a tag from userID.
func (s *Service) RemoveContactTag(ctx context.Context, userID int64, tag string) *ErrorResponse {
	if err := s.store.RemoveContactTag(ctx, userID, tag); err != nil {
		return ToErrorResponse(err)
	}
	s.contacts.Invalidate(cache.ContactsKey)
	return nil
}

// SetContactNotes replaces userID's free-text notes.
func (s *Service) SetContactNotes(ctx context.Context, userID int64, notes string) *ErrorResponse {
	if err := s.store.SetContactNotes(ctx, userID, notes); err != nil {
		return ToErrorResponse(err)
	}
	s.contacts.Invalidate(cache.ContactsKey)
	return nil
}

// TouchLastContact records that userID was last messaged at when.
func (s *Service) TouchLastContact(ctx context.Context, userID int64, when time.Time) *ErrorResponse {
	if err := s.store.TouchLastContact(ctx, userID, when); err != nil {
		return ToErrorResponse(err)
	}
	s.contacts.Invalidate(cache.ContactsKey)
	return nil
}

// GetCommonGroups lists groups shared with a contact.
func (s *Service) GetCommonGroups(ctx context.Context, userID int64) ([]tgclient.RawChat, *ErrorResponse) {
	chats, err := s.offboard.GetCommonGroups(ctx, userID)
	return chats, ToErrorResponse(err)
}

// RemoveFromGroup removes a user from a group or channel.
func (s *Service) RemoveFromGroup(ctx context.Context, chatID, userID int64) *ErrorResponse {
	return ToErrorResponse(s.offboard.RemoveFromGroup(ctx, chatID, userID))
}

// EventDTO is the wire shape of one event-bus event.
type EventDTO struct {
	AuthState *AuthStateDTO  `json:"auth_state,omitempty"`
	Message   *model.Message `json:"message,omitempty"`
	Chat      *model.Chat    `json:"chat,omitempty"`
	User      *model.User    `json:"user,omitempty"`
	Error     *ErrorResponse `json:"error,omitempty"`
	Kind      string         `json:"kind"`
}

var eventKindNames = map[tgclient.EventKind]string{
	tgclient.EventAuthStateChanged: "auth_state_changed",
	tgclient.EventNewMessage:       "new_message",
	tgclient.EventChatUpdated:      "chat_updated",
	tgclient.EventUserUpdated:      "user_updated",
	tgclient.EventError:            "error",
}

func toEventDTO(e tgclient.Event) EventDTO {
	dto := EventDTO{Kind: eventKindNames[e.Kind]}
	switch e.Kind {
	case tgclient.EventAuthStateChanged:
		state := ToAuthStateDTO(e.AuthState)
		dto.AuthState = &state
	case tgclient.EventNewMessage:
		msg := e.Message
		dto.Message = &msg
	case tgclient.EventChatUpdated:
		chat := e.Chat
		dto.Chat = &chat
	case tgclient.EventUserUpdated:
		user := e.User
		dto.User = &user
	case tgclient.EventError:
		dto.Error = ToErrorResponse(e.Err)
	}
	return dto
}

// Subscribe returns a stream of translated events and an unsubscribe
// func, forwarding the session client's broadcast bus verbatim. The
// returned channel shares the bus's lossy-under-backpressure semantics.
// Calling unsubscribe also stops the forwarding goroutine: the bus never
// closes a subscriber's channel on its own, so without this signal the
// goroutine would block on it forever.
func (s *Service) Subscribe() (<-chan EventDTO, func()) {
	raw, rawUnsubscribe := s.session.Subscribe()
	out := make(chan EventDTO, cap(raw))
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			select {
			case e := <-raw:
				select {
				case out <- toEventDTO(e):
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	return out, func() {
		rawUnsubscribe()
		close(done)
	}
}
