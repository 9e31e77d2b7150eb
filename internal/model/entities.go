package model

import "time"

// User mirrors a Telegram user entity. Immutable per fetch.
type User struct {
	Username  *string
	Phone     *string
	PhotoURL  *string
	FirstName string
	LastName  string
	ID        int64
}

// ChatKind enumerates the dialog kinds the filter engine understands.
type ChatKind int

const (
	ChatKindUnknown ChatKind = iota
	ChatKindPrivate
	ChatKindGroup
	ChatKindChannel
)

// Chat is a hydrated dialog snapshot. Never mutated in place — each
// dialog scan produces a fresh value and replaces whatever the cache held.
type Chat struct {
	LastMessage  *Message
	MemberCount  *int
	Title        string
	ID           int64
	Order        int64
	Kind         ChatKind
	UnreadCount  int
	IsPinned     bool
	IsMuted      bool
	IsArchived   bool
	IsBot        bool
	IsContact    bool
}

// MessageContentKind tags the union MessageContent carries.
type MessageContentKind int

const (
	ContentUnknown MessageContentKind = iota
	ContentText
	ContentPhoto
	ContentVideo
	ContentDocument
	ContentVoice
	ContentSticker
)

// MessageContent is the tagged union for a message body.
type MessageContent struct {
	Text string
	Kind MessageContentKind
}

// Message is an immutable chat message.
type Message struct {
	Content    MessageContent
	SenderName string
	ID         int64
	ChatID     int64
	SenderID   int64
	Date       int64
	IsOutgoing bool
	IsRead     bool
}

// Folder is a server-defined chat grouping, consumed read-only.
type Folder struct {
	Title            string
	ID               int
	IncludedChatIDs  []int64
	ExcludedChatIDs  []int64
	IncludeContacts  bool
	IncludeNonGroups bool
	IncludeGroups    bool
	IncludeChannels  bool
	IncludeBots      bool
}

// ChatFilters is the enumerated predicate set applied during dialog scans
//. Boolean flags default to true unless noted otherwise.
type ChatFilters struct {
	GroupSizeMin         *int
	GroupSizeMax         *int
	SelectedFolderIDs    []int
	FolderChatIDs        map[int64]struct{}
	IncludePrivateChats  bool
	IncludeNonContacts   bool
	IncludeGroups        bool
	IncludeChannels      bool
	IncludeBots          bool
	IncludeArchived      bool
	IncludeMuted         bool
	IncludeUnreadOnly    bool
}

// DefaultChatFilters returns the filter set with every default-true flag
// set and every default-false flag cleared.
func DefaultChatFilters() ChatFilters {
	return ChatFilters{
		IncludePrivateChats: true,
		IncludeNonContacts:  true,
		IncludeGroups:       true,
		IncludeChannels:     true,
		IncludeBots:         false,
		IncludeArchived:     false,
		IncludeMuted:        false,
		IncludeUnreadOnly:   false,
	}
}

// ScopeProfile is a named saved ChatFilters variant.
type ScopeProfile struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	ID        string
	Name      string
	Config    ChatFilters
	IsDefault bool
}

// ContactAnnotation is per-user local metadata layered over a server
// contact.
type ContactAnnotation struct {
	LastContactDate *time.Time
	UserID          int64
	Tags            []string
	Notes           string
}

// RecipientStatus enumerates an OutreachRecipient's lifecycle position.
type RecipientStatus string

const (
	RecipientPending   RecipientStatus = "pending"
	RecipientSent      RecipientStatus = "sent"
	RecipientFailed    RecipientStatus = "failed"
	RecipientCancelled RecipientStatus = "cancelled"
)

// OutreachRecipient is one entry in an outreach queue.
type OutreachRecipient struct {
	SentAt    *time.Time
	Error     *string
	FirstName string
	LastName  string
	Status    RecipientStatus
	UserID    int64
}

// QueueStatus enumerates an OutreachQueue's lifecycle position.
type QueueStatus string

const (
	QueuePending   QueueStatus = "pending"
	QueueRunning   QueueStatus = "running"
	QueuePaused    QueueStatus = "paused"
	QueueCancelled QueueStatus = "cancelled"
	QueueCompleted QueueStatus = "completed"
)

// OutreachQueue is a durable batch of personalized sends.
type OutreachQueue struct {
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	ID          string
	Template    string
	Status      QueueStatus
	Recipients  []OutreachRecipient
	SentCount   int
	FailedCount int
}

// LLMProvider enumerates the supported chat-completion backends.
type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderOllama LLMProvider = "ollama"
)

// LLMConfig is the user-editable LLM endpoint configuration.
type LLMConfig struct {
	Provider LLMProvider
	BaseURL  string
	APIKey   string
	Model    string
}
