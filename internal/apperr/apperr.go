// Package apperr defines the typed error taxonomy shared by every component:
// a small set of top-level kinds, each carrying a stable uppercase code for
// IPC, plus the substring heuristics used to classify transport and LLM
// errors as retryable.
package apperr

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind is the top-level error category.
type Kind int

const (
	KindTelegram Kind = iota
	KindDatabase
	KindConfig
	KindOutreach
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindTelegram:
		return "telegram"
	case KindDatabase:
		return "database"
	case KindConfig:
		return "config"
	case KindOutreach:
		return "outreach"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Code is the stable uppercase string surfaced over IPC.
type Code string

const (
	CodeNotConnected       Code = "NOT_CONNECTED"
	CodeNotAuthorized      Code = "NOT_AUTHORIZED"
	CodeSession            Code = "SESSION"
	CodeConnection         Code = "CONNECTION"
	CodeAuth               Code = "AUTH"
	CodeTwoFactorRequired  Code = "2FA_REQUIRED"
	CodeInvalidCode        Code = "INVALID_CODE"
	CodeAPI                Code = "API"
	CodeChatNotFound       Code = "CHAT_NOT_FOUND"
	CodeUserNotFound       Code = "USER_NOT_FOUND"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeDatabase           Code = "DATABASE"
	CodeConfigError        Code = "CONFIG_ERROR"
	CodeMissingEnvVar      Code = "MISSING_ENV_VAR"
	CodeMissingTGCreds     Code = "MISSING_TELEGRAM_CREDENTIALS"
	CodeQueueNotFound      Code = "QUEUE_NOT_FOUND"
	CodeEmptyTemplate      Code = "EMPTY_TEMPLATE"
	CodeNoRecipients       Code = "NO_RECIPIENTS"
	CodeSendFailed         Code = "SEND_FAILED"
	CodeCancelled          Code = "CANCELLED"
	CodeInternal           Code = "INTERNAL"
)

// Error is the concrete error type every component returns. It carries a
// Kind, a stable Code, a short human message, and an optional wrapped cause.
type Error struct {
	Cause   error
	Kind    Kind
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func new_(kind Kind, code Code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

// Constructors for each error kind, one per recognizable failure mode.

func NotConnected() *Error {
	return new_(KindTelegram, CodeNotConnected, "transport not connected", nil)
}

func NotAuthorized() *Error {
	return new_(KindTelegram, CodeNotAuthorized, "session not authorized", nil)
}

func Session(cause error) *Error {
	return new_(KindTelegram, CodeSession, "session file I/O failed", cause)
}

func Connection(cause error) *Error {
	return new_(KindTelegram, CodeConnection, "transport connection failed", cause)
}

func Auth(cause error) *Error {
	return new_(KindTelegram, CodeAuth, "authentication failed", cause)
}

func TwoFactorRequired(hint string) *Error {
	msg := "two-factor password required"
	if hint != "" {
		msg = fmt.Sprintf("two-factor password required (hint: %s)", hint)
	}
	return new_(KindTelegram, CodeTwoFactorRequired, msg, nil)
}

func InvalidCode() *Error {
	return new_(KindTelegram, CodeInvalidCode, "invalid login code", nil)
}

func API(msg string) *Error {
	return new_(KindTelegram, CodeAPI, msg, nil)
}

func ChatNotFound(id int64) *Error {
	return new_(KindTelegram, CodeChatNotFound, fmt.Sprintf("chat %d not found", id), nil)
}

func UserNotFound(id int64) *Error {
	return new_(KindTelegram, CodeUserNotFound, fmt.Sprintf("user %d not found", id), nil)
}

func RateLimited(msg string) *Error {
	return new_(KindTelegram, CodeRateLimited, msg, nil)
}

func Database(cause error) *Error {
	return new_(KindDatabase, CodeDatabase, "database operation failed", cause)
}

func ConfigError(msg string) *Error {
	return new_(KindConfig, CodeConfigError, msg, nil)
}

func MissingEnvVar(name string) *Error {
	return new_(KindConfig, CodeMissingEnvVar, fmt.Sprintf("missing environment variable %s", name), nil)
}

func MissingTelegramCredentials() *Error {
	return new_(KindConfig, CodeMissingTGCreds, "TELEGRAM_API_ID / TELEGRAM_API_HASH not set", nil)
}

func QueueNotFound(id string) *Error {
	return new_(KindOutreach, CodeQueueNotFound, fmt.Sprintf("outreach queue %s not found", id), nil)
}

func EmptyTemplate() *Error {
	return new_(KindOutreach, CodeEmptyTemplate, "outreach template is empty", nil)
}

func NoRecipients() *Error {
	return new_(KindOutreach, CodeNoRecipients, "outreach queue has no recipients", nil)
}

func SendFailed(userID int64, reason string) *Error {
	return new_(KindOutreach, CodeSendFailed, fmt.Sprintf("send to user %d failed: %s", userID, reason), nil)
}

func Cancelled() *Error {
	return new_(KindInternal, CodeCancelled, "Request cancelled", nil)
}

func Internal(msg string, cause error) *Error {
	return new_(KindInternal, CodeInternal, msg, cause)
}

// transportResetPatterns are the substring signatures D's auto-reconnect
// wrapper matches against.
var transportResetPatterns = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"broken pipe",
	"read 0 bytes",
	"io failed",
}

// IsTransportReset reports whether err looks like a transient transport
// failure that D's reconnect-and-retry pass should absorb.
func IsTransportReset(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transportResetPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// llmRetryablePatterns are substrings that mark an LLM-call error as
// retryable under H's exponential backoff.
var llmRetryablePatterns = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"broken pipe",
	"eof",
	"temporary failure",
	"no such host",
	"dial tcp",
}

// IsLLMRetryable reports whether an LLM call error warrants a retry. HTTP
// status classification (429 / 5xx) happens at the call site, where the
// status code is available; this only covers transport-level substrings.
func IsLLMRetryable(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range llmRetryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// FloodWaitSeconds extracts N from an error message containing
// FLOOD_WAIT_<N>, returning (N, true) when 0 < N < 86400.
func FloodWaitSeconds(msg string) (int, bool) {
	const marker = "FLOOD_WAIT_"
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return 0, false
	}
	rest := msg[idx+len(marker):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n := 0
	for _, c := range rest[:end] {
		n = n*10 + int(c-'0')
	}
	if n <= 0 || n >= 86400 {
		return 0, false
	}
	return n, true
}
