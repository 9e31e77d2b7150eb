// Package llmclient is the provider-agnostic LLM chat-completion caller
//: OpenAI-compatible wire format via go-openai, retry with
// exponential backoff, a process-wide cancellation token, and a 2-permit
// semaphore gating local-provider concurrency.
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/telecopilot/internal/apperr"
	"github.com/hrygo/telecopilot/internal/model"
)

const (
	remoteTimeout     = 30 * time.Second
	localTimeout      = 120 * time.Second
	modelProbeTimeout = 5 * time.Second
	localPermits      = 2
	maxAttempts       = 3
)

// Message is a single chat turn.
type Message struct {
	Role    string
	Content string
}

func SystemPrompt(content string) Message    { return Message{Role: openai.ChatMessageRoleSystem, Content: content} }
func UserMessage(content string) Message     { return Message{Role: openai.ChatMessageRoleUser, Content: content} }
func AssistantMessage(content string) Message { return Message{Role: openai.ChatMessageRoleAssistant, Content: content} }

// Request bundles a chat_completion call's parameters.
type Request struct {
	Messages     []Message
	Temperature  float32
	MaxTokens    int
	JSONResponse bool
}

// Recorder receives a completed chat-completion call's provider, latency,
// and outcome. *metrics.Exporter satisfies it.
type Recorder interface {
	RecordLLMRequest(provider string, latency time.Duration, success bool)
}

// Client is the shared LLM caller handed to the AI orchestrators.
type Client struct {
	remoteHTTP *http.Client
	localHTTP  *http.Client
	localSem   *semaphore.Weighted
	metrics    Recorder

	cancel context.CancelFunc
	ctx    context.Context

	mu  sync.RWMutex
	cfg model.LLMConfig
}

// Option configures a Client at construction.
type Option func(*Client)

// WithMetrics wires a request-latency/outcome recorder into the client.
func WithMetrics(m Recorder) Option {
	return func(c *Client) { c.metrics = m }
}

// New constructs a Client with an initial LLMConfig. The returned Client
// owns a process-wide cancellation token; call Shutdown to signal it.
func New(cfg model.LLMConfig, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		remoteHTTP: newHTTPClient(remoteTimeout),
		localHTTP:  newHTTPClient(localTimeout),
		localSem:   semaphore.NewWeighted(localPermits),
		ctx:        ctx,
		cancel:     cancel,
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Shutdown cancels the process-wide token, aborting every in-flight call
// and interrupting retry sleeps.
func (c *Client) Shutdown() { c.cancel() }

// UpdateConfig swaps the active LLMConfig.
func (c *Client) UpdateConfig(cfg model.LLMConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

func (c *Client) config() model.LLMConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Permit is a scoped semaphore hold for local-provider calls; release it
// when done. A nil Permit means the provider is remote and no gate applies.
type Permit struct {
	sem *semaphore.Weighted
}

func (p *Permit) Release() {
	if p == nil || p.sem == nil {
		return
	}
	p.sem.Release(1)
}

// AcquirePermit blocks until a local-provider slot is free, or returns nil
// immediately for a remote provider.
func (c *Client) AcquirePermit(ctx context.Context) (*Permit, error) {
	if c.config().Provider != model.ProviderOllama {
		return nil, nil
	}
	if err := c.localSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &Permit{sem: c.localSem}, nil
}

// ChatCompletion runs a chat completion end to end and records its
// latency and outcome against the configured Recorder.
func (c *Client) ChatCompletion(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	content, err := c.chatCompletion(ctx, req)
	if c.metrics != nil {
		c.metrics.RecordLLMRequest(string(c.config().Provider), time.Since(start), err == nil)
	}
	return content, err
}

// chatCompletion is ChatCompletion's implementation: fast-fail checks,
// request construction (stripping json_object for local providers in
// favor of a system-message directive), HTTP call, and a 3-attempt
// exponential backoff (1s before the second attempt, 2s before the third)
// over retryable failures.
func (c *Client) chatCompletion(ctx context.Context, req Request) (string, error) {
	select {
	case <-c.ctx.Done():
		return "", apperr.Cancelled()
	default:
	}

	cfg := c.config()
	if cfg.Provider != model.ProviderOllama && cfg.APIKey == "" {
		return "", apperr.ConfigError("remote LLM provider requires an API key")
	}

	httpClient := c.remoteHTTP
	if cfg.Provider == model.ProviderOllama {
		httpClient = c.localHTTP
	}

	messages := req.Messages
	wantJSON := req.JSONResponse
	if cfg.Provider == model.ProviderOllama && wantJSON {
		messages = withRawJSONDirective(messages)
	}

	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-c.ctx.Done():
				return "", apperr.Cancelled()
			case <-ctx.Done():
				return "", apperr.Cancelled()
			}
			backoff *= 2
		}

		content, err := c.call(ctx, httpClient, cfg, messages, req, wantJSON && cfg.Provider != model.ProviderOllama)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return "", err
		}
	}
	return "", errors.Wrap(lastErr, "LLM chat failed after retries")
}

func (c *Client) call(ctx context.Context, httpClient *http.Client, cfg model.LLMConfig, messages []Message, req Request, useJSONMode bool) (string, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = httpClient
	client := openai.NewClientWithConfig(clientConfig)

	oaReq := openai.ChatCompletionRequest{
		Model:       cfg.Model,
		Messages:    convertMessages(messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if useJSONMode {
		oaReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := client.CreateChatCompletion(ctx, oaReq)
	if err != nil {
		return "", classifyHTTPError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response from LLM")
	}
	return resp.Choices[0].Message.Content, nil
}

func withRawJSONDirective(messages []Message) []Message {
	const directive = "\n\nRespond with raw JSON only, no markdown fencing."
	out := append([]Message(nil), messages...)
	for i, m := range out {
		if m.Role == openai.ChatMessageRoleSystem {
			out[i].Content += directive
			return out
		}
	}
	return append([]Message{SystemPrompt(strings.TrimPrefix(directive, "\n\n"))}, out...)
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// retryableError wraps a classified HTTP/transport failure so isRetryable
// can recognize it without re-parsing the message.
type retryableError struct{ err error }

func (r *retryableError) Error() string { return r.err.Error() }
func (r *retryableError) Unwrap() error { return r.err }

func isRetryable(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}

// classifyHTTPError tags rate-limit (429), server errors (5xx), and
// transport-level substrings as retryable.
func classifyHTTPError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500 {
			return &retryableError{err: err}
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || apperr.IsLLMRetryable(err) {
		return &retryableError{err: err}
	}
	return err
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// LocalModel describes one entry from Ollama's GET /api/tags.
type LocalModel struct {
	Name          string `json:"name"`
	Size          int64  `json:"size,omitempty"`
	ModifiedAt    string `json:"modified_at,omitempty"`
	ParameterSize string `json:"parameter_size,omitempty"`
}

type tagsResponse struct {
	Models []struct {
		Name       string `json:"name"`
		Size       int64  `json:"size,omitempty"`
		ModifiedAt string `json:"modified_at,omitempty"`
		Details    struct {
			ParameterSize string `json:"parameter_size,omitempty"`
		} `json:"details,omitempty"`
	} `json:"models"`
}

// ListLocalModels probes a local Ollama endpoint's /api/tags with a 5 s
// timeout.
func (c *Client) ListLocalModels(ctx context.Context, baseURL string) ([]LocalModel, error) {
	ctx, cancel := context.WithTimeout(ctx, modelProbeTimeout)
	defer cancel()

	url := strings.TrimSuffix(baseURL, "/") + "/api/tags"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build model list request")
	}

	resp, err := c.localHTTP.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to reach local model endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("local model endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read model list response")
	}

	var parsed tagsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(err, "failed to parse model list response")
	}

	models := make([]LocalModel, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		models = append(models, LocalModel{
			Name:          m.Name,
			Size:          m.Size,
			ModifiedAt:    m.ModifiedAt,
			ParameterSize: m.Details.ParameterSize,
		})
	}
	return models, nil
}

