package tavus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yoockh/mockinterview/internal/models"
	"github.com/yoockh/mockinterview/internal/observability"
	"github.com/yoockh/mockinterview/internal/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultBaseURL = "https://tavusapi.com/v2"
	serviceName    = "tavus"
	maxErrorBody   = 64 << 10
)

// ErrNoAPIKey is returned by every call when no credential is configured.
var ErrNoAPIKey = errors.New("tavus api key is not configured")

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	metrics *observability.Metrics
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Configured() bool { return c.apiKey != "" }

type createConversationRequest struct {
	ReplicaID        string                    `json:"replica_id"`
	PersonaID        string                    `json:"persona_id"`
	ConversationName string                    `json:"conversation_name"`
	Properties       *models.SessionProperties `json:"properties,omitempty"`
}

type conversationResponse struct {
	ConversationID  string `json:"conversation_id"`
	ConversationURL string `json:"conversation_url"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}

// ConversationStatus is the provider's status payload, passed through as-is.
type ConversationStatus struct {
	ConversationID string          `json:"conversation_id"`
	Status         string          `json:"status"`
	Raw            json.RawMessage `json:"-"`
}

func (c *Client) CreateConversation(ctx context.Context, cfg models.SessionConfig) (*models.Conversation, error) {
	body := createConversationRequest{
		ReplicaID:        cfg.ReplicaID,
		PersonaID:        cfg.PersonaID,
		ConversationName: cfg.ConversationName,
		Properties:       &cfg.Properties,
	}

	var out conversationResponse
	if err := c.do(ctx, "create_conversation", http.MethodPost, "/conversations", body, &out); err != nil {
		return nil, err
	}
	if out.ConversationID == "" || out.ConversationURL == "" {
		return nil, fmt.Errorf("tavus: create conversation returned no id or url")
	}

	created := time.Now().UTC()
	if out.CreatedAt != "" {
		if t, err := parseTime(out.CreatedAt); err == nil {
			created = t
		}
	}
	return &models.Conversation{
		ConversationID:  out.ConversationID,
		ConversationURL: out.ConversationURL,
		Status:          out.Status,
		CreatedAt:       created,
	}, nil
}

func (c *Client) EndConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, "end_conversation", http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/end", nil, nil)
}

func (c *Client) GetConversation(ctx context.Context, conversationID string) (*ConversationStatus, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "get_conversation", http.MethodGet, "/conversations/"+url.PathEscape(conversationID), nil, &raw); err != nil {
		return nil, err
	}
	st := &ConversationStatus{Raw: raw}
	_ = json.Unmarshal(raw, st)
	if st.ConversationID == "" {
		st.ConversationID = conversationID
	}
	return st, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	if !c.Configured() {
		return ErrNoAPIKey
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ProviderRequest(op, 0)
		return fmt.Errorf("tavus %s: %w", op, err)
	}
	defer resp.Body.Close()
	c.metrics.ProviderRequest(op, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &utils.RemoteError{Service: serviceName, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("tavus %s: decode response: %w", op, err)
	}
	return nil
}

// IsAlreadyEnded reports whether err is the provider saying the
// conversation is gone or finished.
func IsAlreadyEnded(err error) bool {
	var re *utils.RemoteError
	if !errors.As(err, &re) {
		return false
	}
	switch re.StatusCode {
	case http.StatusNotFound, http.StatusConflict, http.StatusGone:
		return true
	case http.StatusBadRequest:
		b := strings.ToLower(re.Body)
		return strings.Contains(b, "already ended") || strings.Contains(b, "has ended") || strings.Contains(b, "already been ended")
	}
	return false
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999", "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
