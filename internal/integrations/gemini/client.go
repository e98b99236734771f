// Package gemini implements the Google Generative Language REST API as a
// gateway provider. It mirrors the openai client's shape: SSM-backed key,
// bounded HTTP timeout, typed status errors.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"bouncer-agent/internal/domain"
	"bouncer-agent/internal/integrations/paramstore"
)

const defaultModel = "gemini-2.0-flash"

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

// generateRequest is the minimal request shape for :generateContent.
type generateRequest struct {
	SystemInstruction *content  `json:"system_instruction,omitempty"`
	Contents          []content `json:"contents"`
}

// generateResponse is the minimal response shape for :generateContent.
type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("gemini: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// MalformedKeyError reports a stored API key that cannot possibly be valid.
type MalformedKeyError struct {
	Reason string
}

func (e *MalformedKeyError) Error() string {
	return fmt.Sprintf("gemini: malformed API key: %s", e.Reason)
}

func (e *MalformedKeyError) MalformedCredential() bool { return true }

// Client is a focused Gemini client for content generation.
type Client struct {
	baseURL     string
	model       string
	httpClient  *http.Client
	getter      paramstore.Getter
	paramPrefix string

	keyOnce sync.Once
	apiKey  string
	keyErr  error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		c.model = strings.TrimSpace(model)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new Client. The API key is fetched from SSM on the
// first Generate call and cached for the process lifetime.
func NewClient(ps paramstore.Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("gemini: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("gemini: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     "https://generativelanguage.googleapis.com/v1beta",
		model:       defaultModel,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		c.apiKey, c.keyErr = c.fetchAndValidateKey(ctx)
	})
	return c.apiKey, c.keyErr
}

func (c *Client) fetchAndValidateKey(ctx context.Context) (string, error) {
	key, err := paramstore.GetSecretToken(ctx, c.getter, c.paramPrefix+"/gemini-token")
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", &MalformedKeyError{Reason: "empty key"}
	}
	if strings.ContainsAny(key, " \t\n") {
		return "", &MalformedKeyError{Reason: "key contains whitespace"}
	}
	return key, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func generateURL(baseURL, model string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://generativelanguage.googleapis.com/v1beta"
	}
	return fmt.Sprintf("%s/models/%s:generateContent", base, model)
}

// Generate sends the full message history and returns the model's raw reply
// text. The system slot becomes a systemInstruction; assistant turns map to
// the "model" role.
func (c *Client) Generate(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("gemini: messages must not be empty")
	}

	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(toGenerateRequest(messages))
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := generateURL(c.baseURL, c.model)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return "", fmt.Errorf("gemini: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return "", fmt.Errorf("gemini: request failed: %w", err)
	}

	var payload generateResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", fmt.Errorf("gemini: decode response: %w", decErr)
	}
	if len(payload.Candidates) == 0 {
		return "", errors.New("gemini: no candidates in response")
	}

	var sb strings.Builder
	for _, p := range payload.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", errors.New("gemini: empty candidate content")
	}
	return sb.String(), nil
}

// toGenerateRequest converts provider-agnostic messages to the Gemini wire
// shape.
func toGenerateRequest(messages []domain.ChatMessage) generateRequest {
	var req generateRequest
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			req.SystemInstruction = &content{Parts: []part{{Text: m.Content}}}
		case domain.RoleAssistant:
			req.Contents = append(req.Contents, content{Role: "model", Parts: []part{{Text: m.Content}}})
		default:
			req.Contents = append(req.Contents, content{Role: "user", Parts: []part{{Text: m.Content}}})
		}
	}
	return req
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
