package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bouncer-agent/internal/domain"
)

// fakeGetter is a minimal paramstore.Getter stub for use within this package.
type fakeGetter struct {
	val    string
	err    error
	onCall func()
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	if f.onCall != nil {
		f.onCall()
	}
	return f.val, f.err
}

func testMessages() []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "You are The Bouncer."},
		{Role: domain.RoleUser, Content: "Let me in."},
	}
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(
		&fakeGetter{val: `{"token":"sk-test"}`},
		"/bouncer-agent",
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	)
	require.NoError(t, err)
	return c
}

func chatCompletionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func TestChatURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.openai.com/v1", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
		{"http://localhost:8080", "http://localhost:8080/v1/chat/completions"},
		{"", "https://api.openai.com/v1/chat/completions"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, chatURL(tc.base), "base=%q", tc.base)
	}
}

func TestNewClient_NilGetter(t *testing.T) {
	_, err := NewClient(nil, "/bouncer-agent")
	require.Error(t, err)
	require.Contains(t, err.Error(), "nil")
}

func TestNewClient_EmptyPrefix(t *testing.T) {
	_, err := NewClient(&fakeGetter{}, "  ")
	require.Error(t, err)
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(&fakeGetter{}, "/bouncer-agent")
	require.NoError(t, err)
	require.Equal(t, "https://api.openai.com/v1", c.baseURL)
	require.Equal(t, defaultModel, c.model)
}

func TestResolveAPIKey_FetchedOnce(t *testing.T) {
	calls := 0
	g := &fakeGetter{val: `{"token":"sk-from-ssm"}`, onCall: func() { calls++ }}
	c, err := NewClient(g, "/bouncer-agent")
	require.NoError(t, err)

	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-from-ssm", key)
	require.Equal(t, 1, calls)

	_, _ = c.resolveAPIKey(context.Background())
	_, _ = c.resolveAPIKey(context.Background())
	require.Equal(t, 1, calls, "SSM must only be called once per process lifetime")
}

func TestValidateKey(t *testing.T) {
	cases := []struct {
		key    string
		reason string
	}{
		{"", "empty key"},
		{"sk-has space", "whitespace"},
		{"not-an-sk-key", "expected pattern"},
	}
	for _, tc := range cases {
		err := validateKey(tc.key)
		var malformed *MalformedKeyError
		require.ErrorAs(t, err, &malformed, "key=%q", tc.key)
		require.True(t, malformed.MalformedCredential())
		require.Contains(t, err.Error(), tc.reason)
	}
	require.NoError(t, validateKey("sk-valid"))
}

func TestGenerate_MalformedKey_NoRequestSent(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	c, err := NewClient(&fakeGetter{val: `{"token":"bogus"}`}, "/bouncer-agent", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), testMessages())
	var malformed *MalformedKeyError
	require.ErrorAs(t, err, &malformed)
	require.Equal(t, 0, requests)
}

func TestGenerate_HappyPath(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionBody(`{"message":"Who's asking?","granted":false,"role":null}`)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	reply, err := c.Generate(context.Background(), testMessages())
	require.NoError(t, err)
	require.Equal(t, `{"message":"Who's asking?","granted":false,"role":null}`, reply)
	require.Equal(t, "Bearer sk-test", gotAuth)
	require.Equal(t, defaultModel, gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
}

func TestGenerate_EmptyMessages(t *testing.T) {
	c, err := NewClient(&fakeGetter{val: `{"token":"sk-test"}`}, "/bouncer-agent")
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "messages must not be empty")
}

func TestGenerate_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Generate(context.Background(), testMessages())
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusTooManyRequests, statusErr.HTTPStatusCode())
}

func TestGenerate_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Generate(context.Background(), testMessages())
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestGenerate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Generate(context.Background(), testMessages())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no choices")
}

func TestGenerate_KeyFetchError(t *testing.T) {
	c, err := NewClient(&fakeGetter{err: errors.New("ssm unavailable")}, "/bouncer-agent")
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), testMessages())
	require.Error(t, err)
	require.Contains(t, err.Error(), "ssm unavailable")
}
