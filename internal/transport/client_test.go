package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Execute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/items", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "test-value", r.Header.Get("X-Test-Header"))
		assert.Equal(t, "stampede", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"items":[{"url":"/items/1"}]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(DefaultHTTPClientConfig(), nil)
	defer client.CloseIdleConnections()

	req := NewRequest("get", server.URL+"/items")
	req.Header.Set("X-Test-Header", "test-value")
	req.Query.Set("page", "2")

	resp, err := client.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "/items/1", resp.JSON("$.items[0].url").String())
	assert.Greater(t, resp.Timing.Total, time.Duration(0))
}

func TestHTTPClient_ErrorStatusIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	resp, err := NewHTTPClient(DefaultHTTPClientConfig(), nil).
		Execute(context.Background(), NewRequest(http.MethodGet, server.URL))
	require.NoError(t, err)
	assert.True(t, resp.IsServerError())
}

func TestHTTPClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	cfg := DefaultHTTPClientConfig()
	cfg.Timeout = 50 * time.Millisecond

	_, err := NewHTTPClient(cfg, nil).Execute(context.Background(), NewRequest(http.MethodGet, server.URL))
	assert.Error(t, err)
}

func TestHTTPClient_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewHTTPClient(DefaultHTTPClientConfig(), nil).Execute(context.Background(), NewRequest(http.MethodGet, url))
	assert.Error(t, err)
}

func TestRequest_Build(t *testing.T) {
	t.Run("form body", func(t *testing.T) {
		req := NewRequest(http.MethodPost, "http://example.com/login")
		req.Form.Set("user", "ada")

		httpReq, err := req.Build()
		require.NoError(t, err)
		assert.Equal(t, "application/x-www-form-urlencoded", httpReq.Header.Get("Content-Type"))

		body, _ := io.ReadAll(httpReq.Body)
		assert.Equal(t, "user=ada", string(body))
	})

	t.Run("json body", func(t *testing.T) {
		req := NewRequest(http.MethodPost, "http://example.com/items")
		req.Body = map[string]int{"qty": 2}

		httpReq, err := req.Build()
		require.NoError(t, err)
		assert.Equal(t, "application/json", httpReq.Header.Get("Content-Type"))

		body, _ := io.ReadAll(httpReq.Body)
		assert.JSONEq(t, `{"qty":2}`, string(body))
	})

	t.Run("query merged with existing", func(t *testing.T) {
		req := NewRequest(http.MethodGet, "http://example.com/search?q=go")
		req.Query.Set("page", "3")

		httpReq, err := req.Build()
		require.NoError(t, err)
		assert.Equal(t, "go", httpReq.URL.Query().Get("q"))
		assert.Equal(t, "3", httpReq.URL.Query().Get("page"))
	})

	t.Run("basic auth", func(t *testing.T) {
		req := NewRequest(http.MethodGet, "http://example.com/")
		req.SetBasicAuth("ada", "secret")

		httpReq, err := req.Build()
		require.NoError(t, err)
		user, pass, ok := httpReq.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "ada", user)
		assert.Equal(t, "secret", pass)
	})

	t.Run("bearer wins over basic", func(t *testing.T) {
		req := NewRequest(http.MethodGet, "http://example.com/")
		req.SetBasicAuth("ada", "secret")
		req.SetBearer("tok")

		httpReq, err := req.Build()
		require.NoError(t, err)
		assert.Equal(t, "Bearer tok", httpReq.Header.Get("Authorization"))
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := NewRequest(http.MethodGet, "://bad").Build()
		assert.Error(t, err)
	})
}

func TestClientFunc(t *testing.T) {
	want := errors.New("boom")
	var c Client = ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return nil, want
	})

	_, err := c.Execute(context.Background(), NewRequest(http.MethodGet, "http://x"))
	assert.ErrorIs(t, err, want)
}
