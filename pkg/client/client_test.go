package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/leadchat/pkg/cache"
	"github.com/pario-ai/leadchat/pkg/models"
)

var userTurn = []models.ChatMessage{{Role: "user", Content: "find fintech startups in Lisbon"}}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	store := cache.New(context.Background(), cache.NewMemoryBackend(), cache.WithLogger(zerolog.Nop()))
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.StreamPacing = 0
	return New(cfg, store, WithLogger(zerolog.Nop()))
}

// chatUpstream answers /chat with body and records every request it sees.
type chatUpstream struct {
	calls    atomic.Int32
	mu       sync.Mutex
	requests []models.ChatRequest
}

func (u *chatUpstream) handler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		var req models.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		u.mu.Lock()
		u.requests = append(u.requests, req)
		u.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestSendMessageMissThenHit(t *testing.T) {
	up := &chatUpstream{}
	srv := httptest.NewServer(up.handler(http.StatusOK, `{"message":"Which industry?","ready_for_search":false,"missing_info":["industry"]}`))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	resp, err := c.SendMessage(ctx, userTurn, "s1", "")
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, "Which industry?", resp.Message)
	assert.Equal(t, []string{"industry"}, resp.MissingInfo)

	resp, err = c.SendMessage(ctx, userTurn, "s2", "")
	require.NoError(t, err)
	assert.True(t, resp.Cached, "session id must not affect the cache key")
	assert.Equal(t, "Which industry?", resp.Message)
	assert.Equal(t, int32(1), up.calls.Load())

	require.Len(t, up.requests, 1)
	assert.Equal(t, "s1", up.requests[0].SessionID)
	assert.Equal(t, DefaultConfig().DefaultModel, up.requests[0].Model)
	assert.Equal(t, userTurn, up.requests[0].Messages)
}

func TestSendMessageModelIsolation(t *testing.T) {
	up := &chatUpstream{}
	srv := httptest.NewServer(up.handler(http.StatusOK, `{"message":"ok"}`))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	_, err := c.SendMessage(ctx, userTurn, "s", "model-a")
	require.NoError(t, err)
	_, err = c.SendMessage(ctx, userTurn, "s", "model-b")
	require.NoError(t, err)
	assert.Equal(t, int32(2), up.calls.Load())
}

func TestSendMessageUpstreamErrorNotCached(t *testing.T) {
	up := &chatUpstream{}
	srv := httptest.NewServer(up.handler(http.StatusInternalServerError, "boom"))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	_, err := c.SendMessage(ctx, userTurn, "s", "")
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusInternalServerError, ue.StatusCode)
	assert.Equal(t, "boom", ue.Body)
	assert.Equal(t, "API request failed: 500 - boom", ue.Error())

	_, err = c.SendMessage(ctx, userTurn, "s", "")
	require.Error(t, err)
	assert.Equal(t, int32(2), up.calls.Load())
	assert.Equal(t, 0, c.Store().Len())
}

func TestSendMessageInvalidJSONNotCached(t *testing.T) {
	up := &chatUpstream{}
	srv := httptest.NewServer(up.handler(http.StatusOK, "<html>gateway</html>"))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.SendMessage(context.Background(), userTurn, "s", "")

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusOK, ue.StatusCode)
	assert.Error(t, ue.Unwrap())
	assert.Equal(t, 0, c.Store().Len())
}

func TestSendMessageLooseShapesCached(t *testing.T) {
	up := &chatUpstream{}
	srv := httptest.NewServer(up.handler(http.StatusOK, `{
		"message": "Tell me more",
		"tool_metadata": "no search yet",
		"domain_check": "in_scope",
		"missing_info": "industry",
		"intent_analysis": {"intent": "search", "confidence": "high"},
		"extracted_criteria": "none yet",
		"search_results": {"search_performed": true, "count": "3", "results": "pending"}
	}`))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	resp, err := c.SendMessage(ctx, userTurn, "s", "")
	require.NoError(t, err)
	assert.Equal(t, "Tell me more", resp.Message)
	assert.Equal(t, models.ToolMetadataNoSearch, resp.ToolMetadata.Text)
	assert.Equal(t, "in_scope", resp.DomainCheck.Text)
	assert.Equal(t, []string{"industry"}, resp.MissingInfo)
	assert.Equal(t, "high", resp.IntentAnalysis.Confidence)
	assert.Equal(t, "none yet", resp.ExtractedCriteria.Text)
	assert.Equal(t, 3, resp.SearchResults.Count)
	assert.Empty(t, resp.SearchResults.Results)

	resp, err = c.SendMessage(ctx, userTurn, "s", "")
	require.NoError(t, err)
	assert.True(t, resp.Cached)
	assert.Equal(t, int32(1), up.calls.Load())
	assert.Equal(t, 1, c.Store().Len())
}

func TestSendMessageNonObjectJSONCached(t *testing.T) {
	up := &chatUpstream{}
	srv := httptest.NewServer(up.handler(http.StatusOK, `["not", "an", "object"]`))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	resp, err := c.SendMessage(context.Background(), userTurn, "s", "")
	require.NoError(t, err)
	assert.Empty(t, resp.Message)
	assert.JSONEq(t, `["not", "an", "object"]`, string(resp.Raw))
	assert.Equal(t, 1, c.Store().Len())
}

func TestFetchRecheckHitIsCached(t *testing.T) {
	up := &chatUpstream{}
	srv := httptest.NewServer(up.handler(http.StatusOK, `{"message":"fresh"}`))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()
	c.Store().Set(ctx, "k", json.RawMessage(`{"message":"stored"}`))

	fr, err := c.fetch(ctx, "k", models.ChatRequest{Messages: userTurn})
	require.NoError(t, err)
	assert.True(t, fr.cached)
	assert.JSONEq(t, `{"message":"stored"}`, string(fr.raw))
	assert.Equal(t, int32(0), up.calls.Load())

	fr, err = c.fetch(ctx, "other", models.ChatRequest{Messages: userTurn})
	require.NoError(t, err)
	assert.False(t, fr.cached)
	assert.Equal(t, int32(1), up.calls.Load())
}

func TestSendMessageNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	_, err := c.SendMessage(context.Background(), userTurn, "s", "")

	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "/chat", ne.Endpoint)
	assert.True(t, strings.HasPrefix(ne.Error(), "Network error occurred"))
	assert.Equal(t, 0, c.Store().Len())
}

func TestSendMessageTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.cfg.ChatTimeout = 50 * time.Millisecond

	_, err := c.SendMessage(context.Background(), userTurn, "s", "")
	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
}

func TestSendMessageCoalescesConcurrentMisses(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		once.Do(func() { close(entered) })
		<-release
		_, _ = w.Write([]byte(`{"message":"shared"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	const n = 8
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := c.SendMessage(context.Background(), userTurn, "s", "")
			errs[i] = err
			if resp != nil {
				results[i] = resp.Message
			}
		}(i)
	}

	<-entered
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestStreamMessage(t *testing.T) {
	up := &chatUpstream{}
	srv := httptest.NewServer(up.handler(http.StatusOK, `{"message":"Found 3 companies  in Berlin"}`))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	var chunks []string
	resp, err := c.StreamMessage(context.Background(), userTurn, "s", "", func(s string) error {
		chunks = append(chunks, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Found", " 3", " companies", " ", " in", " Berlin"}, chunks)
	assert.Equal(t, resp.Message, strings.Join(chunks, ""))
}

func TestStreamMessageEmpty(t *testing.T) {
	up := &chatUpstream{}
	srv := httptest.NewServer(up.handler(http.StatusOK, `{"message":""}`))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	var chunks []string
	_, err := c.StreamMessage(context.Background(), userTurn, "s", "", func(s string) error {
		chunks = append(chunks, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{NoContentMessage}, chunks)
}

func TestStreamMessageError(t *testing.T) {
	up := &chatUpstream{}
	srv := httptest.NewServer(up.handler(http.StatusBadGateway, "upstream down"))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	var chunks []string
	resp, err := c.StreamMessage(context.Background(), userTurn, "s", "", func(s string) error {
		chunks = append(chunks, s)
		return nil
	})
	require.Error(t, err)
	assert.Nil(t, resp)
	require.Len(t, chunks, 1)
	assert.Equal(t, "❌ Error: API request failed: 502 - upstream down", chunks[0])
}

func TestStreamMessageEmitFailureStops(t *testing.T) {
	up := &chatUpstream{}
	srv := httptest.NewServer(up.handler(http.StatusOK, `{"message":"one two three"}`))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	stop := errors.New("closed")

	count := 0
	_, err := c.StreamMessage(context.Background(), userTurn, "s", "", func(string) error {
		count++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, count)
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get_models", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"models":{"llama-3":"Llama 3","mixtral":"Mixtral"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	got, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"llama-3": "Llama 3", "mixtral": "Mixtral"}, got)
}

func TestListModelsFallback(t *testing.T) {
	def := DefaultConfig().DefaultModel
	fallback := map[string]string{def: def}

	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		got, err := newTestClient(t, srv.URL).ListModels(context.Background())
		var ue *UpstreamError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, http.StatusServiceUnavailable, ue.StatusCode)
		assert.Equal(t, fallback, got)
	})

	t.Run("network", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		got, err := newTestClient(t, url).ListModels(context.Background())
		var ne *NetworkError
		require.ErrorAs(t, err, &ne)
		assert.Equal(t, fallback, got)
	})

	t.Run("empty", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"models":{}}`))
		}))
		defer srv.Close()

		got, err := newTestClient(t, srv.URL).ListModels(context.Background())
		require.NoError(t, err)
		assert.Equal(t, fallback, got)
	})
}

func TestNewPanicsWithoutStore(t *testing.T) {
	assert.Panics(t, func() { New(DefaultConfig(), nil) })
}
