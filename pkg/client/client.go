// Package client talks to the lead-generation chat API. Chat requests are
// answered from the response cache when possible; concurrent misses for the
// same conversation share one upstream request.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"resty.dev/v3"

	"github.com/pario-ai/leadchat/pkg/cache"
	"github.com/pario-ai/leadchat/pkg/fingerprint"
	"github.com/pario-ai/leadchat/pkg/logging"
	"github.com/pario-ai/leadchat/pkg/models"
)

const (
	chatPath   = "/chat"
	modelsPath = "/get_models"

	// NoContentMessage is streamed when a reply has an empty message.
	NoContentMessage = "No message content received."
)

// Config holds chat API settings.
type Config struct {
	BaseURL       string
	DefaultModel  string
	ChatTimeout   time.Duration
	ModelsTimeout time.Duration
	StreamPacing  time.Duration
}

// DefaultConfig returns the stock timeouts against a local API.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://localhost:8000",
		DefaultModel:  "deepseek-r1-distill-llama-70b",
		ChatTimeout:   30 * time.Second,
		ModelsTimeout: 10 * time.Second,
		StreamPacing:  50 * time.Millisecond,
	}
}

// Client sends chat turns and lists models.
type Client struct {
	cfg   Config
	http  *resty.Client
	store *cache.Store
	group singleflight.Group
	log   zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a Client. store must not be nil.
func New(cfg Config, store *cache.Store, opts ...Option) *Client {
	if store == nil {
		panic("client: cache store cannot be nil")
	}
	c := &Client{
		cfg:   cfg,
		store: store,
		log:   logging.NewLogger("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json")
	return c
}

// Store returns the cache the client reads and writes.
func (c *Client) Store() *cache.Store { return c.store }

// DefaultModel returns the model used when callers pass none.
func (c *Client) DefaultModel() string { return c.cfg.DefaultModel }

// SendMessage returns the reply for messages under model, from cache when a
// valid entry exists. The session id is forwarded but is not part of the
// cache key. Failures are *NetworkError or *UpstreamError and are never
// cached.
func (c *Client) SendMessage(ctx context.Context, messages []models.ChatMessage, sessionID, model string) (*models.ChatResponse, error) {
	if model == "" {
		model = c.cfg.DefaultModel
	}
	key := fingerprint.Key(messages, model)

	if raw, outcome := c.store.Get(ctx, key); outcome == cache.Hit {
		return decodeChat(raw, true)
	}

	req := models.ChatRequest{Messages: messages, SessionID: sessionID, Model: model}
	ch := c.group.DoChan(key, func() (any, error) {
		// Detached from any one caller; bounded by ChatTimeout.
		return c.fetch(context.WithoutCancel(ctx), key, req)
	})

	select {
	case <-ctx.Done():
		return nil, &NetworkError{Endpoint: chatPath, Err: ctx.Err()}
	case res := <-ch:
		if res.Shared {
			Coalesced.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		fr := res.Val.(flightResult)
		return decodeChat(fr.raw, fr.cached)
	}
}

// flightResult is what a coalesced miss hands its callers. cached is set
// when another flight filled the entry first and no request was sent.
type flightResult struct {
	raw    json.RawMessage
	cached bool
}

// fetch runs one flight: it re-checks the cache, since an earlier flight
// may have finished after the caller's lookup, then posts and stores.
func (c *Client) fetch(ctx context.Context, key string, req models.ChatRequest) (flightResult, error) {
	if raw, outcome := c.store.Get(ctx, key); outcome == cache.Hit {
		return flightResult{raw: raw, cached: true}, nil
	}
	raw, err := c.postChat(ctx, req)
	if err != nil {
		return flightResult{}, err
	}
	c.store.Set(ctx, key, raw)
	return flightResult{raw: raw}, nil
}

func (c *Client) postChat(ctx context.Context, req models.ChatRequest) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ChatTimeout)
	defer cancel()

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post(chatPath)
	UpstreamDuration.WithLabelValues(chatPath).Observe(time.Since(start).Seconds())
	if err != nil {
		UpstreamRequests.WithLabelValues(chatPath, "network").Inc()
		c.log.Error().Err(err).Str("endpoint", chatPath).Msg("chat request failed")
		return nil, &NetworkError{Endpoint: chatPath, Err: err}
	}

	status := resp.StatusCode()
	UpstreamRequests.WithLabelValues(chatPath, statusClass(status)).Inc()
	c.log.Info().Int("status_code", status).Str("model", req.Model).Msg("chat response")

	body := resp.String()
	if !resp.IsSuccess() {
		return nil, &UpstreamError{Endpoint: chatPath, StatusCode: status, Body: body}
	}

	raw := json.RawMessage(body)
	if _, err := decodeChat(raw, false); err != nil {
		return nil, &UpstreamError{Endpoint: chatPath, StatusCode: status, Body: body, Err: err}
	}
	return raw, nil
}

func decodeChat(raw json.RawMessage, cached bool) (*models.ChatResponse, error) {
	var out models.ChatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	out.Raw = raw
	out.Cached = cached
	return &out, nil
}

// StreamMessage sends messages and replays the reply's message text word by
// word through emit. Errors are reported to emit as a single chunk and also
// returned. Cache hits are paced like fresh replies.
func (c *Client) StreamMessage(ctx context.Context, messages []models.ChatMessage, sessionID, model string, emit func(string) error) (*models.ChatResponse, error) {
	resp, err := c.SendMessage(ctx, messages, sessionID, model)
	if err != nil {
		if emitErr := emit("❌ Error: " + err.Error()); emitErr != nil {
			return nil, errors.Join(err, emitErr)
		}
		return nil, err
	}

	if resp.Message == "" {
		return resp, emit(NoContentMessage)
	}

	ws := WordStream{Text: resp.Message, Pacing: c.cfg.StreamPacing}
	return resp, ws.Emit(ctx, emit)
}

// ListModels fetches the model id -> display name mapping. On any failure
// it returns a single-entry map for the default model along with the error,
// so callers can continue degraded.
func (c *Client) ListModels(ctx context.Context) (map[string]string, error) {
	fallback := map[string]string{c.cfg.DefaultModel: c.cfg.DefaultModel}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ModelsTimeout)
	defer cancel()

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		Get(modelsPath)
	UpstreamDuration.WithLabelValues(modelsPath).Observe(time.Since(start).Seconds())
	if err != nil {
		UpstreamRequests.WithLabelValues(modelsPath, "network").Inc()
		c.log.Warn().Err(err).Msg("model list unavailable, using default")
		return fallback, &NetworkError{Endpoint: modelsPath, Err: err}
	}

	status := resp.StatusCode()
	UpstreamRequests.WithLabelValues(modelsPath, statusClass(status)).Inc()
	body := resp.String()
	if !resp.IsSuccess() {
		c.log.Warn().Int("status_code", status).Msg("model list unavailable, using default")
		return fallback, &UpstreamError{Endpoint: modelsPath, StatusCode: status, Body: body}
	}

	var mr models.ModelsResponse
	if err := json.Unmarshal([]byte(body), &mr); err != nil {
		c.log.Warn().Err(err).Msg("model list undecodable, using default")
		return fallback, &UpstreamError{Endpoint: modelsPath, StatusCode: status, Body: body, Err: err}
	}
	if len(mr.Models) == 0 {
		return fallback, nil
	}
	return mr.Models, nil
}
