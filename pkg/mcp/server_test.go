package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/pario-ai/leadchat/pkg/cache"
	"github.com/pario-ai/leadchat/pkg/models"
)

// fakeChat implements Chat for testing.
type fakeChat struct {
	store  *cache.Store
	reply  *models.ChatResponse
	err    error
	models map[string]string

	gotMessages []models.ChatMessage
	gotModel    string
}

func (f *fakeChat) SendMessage(_ context.Context, msgs []models.ChatMessage, _, model string) (*models.ChatResponse, error) {
	f.gotMessages = msgs
	f.gotModel = model
	return f.reply, f.err
}

func (f *fakeChat) ListModels(context.Context) (map[string]string, error) {
	return f.models, nil
}

func (f *fakeChat) Store() *cache.Store { return f.store }

func newFakeChat() *fakeChat {
	return &fakeChat{
		store:  cache.New(context.Background(), cache.NewMemoryBackend(), cache.WithLogger(zerolog.Nop())),
		reply:  &models.ChatResponse{Message: "Which industry?"},
		models: map[string]string{"m1": "Model One", "m2": "Model Two"},
	}
}

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name, args string) ToolCallResult {
	t.Helper()
	params, _ := json.Marshal(ToolCallParams{Name: name, Arguments: json.RawMessage(args)})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`7`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	return result
}

func TestInitialize(t *testing.T) {
	srv := New(newFakeChat(), "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	json.Unmarshal(data, &result)

	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocol version = %s, want 2024-11-05", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "leadchat" || result.ServerInfo.Version != "test" {
		t.Errorf("unexpected server info: %+v", result.ServerInfo)
	}
}

func TestToolsList(t *testing.T) {
	srv := New(newFakeChat(), "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	json.Unmarshal(data, &result)

	names := make(map[string]bool)
	for _, tool := range result.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"leadchat_ask", "leadchat_models", "leadchat_cache_stats", "leadchat_cache_prune", "leadchat_cache_clear"} {
		if !names[want] {
			t.Errorf("missing tool: %s", want)
		}
	}
}

func TestNotificationHasNoResponse(t *testing.T) {
	srv := New(newFakeChat(), "test")
	var out bytes.Buffer
	in := strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n")
	if err := srv.Run(context.Background(), in, &out); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no output, got %s", out.String())
	}
}

func TestParseAndMethodErrors(t *testing.T) {
	srv := New(newFakeChat(), "test")

	var out bytes.Buffer
	if err := srv.Run(context.Background(), strings.NewReader("{bad\n"), &out); err != nil {
		t.Fatal(err)
	}
	var resp Response
	json.Unmarshal(out.Bytes(), &resp)
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Errorf("expected parse error, got %+v", resp)
	}

	resp = sendAndReceive(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`3`), Method: "resources/list"})
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Errorf("expected method not found, got %+v", resp)
	}
}

func TestToolCallAsk(t *testing.T) {
	chat := newFakeChat()
	chat.reply = &models.ChatResponse{
		Message:        "Found some",
		ReadyForSearch: true,
		SearchResults: &models.SearchResults{
			SearchPerformed: true,
			Count:           1,
			Results:         []map[string]any{{"company_name": "Acme"}},
		},
		Cached: true,
	}
	srv := New(chat, "test")

	result := callTool(t, srv, "leadchat_ask", `{"message":"fintech","model":"m2","history":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]}`)
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content[0].Text)
	}
	text := result.Content[0].Text
	for _, want := range []string{"Found some", "Ready for search", "| Acme |", "served from cache"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got: %s", want, text)
		}
	}
	if len(chat.gotMessages) != 3 || chat.gotMessages[2].Content != "fintech" || chat.gotMessages[2].Role != "user" {
		t.Errorf("unexpected messages: %+v", chat.gotMessages)
	}
	if chat.gotModel != "m2" {
		t.Errorf("model = %s, want m2", chat.gotModel)
	}
}

func TestToolCallAskOpenAIHistory(t *testing.T) {
	chat := newFakeChat()
	srv := New(chat, "test")

	result := callTool(t, srv, "leadchat_ask", `{"message":"and in Porto?","history":[
		{"role":"user","content":[{"type":"text","text":"fintech"},{"type":"image_url","image_url":{"url":"https://x/y.png"}},{"type":"text","text":"in Lisbon"}]},
		{"role":"assistant","content":"Found 3"},
		{"role":"tool","content":"{}","tool_call_id":"c1"}
	]}`)
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content[0].Text)
	}

	want := []models.ChatMessage{
		{Role: "user", Content: "fintech\nin Lisbon"},
		{Role: "assistant", Content: "Found 3"},
		{Role: "user", Content: "and in Porto?"},
	}
	if len(chat.gotMessages) != len(want) {
		t.Fatalf("got %d messages, want %d: %+v", len(chat.gotMessages), len(want), chat.gotMessages)
	}
	for i := range want {
		if chat.gotMessages[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, chat.gotMessages[i], want[i])
		}
	}

	r := callTool(t, srv, "leadchat_ask", `{"message":"x","history":[{"role":"narrator","content":"hi"}]}`)
	if !r.IsError || !strings.Contains(r.Content[0].Text, "unsupported role") {
		t.Errorf("expected role error, got %+v", r)
	}
}

func TestToolCallAskErrors(t *testing.T) {
	chat := newFakeChat()
	srv := New(chat, "test")

	if r := callTool(t, srv, "leadchat_ask", `{}`); !r.IsError {
		t.Error("expected error for missing message")
	}

	chat.err = errors.New("API request failed: 500 - boom")
	r := callTool(t, srv, "leadchat_ask", `{"message":"x"}`)
	if !r.IsError || !strings.Contains(r.Content[0].Text, "500") {
		t.Errorf("expected upstream error, got %+v", r)
	}
}

func TestToolCallModels(t *testing.T) {
	srv := New(newFakeChat(), "test")
	text := callTool(t, srv, "leadchat_models", "").Content[0].Text
	if !strings.Contains(text, "m1\tModel One\nm2\tModel Two") {
		t.Errorf("unexpected models output: %s", text)
	}
}

func TestToolCallCache(t *testing.T) {
	chat := newFakeChat()
	chat.store.Set(context.Background(), "k", json.RawMessage(`{"message":"x"}`))
	srv := New(chat, "test")

	text := callTool(t, srv, "leadchat_cache_stats", "").Content[0].Text
	if !strings.Contains(text, "Total:    1") || !strings.Contains(text, "Location: memory") {
		t.Errorf("unexpected stats: %s", text)
	}

	text = callTool(t, srv, "leadchat_cache_prune", "").Content[0].Text
	if text != "Removed 0 expired entries." {
		t.Errorf("unexpected prune output: %s", text)
	}

	text = callTool(t, srv, "leadchat_cache_clear", "").Content[0].Text
	if text != "Removed 1 cached entries." {
		t.Errorf("unexpected clear output: %s", text)
	}
	if chat.store.Len() != 0 {
		t.Error("expected empty cache")
	}
}

func TestToolCallUnknown(t *testing.T) {
	srv := New(newFakeChat(), "test")
	r := callTool(t, srv, "leadchat_search", "")
	if !r.IsError {
		t.Error("expected error for unknown tool")
	}
}
