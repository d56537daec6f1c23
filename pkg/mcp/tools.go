package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	openai "github.com/sashabaranov/go-openai"

	"github.com/pario-ai/leadchat/pkg/conversation"
	"github.com/pario-ai/leadchat/pkg/leads"
	"github.com/pario-ai/leadchat/pkg/models"
)

type askArgs struct {
	Message   string                         `json:"message"`
	History   []openai.ChatCompletionMessage `json:"history,omitempty"`
	Model     string                         `json:"model,omitempty"`
	SessionID string                         `json:"session_id,omitempty"`
}

type tool struct {
	def    ToolDefinition
	handle func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult
}

var noArgs = map[string]any{"type": "object", "properties": map[string]any{}}

var tools = []tool{
	{
		def: ToolDefinition{
			Name:        "leadchat_ask",
			Description: "Send a message to the lead generation assistant and return its reply, extracted search info and any lead results as a table.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"message"},
				"properties": map[string]any{
					"message":    map[string]any{"type": "string", "description": "The user message"},
					"history":    map[string]any{"type": "array", "description": "Earlier turns as OpenAI chat messages; content may be a string or a list of text parts (optional)"},
					"model":      map[string]any{"type": "string", "description": "Model id (optional)"},
					"session_id": map[string]any{"type": "string", "description": "Session id forwarded to the API (optional)"},
				},
			},
		},
		handle: handleAsk,
	},
	{
		def:    ToolDefinition{Name: "leadchat_models", Description: "List the models offered by the chat API.", InputSchema: noArgs},
		handle: handleModels,
	},
	{
		def:    ToolDefinition{Name: "leadchat_cache_stats", Description: "Show response cache statistics.", InputSchema: noArgs},
		handle: handleCacheStats,
	},
	{
		def:    ToolDefinition{Name: "leadchat_cache_prune", Description: "Remove expired entries from the response cache.", InputSchema: noArgs},
		handle: handleCachePrune,
	},
	{
		def:    ToolDefinition{Name: "leadchat_cache_clear", Description: "Remove every entry from the response cache.", InputSchema: noArgs},
		handle: handleCacheClear,
	},
}

func toolDefinitions() []ToolDefinition {
	defs := make([]ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = t.def
	}
	return defs
}

func findTool(name string) (tool, bool) {
	for _, t := range tools {
		if t.def.Name == name {
			return t, true
		}
	}
	return tool{}, false
}

func handleAsk(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args askArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return errorResult("invalid arguments: " + err.Error())
		}
	}
	if strings.TrimSpace(args.Message) == "" {
		return errorResult("message is required")
	}

	msgs, err := historyMessages(args.History)
	if err != nil {
		return errorResult(err.Error())
	}
	msgs = append(msgs, models.ChatMessage{Role: openai.ChatMessageRoleUser, Content: args.Message})
	resp, err := s.chat.SendMessage(ctx, msgs, args.SessionID, args.Model)
	if err != nil {
		return errorResult(err.Error())
	}

	var b strings.Builder
	b.WriteString(resp.Message)
	if info := conversation.AdditionalInfo(resp); len(info) > 0 {
		b.WriteString("\n\n---\n\n" + strings.Join(info, "\n\n"))
	}
	if sr := resp.SearchResults; sr != nil && sr.SearchPerformed && len(sr.Results) > 0 {
		b.WriteString("\n\n")
		_ = leads.RenderTable(&b, sr.Results, sr.Count)
	}
	if resp.Cached {
		b.WriteString("\n\n(served from cache)")
	}
	return textResult(b.String())
}

// historyMessages flattens OpenAI-style turns into the chat API's
// {role, content} form. Tool and function turns carry no conversation text
// and are dropped; image parts are ignored.
func historyMessages(history []openai.ChatCompletionMessage) ([]models.ChatMessage, error) {
	out := make([]models.ChatMessage, 0, len(history)+1)
	for i, m := range history {
		switch m.Role {
		case openai.ChatMessageRoleUser, openai.ChatMessageRoleAssistant, openai.ChatMessageRoleSystem, openai.ChatMessageRoleDeveloper:
		case openai.ChatMessageRoleTool, openai.ChatMessageRoleFunction:
			continue
		default:
			return nil, fmt.Errorf("history[%d]: unsupported role %q", i, m.Role)
		}

		content := m.Content
		if len(m.MultiContent) > 0 {
			var parts []string
			for _, p := range m.MultiContent {
				if p.Type == openai.ChatMessagePartTypeText {
					parts = append(parts, p.Text)
				}
			}
			content = strings.Join(parts, "\n")
		}
		out = append(out, models.ChatMessage{Role: m.Role, Content: content})
	}
	return out, nil
}

func handleModels(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	available, err := s.chat.ListModels(ctx)

	var b strings.Builder
	if err != nil {
		fmt.Fprintf(&b, "Warning: %v\n\n", err)
	}
	for _, id := range slices.Sorted(maps.Keys(available)) {
		fmt.Fprintf(&b, "%s\t%s\n", id, available[id])
	}
	return textResult(b.String())
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	st := s.chat.Store().Stats(ctx)
	return textResult(fmt.Sprintf(
		"Total:    %d\nActive:   %d\nExpired:  %d\nSize:     %s\nDuration: %s\nLocation: %s\n",
		st.Total, st.Active, st.Expired, humanize.Bytes(uint64(st.ByteSize)), st.Duration, st.Location))
}

func handleCachePrune(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	n := s.chat.Store().Prune(ctx)
	return textResult(fmt.Sprintf("Removed %d expired entries.", n))
}

func handleCacheClear(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	n, err := s.chat.Store().Clear(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("cleared %d entries from memory, snapshot removal failed: %v", n, err))
	}
	return textResult(fmt.Sprintf("Removed %d cached entries.", n))
}
