// Package mcp serves leadchat operations as Model Context Protocol tools
// over stdio (newline-delimited JSON-RPC 2.0).
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/pario-ai/leadchat/pkg/cache"
	"github.com/pario-ai/leadchat/pkg/logging"
	"github.com/pario-ai/leadchat/pkg/models"
)

// Chat is the subset of the chat client the tools use.
type Chat interface {
	SendMessage(ctx context.Context, messages []models.ChatMessage, sessionID, model string) (*models.ChatResponse, error)
	ListModels(ctx context.Context) (map[string]string, error)
	Store() *cache.Store
}

// Server answers MCP requests.
type Server struct {
	chat    Chat
	version string
	log     zerolog.Logger
}

// New creates a Server.
func New(chat Chat, version string) *Server {
	return &Server{
		chat:    chat,
		version: version,
		log:     logging.NewLogger("mcp"),
	}
}

// Run handles requests from r until EOF or ctx is cancelled, writing one
// response line per request to w.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, Response{
				JSONRPC: jsonrpcVersion,
				Error:   &RPCError{Code: CodeParseError, Message: "parse error"},
			})
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, *resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	resp := &Response{JSONRPC: jsonrpcVersion, ID: req.ID}

	switch req.Method {
	case "initialize":
		resp.Result = InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "leadchat", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		}
	case "notifications/initialized":
		return nil
	case "tools/list":
		resp.Result = ToolsListResult{Tools: toolDefinitions()}
	case "tools/call":
		var params ToolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp.Error = &RPCError{Code: CodeInvalidParams, Message: "invalid params"}
			return resp
		}
		resp.Result = s.callTool(ctx, params)
	default:
		resp.Error = &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)}
	}
	return resp
}

func (s *Server) callTool(ctx context.Context, params ToolCallParams) ToolCallResult {
	t, ok := findTool(params.Name)
	if !ok {
		return errorResult(fmt.Sprintf("unknown tool: %s", params.Name))
	}
	s.log.Debug().Str("tool", params.Name).Msg("tool call")
	return t.handle(ctx, s, params.Arguments)
}

func (s *Server) write(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal response")
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.log.Error().Err(err).Msg("write response")
	}
}
