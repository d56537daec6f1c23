// Package conversation drives one chat session: history, model selection,
// operator commands, and rendering of replies and lead results.
package conversation

import (
	"maps"
	"slices"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/pario-ai/leadchat/pkg/leads"
	"github.com/pario-ai/leadchat/pkg/models"
)

// Session is the per-conversation state. It is not safe for concurrent use.
type Session struct {
	ID      string
	History []models.ChatMessage
	Model   string
	// Models maps model id to display name.
	Models map[string]string

	Results      []leads.Result
	ResultsTotal int
}

// NewSession starts an empty session on model.
func NewSession(model string) *Session {
	return &Session{
		ID:     uuid.NewString(),
		Model:  model,
		Models: map[string]string{model: model},
	}
}

// Turn returns the history plus a new user message, without recording it.
func (s *Session) Turn(input string) []models.ChatMessage {
	msgs := make([]models.ChatMessage, 0, len(s.History)+1)
	msgs = append(msgs, s.History...)
	return append(msgs, models.ChatMessage{Role: openai.ChatMessageRoleUser, Content: input})
}

// Record appends a completed exchange to the history.
func (s *Session) Record(input, reply string) {
	s.History = append(s.History,
		models.ChatMessage{Role: openai.ChatMessageRoleUser, Content: input},
		models.ChatMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
	)
}

// ModelName returns the display name of id, or id itself.
func (s *Session) ModelName(id string) string {
	if name, ok := s.Models[id]; ok && name != "" {
		return name
	}
	return id
}

// ModelIDs returns the known model ids in sorted order.
func (s *Session) ModelIDs() []string {
	return slices.Sorted(maps.Keys(s.Models))
}

// SelectModel switches to id if it is a known model.
func (s *Session) SelectModel(id string) bool {
	if _, ok := s.Models[id]; !ok {
		return false
	}
	s.Model = id
	return true
}
