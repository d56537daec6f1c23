package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pario-ai/leadchat/pkg/models"
)

func TestKeyDeterministic(t *testing.T) {
	msgs := []models.ChatMessage{
		{Role: "user", Content: "find SaaS companies in Berlin"},
		{Role: "assistant", Content: "How many employees?"},
	}
	a := Key(msgs, "m1")
	b := Key(append([]models.ChatMessage(nil), msgs...), "m1")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestKeySensitivity(t *testing.T) {
	base := []models.ChatMessage{
		{Role: "user", Content: "a"},
		{Role: "assistant", Content: "b"},
	}
	k := Key(base, "m1")

	tests := []struct {
		name  string
		msgs  []models.ChatMessage
		model string
	}{
		{"model", base, "m2"},
		{"content", []models.ChatMessage{{Role: "user", Content: "a!"}, {Role: "assistant", Content: "b"}}, "m1"},
		{"role", []models.ChatMessage{{Role: "system", Content: "a"}, {Role: "assistant", Content: "b"}}, "m1"},
		{"order", []models.ChatMessage{{Role: "assistant", Content: "b"}, {Role: "user", Content: "a"}}, "m1"},
		{"length", base[:1], "m1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, k, Key(tt.msgs, tt.model))
		})
	}
}

func TestKeyEmptyMessages(t *testing.T) {
	assert.Equal(t, Key(nil, "m"), Key([]models.ChatMessage{}, "m"))
}

func TestKeyKnownValue(t *testing.T) {
	// md5 of {"messages":[{"content":"hi","role":"user"}],"model":"m"}
	got := Key([]models.ChatMessage{{Role: "user", Content: "hi"}}, "m")
	assert.Equal(t, "098f0b713c4e35fc4ab89d0fbc02e7c5", got)
}

func TestShort(t *testing.T) {
	assert.Equal(t, "0123abcd", Short("0123abcdef"))
	assert.Equal(t, "abc", Short("abc"))
}
