// Package fingerprint derives stable cache keys for chat requests.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"github.com/pario-ai/leadchat/pkg/models"
)

// ShortLen is the number of key characters shown in log lines.
const ShortLen = 8

// Key returns the 32-char hex digest of the canonical JSON form of
// messages and model. Object keys are sorted at every level and message
// order is preserved. Session ids are deliberately not part of the key.
func Key(messages []models.ChatMessage, model string) string {
	msgs := make([]map[string]string, len(messages))
	for i, m := range messages {
		msgs[i] = map[string]string{"role": m.Role, "content": m.Content}
	}
	// encoding/json writes map keys in sorted order.
	data, _ := json.Marshal(map[string]any{
		"messages": msgs,
		"model":    model,
	})
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Short truncates a key for logging.
func Short(key string) string {
	if len(key) <= ShortLen {
		return key
	}
	return key[:ShortLen]
}
