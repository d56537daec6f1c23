package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// ChatMessage represents a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body posted to the chat endpoint.
type ChatRequest struct {
	Messages  []ChatMessage `json:"messages"`
	SessionID string        `json:"session_id"`
	Model     string        `json:"model"`
}

// ToolMetadataNoSearch is the tool_metadata value sent before any search ran.
const ToolMetadataNoSearch = "no search yet"

// ChatResponse is the decoded reply from the chat endpoint. Raw keeps the
// payload exactly as received so cached replies round-trip unchanged.
//
// The optional fields arrive in more than one shape (objects, strings,
// lists, numbers). Decoding never fails on shape: a field that is empty in
// the JSON sense is left unset and a non-object form is kept as Text.
type ChatResponse struct {
	Message           string
	ReadyForSearch    bool
	MissingInfo       []string
	SearchResults     *SearchResults
	SessionSummary    string
	DomainCheck       *DomainCheck
	IntentAnalysis    *IntentAnalysis
	ExtractedCriteria *Criteria
	ToolMetadata      *ToolMetadata

	Raw    json.RawMessage `json:"-"`
	Cached bool            `json:"-"`
}

// SearchResults holds lead records returned by a search turn.
type SearchResults struct {
	SearchPerformed bool             `json:"search_performed"`
	Count           int              `json:"count"`
	Results         []map[string]any `json:"results"`
}

// DomainCheck reports whether the request was in scope.
type DomainCheck struct {
	Status string
	Text   string
}

// IntentAnalysis is the upstream's classification of the user turn.
// Confidence is kept as sent ("0.92", "high").
type IntentAnalysis struct {
	Intent     string
	Confidence string
	Text       string
}

// Criteria are the search criteria the upstream extracted so far.
type Criteria struct {
	Fields map[string]any
	Text   string
}

// ToolMetadata describes the search tool invocation behind a reply.
// Filters is whatever JSON value was sent, nil when absent.
type ToolMetadata struct {
	Filters any
	Service string
	Text    string
}

// UnmarshalJSON decodes a chat reply leniently. A reply that is valid JSON
// but not an object decodes to the zero response.
func (r *ChatResponse) UnmarshalJSON(data []byte) error {
	*r = ChatResponse{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		var ute *json.UnmarshalTypeError
		if errors.As(err, &ute) {
			return nil
		}
		return err
	}

	if raw := fields["message"]; truthy(raw) {
		r.Message = text(raw)
	}
	r.ReadyForSearch = truthy(fields["ready_for_search"])
	if raw := fields["missing_info"]; truthy(raw) {
		r.MissingInfo = textList(raw)
	}
	if raw := fields["search_results"]; truthy(raw) {
		r.SearchResults = decodeSearchResults(raw)
	}
	if raw := fields["session_summary"]; truthy(raw) {
		r.SessionSummary = text(raw)
	}

	if raw := fields["domain_check"]; truthy(raw) {
		dc := &DomainCheck{}
		if obj, ok := object(raw); ok {
			dc.Status = text(obj["status"])
		} else {
			dc.Text = text(raw)
		}
		r.DomainCheck = dc
	}

	if raw := fields["intent_analysis"]; truthy(raw) {
		ia := &IntentAnalysis{}
		if obj, ok := object(raw); ok {
			ia.Intent = text(obj["intent"])
			if truthy(obj["confidence"]) {
				ia.Confidence = text(obj["confidence"])
			}
		} else {
			ia.Text = text(raw)
		}
		r.IntentAnalysis = ia
	}

	if raw := fields["extracted_criteria"]; truthy(raw) {
		c := &Criteria{}
		if err := json.Unmarshal(raw, &c.Fields); err != nil {
			c.Fields, c.Text = nil, text(raw)
		}
		r.ExtractedCriteria = c
	}

	if raw := fields["tool_metadata"]; truthy(raw) {
		tm := &ToolMetadata{}
		if obj, ok := object(raw); ok {
			if f := obj["filters"]; len(f) > 0 {
				_ = json.Unmarshal(f, &tm.Filters)
			}
			if truthy(obj["service"]) {
				tm.Service = text(obj["service"])
			}
		} else {
			tm.Text = text(raw)
		}
		r.ToolMetadata = tm
	}
	return nil
}

// decodeSearchResults accepts a count sent as a number or a numeric string
// and drops results that are not a list of objects.
func decodeSearchResults(raw json.RawMessage) *SearchResults {
	obj, ok := object(raw)
	if !ok {
		return nil
	}
	sr := &SearchResults{SearchPerformed: truthy(obj["search_performed"])}
	if c := obj["count"]; len(c) > 0 {
		if n, err := strconv.ParseFloat(text(c), 64); err == nil {
			sr.Count = int(n)
		}
	}
	if res := obj["results"]; len(res) > 0 {
		_ = json.Unmarshal(res, &sr.Results)
	}
	return sr
}

func object(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// truthy reports whether raw is present and not null, false, zero, an
// empty string, an empty list or an empty object.
func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	switch raw[0] {
	case 'n', 'f':
		return false
	case 't':
		return true
	case '"':
		return text(raw) != ""
	case '[':
		var v []json.RawMessage
		return json.Unmarshal(raw, &v) == nil && len(v) > 0
	case '{':
		var v map[string]json.RawMessage
		return json.Unmarshal(raw, &v) == nil && len(v) > 0
	}
	n, err := strconv.ParseFloat(string(raw), 64)
	return err != nil || n != 0
}

// text renders a JSON value for display: strings unquoted, anything else as
// compact JSON.
func text(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var b bytes.Buffer
	if err := json.Compact(&b, raw); err != nil {
		return string(raw)
	}
	return b.String()
}

// textList turns a list into its rendered items; any other value becomes a
// single item.
func textList(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{text(raw)}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, text(it))
	}
	return out
}

// ModelsResponse is the body returned by the model listing endpoint.
type ModelsResponse struct {
	Models map[string]string `json:"models"`
}
