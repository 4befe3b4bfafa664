package session

import (
	"encoding/json"
	"fmt"
)

// Conversation roles. Assistant messages may carry provider-specific fields
// beyond role and content; those are kept in Message.Extra and replayed
// unchanged on the next request.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single conversation turn.
type Message struct {
	Role    string
	Content string

	// Extra holds any additional fields returned by the provider, keyed by
	// JSON field name. Nil for messages created locally.
	Extra map[string]json.RawMessage
}

// NewUserMessage builds a user-role message with the given text.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// MarshalJSON encodes the message as a flat JSON object: role, content and
// every extra field at the top level.
func (m Message) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(m.Extra)+2)
	for k, v := range m.Extra {
		fields[k] = v
	}

	role, err := json.Marshal(m.Role)
	if err != nil {
		return nil, fmt.Errorf("marshal role: %w", err)
	}
	fields["role"] = role

	content, err := json.Marshal(m.Content)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	fields["content"] = content

	return json.Marshal(fields)
}

// UnmarshalJSON decodes a flat JSON object, splitting off role and content
// and keeping every remaining field verbatim in Extra.
func (m *Message) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	if raw, ok := fields["role"]; ok {
		if err := json.Unmarshal(raw, &m.Role); err != nil {
			return fmt.Errorf("decode role: %w", err)
		}
		delete(fields, "role")
	}
	if raw, ok := fields["content"]; ok {
		if err := json.Unmarshal(raw, &m.Content); err != nil {
			return fmt.Errorf("decode content: %w", err)
		}
		delete(fields, "content")
	}

	if len(fields) > 0 {
		m.Extra = fields
	} else {
		m.Extra = nil
	}
	return nil
}
