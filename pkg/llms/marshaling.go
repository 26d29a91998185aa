package llms

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// JSON persistence model for Message. Parts are interfaces, so the
// discriminated form below is used for stores and transcripts.

// contentPartJSON is the serialized form of a single part.
type contentPartJSON struct {
	Type         string            `json:"type"`
	Text         string            `json:"text,omitempty"`
	ToolCall     *ToolCall         `json:"tool_call,omitempty"`
	ToolResponse *ToolCallResponse `json:"tool_response,omitempty"`
}

// messageJSON is the serialized form of a Message.
type messageJSON struct {
	Role  Role              `json:"role"`
	Text  string            `json:"text,omitempty"`
	Parts []contentPartJSON `json:"parts,omitempty"`
}

// MarshalJSON implements json.Marshaler for Message.
func (m Message) MarshalJSON() ([]byte, error) {
	// Single text part can be simplified.
	if len(m.Parts) == 1 {
		if tp, ok := m.Parts[0].(TextContent); ok {
			return json.Marshal(messageJSON{Role: m.Role, Text: tp.Text})
		}
	}

	out := messageJSON{Role: m.Role}
	for _, part := range m.Parts {
		switch p := part.(type) {
		case TextContent:
			out.Parts = append(out.Parts, contentPartJSON{Type: "text", Text: p.Text})
		case ToolCall:
			tc := p
			out.Parts = append(out.Parts, contentPartJSON{Type: "tool_call", ToolCall: &tc})
		case ToolCallResponse:
			tr := p
			out.Parts = append(out.Parts, contentPartJSON{Type: "tool_response", ToolResponse: &tr})
		default:
			return nil, errors.Newf("unsupported content part type: %T", part)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler for Message.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WithStack(err)
	}
	m.Role = raw.Role
	m.Parts = nil
	if raw.Text != "" && len(raw.Parts) == 0 {
		m.Parts = []ContentPart{TextPart(raw.Text)}
		return nil
	}
	for _, part := range raw.Parts {
		switch part.Type {
		case "text":
			m.Parts = append(m.Parts, TextPart(part.Text))
		case "tool_call":
			if part.ToolCall == nil {
				return errors.New("tool_call part without payload")
			}
			m.Parts = append(m.Parts, *part.ToolCall)
		case "tool_response":
			if part.ToolResponse == nil {
				return errors.New("tool_response part without payload")
			}
			m.Parts = append(m.Parts, *part.ToolResponse)
		default:
			return errors.Newf("unsupported content part type: %q", part.Type)
		}
	}
	return nil
}
