package llmutils

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/convoke-ai/convoke/pkg/llms"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"
)

// ToJSON returns compact JSON for the value, or an empty string on failure.
func ToJSON(v any) string {
	bs, _ := json.Marshal(v)
	return string(bs)
}

// ToJSONIndent returns indented JSON for the value.
func ToJSONIndent(v any) string {
	bs, _ := json.MarshalIndent(v, "", "  ")
	return string(bs)
}

// ToYAML returns YAML for the value, used by CLI info dumps.
func ToYAML(v any) string {
	bs, _ := yaml.Marshal(v)
	return string(bs)
}

// BackticksJSON wraps JSON in a fenced code block.
func BackticksJSON(j string) string {
	return "```json\n" + j + "\n```"
}

var redactedFields = []string{
	"token", "api_key", "apikey", "password", "secret", "authorization",
}

// RedactArguments masks well-known secret fields in a JSON arguments
// payload before it is logged. Input that is not JSON is returned as is.
func RedactArguments(args string) string {
	if !strings.HasPrefix(strings.TrimSpace(args), "{") {
		return args
	}
	out := args
	for _, field := range redactedFields {
		if strings.Contains(out, field) {
			if v, err := sjson.Set(out, field, "***"); err == nil {
				out = v
			}
		}
	}
	return out
}

// CountMessagesContentSize returns the total size in bytes of the text,
// tool-call and tool-response content across messages.
func CountMessagesContentSize(messages []llms.Message) uint64 {
	var total uint64
	for _, msg := range messages {
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				total += uint64(len(p.Text))
			case llms.ToolCall:
				if p.FunctionCall != nil {
					total += uint64(len(p.FunctionCall.Name) + len(p.FunctionCall.Arguments))
				}
			case llms.ToolCallResponse:
				total += uint64(len(p.Content))
			}
		}
	}
	return total
}

// PrintMessages writes a readable transcript of messages.
func PrintMessages(w io.Writer, messages []llms.Message) {
	for _, msg := range messages {
		switch msg.Role {
		case llms.RoleTool:
			if tr, ok := llms.ToolResponseOf(msg); ok {
				status := "ok"
				if tr.IsError {
					status = "error"
				}
				fmt.Fprintf(w, "[tool:%s %s] %s\n", tr.Name, status, tr.Content)
			}
		case llms.RoleAI:
			for _, tc := range llms.ToolCallsOf(msg) {
				fmt.Fprintf(w, "[%s] requested %s(%s) id=%s\n",
					msg.Role, tc.FunctionCall.Name, RedactArguments(tc.FunctionCall.Arguments), tc.ID)
			}
			if text := llms.TextContentOf(msg); text != "" {
				fmt.Fprintf(w, "[%s] %s\n", msg.Role, text)
			}
		default:
			fmt.Fprintf(w, "[%s] %s\n", msg.Role, llms.TextContentOf(msg))
		}
	}
}
