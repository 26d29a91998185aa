// Package googleai implements the Model interface over the Gemini API.
package googleai

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/convoke-ai/convoke/pkg/llms"
	"google.golang.org/genai"
)

var (
	ErrNoContentInResponse   = errors.New("googleai: no content in generation response")
	ErrUnknownPartInResponse = errors.New("googleai: unknown part type in generation response")
	ErrMissingAPIKey         = errors.New("googleai: missing API key, set it in the GEMINI_API_KEY environment variable")
)

const (
	RoleModel = "model"
	RoleUser  = "user"
	RoleTool  = "tool"
)

// GoogleAI is a Gemini API client.
type GoogleAI struct {
	client *genai.Client
	opts   Options
}

var _ llms.Model = (*GoogleAI)(nil)

// New creates a new GoogleAI client.
func New(ctx context.Context, opts ...Option) (*GoogleAI, error) {
	options := Options{
		APIKey: os.Getenv(APIKeyEnvVarName),
	}
	for _, opt := range opts {
		opt(&options)
	}

	if options.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if options.Model == "" {
		return nil, errors.New("googleai: model is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     options.APIKey,
		HTTPClient: options.HTTPClient,
		Backend:    genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "googleai: failed to create client")
	}
	return &GoogleAI{
		client: client,
		opts:   options,
	}, nil
}

// GetName implements the Model interface.
func (g *GoogleAI) GetName() string {
	return g.opts.Model
}

// GetProviderType implements the Model interface.
func (g *GoogleAI) GetProviderType() llms.ProviderType {
	return llms.ProviderGoogleAI
}

// GenerateContent implements the Model interface.
func (g *GoogleAI) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model: g.opts.Model,
	}
	for _, opt := range options {
		opt(&opts)
	}

	callCfg := &genai.GenerateContentConfig{
		StopSequences:   opts.StopWords,
		MaxOutputTokens: int32(opts.MaxTokens),
	}
	if opts.Temperature > 0 {
		t := float32(opts.Temperature)
		callCfg.Temperature = &t
	}
	callCfg.Tools = convertTools(opts.Tools)

	history := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		content, err := convertContent(msg)
		if err != nil {
			return nil, err
		}
		if msg.Role == llms.RoleSystem {
			callCfg.SystemInstruction = content
			continue
		}
		history = append(history, content)
	}

	resp, err := g.client.Models.GenerateContent(ctx, opts.Model, history, callCfg)
	if err != nil {
		return nil, errors.Wrap(err, "googleai: failed to generate content")
	}
	if len(resp.Candidates) == 0 {
		return nil, ErrNoContentInResponse
	}
	return convertCandidates(resp.Candidates, resp.UsageMetadata)
}

func convertTools(tools []llms.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	genaiTools := make([]*genai.Tool, 0, len(tools))
	for _, tool := range tools {
		decl := &genai.FunctionDeclaration{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
		}
		if m, ok := tool.Function.Parameters.(map[string]any); ok {
			decl.Parameters = convertSchema(m)
		}
		genaiTools = append(genaiTools, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{decl},
		})
	}
	return genaiTools
}

// convertSchema maps a JSON schema object to the genai schema form.
func convertSchema(m map[string]any) *genai.Schema {
	out := &genai.Schema{
		Type: convertSchemaType(m["type"]),
	}
	if desc, ok := m["description"].(string); ok {
		out.Description = desc
	}
	if required, ok := m["required"].([]any); ok {
		for _, item := range required {
			if s, ok := item.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	}
	if required, ok := m["required"].([]string); ok {
		out.Required = required
	}
	if props, ok := m["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for k, v := range props {
			if pm, ok := v.(map[string]any); ok {
				out.Properties[k] = convertSchema(pm)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		out.Items = convertSchema(items)
	}
	return out
}

func convertSchemaType(v any) genai.Type {
	ty, _ := v.(string)
	switch ty {
	case "object":
		return genai.TypeObject
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeUnspecified
	}
}

func convertContent(msg llms.Message) (*genai.Content, error) {
	parts, err := convertParts(msg.Parts)
	if err != nil {
		return nil, err
	}
	c := &genai.Content{Parts: parts}

	switch msg.Role {
	case llms.RoleSystem:
		c.Role = RoleUser
	case llms.RoleAI:
		c.Role = RoleModel
	case llms.RoleHuman:
		c.Role = RoleUser
	case llms.RoleTool:
		c.Role = RoleTool
	default:
		return nil, errors.Errorf("googleai: role %v not supported", msg.Role)
	}
	return c, nil
}

func convertParts(parts []llms.ContentPart) ([]*genai.Part, error) {
	converted := make([]*genai.Part, 0, len(parts))
	for _, part := range parts {
		out := new(genai.Part)
		switch p := part.(type) {
		case llms.TextContent:
			out.Text = p.Text
		case llms.ToolCall:
			var argsMap map[string]any
			if err := json.Unmarshal([]byte(p.FunctionCall.Arguments), &argsMap); err != nil {
				return nil, errors.Wrap(err, "googleai: failed to unmarshal tool call arguments")
			}
			out.FunctionCall = &genai.FunctionCall{
				Name: p.FunctionCall.Name,
				Args: argsMap,
			}
		case llms.ToolCallResponse:
			response := map[string]any{"response": p.Content}
			if p.IsError {
				response = map[string]any{"error": p.Content}
			}
			out.FunctionResponse = &genai.FunctionResponse{
				Name:     p.Name,
				Response: response,
			}
		default:
			return nil, errors.Errorf("googleai: unsupported part type %T", part)
		}
		converted = append(converted, out)
	}
	return converted, nil
}

func convertCandidates(candidates []*genai.Candidate, usage *genai.GenerateContentResponseUsageMetadata) (*llms.ContentResponse, error) {
	var contentResponse llms.ContentResponse

	for _, candidate := range candidates {
		buf := strings.Builder{}
		var toolCalls []llms.ToolCall

		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				switch {
				case part.Text != "":
					buf.WriteString(part.Text)
				case part.FunctionCall != nil:
					b, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						return nil, errors.Wrap(err, "googleai: failed to marshal function call args")
					}
					toolCalls = append(toolCalls, llms.ToolCall{
						ID:   part.FunctionCall.ID,
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      part.FunctionCall.Name,
							Arguments: string(b),
						},
					})
				default:
					return nil, errors.WithMessage(ErrUnknownPartInResponse, "not text or tool")
				}
			}
		}

		metadata := make(map[string]any)
		if usage != nil {
			metadata["InputTokens"] = usage.PromptTokenCount
			metadata["OutputTokens"] = usage.CandidatesTokenCount
			metadata["TotalTokens"] = usage.TotalTokenCount
		}

		contentResponse.Choices = append(contentResponse.Choices,
			&llms.ContentChoice{
				Content:        buf.String(),
				StopReason:     string(candidate.FinishReason),
				GenerationInfo: metadata,
				ToolCalls:      toolCalls,
			})
	}
	return &contentResponse, nil
}
