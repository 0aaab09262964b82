package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini adapts the Gemini function-calling API to Model.
type Gemini struct {
	client      *genai.Client
	modelName   string
	temperature float32
}

func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{client: client, modelName: modelName, temperature: 0.2}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) Complete(ctx context.Context, req Request) (Completion, error) {
	contents := toContents(req.History)
	if len(contents) == 0 {
		return Completion{}, fmt.Errorf("gemini: empty history")
	}

	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(g.temperature)
	if req.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	}
	if len(req.Tools) > 0 {
		model.Tools = []*genai.Tool{toGenaiTool(req.Tools)}
	}

	cs := model.StartChat()
	last := contents[len(contents)-1]
	cs.History = contents[:len(contents)-1]

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return Completion{}, err
	}
	return fromResponse(resp)
}

func toGenaiTool(tools []Tool) *genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		schema := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
		for _, p := range t.Params {
			ps := &genai.Schema{Description: describeParam(p), Enum: p.Enum}
			switch p.Type {
			case TypeInteger:
				ps.Type = genai.TypeInteger
			default:
				ps.Type = genai.TypeString
			}
			schema.Properties[p.Name] = ps
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return &genai.Tool{FunctionDeclarations: decls}
}

func describeParam(p Param) string {
	switch p.Format {
	case FormatDate:
		return strings.TrimSpace(p.Description + " Format YYYY-MM-DD.")
	case FormatTime:
		return strings.TrimSpace(p.Description + " Format HH:MM, 24-hour.")
	}
	return p.Description
}

// toContents maps history onto Gemini roles. Tool calls belong to the model
// turn; tool results are sent back as function responses in the user turn.
func toContents(history []Message) []*genai.Content {
	var out []*genai.Content
	for _, m := range history {
		switch m.Role {
		case RoleUser:
			out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		case RoleAssistant:
			if m.ToolCall != nil {
				out = append(out, &genai.Content{Role: "model", Parts: []genai.Part{
					genai.FunctionCall{Name: m.ToolCall.Name, Args: m.ToolCall.Args},
				}})
				continue
			}
			out = append(out, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		case RoleTool:
			var payload map[string]any
			if err := json.Unmarshal([]byte(m.Content), &payload); err != nil {
				payload = map[string]any{"result": m.Content}
			}
			out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{
				genai.FunctionResponse{Name: m.ToolName, Response: payload},
			}})
		}
	}
	return out
}

// fromResponse prefers a function call over text when the model returns both.
func fromResponse(resp *genai.GenerateContentResponse) (Completion, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Completion{}, ErrEmptyResponse
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.FunctionCall:
			args := p.Args
			if args == nil {
				args = map[string]any{}
			}
			return Completion{ToolCall: &ToolCall{Name: p.Name, Args: args}}, nil
		case genai.Text:
			text.WriteString(string(p))
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return Completion{}, ErrEmptyResponse
	}
	return Completion{Text: strings.TrimSpace(text.String())}, nil
}
