package llm

import (
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
)

func TestWindowDropsOrphanedToolExchange(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "book 14:00"},
		{Role: RoleAssistant, ToolCall: &ToolCall{Name: "book_appointment"}},
		{Role: RoleTool, ToolName: "book_appointment", Content: `{"ok":true}`},
		{Role: RoleAssistant, Content: "Booked."},
		{Role: RoleUser, Content: "thanks"},
		{Role: RoleAssistant, Content: "You're welcome."},
	}

	got := Window(history, 4)
	if len(got) != 2 || got[0].Content != "thanks" {
		t.Fatalf("unexpected window %+v", got)
	}
	if len(Window(history, 0)) != len(history) {
		t.Fatal("zero limit keeps everything")
	}
	if Window(history[1:3], 10) != nil {
		t.Fatal("window without a user message should be empty")
	}
}

func TestToGenaiTool(t *testing.T) {
	tool := toGenaiTool([]Tool{{
		Name:        "check_availability",
		Description: "List free slots.",
		Params: []Param{
			{Name: "date", Type: TypeString, Format: FormatDate, Required: true},
			{Name: "duration", Type: TypeInteger},
		},
	}})
	if len(tool.FunctionDeclarations) != 1 {
		t.Fatalf("expected one declaration")
	}
	params := tool.FunctionDeclarations[0].Parameters
	if params.Properties["duration"].Type != genai.TypeInteger {
		t.Fatal("duration should be an integer")
	}
	if len(params.Required) != 1 || params.Required[0] != "date" {
		t.Fatalf("unexpected required %v", params.Required)
	}
}

func TestToContentsRoles(t *testing.T) {
	contents := toContents([]Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, ToolCall: &ToolCall{Name: "list_appointments", Args: map[string]any{}}},
		{Role: RoleTool, ToolName: "list_appointments", Content: `{"ok":true,"data":[]}`},
	})
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[1].Role != "model" {
		t.Fatalf("tool call should be a model turn, got %s", contents[1].Role)
	}
	resp, ok := contents[2].Parts[0].(genai.FunctionResponse)
	if !ok || resp.Name != "list_appointments" || resp.Response["ok"] != true {
		t.Fatalf("unexpected function response %#v", contents[2].Parts[0])
	}
}

func TestFromResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{
			genai.Text("let me check"),
			genai.FunctionCall{Name: "check_availability", Args: map[string]any{"date": "2024-03-15"}},
		}},
	}}}
	c, err := fromResponse(resp)
	if err != nil || c.ToolCall == nil || c.ToolCall.Name != "check_availability" {
		t.Fatalf("expected tool call, got %+v %v", c, err)
	}

	if _, err := fromResponse(&genai.GenerateContentResponse{}); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected empty response error, got %v", err)
	}
}
