package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"
)

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func TestGenerateParsesModelOutput(t *testing.T) {
	t.Parallel()

	var gotModel, gotPrompt string
	var gotMIME string
	g := newGenerator("", func(_ context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		gotModel = model
		gotPrompt = contents[0].Parts[0].Text
		gotMIME = cfg.ResponseMIMEType
		return textResponse(`{"title":"Salary talk","author":"AI Learning Coach","description":"Ask for a raise.",` +
			`"success_criteria":["a1","b2","c3"],"user_name":"You","user_role":"Engineer",` +
			`"ai_name":"Dana","ai_role":"Manager"}`), nil
	})

	s, err := g.Generate(context.Background(), "salary negotiation")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gotModel != defaultModel || gotMIME != "application/json" {
		t.Fatalf("unexpected request model=%q mime=%q", gotModel, gotMIME)
	}
	if !strings.Contains(gotPrompt, `based on this request: "salary negotiation"`) {
		t.Fatalf("prompt does not carry the request:\n%s", gotPrompt)
	}
	if s.Title != "Salary talk" || s.AIName != "Dana" {
		t.Fatalf("unexpected scenario %+v", s)
	}
}

func TestGenerateFallsBackOnError(t *testing.T) {
	t.Parallel()

	g := newGenerator("gemini-test", func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return nil, errors.New("quota exceeded")
	})

	s, err := g.Generate(context.Background(), "team standup")
	if err == nil {
		t.Fatal("expected the model error to be reported")
	}
	if s.Title != "Professional Role Play: team standup" || s.Validate() != nil {
		t.Fatalf("expected a valid default scenario, got %+v", s)
	}
}

func TestGenerateFallsBackOnEmptyResponse(t *testing.T) {
	t.Parallel()

	g := newGenerator("", func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return textResponse("  "), nil
	})

	s, err := g.Generate(context.Background(), "exit interview")
	if err == nil || s.AIName != "Alex" {
		t.Fatalf("expected default scenario with error, got %+v %v", s, err)
	}
}

func TestNewScenarioGeneratorRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewScenarioGenerator(context.Background(), "", ""); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
}
