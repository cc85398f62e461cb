package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"github.com/room4-2/roleplay-live/roleplay"
)

const defaultModel = "gemini-2.5-flash"

// ErrNoAPIKey is returned when no API key is configured
var ErrNoAPIKey = errors.New("gemini api key not configured")

// generateFunc matches genai's Models.GenerateContent
type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// ScenarioGenerator asks the model for a role-play scenario
type ScenarioGenerator struct {
	model    string
	generate generateFunc
}

// NewScenarioGenerator creates a generator backed by the Gemini API
func NewScenarioGenerator(ctx context.Context, apiKey, model string) (*ScenarioGenerator, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newGenerator(model, client.Models.GenerateContent), nil
}

func newGenerator(model string, generate generateFunc) *ScenarioGenerator {
	if model == "" {
		model = defaultModel
	}
	return &ScenarioGenerator{model: model, generate: generate}
}

// Generate returns a complete scenario for the user's request. Model failures
// fall back to the default scenario, so the returned error is informational.
func (g *ScenarioGenerator) Generate(ctx context.Context, prompt string) (roleplay.Scenario, error) {
	log.Printf("🎭 Generating scenario for %q", prompt)

	resp, err := g.generate(ctx, g.model, genai.Text(ScenarioPrompt(prompt)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		log.Printf("❌ Scenario generation failed: %v", err)
		return roleplay.DefaultScenario(prompt), fmt.Errorf("generate scenario: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		log.Println("⚠️ Empty scenario response, using defaults")
		return roleplay.DefaultScenario(prompt), errors.New("generate scenario: empty response")
	}

	s, src := roleplay.ParseScenario(text, prompt)
	log.Printf("✅ Scenario %q ready (%s)", s.Title, src)
	return s, nil
}

// ScenarioPrompt builds the generation request for a user's description
func ScenarioPrompt(request string) string {
	return fmt.Sprintf(`Create a detailed Learning-style role play scenario based on this request: "%s"

IMPORTANT: Respond ONLY with a valid JSON object as described below. Do not include markdown, code blocks, or any text before or after the JSON.

All array elements (like "success_criteria") must be valid, double-quoted strings on a single line. Do not break strings across lines.

Use this format:
{
  "title": "A professional title for the scenario",
  "author": "AI Learning Coach",
  "description": "A detailed 2-3 sentence description of the scenario context and objectives",
  "success_criteria": ["criterion 1", "criterion 2", "criterion 3", "criterion 4", "criterion 5"],
  "user_name": "You",
  "user_role": "A specific professional role relevant to the scenario",
  "user_avatar": "👤",
  "ai_name": "A realistic name for the AI character",
  "ai_role": "The role the AI will play",
  "ai_avatar": "An appropriate emoji like 🧑‍💼 or 👩‍💻",
  "ai_description": "2-3 sentences describing the AI character's personality and approach",
  "chat_prompt": "A detailed prompt to initialize the role play conversation with context and opening"
}

Make it realistic, professional, and engaging for workplace skill development.`, request)
}
