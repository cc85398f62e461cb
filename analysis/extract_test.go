package analysis

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func sampleFeedback() Feedback {
	return Feedback{
		Strengths:        []string{"Clear opening statement", "Handled the budget question calmly"},
		Improvements:     []string{"Quantify the expected ROI", "Ask the executive about priorities"},
		DetailedFeedback: "You opened with a crisp summary of the project.\n\nWhen pressed on cost you stayed calm.",
	}
}

func TestExtractWellFormedUsesDirectParse(t *testing.T) {
	t.Parallel()

	want := sampleFeedback()
	text, err := json.MarshalToString(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := Extract(text)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Strategy != StrategyDirect || got.Degraded() {
		t.Fatalf("expected direct strategy, got %s", got.Strategy)
	}
	if !reflect.DeepEqual(got.Feedback, want) {
		t.Fatalf("got %+v, want %+v", got.Feedback, want)
	}
}

func TestExtractIgnoresProseAroundObject(t *testing.T) {
	t.Parallel()

	text := "Here is the analysis you asked for:\n" +
		`{"strengths":["a"],"improvements":["b"],"detailed_feedback":"c"}` +
		"\nLet me know if you need more."
	got, err := Extract(text)
	if err != nil || got.Strategy != StrategyDirect {
		t.Fatalf("expected direct parse, got %+v %v", got, err)
	}
}

func TestExtractToleratesFencesAndRawNewlines(t *testing.T) {
	t.Parallel()

	want := sampleFeedback()
	text := "```json\n{\n" +
		"  \"strengths\": [\"Clear opening statement\", \"Handled the budget question calmly\"],\n" +
		"  \"improvements\": [\"Quantify the expected ROI\", \"Ask the executive about priorities\"],\n" +
		"  \"detailed_feedback\": \"You opened with a crisp summary of the project.\n\nWhen pressed on cost you stayed calm.\"\n" +
		"}\n```"

	got, err := Extract(text)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Strategy == StrategyDirect {
		t.Fatal("raw newlines should require a fallback strategy")
	}
	if !reflect.DeepEqual(got.Feedback.Strengths, want.Strengths) ||
		!reflect.DeepEqual(got.Feedback.Improvements, want.Improvements) {
		t.Fatalf("arrays differ: %+v", got.Feedback)
	}
	for _, word := range strings.Fields(want.DetailedFeedback) {
		if !strings.Contains(got.Feedback.DetailedFeedback, word) {
			t.Fatalf("detailed feedback lost %q: %q", word, got.Feedback.DetailedFeedback)
		}
	}
}

func TestExtractTrailingCommas(t *testing.T) {
	t.Parallel()

	text := `{"strengths":["a",],"improvements":["b"],"detailed_feedback":"c",}`
	got, err := Extract(text)
	if err != nil || got.Strategy != StrategySanitized {
		t.Fatalf("expected sanitized parse, got %+v %v", got, err)
	}
}

func TestExtractUnescapedQuotesUsesKeyedStrategy(t *testing.T) {
	t.Parallel()

	text := `{
  "strengths": ["Clear \"opening\" line", "Good pacing"],
  "improvements": ["Ask more, open questions"],
  "detailed_feedback": "You said "let's go" and it worked."
}`
	got, err := Extract(text)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Strategy != StrategyKeyed || !got.Degraded() {
		t.Fatalf("expected keyed strategy, got %s", got.Strategy)
	}
	want := Feedback{
		Strengths:        []string{`Clear "opening" line`, "Good pacing"},
		Improvements:     []string{"Ask more, open questions"},
		DetailedFeedback: `You said "let's go" and it worked.`,
	}
	if !reflect.DeepEqual(got.Feedback, want) {
		t.Fatalf("got %+v, want %+v", got.Feedback, want)
	}
}

func TestExtractLineFallback(t *testing.T) {
	t.Parallel()

	text := `"strengths":
"Clear opening",
"Kept eye contact",
"improvements":
"Ask more questions",
"detailed_feedback": "Overall solid
work across the session`

	got, err := Extract(text)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Strategy != StrategyLines {
		t.Fatalf("expected line strategy, got %s", got.Strategy)
	}
	if len(got.Feedback.Strengths) != 2 || got.Feedback.Improvements[0] != "Ask more questions" {
		t.Fatalf("unexpected arrays %+v", got.Feedback)
	}
	if got.Feedback.DetailedFeedback != "Overall solid work across the session" {
		t.Fatalf("unexpected detailed feedback %q", got.Feedback.DetailedFeedback)
	}
}

func TestExtractMissingFieldFails(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		`{"strengths":["a"],"improvements":["b"]}`,
		"I'm sorry, I can't evaluate that conversation.",
		"",
	} {
		if _, err := Extract(text); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Extract(%q) = %v, want ErrMalformed", text, err)
		}
	}
}
