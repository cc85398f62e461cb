package analysis

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/room4-2/roleplay-live/codec"
)

var json = sonic.ConfigStd

// ErrMalformed is returned when no strategy recovers a complete result
var ErrMalformed = errors.New("analysis response could not be parsed")

// Feedback is the structured evaluation the agent is asked for
type Feedback struct {
	Strengths        []string `json:"strengths"`
	Improvements     []string `json:"improvements"`
	DetailedFeedback string   `json:"detailed_feedback"`
}

// Strategy names the extraction step that produced a result
type Strategy string

const (
	StrategyDirect    Strategy = "direct"
	StrategySanitized Strategy = "sanitized"
	StrategyKeyed     Strategy = "keyed"
	StrategyLines     Strategy = "lines"
)

// Extraction is a recovered result and how it was recovered
type Extraction struct {
	Feedback Feedback
	Strategy Strategy
}

// Degraded reports whether the result came from pattern matching rather than
// a JSON parse. Such results may be truncated.
func (e Extraction) Degraded() bool {
	return e.Strategy == StrategyKeyed || e.Strategy == StrategyLines
}

type strategy struct {
	name Strategy
	run  func(cleaned string) (Feedback, error)
}

// strategies run in order of decreasing strictness
var strategies = []strategy{
	{StrategyDirect, parseDirect},
	{StrategySanitized, parseSanitized},
	{StrategyKeyed, parseKeyed},
	{StrategyLines, parseLines},
}

// Extract recovers a Feedback from free-form model text
func Extract(text string) (Extraction, error) {
	cleaned := codec.CleanJSONText(text)
	if cleaned == "" {
		return Extraction{}, fmt.Errorf("%w: empty response", ErrMalformed)
	}

	var errs []error
	for _, s := range strategies {
		fb, err := s.run(cleaned)
		if err == nil {
			return Extraction{Feedback: fb, Strategy: s.name}, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
	}
	return Extraction{}, fmt.Errorf("%w: %w", ErrMalformed, errors.Join(errs...))
}

type rawFeedback struct {
	Strengths        *[]string `json:"strengths"`
	Improvements     *[]string `json:"improvements"`
	DetailedFeedback *string   `json:"detailed_feedback"`
}

func (r rawFeedback) feedback() (Feedback, error) {
	switch {
	case r.Strengths == nil:
		return Feedback{}, errors.New("missing strengths")
	case r.Improvements == nil:
		return Feedback{}, errors.New("missing improvements")
	case r.DetailedFeedback == nil || strings.TrimSpace(*r.DetailedFeedback) == "":
		return Feedback{}, errors.New("missing detailed_feedback")
	}
	return Feedback{
		Strengths:        *r.Strengths,
		Improvements:     *r.Improvements,
		DetailedFeedback: *r.DetailedFeedback,
	}, nil
}

func parseDirect(cleaned string) (Feedback, error) {
	var raw rawFeedback
	if err := json.UnmarshalFromString(cleaned, &raw); err != nil {
		return Feedback{}, err
	}
	return raw.feedback()
}

func parseSanitized(cleaned string) (Feedback, error) {
	return parseDirect(codec.RepairJSON(cleaned))
}

func checkRecovered(fb Feedback) (Feedback, error) {
	switch {
	case len(fb.Strengths) == 0:
		return Feedback{}, errors.New("no strengths recovered")
	case len(fb.Improvements) == 0:
		return Feedback{}, errors.New("no improvements recovered")
	case strings.TrimSpace(fb.DetailedFeedback) == "":
		return Feedback{}, errors.New("no detailed_feedback recovered")
	}
	return fb, nil
}

var (
	strengthsKeyRe    = regexp.MustCompile(`"strengths"\s*:\s*\[`)
	improvementsKeyRe = regexp.MustCompile(`"improvements"\s*:\s*\[`)
	detailedKeyRe     = regexp.MustCompile(`"detailed_feedback"\s*:\s*"`)
	detailedTailRe    = regexp.MustCompile(`^([\s\S]*?)"\s*\}`)
)

// parseKeyed locates each field by its key label and walks the values by hand
func parseKeyed(cleaned string) (Feedback, error) {
	var fb Feedback

	if loc := strengthsKeyRe.FindStringIndex(cleaned); loc != nil {
		fb.Strengths = splitArrayItems(cleaned[loc[1]:])
	}
	if loc := improvementsKeyRe.FindStringIndex(cleaned); loc != nil {
		fb.Improvements = splitArrayItems(cleaned[loc[1]:])
	}
	if loc := detailedKeyRe.FindStringIndex(cleaned); loc != nil {
		rest := cleaned[loc[1]:]
		if m := detailedTailRe.FindStringSubmatch(rest); m != nil {
			fb.DetailedFeedback = m[1]
		} else {
			fb.DetailedFeedback = quotedPrefix(rest)
		}
		fb.DetailedFeedback = strings.TrimSpace(codec.UnescapeJSONString(fb.DetailedFeedback))
	}

	return checkRecovered(fb)
}

// splitArrayItems collects the quoted strings of an array body up to the
// first unquoted ']'. s starts just after the opening '['.
func splitArrayItems(s string) []string {
	var items []string
	var cur strings.Builder
	inQuote, escaped := false, false

	for _, r := range s {
		if inQuote {
			switch {
			case escaped:
				escaped = false
				cur.WriteByte('\\')
				cur.WriteRune(r)
			case r == '\\':
				escaped = true
			case r == '"':
				inQuote = false
				if item := strings.TrimSpace(codec.UnescapeJSONString(cur.String())); item != "" {
					items = append(items, item)
				}
				cur.Reset()
			default:
				cur.WriteRune(r)
			}
			continue
		}
		switch r {
		case '"':
			inQuote = true
		case ']':
			return items
		}
	}
	return items
}

// quotedPrefix returns s up to its first unescaped quote
func quotedPrefix(s string) string {
	escaped := false
	for i, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			return s[:i]
		}
	}
	return s
}

var detailedLineRe = regexp.MustCompile(`"detailed_feedback"\s*:\s*"(.*)$`)

// parseLines assigns each line to the section most recently announced by a
// key label.
func parseLines(cleaned string) (Feedback, error) {
	var fb Feedback
	section := ""

	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.Contains(line, `"strengths"`):
			section = "strengths"
			continue
		case strings.Contains(line, `"improvements"`):
			section = "improvements"
			continue
		case strings.Contains(line, `"detailed_feedback"`):
			section = "detailed_feedback"
			if m := detailedLineRe.FindStringSubmatch(line); m != nil {
				fb.DetailedFeedback = m[1]
			}
			continue
		}

		switch section {
		case "strengths", "improvements":
			if !strings.HasPrefix(line, `"`) || strings.Contains(line, `":`) {
				continue
			}
			item := strings.TrimSuffix(strings.TrimSuffix(strings.TrimPrefix(line, `"`), ","), `"`)
			item = strings.TrimSpace(codec.UnescapeJSONString(item))
			if item == "" {
				continue
			}
			if section == "strengths" {
				fb.Strengths = append(fb.Strengths, item)
			} else {
				fb.Improvements = append(fb.Improvements, item)
			}
		case "detailed_feedback":
			if line == "" || strings.Contains(line, "}") || strings.Contains(line, "```") {
				continue
			}
			if fb.DetailedFeedback != "" && !strings.HasSuffix(fb.DetailedFeedback, " ") {
				fb.DetailedFeedback += " "
			}
			fb.DetailedFeedback += strings.TrimSuffix(strings.TrimPrefix(line, `"`), `"`)
		}
	}

	fb.DetailedFeedback = strings.TrimSpace(strings.TrimSuffix(
		strings.TrimSpace(codec.UnescapeJSONString(fb.DetailedFeedback)), `"`))
	return checkRecovered(fb)
}
