package roleplay

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/room4-2/roleplay-live/codec"
)

var json = sonic.ConfigStd

// ParseSource records how a scenario was recovered from model output
type ParseSource string

const (
	SourceDirect    ParseSource = "direct"
	SourceRepaired  ParseSource = "repaired"
	SourceExtracted ParseSource = "extracted"
	SourceDefault   ParseSource = "default"
)

// ParseScenario recovers a scenario from untrusted model output. It never
// fails: fields that cannot be recovered are filled from DefaultScenario(prompt).
func ParseScenario(text, prompt string) (Scenario, ParseSource) {
	cleaned := codec.CleanJSONText(text)

	var s Scenario
	if err := json.UnmarshalFromString(cleaned, &s); err == nil && s.Validate() == nil {
		return s, SourceDirect
	}

	s = Scenario{}
	if err := json.UnmarshalFromString(codec.RepairJSON(cleaned), &s); err == nil && s.Validate() == nil {
		log.Println("🔧 Scenario recovered after JSON repair")
		return s, SourceRepaired
	}

	s, found := extractScenarioFields(text)
	s.fillFrom(DefaultScenario(prompt))
	if found == 0 {
		log.Println("⚠️ No scenario fields recovered, using defaults")
		return s, SourceDefault
	}
	log.Printf("🔧 Scenario recovered key by key (%d fields)", found)
	return s, SourceExtracted
}

var stringFields = []string{
	"title", "author", "description", "user_name", "user_role", "user_avatar",
	"ai_name", "ai_role", "ai_avatar", "ai_description", "chat_prompt",
}

func fieldPatterns(field string) []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(fmt.Sprintf(`(?is)"%s"\s*:\s*"((?:[^"\\]|\\.)*)"`, field)),
		regexp.MustCompile(fmt.Sprintf(`(?is)'%s'\s*:\s*'([^']*)'`, field)),
		regexp.MustCompile(fmt.Sprintf(`(?i)"%s"\s*:\s*([^,}\n]+)`, field)),
	}
}

var patternsByField = func() map[string][]*regexp.Regexp {
	m := make(map[string][]*regexp.Regexp, len(stringFields))
	for _, f := range stringFields {
		m[f] = fieldPatterns(f)
	}
	return m
}()

func extractScenarioFields(text string) (Scenario, int) {
	values := make(map[string]string)
	for _, field := range stringFields {
		for _, re := range patternsByField[field] {
			if m := re.FindStringSubmatch(text); m != nil {
				v := strings.Trim(strings.TrimSpace(codec.UnescapeJSONString(m[1])), `"'`)
				if v != "" {
					values[field] = v
					break
				}
			}
		}
	}

	s := Scenario{
		Title:         values["title"],
		Author:        values["author"],
		Description:   values["description"],
		UserName:      values["user_name"],
		UserRole:      values["user_role"],
		UserAvatar:    values["user_avatar"],
		AIName:        values["ai_name"],
		AIRole:        values["ai_role"],
		AIAvatar:      values["ai_avatar"],
		AIDescription: values["ai_description"],
		ChatPrompt:    values["chat_prompt"],
	}
	found := len(values)

	if criteria := extractSuccessCriteria(text); len(criteria) > 0 {
		s.SuccessCriteria = criteria
		found++
	}
	return s, found
}

var (
	criteriaArrayRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)"success_criteria"\s*:\s*\[([^\]]*)\]`),
		regexp.MustCompile(`(?is)'success_criteria'\s*:\s*\[([^\]]*)\]`),
	}
	doubleQuotedRe = regexp.MustCompile(`"([^"]+)"`)
	singleQuotedRe = regexp.MustCompile(`'([^']+)'`)
	numberedRe     = regexp.MustCompile(`\d+\.\s*([^\n]+)`)
)

const maxCriteria = 10

// extractSuccessCriteria recovers the criteria list from an array literal,
// a bulleted section, or a numbered list, in that order.
func extractSuccessCriteria(text string) []string {
	for _, re := range criteriaArrayRes {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		for _, itemRe := range []*regexp.Regexp{doubleQuotedRe, singleQuotedRe} {
			var items []string
			for _, im := range itemRe.FindAllStringSubmatch(m[1], -1) {
				if v := strings.TrimSpace(im[1]); v != "" && v != "," {
					items = append(items, v)
				}
			}
			if len(items) >= MinSuccessCriteria {
				return capCriteria(items)
			}
		}
	}

	var items []string
	inSection := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(strings.ToLower(line), "success_criteria") {
			inSection = true
			continue
		}
		if !inSection {
			continue
		}
		switch {
		case strings.HasPrefix(line, "-"), strings.HasPrefix(line, "*"), strings.HasPrefix(line, "•"):
			item := strings.Trim(strings.TrimSpace(strings.TrimLeft(line, "-*• ")), `"',`)
			if len(item) > 5 {
				items = append(items, item)
			}
		case strings.HasPrefix(line, `"`):
			item := strings.Trim(strings.TrimSuffix(line, ","), `"`)
			if len(item) > 5 {
				items = append(items, item)
			}
		case strings.ContainsAny(line, "]}"):
			inSection = false
		}
	}
	if len(items) > 0 {
		return capCriteria(items)
	}

	for _, m := range numberedRe.FindAllStringSubmatch(text, -1) {
		if item := strings.Trim(strings.TrimSpace(m[1]), `"'.,`); len(item) > 10 {
			items = append(items, item)
		}
	}
	return capCriteria(items)
}

func capCriteria(items []string) []string {
	if len(items) > maxCriteria {
		return items[:maxCriteria]
	}
	return items
}
