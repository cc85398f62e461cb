package codec

import (
	"fmt"
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?i)```(?:json)?")

// CleanJSONText strips markdown code fences and trims s to the span between
// the first '{' and the last '}'. Text without braces is returned trimmed.
func CleanJSONText(s string) string {
	s = fenceRe.ReplaceAllString(s, "")
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}

var doubleEscapes = strings.NewReplacer(`\\n`, `\n`, `\\r`, `\r`, `\\t`, `\t`)

// RepairJSON rewrites common model output mistakes into parseable JSON:
// raw control characters inside strings are escaped, control characters
// outside strings are dropped, doubled escapes are collapsed, and trailing
// commas before a closing bracket are removed.
func RepairJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
				b.WriteByte(c)
			case c == '\\':
				escaped = true
				b.WriteByte(c)
			case c == '"':
				inString = false
				b.WriteByte(c)
			case c == '\n':
				b.WriteString(`\n`)
			case c == '\r':
				b.WriteString(`\r`)
			case c == '\t':
				b.WriteString(`\t`)
			case c < 0x20 || c == 0x7f:
				fmt.Fprintf(&b, `\u%04x`, c)
			default:
				b.WriteByte(c)
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == ',' && closesNext(s[i+1:]):
			// trailing comma
		case c == '\n' || c == '\r' || c == '\t' || c == ' ':
			b.WriteByte(c)
		case c < 0x20 || c == 0x7f:
			// stray control character
		default:
			b.WriteByte(c)
		}
	}

	return doubleEscapes.Replace(b.String())
}

func closesNext(rest string) bool {
	rest = strings.TrimLeft(rest, " \t\r\n")
	return rest != "" && (rest[0] == '}' || rest[0] == ']')
}

// UnescapeJSONString resolves the escapes models commonly emit inside a
// quoted value captured by pattern matching.
func UnescapeJSONString(s string) string {
	return jsonUnescaper.Replace(s)
}

var jsonUnescaper = strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\t`, "\t", `\r`, "", `\\`, `\`, `\/`, `/`)
