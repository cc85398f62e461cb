package roleplay

import (
	"fmt"
	"strings"
)

// NumberedList renders items as "1. a\n2. b"
func NumberedList(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = fmt.Sprintf("%d. %s", i+1, item)
	}
	return strings.Join(lines, "\n")
}

// ContextPrompt is the message that puts the agent in character at the start
// of a role-play session.
func ContextPrompt(s Scenario) string {
	aiName := or(s.AIName, "Alex")
	aiRole := or(s.AIRole, "Role-Play Partner")

	var b strings.Builder
	b.WriteString("**ROLE-PLAY SCENARIO INITIALIZED**\n\n")
	fmt.Fprintf(&b, "**Scenario:** %s\n", or(s.Title, "Role-Play Exercise"))
	fmt.Fprintf(&b, "**Description:** %s\n\n", or(s.Description, "Professional role-play scenario"))
	fmt.Fprintf(&b, "**Your Role:** %s\n", aiRole)
	fmt.Fprintf(&b, "**Your Character:** %s\n", aiName)
	fmt.Fprintf(&b, "**Your Character Description:** %s\n\n", or(s.AIDescription, "A professional role-play partner"))
	fmt.Fprintf(&b, "**User's Role:** %s\n", or(s.UserRole, "Professional"))
	fmt.Fprintf(&b, "**User's Name:** %s\n\n", or(s.UserName, "User"))
	b.WriteString("**Success Criteria for this Role-Play:**\n")
	b.WriteString(NumberedList(s.SuccessCriteria))
	b.WriteString("\n\n**Instructions:**\n")
	fmt.Fprintf(&b, "- Stay in character as %s throughout this conversation\n", aiName)
	fmt.Fprintf(&b, "- Act according to your role as %s\n", aiRole)
	b.WriteString("- Help the user practice the scenario and provide realistic responses\n")
	b.WriteString("- Be professional but engaging\n")
	b.WriteString("- Provide constructive feedback when appropriate\n")
	b.WriteString("- Keep responses conversational and realistic for this professional context\n\n")
	fmt.Fprintf(&b, "**Initial Prompt:** %s\n\n", or(s.ChatPrompt, "Let's begin the role-play scenario."))
	fmt.Fprintf(&b, "Please acknowledge that you understand your role and are ready to begin the role-play scenario as %s.\n", aiName)
	return b.String()
}
