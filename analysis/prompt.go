package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/room4-2/roleplay-live/roleplay"
)

// ResetSentinel is sent before the request so the agent leaves its role
const ResetSentinel = "ANALYSIS_MODE_START"

// FormatDuration renders d as m:ss
func FormatDuration(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// RequestPrompt builds the evaluation request for a finished session
func RequestPrompt(s roleplay.Scenario, duration time.Duration) string {
	var b strings.Builder
	b.WriteString("**ROLE-PLAY PERFORMANCE ANALYSIS REQUEST**\n\n")
	b.WriteString("Based on our recent role-play conversation, please provide a comprehensive performance analysis.\n\n")
	b.WriteString("**Original Scenario Context:**\n")
	fmt.Fprintf(&b, "- Title: %s\n", s.Title)
	fmt.Fprintf(&b, "- Description: %s\n", s.Description)
	fmt.Fprintf(&b, "- User Role: %s (%s)\n", s.UserRole, s.UserName)
	fmt.Fprintf(&b, "- AI Role: %s (%s)\n\n", s.AIRole, s.AIName)
	b.WriteString("**Success Criteria for the Role-Play:**\n")
	b.WriteString(roleplay.NumberedList(s.SuccessCriteria))
	fmt.Fprintf(&b, "\n\n**Session Duration:** %s\n\n", FormatDuration(duration))
	b.WriteString(requestInstructions)
	return b.String()
}

const requestInstructions = `**ANALYSIS INSTRUCTIONS:**
Please analyze the role-play conversation we just completed. Use your memory of our entire conversation to evaluate the user's performance against the success criteria.

CRITICAL FORMATTING INSTRUCTIONS:
- DO NOT include any conversational text like "I understand" or "Here is the analysis"
- DO NOT use markdown formatting like ` + "```json or ```" + `
- DO NOT include explanations before or after the JSON
- Your entire response must be ONLY the JSON object
- Start your response immediately with { (opening brace)
- End your response immediately with } (closing brace)
- Nothing else - just pure JSON

Required JSON format (this is what your ENTIRE response should look like):

{
  "strengths": [
    "Specific strength 1 with detailed explanation of what the user did well",
    "Specific strength 2 with detailed explanation of what the user did well",
    "Specific strength 3 with detailed explanation of what the user did well"
  ],
  "improvements": [
    "Specific area for improvement 1 with actionable advice",
    "Specific area for improvement 2 with actionable advice",
    "Specific area for improvement 3 with actionable advice"
  ],
  "detailed_feedback": "Comprehensive 3-4 paragraph analysis covering: overall communication effectiveness, achievement of success criteria, specific examples from our conversation, professional presence, and actionable recommendations for future practice. Reference specific moments or approaches from our conversation."
}

**Analysis Focus:**
- Evaluate communication clarity and effectiveness
- Assess achievement of the stated success criteria
- Consider professional presence and confidence level
- Analyze listening and response quality
- Identify specific areas for skill development
- Reference actual moments from our conversation
- Provide constructive, actionable feedback for improvement

IMPORTANT REMINDERS:
- Base your analysis on the actual conversation we just had, referencing specific examples and moments from our role-play interaction
- Respond with ONLY the JSON object - no additional text, explanations, or acknowledgments
- Start your response immediately with { and end with }
- Do not include markdown formatting like ` + "```json or ```" + `
`
