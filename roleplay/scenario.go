// Package roleplay tracks bounded practice scenarios played with the agent.
package roleplay

import (
	"errors"
	"fmt"
	"strings"
)

// MinSuccessCriteria is the fewest criteria a generated scenario may carry
const MinSuccessCriteria = 3

// Scenario describes a role-play exercise. Fields are free text supplied by
// the caller or a scenario generator.
type Scenario struct {
	Title           string   `json:"title"`
	Author          string   `json:"author,omitempty"`
	Description     string   `json:"description"`
	SuccessCriteria []string `json:"success_criteria"`
	UserName        string   `json:"user_name"`
	UserRole        string   `json:"user_role"`
	UserAvatar      string   `json:"user_avatar,omitempty"`
	AIName          string   `json:"ai_name"`
	AIRole          string   `json:"ai_role"`
	AIAvatar        string   `json:"ai_avatar,omitempty"`
	AIDescription   string   `json:"ai_description,omitempty"`
	ChatPrompt      string   `json:"chat_prompt,omitempty"`
}

// Validate checks the fields a generated scenario must carry
func (s Scenario) Validate() error {
	var errs []error
	required := map[string]string{
		"title":       s.Title,
		"description": s.Description,
		"user_name":   s.UserName,
		"user_role":   s.UserRole,
		"ai_name":     s.AIName,
		"ai_role":     s.AIRole,
	}
	for _, field := range []string{"title", "description", "user_name", "user_role", "ai_name", "ai_role"} {
		if strings.TrimSpace(required[field]) == "" {
			errs = append(errs, fmt.Errorf("missing %s", field))
		}
	}
	if len(s.SuccessCriteria) < MinSuccessCriteria {
		errs = append(errs, fmt.Errorf("need at least %d success criteria, got %d", MinSuccessCriteria, len(s.SuccessCriteria)))
	}
	return errors.Join(errs...)
}

// DefaultScenario returns the fallback scenario for a free-text request
func DefaultScenario(prompt string) Scenario {
	title := "Role Play Scenario"
	if prompt != "" {
		title = "Professional Role Play: " + prompt
	}
	return Scenario{
		Title:       title,
		Author:      "AI Learning Coach",
		Description: fmt.Sprintf("Practice this important workplace scenario: %s. This exercise will help you develop key communication and professional skills.", prompt),
		SuccessCriteria: []string{
			"Communicate clearly and professionally",
			"Listen actively and respond appropriately",
			"Maintain composure and confidence",
			"Achieve your conversation objectives",
			"Build positive rapport with the other party",
		},
		UserName:      "You",
		UserRole:      "Professional",
		UserAvatar:    "👤",
		AIName:        "Alex",
		AIRole:        "Role Play Partner",
		AIAvatar:      "🧑‍💼",
		AIDescription: fmt.Sprintf("Alex is an experienced professional who will help you practice: %s. They provide realistic responses and constructive feedback.", prompt),
		ChatPrompt:    fmt.Sprintf("Let's start a role play about: %s. I'll play the role of your conversation partner. Please set the scene and begin when you're ready.", prompt),
	}
}

// fillFrom copies every empty field of s from def
func (s *Scenario) fillFrom(def Scenario) {
	fill := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = v
		}
	}
	fill(&s.Title, def.Title)
	fill(&s.Author, def.Author)
	fill(&s.Description, def.Description)
	fill(&s.UserName, def.UserName)
	fill(&s.UserRole, def.UserRole)
	fill(&s.UserAvatar, def.UserAvatar)
	fill(&s.AIName, def.AIName)
	fill(&s.AIRole, def.AIRole)
	fill(&s.AIAvatar, def.AIAvatar)
	fill(&s.AIDescription, def.AIDescription)
	fill(&s.ChatPrompt, def.ChatPrompt)
	if len(s.SuccessCriteria) < MinSuccessCriteria {
		s.SuccessCriteria = def.SuccessCriteria
	}
}

func or(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
