// Package prompt assembles the messages sent to the completion service.
package prompt

import (
	"fmt"
	"strings"

	"infosage/internal/model"
)

// Role is a chat message role.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is a provider-neutral chat message.
type Message struct {
	Role    Role
	Content string
}

// System is the fixed instruction message. It names the agent's role and
// the exact JSON shape every reply must follow.
const System = `You are InfoSage AI, a multi-agent misinformation detection system. Your role is to:

1. Extract the main claim from the provided content
2. Analyze the claim against factual databases and credible sources
3. Provide an accuracy score (0-100%)
4. Determine verdict: "true" (70-100%), "unclear" (40-69%), or "false" (0-39%)
5. Cite 3 verified evidence sources with URLs
6. Write a clear explanation in plain language
7. Provide an awareness tip to help users identify misinformation

Return a JSON object with this exact structure:
{
  "claim": "extracted main claim (max 150 chars)",
  "accuracy": 0-100,
  "verdict": "true" | "unclear" | "false",
  "evidence": [
    {
      "source": "Source name",
      "url": "https://...",
      "snippet": "Brief quote or summary"
    }
  ],
  "explanation": "Analysis in 2-3 sentences",
  "awarenessTip": "Practical tip to avoid similar misinformation"
}

Be objective, cite real sources when possible, and prioritize user education.`

// Page is an optional preview of a submitted link.
type Page struct {
	Title       string
	Description string
	Excerpt     string
	// Language is the page's declared language tag, if any.
	Language string
}

func (p *Page) empty() bool {
	return p == nil || (p.Title == "" && p.Description == "" && p.Excerpt == "")
}

// UserMessage renders the user turn. Content and type are passed through
// as given, empty or not.
func UserMessage(content string, typ model.ContentType, page *Page) string {
	msg := fmt.Sprintf("Verify this %s: %s", typ, content)
	if page.empty() {
		return msg
	}

	var b strings.Builder
	b.WriteString(msg)
	b.WriteString("\n\n")
	if page.Title != "" {
		fmt.Fprintf(&b, "Page title: %s\n", page.Title)
	}
	if page.Description != "" {
		fmt.Fprintf(&b, "Page description: %s\n", page.Description)
	}
	if page.Language != "" {
		fmt.Fprintf(&b, "Page language: %s\n", page.Language)
	}
	if page.Excerpt != "" {
		fmt.Fprintf(&b, "Page excerpt:\n%s\n", page.Excerpt)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Build returns the system and user messages for one verification.
func Build(content string, typ model.ContentType, page *Page) []Message {
	return []Message{
		{Role: RoleSystem, Content: System},
		{Role: RoleUser, Content: UserMessage(content, typ, page)},
	}
}
