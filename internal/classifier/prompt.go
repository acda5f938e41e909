package classifier

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultSystemPrompt = `You are an expert AI assistant that processes technical support tickets.
Your job is to summarize the issue, estimate its priority, provide helpful notes and
resource links for human moderators, and list the technical skills required to solve it.
Respond with a single raw JSON object and nothing else: no markdown, no code fences,
no comments.`

const defaultInstructions = `Analyze the following support ticket and respond with JSON of exactly this shape:
{
  "priority": "low" | "medium" | "high",
  "relatedSkills": ["skill1", "skill2"],
  "helpfulNotes": "a detailed technical explanation a moderator can use to solve the issue"
}`

// Prompt holds the text sent to the model.
type Prompt struct {
	System       string `yaml:"system"`
	Instructions string `yaml:"instructions"`
}

// DefaultPrompt returns the built-in prompt.
func DefaultPrompt() Prompt {
	return Prompt{System: defaultSystemPrompt, Instructions: defaultInstructions}
}

// LoadPrompt reads prompt overrides from a YAML file. An empty path yields the
// defaults; keys missing from the file keep their default text.
func LoadPrompt(path string) (Prompt, error) {
	if path == "" {
		return DefaultPrompt(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Prompt{}, fmt.Errorf("read prompt file: %w", err)
	}
	var p Prompt
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Prompt{}, fmt.Errorf("parse prompt file %s: %w", path, err)
	}
	return p.withDefaults(), nil
}

func (p Prompt) withDefaults() Prompt {
	if strings.TrimSpace(p.System) == "" {
		p.System = defaultSystemPrompt
	}
	if strings.TrimSpace(p.Instructions) == "" {
		p.Instructions = defaultInstructions
	}
	return p
}

// Render builds the user message for one ticket.
func (p Prompt) Render(title, description string) string {
	var b strings.Builder
	b.WriteString(p.Instructions)
	b.WriteString("\n\nTicket information:\n\n- Title: ")
	b.WriteString(strings.TrimSpace(title))
	b.WriteString("\n- Description: ")
	b.WriteString(strings.TrimSpace(description))
	b.WriteString("\n")
	return b.String()
}
