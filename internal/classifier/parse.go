package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// ParseResult decodes a model reply into a TriageResult. Code fences and any
// text around the outermost JSON object are ignored.
func ParseResult(text string) (*domain.TriageResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrUnavailable)
	}

	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no json object", ErrMalformed)
	}

	var raw struct {
		Priority      string   `json:"priority"`
		RelatedSkills []string `json:"relatedSkills"`
		HelpfulNotes  string   `json:"helpfulNotes"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	skills := make([]string, 0, len(raw.RelatedSkills))
	for _, skill := range raw.RelatedSkills {
		if s := strings.TrimSpace(skill); s != "" {
			skills = append(skills, s)
		}
	}

	return &domain.TriageResult{
		Priority:      strings.TrimSpace(raw.Priority),
		RelatedSkills: skills,
		HelpfulNotes:  strings.TrimSpace(raw.HelpfulNotes),
	}, nil
}
