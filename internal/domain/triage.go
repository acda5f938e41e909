package domain

import "strings"

// TriageResult is the classifier's judgment for a single triage attempt.
type TriageResult struct {
	Priority      string   `json:"priority"`
	RelatedSkills []string `json:"relatedSkills"`
	HelpfulNotes  string   `json:"helpfulNotes"`
}

// Usable reports whether triage can proceed on this result.
// A result without skills counts as a failed classification.
func (r *TriageResult) Usable() bool {
	if r == nil {
		return false
	}
	for _, skill := range r.RelatedSkills {
		if strings.TrimSpace(skill) != "" {
			return true
		}
	}
	return false
}
