package triage

import (
	"context"
	"sort"
	"strings"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// UserDirectory lists accounts by role.
type UserDirectory interface {
	ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error)
}

// Selector picks the user a triaged ticket is assigned to.
type Selector struct {
	users UserDirectory
}

// NewSelector builds a selector over the user store.
func NewSelector(users UserDirectory) *Selector {
	return &Selector{users: users}
}

// Select loads moderators and admins and applies SelectAssignee.
// Admins are only loaded when no moderator matches.
func (s *Selector) Select(ctx context.Context, requiredSkills []string) (*domain.User, error) {
	moderators, err := s.users.ListByRole(ctx, domain.RoleModerator)
	if err != nil {
		return nil, err
	}
	if match := SelectAssignee(moderators, nil, requiredSkills); match != nil {
		return match, nil
	}
	admins, err := s.users.ListByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	return SelectAssignee(nil, admins, requiredSkills), nil
}

// SelectAssignee returns the first moderator, by lowercase email then id, whose
// skills match any required skill. Failing that it returns the first admin in
// the same order, or nil.
func SelectAssignee(moderators, admins []domain.User, requiredSkills []string) *domain.User {
	for _, m := range sortedPool(moderators, domain.RoleModerator) {
		if SkillsMatch(m.Skills, requiredSkills) {
			m := m
			return &m
		}
	}
	if pool := sortedPool(admins, domain.RoleAdmin); len(pool) > 0 {
		return &pool[0]
	}
	return nil
}

// SkillsMatch reports whether any skill contains any required skill,
// ignoring case and surrounding space. Blank entries never match.
func SkillsMatch(skills, required []string) bool {
	for _, want := range required {
		want = strings.ToLower(strings.TrimSpace(want))
		if want == "" {
			continue
		}
		for _, have := range skills {
			have = strings.ToLower(strings.TrimSpace(have))
			if have != "" && strings.Contains(have, want) {
				return true
			}
		}
	}
	return false
}

func sortedPool(users []domain.User, role domain.Role) []domain.User {
	pool := make([]domain.User, 0, len(users))
	for _, u := range users {
		if u.Role == role {
			pool = append(pool, u)
		}
	}
	sort.SliceStable(pool, func(i, j int) bool {
		ei, ej := strings.ToLower(pool[i].Email), strings.ToLower(pool[j].Email)
		if ei != ej {
			return ei < ej
		}
		return pool[i].ID < pool[j].ID
	})
	return pool
}
