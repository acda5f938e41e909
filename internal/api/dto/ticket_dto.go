package dto

import (
	"time"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// AssigneeResponse identifies who a ticket is assigned to.
type AssigneeResponse struct {
	ID    string  `json:"id"`
	Email *string `json:"email,omitempty"`
}

// TicketResponse is the public view of a ticket.
type TicketResponse struct {
	ID            string                 `json:"id"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	Status        domain.TicketStatus    `json:"status"`
	Priority      *domain.TicketPriority `json:"priority"`
	RelatedSkills []string               `json:"related_skills"`
	HelpfulNotes  *string                `json:"helpful_notes"`
	AssignedTo    *AssigneeResponse      `json:"assigned_to"`
	CreatedBy     string                 `json:"created_by"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID            string                  `json:"id"`
	ChangeType    domain.TicketChangeType `json:"change_type"`
	ChangedByType domain.ActorType        `json:"changed_by_type"`
	ChangedByID   *string                 `json:"changed_by_id"`
	OldValue      map[string]any          `json:"old_value"`
	NewValue      map[string]any          `json:"new_value"`
	CreatedAt     time.Time               `json:"created_at"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(ticket *domain.Ticket) TicketResponse {
	skills := ticket.RelatedSkills
	if skills == nil {
		skills = []string{}
	}
	resp := TicketResponse{
		ID:            ticket.ID,
		Title:         ticket.Title,
		Description:   ticket.Description,
		Status:        ticket.Status,
		Priority:      ticket.Priority,
		RelatedSkills: skills,
		HelpfulNotes:  ticket.HelpfulNotes,
		CreatedBy:     ticket.CreatedBy,
		CreatedAt:     ticket.CreatedAt,
		UpdatedAt:     ticket.UpdatedAt,
	}
	if ticket.AssignedTo != nil {
		resp.AssignedTo = &AssigneeResponse{ID: *ticket.AssignedTo, Email: ticket.AssigneeEmail}
	}
	return resp
}

// NewTicketHistoryResponses maps audit entries.
func NewTicketHistoryResponses(entries []domain.TicketHistory) []TicketHistoryResponse {
	resp := make([]TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, TicketHistoryResponse{
			ID:            entry.ID,
			ChangeType:    entry.ChangeType,
			ChangedByType: entry.ChangedByType,
			ChangedByID:   entry.ChangedByID,
			OldValue:      entry.OldValue,
			NewValue:      entry.NewValue,
			CreatedAt:     entry.CreatedAt,
		})
	}
	return resp
}
