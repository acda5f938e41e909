package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusCreated           TicketStatus = "CREATED"
	TicketStatusTodo              TicketStatus = "TODO"
	TicketStatusInProgress        TicketStatus = "IN_PROGRESS"
	TicketStatusNeedsManualReview TicketStatus = "NEEDS_MANUAL_REVIEW"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID            string
	Title         string
	Description   string
	Status        TicketStatus
	Priority      *TicketPriority
	RelatedSkills []string
	HelpfulNotes  *string
	AssignedTo    *string
	AssigneeEmail *string
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// stage orders statuses; both triage outcomes share the terminal stage.
func (s TicketStatus) stage() int {
	switch s {
	case TicketStatusCreated:
		return 0
	case TicketStatusTodo:
		return 1
	case TicketStatusInProgress, TicketStatusNeedsManualReview:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	return s.stage() >= 0
}

// Terminal reports whether triage has finished for the ticket.
func (s TicketStatus) Terminal() bool {
	return s.stage() == 2
}

// CanTransition reports whether status may move from one state to another.
// Status only moves forward and the two terminal states never convert into each other.
func CanTransition(from, to TicketStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	return to.stage() == from.stage()+1
}

// NormalizeTriagePriority maps classifier output onto a stored priority.
// Only low, medium and high are recognized; anything else becomes medium.
func NormalizeTriagePriority(raw string) TicketPriority {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return TicketPriorityLow
	case "high":
		return TicketPriorityHigh
	default:
		return TicketPriorityMedium
	}
}
