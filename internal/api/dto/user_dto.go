package dto

import (
	"time"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// SignupRequest payload for new accounts.
type SignupRequest struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Skills   []string `json:"skills"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateUserRequest payload for admin role and skill changes.
type UpdateUserRequest struct {
	Email  string   `json:"email"`
	Role   string   `json:"role"`
	Skills []string `json:"skills"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserResponse never carries the password hash.
type UserResponse struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	Skills    []string    `json:"skills"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(user *domain.User) UserResponse {
	skills := user.Skills
	if skills == nil {
		skills = []string{}
	}
	return UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Role:      user.Role,
		Skills:    skills,
		CreatedAt: user.CreatedAt,
	}
}
