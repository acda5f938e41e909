package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/auth"
	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/repository"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

const uniqueViolation = "23505"

// AuthService coordinates registration, login and account administration.
type AuthService struct {
	users      repository.UserRepository
	publisher  events.Publisher
	tokenMgr   *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
}

// SignupInput describes a new account.
type SignupInput struct {
	Email    string
	Password string
	Skills   []string
}

// UpdateUserInput describes an admin change to another account.
type UpdateUserInput struct {
	Email  string
	Role   string
	Skills []string
}

// Session is an issued access token.
type Session struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, users repository.UserRepository, publisher events.Publisher, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      users,
		publisher:  publisher,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
		logger:     logger,
	}
}

// Signup creates a user-role account, emits user/signup and logs the user in.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*Session, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if input.Password == "" {
		return nil, apperrors.NewValidationError("password is required", nil)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", nil)
	} else if !apperrors.IsNoRows(err) {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Skills:       cleanSkills(input.Skills),
	}
	if err := s.users.Create(ctx, user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, apperrors.NewConflict("email already registered", nil)
		}
		return nil, err
	}

	s.publish(ctx, events.NameUserSignup, events.UserSignup{Email: user.Email})
	return s.issue(user)
}

// Login verifies credentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperrors.NewValidationError("email and password are required", nil)
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	return s.issue(user)
}

// Logout is a no-op; tokens are stateless and expire on their own.
func (s *AuthService) Logout(_ context.Context, _ string) error {
	return nil
}

// ListUsers returns every account.
func (s *AuthService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

// UpdateUser changes another account's role and skills. Empty skills keep
// the current set.
func (s *AuthService) UpdateUser(ctx context.Context, input UpdateUserInput) (*domain.User, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	role, ok := domain.ParseRole(input.Role)
	if !ok {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": input.Role})
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, err
	}

	skills := cleanSkills(input.Skills)
	if len(skills) == 0 {
		skills = user.Skills
	}
	if err := s.users.UpdateRoleAndSkills(ctx, email, role, skills); err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, err
	}

	user.Role = role
	user.Skills = skills
	s.logger.Info("user updated", zap.String("user_id", user.ID), zap.String("role", string(role)))
	return user, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) issue(user *domain.User) (*Session, error) {
	token, exp, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &Session{User: user, Token: token, ExpiresAt: exp}, nil
}

// publish is best effort: the account already exists and the welcome mail is optional.
func (s *AuthService) publish(ctx context.Context, name events.Name, payload any) {
	if s.publisher == nil {
		return
	}
	event, err := events.NewEvent(name, payload)
	if err == nil {
		err = s.publisher.Publish(ctx, event)
	}
	if err != nil {
		s.logger.Error("event publish failed", zap.String("event", string(name)), zap.Error(err))
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperrors.NewValidationError("email is required", nil)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperrors.NewValidationError("invalid email", map[string]any{"email": raw})
	}
	return email, nil
}

func cleanSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	seen := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
