package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sidesa-id/sidesa/authz"
	"github.com/sidesa-id/sidesa/db"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserDisabled       = errors.New("account is disabled")
)

// AuthService handles sign-in, sign-out and password changes. Authorization
// decisions live in the authz engine; this service only manages credentials
// and sessions.
type AuthService struct {
	PG         *sql.DB
	Sessions   authz.SessionStore
	JWTSecret  string
	TokenTTL   time.Duration
	SessionTTL time.Duration
}

func NewAuthService(pg *sql.DB, sessions authz.SessionStore, jwtSecret string, tokenTTL, sessionTTL time.Duration) *AuthService {
	return &AuthService{
		PG:         pg,
		Sessions:   sessions,
		JWTSecret:  jwtSecret,
		TokenTTL:   tokenTTL,
		SessionTTL: sessionTTL,
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	User  db.User `json:"user"`
	Token string  `json:"token"`
}

// HashPassword creates a bcrypt hash of the password
func (s *AuthService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// Login verifies the password, opens a session and issues a bearer token
// carrying (user_id, session_token).
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var user db.User
	err := s.PG.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, user_level,
		       COALESCE(assigned_province_id, ''), COALESCE(assigned_regency_id, ''),
		       COALESCE(assigned_district_id, ''), COALESCE(assigned_village_id, ''),
		       can_inherit_data, inheritance_depth, is_active, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.UserLevel,
		&user.AssignedProvinceID, &user.AssignedRegencyID,
		&user.AssignedDistrictID, &user.AssignedVillageID,
		&user.CanInheritData, &user.InheritanceDepth, &user.IsActive,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}

	session, err := s.Sessions.Create(ctx, user.ID, s.SessionTTL)
	if err != nil {
		return nil, err
	}

	token, err := authz.SignCredential(s.JWTSecret, authz.Credential{
		UserID:       user.ID,
		SessionToken: session.SessionToken,
	}, s.TokenTTL)
	if err != nil {
		return nil, err
	}

	user.PasswordHash = ""
	return &LoginResponse{User: user, Token: token}, nil
}

// Logout revokes the presented session.
func (s *AuthService) Logout(ctx context.Context, userID, sessionToken string) error {
	return s.Sessions.Revoke(ctx, userID, sessionToken)
}

// ChangePassword updates the hash and revokes every session of the user,
// forcing re-authentication everywhere.
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	var hash string
	err := s.PG.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id = $1`, userID).Scan(&hash)
	if err != nil {
		if err == sql.ErrNoRows {
			return authz.ErrUserNotFound
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	newHash, err := s.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = s.PG.ExecContext(ctx, `
		UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2
	`, newHash, userID)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return s.Sessions.RevokeAllForUser(ctx, userID)
}
