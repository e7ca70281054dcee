package authz

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/sidesa-id/sidesa/db"
)

// sessionCacheTTL bounds how stale a cached liveness verdict can be.
const sessionCacheTTL = 5 * time.Minute

// SessionStore tracks login sessions. Validation is a precondition the
// middleware runs before any authorization decision, not part of the decision
// logic itself.
type SessionStore interface {
	// Create opens a new session for the user.
	Create(ctx context.Context, userID string, ttl time.Duration) (*db.Session, error)

	// Validate checks that a (userID, token) pair maps to a live session.
	// A non-empty code discriminates the failure: CodeSessionExpired means
	// "log in again", CodeInvalidToken means the credential never was or is
	// no longer valid. An error return is an infrastructure failure.
	Validate(ctx context.Context, userID, token string) (*db.Session, Code, error)

	// Revoke soft-revokes one session (sign-out).
	Revoke(ctx context.Context, userID, token string) error

	// RevokeAllForUser soft-revokes every session of a user (password change,
	// administrative force-logout).
	RevokeAllForUser(ctx context.Context, userID string) error
}

// SQLSessionStore implements SessionStore over the sessions table with an
// optional redis read-through cache for liveness.
type SQLSessionStore struct {
	db    *sql.DB
	cache *redis.Client
}

func NewSQLSessionStore(db *sql.DB, cache *redis.Client) *SQLSessionStore {
	return &SQLSessionStore{db: db, cache: cache}
}

var _ SessionStore = (*SQLSessionStore)(nil)

func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func sessionCacheKey(token string) string {
	return "session:" + token
}

func (s *SQLSessionStore) Create(ctx context.Context, userID string, ttl time.Duration) (*db.Session, error) {
	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	session := &db.Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		SessionToken: token,
		IsActive:     true,
		ExpiresAt:    time.Now().Add(ttl),
		CreatedAt:    time.Now(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, session_token, is_active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, session.ID, session.UserID, session.SessionToken, session.IsActive, session.ExpiresAt, session.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

func (s *SQLSessionStore) Validate(ctx context.Context, userID, token string) (*db.Session, Code, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, sessionCacheKey(token)).Result()
		if err == nil && cached == userID {
			return &db.Session{UserID: userID, SessionToken: token, IsActive: true}, "", nil
		}
		// Cache miss or redis failure: fall through to the database.
	}

	var session db.Session
	var lastActivity sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, session_token, is_active, expires_at, last_activity_at, created_at
		FROM sessions
		WHERE user_id = $1 AND session_token = $2
	`, userID, token).Scan(&session.ID, &session.UserID, &session.SessionToken,
		&session.IsActive, &session.ExpiresAt, &lastActivity, &session.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, CodeInvalidToken, nil
		}
		return nil, "", fmt.Errorf("failed to look up session: %w", err)
	}
	if lastActivity.Valid {
		session.LastActivityAt = &lastActivity.Time
	}

	if !session.IsActive {
		return nil, CodeInvalidToken, nil
	}
	if !session.ExpiresAt.After(time.Now()) {
		return nil, CodeSessionExpired, nil
	}

	// Advisory only: a failed refresh never fails the validation.
	if _, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_activity_at = NOW() WHERE id = $1`, session.ID); err != nil {
		log.Printf("authz: failed to refresh session activity: %v", err)
	}

	if s.cache != nil {
		ttl := sessionCacheTTL
		if until := time.Until(session.ExpiresAt); until < ttl {
			ttl = until
		}
		if err := s.cache.Set(ctx, sessionCacheKey(token), userID, ttl).Err(); err != nil {
			log.Printf("authz: failed to cache session: %v", err)
		}
	}

	return &session, "", nil
}

func (s *SQLSessionStore) Revoke(ctx context.Context, userID, token string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET is_active = false
		WHERE user_id = $1 AND session_token = $2
	`, userID, token)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	s.dropCached(ctx, token)
	return nil
}

func (s *SQLSessionStore) RevokeAllForUser(ctx context.Context, userID string) error {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE sessions SET is_active = false
		WHERE user_id = $1 AND is_active = true
		RETURNING session_token
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return fmt.Errorf("failed to scan revoked session: %w", err)
		}
		s.dropCached(ctx, token)
	}
	return rows.Err()
}

func (s *SQLSessionStore) dropCached(ctx context.Context, token string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, sessionCacheKey(token)).Err(); err != nil {
		log.Printf("authz: failed to drop cached session: %v", err)
	}
}
