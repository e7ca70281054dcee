package workers

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// SessionWorker sweeps expired sessions: rows past their expiry are
// soft-revoked and their cache entries dropped so a stale cache hit cannot
// outlive the database row by more than one sweep interval.
type SessionWorker struct {
	PG       *sql.DB
	Redis    *redis.Client
	Interval time.Duration
}

func NewSessionWorker(pg *sql.DB, rdb *redis.Client, interval time.Duration) *SessionWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SessionWorker{PG: pg, Redis: rdb, Interval: interval}
}

// StartSessionWorker runs the sweep loop until the process exits.
func (w *SessionWorker) StartSessionWorker() {
	log.Println("Session worker started, sweeping expired sessions...")

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for range ticker.C {
		w.sweepExpired()
	}
}

// sweepExpired revokes all sessions past their expiry and returns their
// tokens so the cache entries can be dropped in the same pass.
func (w *SessionWorker) sweepExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := w.PG.QueryContext(ctx, `
		UPDATE sessions SET is_active = false
		WHERE is_active = true AND expires_at <= NOW()
		RETURNING session_token
	`)
	if err != nil {
		log.Printf("Session worker: failed to sweep expired sessions: %v", err)
		return
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			log.Printf("Session worker: error scanning session token: %v", err)
			continue
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		log.Printf("Session worker: sweep iteration failed: %v", err)
	}

	if len(tokens) == 0 {
		return
	}

	if w.Redis != nil {
		keys := make([]string, len(tokens))
		for i, token := range tokens {
			keys[i] = "session:" + token
		}
		if err := w.Redis.Del(ctx, keys...).Err(); err != nil {
			log.Printf("Session worker: failed to drop %d cached sessions: %v", len(keys), err)
		}
	}

	log.Printf("Session worker: revoked %d expired sessions", len(tokens))
}
