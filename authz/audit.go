package authz

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sidesa-id/sidesa/db"
)

// AuditLogger is the append-only sink for security-relevant events. The
// engine only writes to it; it is never part of a decision.
type AuditLogger interface {
	Record(ctx context.Context, entry db.AuditEntry) error
}

// SQLAuditLogger appends entries to the audit_log table.
type SQLAuditLogger struct {
	db *sql.DB
}

func NewSQLAuditLogger(db *sql.DB) *SQLAuditLogger {
	return &SQLAuditLogger{db: db}
}

var _ AuditLogger = (*SQLAuditLogger)(nil)

func (l *SQLAuditLogger) Record(ctx context.Context, entry db.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	var metadata interface{}
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		metadata = string(raw)
	}

	var userID interface{}
	if entry.UserID != "" {
		userID = entry.UserID
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, user_id, action, resource_type, resource_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, entry.ID, userID, entry.Action, entry.ResourceType, entry.ResourceID, metadata)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// privilegedPermission reports whether a denial of this permission should be
// audit-logged. Ordinary reads are skipped to bound audit volume.
func privilegedPermission(name string) bool {
	if strings.Contains(name, ":create") || strings.Contains(name, ":verify") || strings.Contains(name, ":approve") {
		return true
	}
	return strings.Contains(name, ":manage")
}
