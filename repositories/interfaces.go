package repositories

import (
	"context"

	"github.com/upb/tutoring-platform/backend/models"
)

// SecurityLogRepository is the append-only store for security log records.
// There is deliberately no update, delete or query method.
type SecurityLogRepository interface {
	// Insert appends a record and sets its CreatedAt from the store.
	// A record is either fully written or not written at all.
	Insert(ctx context.Context, record *models.SecurityLogRecord) error
}

// Repositories holds all repository instances
type Repositories struct {
	SecurityLogs SecurityLogRepository
}
