package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/upb/tutoring-platform/backend/models"
	"github.com/upb/tutoring-platform/backend/repositories"
	"go.uber.org/zap"
)

// SecurityLogRepository implements repositories.SecurityLogRepository
type SecurityLogRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSecurityLogRepository creates a new security log repository
func NewSecurityLogRepository(db *DB, logger *zap.Logger) repositories.SecurityLogRepository {
	return &SecurityLogRepository{
		db:     db,
		logger: logger,
	}
}

const insertSecurityLogQuery = `
	INSERT INTO security_logs (
		id, event, outcome, user_id, actor_email, resource, message, ip, metadata
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9
	)
	RETURNING created_at
`

// Insert appends one record. created_at comes from the column default.
func (r *SecurityLogRepository) Insert(ctx context.Context, record *models.SecurityLogRecord) error {
	metadata, err := marshalMetadata(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode security log metadata: %w", err)
	}

	err = r.db.QueryRowContext(ctx, insertSecurityLogQuery,
		record.ID,
		record.Event,
		record.Outcome,
		record.UserID,
		record.ActorEmail,
		record.Resource,
		record.Message,
		record.IP,
		metadata,
	).Scan(&record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert security log: %w", err)
	}

	r.logger.Debug("security log inserted",
		zap.String("id", record.ID.String()),
		zap.String("event", string(record.Event)))
	return nil
}

// marshalMetadata encodes metadata for the JSONB column; empty maps become NULL
func marshalMetadata(metadata map[string]interface{}) (interface{}, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	return b, nil
}
