package securitylog

import (
	"context"
	"crypto/subtle"

	"github.com/upb/tutoring-platform/backend/internal/observability"
	"github.com/upb/tutoring-platform/backend/models"
	"github.com/upb/tutoring-platform/backend/repositories"
	"github.com/upb/tutoring-platform/backend/services"
	"github.com/upb/tutoring-platform/backend/utils"
	"go.uber.org/zap"
)

// RequestContext carries what the transport knows about the caller
type RequestContext struct {
	ClientIP   string
	Credential string
	RequestID  string
	UserAgent  string
}

// Service is the single write path for security log records
type Service struct {
	repo   repositories.SecurityLogRepository
	secret []byte
	logger *zap.Logger
}

// NewService creates a Service. An empty secret disables ingestion
// authentication entirely, which is logged as a warning.
func NewService(repo repositories.SecurityLogRepository, secret string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if secret == "" {
		logger.Warn("security log ingestion secret not configured, accepting unauthenticated submissions")
	}
	return &Service{
		repo:   repo,
		secret: []byte(secret),
		logger: logger,
	}
}

// AuthEnabled reports whether submissions must present the shared credential
func (s *Service) AuthEnabled() bool {
	return len(s.secret) > 0
}

// Submit authenticates, validates and persists one externally reported event.
// It returns a domain error of type unauthorized, validation or internal.
// Nothing is written unless every check passes.
func (s *Service) Submit(ctx context.Context, raw []byte, rc RequestContext) (*models.SecurityLogRecord, error) {
	logger := s.logger.With(observability.RequestFields(rc.RequestID, rc.ClientIP)...)

	if !s.authenticate(rc.Credential) {
		observability.SecurityLogSubmissionsTotal.WithLabelValues(observability.ResultUnauthorized).Inc()
		logger.Warn("security log submission rejected: invalid credential",
			zap.Bool("credential_present", rc.Credential != ""),
			zap.String("user_agent", rc.UserAgent))
		return nil, services.ErrInvalidCredential
	}

	req, err := ValidatePayload(raw)
	if err != nil {
		observability.SecurityLogSubmissionsTotal.WithLabelValues(observability.ResultInvalid).Inc()
		logger.Info("security log submission rejected: invalid payload", zap.Error(err))
		return nil, invalidPayload(err)
	}

	record, err := s.persist(ctx, req, rc.ClientIP, logger)
	if err != nil {
		observability.SecurityLogSubmissionsTotal.WithLabelValues(observability.ResultError).Inc()
		return nil, err
	}

	observability.SecurityLogSubmissionsTotal.WithLabelValues(observability.ResultAccepted).Inc()
	return record, nil
}

// Append validates and persists an event raised inside this process.
// No credential is checked because the caller is already trusted.
func (s *Service) Append(ctx context.Context, req *SubmitRequest, ip string) (*models.SecurityLogRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, invalidPayload(err)
	}
	return s.persist(ctx, req, ip, s.logger)
}

func (s *Service) authenticate(credential string) bool {
	if !s.AuthEnabled() {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(credential), s.secret) == 1
}

func (s *Service) persist(ctx context.Context, req *SubmitRequest, ip string, logger *zap.Logger) (*models.SecurityLogRecord, error) {
	record := req.ToRecord(ip)

	if err := s.repo.Insert(ctx, record); err != nil {
		logger.Error("failed to persist security log",
			zap.Error(err),
			zap.String("id", record.ID.String()),
			zap.String("event", string(record.Event)),
			zap.String("outcome", string(record.Outcome)))
		return nil, services.WrapInternal("failed to persist security log", err)
	}

	observability.SecurityLogEventsTotal.WithLabelValues(string(record.Event), string(record.Outcome)).Inc()
	logger.Info("security log recorded",
		zap.String("id", record.ID.String()),
		zap.String("event", string(record.Event)),
		zap.String("outcome", string(record.Outcome)))
	return record, nil
}

// invalidPayload converts a validation failure into a validation domain error
// whose details name each offending field.
func invalidPayload(err error) error {
	domainErr := services.NewDomainError(services.ErrorTypeValidation, "invalid security log payload", err)
	for field, msg := range utils.GetValidationFields(err) {
		domainErr.WithDetail(field, msg)
	}
	return domainErr
}
