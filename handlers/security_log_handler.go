package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/upb/tutoring-platform/backend/middleware"
	"github.com/upb/tutoring-platform/backend/models"
	"github.com/upb/tutoring-platform/backend/services"
	"github.com/upb/tutoring-platform/backend/services/securitylog"
	"github.com/upb/tutoring-platform/backend/utils"
	"go.uber.org/zap"
)

// SecurityLogSubmitter is the write path the ingestion handler depends on
type SecurityLogSubmitter interface {
	Submit(ctx context.Context, raw []byte, rc securitylog.RequestContext) (*models.SecurityLogRecord, error)
}

// AccessDeniedRecorder audits ingestion attempts refused for their credential.
// *securitylog.Recorder satisfies it.
type AccessDeniedRecorder interface {
	AccessDenied(userID, resource, ip, reason string) error
}

// SubmitResponse is the body of a successful ingestion
type SubmitResponse struct {
	Success   bool      `json:"success"`
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// CatalogueResponse lists the events and outcomes accepted by ingestion
type CatalogueResponse struct {
	Events   []models.CatalogueEntry `json:"events"`
	Outcomes []models.Outcome        `json:"outcomes"`
}

// SecurityLogHandler handles security log HTTP requests
type SecurityLogHandler struct {
	service      SecurityLogSubmitter
	headerName   string
	maxBodyBytes int64
	recorder     AccessDeniedRecorder
	logger       *zap.Logger
}

// NewSecurityLogHandler creates a new SecurityLogHandler. The shared
// credential is read from headerName and bodies above maxBodyBytes are refused.
func NewSecurityLogHandler(service SecurityLogSubmitter, headerName string, maxBodyBytes int64, logger *zap.Logger) *SecurityLogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecurityLogHandler{
		service:      service,
		headerName:   headerName,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// WithRecorder makes the handler emit an access.denied event for every
// submission rejected as unauthorized.
func (h *SecurityLogHandler) WithRecorder(recorder AccessDeniedRecorder) *SecurityLogHandler {
	h.recorder = recorder
	return h
}

// HandleSubmit handles POST /api/v1/security-logs
func (h *SecurityLogHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = utils.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
			return
		}
		h.logger.Warn("failed to read security log body", zap.Error(err))
		HandleValidationError(w, utils.NewFieldError("body", "body could not be read"), h.logger)
		return
	}

	ctx := r.Context()
	rc := securitylog.RequestContext{
		ClientIP:   middleware.GetClientIPFromContext(ctx),
		Credential: r.Header.Get(h.headerName),
		RequestID:  middleware.GetRequestIDFromContext(ctx),
		UserAgent:  r.UserAgent(),
	}
	record, err := h.service.Submit(ctx, raw, rc)
	if err != nil {
		if services.IsUnauthorizedError(err) {
			h.recordDenied(r.URL.Path, rc)
		}
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteCreated(w, SubmitResponse{
		Success:   true,
		ID:        record.ID,
		CreatedAt: record.CreatedAt,
	}); err != nil {
		h.logger.Error("failed to write security log response", zap.Error(err))
	}
}

func (h *SecurityLogHandler) recordDenied(resource string, rc securitylog.RequestContext) {
	if h.recorder == nil {
		return
	}
	reason := "invalid ingestion credential"
	if rc.Credential == "" {
		reason = "missing ingestion credential"
	}
	if err := h.recorder.AccessDenied("", resource, rc.ClientIP, reason); err != nil {
		h.logger.Debug("access denied event not recorded",
			zap.String("request_id", rc.RequestID),
			zap.Error(err))
	}
}

// HandleEvents handles GET /api/v1/security-logs/events
func (h *SecurityLogHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, CatalogueResponse{
		Events:   models.Catalogue(),
		Outcomes: models.Outcomes(),
	})
}
