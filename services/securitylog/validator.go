package securitylog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/upb/tutoring-platform/backend/models"
	"github.com/upb/tutoring-platform/backend/utils"
)

func init() {
	utils.RegisterValidation("security_event", func(fl validator.FieldLevel) bool {
		return models.IsKnownEvent(models.SecurityEvent(fl.Field().String()))
	}, "is not a recognised security event")

	utils.RegisterValidation("security_outcome", func(fl validator.FieldLevel) bool {
		return models.IsValidOutcome(models.Outcome(fl.Field().String()))
	}, "must be one of: success failure")
}

// SubmitRequest is the validated shape of an ingestion payload.
// Fields outside this struct, ip included, are dropped during decoding.
// Only event and outcome are checked; the descriptive fields are stored as sent.
type SubmitRequest struct {
	Event    models.SecurityEvent   `json:"event" validate:"required,security_event"`
	Outcome  models.Outcome         `json:"outcome" validate:"required,security_outcome"`
	UserID   string                 `json:"userId,omitempty"`
	Email    string                 `json:"email,omitempty"`
	Resource string                 `json:"resource,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// payloadFields are the JSON keys of SubmitRequest, spelled as accepted
var payloadFields = []string{"event", "outcome", "userId", "email", "resource", "message", "metadata"}

// ValidatePayload decodes raw JSON and validates it against the event catalogue.
// On failure it returns a *utils.ValidationError naming every bad field.
func ValidatePayload(raw []byte) (*SubmitRequest, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, utils.NewFieldError("body", "body is required")
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, decodeError(err)
	}
	if err := checkFieldNames(keys); err != nil {
		return nil, err
	}

	var req SubmitRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, decodeError(err)
	}

	if err := utils.ValidateStruct(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate checks an already-decoded request
func (r *SubmitRequest) Validate() error {
	return utils.ValidateStruct(r)
}

// ToRecord builds the record to persist. ip always comes from the request context.
func (r *SubmitRequest) ToRecord(ip string) *models.SecurityLogRecord {
	return models.NewSecurityLogRecord(r.Event, r.Outcome).
		WithUser(r.UserID, r.Email).
		WithResource(r.Resource).
		WithMessage(r.Message).
		WithMetadata(r.Metadata).
		WithIP(ip)
}

// checkFieldNames rejects keys that differ from a payload field only by case.
// encoding/json would otherwise bind them to that field.
func checkFieldNames(keys map[string]json.RawMessage) *utils.ValidationError {
	var verr *utils.ValidationError
	for key := range keys {
		for _, field := range payloadFields {
			if key == field || !strings.EqualFold(key, field) {
				continue
			}
			if verr == nil {
				verr = &utils.ValidationError{Message: "Validation failed", Fields: map[string]string{}}
			}
			verr.Fields[key] = fmt.Sprintf("%s is not a recognised field (did you mean %s?)", key, field)
		}
	}
	return verr
}

func decodeError(err error) *utils.ValidationError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return utils.NewFieldError("body", "body must be a JSON object")
		}
		return utils.NewFieldError(typeErr.Field, fmt.Sprintf("%s must be of type %s", typeErr.Field, jsonKind(typeErr.Type.Kind().String())))
	}
	return utils.NewFieldError("body", "body must be valid JSON")
}

func jsonKind(goKind string) string {
	switch goKind {
	case "map", "struct":
		return "object"
	default:
		return goKind
	}
}
