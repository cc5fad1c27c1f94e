package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// SecurityEvent identifies a kind of auditable security event
type SecurityEvent string

const (
	// Authentication
	EventSignIn    SecurityEvent = "auth.signin"
	EventSignOut   SecurityEvent = "auth.signout"
	EventAuthError SecurityEvent = "auth.error"

	// Authorization
	EventAccessGranted SecurityEvent = "access.granted"
	EventAccessDenied  SecurityEvent = "access.denied"

	// Validation
	EventValidationFailed SecurityEvent = "validation.failed"

	// CRUD
	EventCreate SecurityEvent = "crud.create"
	EventRead   SecurityEvent = "crud.read"
	EventUpdate SecurityEvent = "crud.update"
	EventDelete SecurityEvent = "crud.delete"
)

// EventCategory groups related security events
type EventCategory string

const (
	CategoryAuthentication EventCategory = "authentication"
	CategoryAuthorization  EventCategory = "authorization"
	CategoryValidation     EventCategory = "validation"
	CategoryCRUD           EventCategory = "crud"
)

// Outcome is the binary result of an audited action
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// catalogue is initialised once and never mutated afterwards, so concurrent
// readers need no synchronization.
var catalogue = map[SecurityEvent]EventCategory{
	EventSignIn:           CategoryAuthentication,
	EventSignOut:          CategoryAuthentication,
	EventAuthError:        CategoryAuthentication,
	EventAccessGranted:    CategoryAuthorization,
	EventAccessDenied:     CategoryAuthorization,
	EventValidationFailed: CategoryValidation,
	EventCreate:           CategoryCRUD,
	EventRead:             CategoryCRUD,
	EventUpdate:           CategoryCRUD,
	EventDelete:           CategoryCRUD,
}

// CatalogueEntry describes one recognised event
type CatalogueEntry struct {
	Event    SecurityEvent `json:"event"`
	Category EventCategory `json:"category"`
}

// IsKnownEvent reports whether the event belongs to the catalogue
func IsKnownEvent(event SecurityEvent) bool {
	_, ok := catalogue[event]
	return ok
}

// IsValidOutcome reports whether the outcome is success or failure
func IsValidOutcome(outcome Outcome) bool {
	return outcome == OutcomeSuccess || outcome == OutcomeFailure
}

// CategoryOf returns the category of a known event
func CategoryOf(event SecurityEvent) (EventCategory, bool) {
	category, ok := catalogue[event]
	return category, ok
}

// Catalogue returns every recognised event sorted by name.
// The returned slice is a copy and may be modified by the caller.
func Catalogue() []CatalogueEntry {
	entries := make([]CatalogueEntry, 0, len(catalogue))
	for event, category := range catalogue {
		entries = append(entries, CatalogueEntry{Event: event, Category: category})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Event < entries[j].Event
	})
	return entries
}

// Outcomes returns the accepted outcome values
func Outcomes() []Outcome {
	return []Outcome{OutcomeSuccess, OutcomeFailure}
}

// SecurityLogRecord is a persisted security audit entry.
// Records are append-only; CreatedAt is assigned by the database.
type SecurityLogRecord struct {
	ID         uuid.UUID              `json:"id" db:"id"`
	Event      SecurityEvent          `json:"event" db:"event"`
	Outcome    Outcome                `json:"outcome" db:"outcome"`
	UserID     *string                `json:"userId,omitempty" db:"user_id"`
	ActorEmail *string                `json:"actorEmail,omitempty" db:"actor_email"`
	Resource   *string                `json:"resource,omitempty" db:"resource"`
	Message    *string                `json:"message,omitempty" db:"message"`
	IP         *string                `json:"ip,omitempty" db:"ip"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" db:"metadata"` // JSONB, stored as-is
	CreatedAt  time.Time              `json:"createdAt" db:"created_at"`
}

// TableName returns the table name for the SecurityLogRecord model
func (SecurityLogRecord) TableName() string {
	return "security_logs"
}

// NewSecurityLogRecord creates a record for the given event and outcome
func NewSecurityLogRecord(event SecurityEvent, outcome Outcome) *SecurityLogRecord {
	return &SecurityLogRecord{
		ID:      uuid.New(),
		Event:   event,
		Outcome: outcome,
	}
}

// WithUser sets the acting principal
func (r *SecurityLogRecord) WithUser(userID, email string) *SecurityLogRecord {
	r.UserID = optional(userID)
	r.ActorEmail = optional(email)
	return r
}

// WithResource sets the object acted upon
func (r *SecurityLogRecord) WithResource(resource string) *SecurityLogRecord {
	r.Resource = optional(resource)
	return r
}

// WithMessage sets the free-text description
func (r *SecurityLogRecord) WithMessage(message string) *SecurityLogRecord {
	r.Message = optional(message)
	return r
}

// WithIP sets the request origin
func (r *SecurityLogRecord) WithIP(ip string) *SecurityLogRecord {
	r.IP = optional(ip)
	return r
}

// WithMetadata sets event-specific context
func (r *SecurityLogRecord) WithMetadata(metadata map[string]interface{}) *SecurityLogRecord {
	if len(metadata) > 0 {
		r.Metadata = metadata
	}
	return r
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
