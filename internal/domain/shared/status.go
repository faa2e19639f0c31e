package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/meetprep/backend/internal/domain/topic"
)

// StatusState is the progress of one saga step
type StatusState string

const (
	StatusStarted    StatusState = "STARTED"
	StatusProcessing StatusState = "PROCESSING"
	StatusCompleted  StatusState = "COMPLETED"
	StatusFailed     StatusState = "FAILED"
)

// IsValid reports whether s is a known state
func (s StatusState) IsValid() bool {
	switch s {
	case StatusStarted, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsFinal reports whether s ends the step
func (s StatusState) IsFinal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StatusRecord is the ledger entry of one (object, tenant, topic) step
type StatusRecord struct {
	CorrelationID string
	ObjectID      string
	TenantID      string
	Topic         topic.Topic
	ObjectType    string
	PreviousTopic topic.Topic
	State         StatusState
	ErrorMessage  string
	StartedAt     time.Time
	UpdatedAt     time.Time
}

// StartInput opens a ledger entry
type StartInput struct {
	CorrelationID  string
	ObjectID       string
	TenantID       string
	Topic          topic.Topic
	CausationTopic topic.Topic
	ObjectType     string
}

// StatusLedger is the idempotent progress store keyed by (object_id, tenant_id, topic)
type StatusLedger interface {
	// Start creates the record in state STARTED. created is false when the key already exists,
	// in which case the existing record is left untouched.
	Start(ctx context.Context, in StartInput) (created bool, err error)
	// Update moves an existing record to state. Returns ErrNotFound when absent.
	Update(ctx context.Context, objectID, tenantID string, t topic.Topic, state StatusState, errMsg string) error
	Get(ctx context.Context, objectID, tenantID string, t topic.Topic) (*StatusRecord, error)
	Delete(ctx context.Context, objectID, tenantID string, t topic.Topic) error
	ListByObject(ctx context.Context, objectID, tenantID string) ([]StatusRecord, error)
	// DeleteByObject removes every record of the object, resetting its sagas
	DeleteByObject(ctx context.Context, objectID, tenantID string) (int64, error)
}

// ObjectIDKeys is the priority list used to find the subject of a payload
var ObjectIDKeys = []string{"person_id", "company_id", "meeting_id", "object_id", "id", "email", "domain"}

// NestedObjectKeys are the nested documents searched when no top-level key matches
var NestedObjectKeys = []string{"person", "profile", "meeting", "company"}

var nestedIDKeys = []string{"id", "email", "domain"}

// ExtractObjectID returns the identifier of the object a payload is about, or ""
func ExtractObjectID(p Payload) string {
	id, _ := ExtractObjectRef(p)
	return id
}

// ExtractObjectRef returns the object identifier together with the kind of object the
// matching field names: person, company, meeting, profile or object.
func ExtractObjectRef(p Payload) (id, objectType string) {
	for _, k := range ObjectIDKeys {
		if v := scalarString(p[k]); v != "" {
			return v, objectTypeOfKey(k)
		}
	}
	for _, nk := range NestedObjectKeys {
		nested := p.Object(nk)
		if nested == nil {
			continue
		}
		for _, k := range nestedIDKeys {
			if v := scalarString(nested[k]); v != "" {
				return v, nk
			}
		}
	}
	return "", ""
}

func objectTypeOfKey(k string) string {
	switch k {
	case "person_id", "email":
		return "person"
	case "company_id", "domain":
		return "company"
	case "meeting_id":
		return "meeting"
	}
	return "object"
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	return ""
}
