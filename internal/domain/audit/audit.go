package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies what an audit entry is about.
type EntityType string

const (
	EntityTypeDeal             EntityType = "DEAL"
	EntityTypeContract         EntityType = "CONTRACT"
	EntityTypeSignatureRequest EntityType = "SIGNATURE_REQUEST"
	EntityTypeInvoice          EntityType = "INVOICE"
	EntityTypeOperator         EntityType = "OPERATOR"
	EntityTypeAlert            EntityType = "ALERT"
)

// Action is the verb of an audit entry.
type Action string

const (
	ActionCreate       Action = "CREATE"
	ActionStageChange  Action = "STAGE_CHANGE"
	ActionStatusChange Action = "STATUS_CHANGE"
	ActionSign         Action = "SIGN"
	ActionIssue        Action = "ISSUE"
	ActionVoid         Action = "VOID"
	ActionAcknowledge  Action = "ACKNOWLEDGE"
	ActionLogin        Action = "LOGIN"
	ActionLogout       Action = "LOGOUT"
)

// RiskLevel classifies how sensitive an operation is.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// AuditLog is one immutable audit record.
type AuditLog struct {
	ID         int64           `json:"id"`
	AuditID    uuid.UUID       `json:"auditId"`
	EntityType EntityType      `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Action     Action          `json:"action"`
	Actor      string          `json:"actor"`
	ActorRoles []string        `json:"actorRoles,omitempty"`
	OldValues  json.RawMessage `json:"oldValues,omitempty"`
	NewValues  json.RawMessage `json:"newValues,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	RiskLevel  RiskLevel       `json:"riskLevel"`
	Tags       []string        `json:"tags,omitempty"`
	Signature  []byte          `json:"signature,omitempty"`
	TraceID    string          `json:"traceId,omitempty"`
	SessionID  string          `json:"sessionId,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// AuditEntry is the input for writing an audit log.
type AuditEntry struct {
	EntityType EntityType
	EntityID   string
	Action     Action
	Actor      string
	ActorRoles []string
	OldValues  interface{}
	NewValues  interface{}
	Reason     string
	Tags       []string
	TraceID    string
	SessionID  string
}

// QueryFilter narrows audit log queries.
type QueryFilter struct {
	EntityType *EntityType
	EntityID   *string
	Action     *Action
	Actor      *string
	RiskLevel  *RiskLevel
	StartTime  *time.Time
	EndTime    *time.Time
	Tags       []string
	TraceID    *string
}

// Cursor is a keyset pagination position.
type Cursor struct {
	CreatedAt time.Time `json:"ts"`
	ID        int64     `json:"id"`
}

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

// Repository is append-only: there is no update or delete.
type Repository interface {
	Create(ctx context.Context, entry *AuditLog) error
	GetByID(ctx context.Context, auditID uuid.UUID) (*AuditLog, error)
	Query(ctx context.Context, filter QueryFilter, cursor *Cursor, limit int) ([]*AuditLog, *Cursor, error)
	GetByEntityID(ctx context.Context, entityType EntityType, entityID string) ([]*AuditLog, error)
}

// DetermineRiskLevel maps an operation to its risk level.
func DetermineRiskLevel(entityType EntityType, action Action) RiskLevel {
	switch {
	case entityType == EntityTypeInvoice && action == ActionVoid:
		return RiskLevelCritical
	case entityType == EntityTypeInvoice, entityType == EntityTypeOperator:
		return RiskLevelHigh
	case entityType == EntityTypeContract && action == ActionSign:
		return RiskLevelMedium
	case action == ActionStageChange:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// NewAuditLog builds a log from an entry, marshalling old and new values.
func NewAuditLog(entry *AuditEntry) (*AuditLog, error) {
	log := &AuditLog{
		AuditID:    uuid.New(),
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		Actor:      entry.Actor,
		ActorRoles: entry.ActorRoles,
		Reason:     entry.Reason,
		Tags:       entry.Tags,
		TraceID:    entry.TraceID,
		SessionID:  entry.SessionID,
		RiskLevel:  DetermineRiskLevel(entry.EntityType, entry.Action),
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	if entry.OldValues != nil {
		data, err := json.Marshal(entry.OldValues)
		if err != nil {
			return nil, err
		}
		log.OldValues = data
	}
	if entry.NewValues != nil {
		data, err := json.Marshal(entry.NewValues)
		if err != nil {
			return nil, err
		}
		log.NewValues = data
	}
	return log, nil
}
