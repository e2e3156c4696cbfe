package alert

import (
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Kind names the failure an alert reports.
type Kind string

const (
	KindInvoiceIssuanceFailed   Kind = "INVOICE_ISSUANCE_FAILED"
	KindWebhookProcessingFailed Kind = "WEBHOOK_PROCESSING_FAILED"
	KindStageHandoffFailed      Kind = "STAGE_HANDOFF_FAILED"
)

// Severity of an alert.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Status of an alert in the operator queue.
type Status string

const (
	StatusOpen         Status = "OPEN"
	StatusAcknowledged Status = "ACKNOWLEDGED"
)

var (
	ErrNotFound            = errors.New("alert not found")
	ErrAlreadyAcknowledged = errors.New("alert already acknowledged")
	// ErrDuplicateOpen means an open alert already holds the dedupe key.
	ErrDuplicateOpen = errors.New("open alert with the same dedupe key exists")
)

// Alert is a failure that needs an operator because nothing retries it.
type Alert struct {
	ID             int64           `json:"id"`
	AlertID        uuid.UUID       `json:"alertId"`
	Kind           Kind            `json:"kind"`
	Severity       Severity        `json:"severity"`
	Title          string          `json:"title"`
	Message        string          `json:"message"`
	EntityType     string          `json:"entityType,omitempty"`
	EntityID       string          `json:"entityId,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	TargetGroup    *string         `json:"targetGroup,omitempty"`
	DedupeKey      *string         `json:"dedupeKey,omitempty"`
	Occurrences    int             `json:"occurrences"`
	Status         Status          `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
	LastSeenAt     time.Time       `json:"lastSeenAt"`
	AcknowledgedAt *time.Time      `json:"acknowledgedAt,omitempty"`
	AcknowledgedBy *string         `json:"acknowledgedBy,omitempty"`
	TraceID        *string         `json:"traceId,omitempty"`
}

// NewAlert creates an open alert seen once.
func NewAlert(kind Kind, severity Severity, title, message string, payload json.RawMessage) *Alert {
	now := time.Now().UTC()
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return &Alert{
		AlertID:     uuid.New(),
		Kind:        kind,
		Severity:    severity,
		Title:       title,
		Message:     message,
		Payload:     payload,
		Occurrences: 1,
		Status:      StatusOpen,
		CreatedAt:   now,
		LastSeenAt:  now,
	}
}

// SetEntity records what the alert is about and derives its dedupe key.
func (a *Alert) SetEntity(entityType, entityID string) {
	a.EntityType = entityType
	a.EntityID = entityID
	if entityID != "" {
		key := string(a.Kind) + ":" + entityType + ":" + entityID
		a.DedupeKey = &key
	}
}

func (a *Alert) SetTarget(group string) {
	if group == "" {
		a.TargetGroup = nil
		return
	}
	a.TargetGroup = &group
}

func (a *Alert) SetTraceID(traceID string) {
	if traceID != "" {
		a.TraceID = &traceID
	}
}

// Acknowledge closes the alert on behalf of an operator.
func (a *Alert) Acknowledge(by string, at time.Time) error {
	if a.Status == StatusAcknowledged {
		return ErrAlreadyAcknowledged
	}
	a.Status = StatusAcknowledged
	t := at.UTC()
	a.AcknowledgedAt = &t
	a.AcknowledgedBy = &by
	return nil
}

// Filter controls alert listing.
type Filter struct {
	Kind        *Kind
	Status      *Status
	TargetGroup *string
	Since       *time.Time
}

// SSEClient is an operator connected to the alert stream.
type SSEClient struct {
	ClientID    string
	UserID      *string
	Groups      []string
	ConnectedAt time.Time
	MessageChan chan *SSEMessage
}

func NewSSEClient(clientID string, userID *string, groups []string) *SSEClient {
	return &SSEClient{
		ClientID:    clientID,
		UserID:      userID,
		Groups:      groups,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *SSEMessage, 100),
	}
}

// InAny reports whether the client belongs to at least one of groups. An
// empty groups list addresses every client.
func (c *SSEClient) InAny(groups []string) bool {
	if len(groups) == 0 {
		return true
	}
	for _, g := range groups {
		if slices.Contains(c.Groups, g) {
			return true
		}
	}
	return false
}

func (c *SSEClient) Close() {
	close(c.MessageChan)
}

// SSEMessage is one event on the alert stream.
type SSEMessage struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewSSEMessage(event string, data json.RawMessage) *SSEMessage {
	return &SSEMessage{
		ID:        uuid.New().String(),
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
