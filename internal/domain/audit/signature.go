package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"
)

// signedFields is the canonical form covered by the HMAC.
type signedFields struct {
	AuditID    string   `json:"auditId"`
	EntityType string   `json:"entityType"`
	EntityID   string   `json:"entityId"`
	Action     string   `json:"action"`
	Actor      string   `json:"actor"`
	ActorRoles []string `json:"actorRoles,omitempty"`
	OldValues  string   `json:"oldValues,omitempty"`
	NewValues  string   `json:"newValues,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	RiskLevel  string   `json:"riskLevel"`
	Tags       []string `json:"tags,omitempty"`
	TraceID    string   `json:"traceId,omitempty"`
	SessionID  string   `json:"sessionId,omitempty"`
	CreatedAt  string   `json:"createdAt"`
}

func canonical(log *AuditLog) ([]byte, error) {
	f := signedFields{
		AuditID:    log.AuditID.String(),
		EntityType: string(log.EntityType),
		EntityID:   log.EntityID,
		Action:     string(log.Action),
		Actor:      log.Actor,
		ActorRoles: log.ActorRoles,
		Reason:     log.Reason,
		RiskLevel:  string(log.RiskLevel),
		Tags:       log.Tags,
		TraceID:    log.TraceID,
		SessionID:  log.SessionID,
		// Postgres keeps microseconds.
		CreatedAt: log.CreatedAt.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano),
	}
	if len(log.OldValues) > 0 {
		f.OldValues = base64.StdEncoding.EncodeToString(log.OldValues)
	}
	if len(log.NewValues) > 0 {
		f.NewValues = base64.StdEncoding.EncodeToString(log.NewValues)
	}
	return json.Marshal(f)
}

// SignAuditLog returns the HMAC-SHA256 of the log's canonical form.
func SignAuditLog(log *AuditLog, key []byte) ([]byte, error) {
	data, err := canonical(log)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(data)
	return mac.Sum(nil), nil
}

// VerifyAuditLogSignature reports whether the stored signature matches.
func VerifyAuditLogSignature(log *AuditLog, key []byte) (bool, error) {
	if len(log.Signature) == 0 {
		return false, nil
	}
	expected, err := SignAuditLog(log, key)
	if err != nil {
		return false, err
	}
	return hmac.Equal(expected, log.Signature), nil
}
