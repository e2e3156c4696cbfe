package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is an operator login. Only the SHA-256 of the bearer token is
// stored, so a leaked sessions table cannot be replayed.
type Session struct {
	ID         int64      `json:"id"`
	SessionID  uuid.UUID  `json:"sessionId"`
	TokenHash  string     `json:"-"`
	OperatorID uuid.UUID  `json:"operatorId"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
	UserAgent  *string    `json:"userAgent,omitempty"`
	IPAddress  *string    `json:"ipAddress,omitempty"`
}

// New starts a session for operatorID that lasts ttl from now.
func New(operatorID uuid.UUID, tokenHash string, ttl time.Duration, now time.Time, userAgent, ipAddress *string) *Session {
	now = now.UTC()
	return &Session{
		SessionID:  uuid.New(),
		TokenHash:  tokenHash,
		OperatorID: operatorID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		LastSeenAt: &now,
		UserAgent:  userAgent,
		IPAddress:  ipAddress,
	}
}

// Expired reports whether the session is no longer usable at now. A session
// is still valid at exactly ExpiresAt.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
