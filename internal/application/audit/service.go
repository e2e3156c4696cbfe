package audit

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dealdesk/dealdesk/internal/domain/audit"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

var (
	// ErrNotFound is returned when an audit entry does not exist.
	ErrNotFound = errors.New("audit log not found")
	// ErrInvalidCursor is returned for a cursor this service did not issue.
	ErrInvalidCursor = errors.New("invalid audit cursor")
)

// Service writes and reads the append-only audit trail. Deal, contract and
// invoice changes are recorded through LogSync so the entry commits or rolls
// back with the change it describes.
type Service struct {
	repo    audit.Repository
	logger  zerolog.Logger
	signKey []byte
}

func NewService(repo audit.Repository, logger zerolog.Logger, signKey []byte) *Service {
	return &Service{
		repo:    repo,
		signKey: signKey,
		logger:  logger.With().Str("service", "audit").Logger(),
	}
}

// Signed reports whether new entries carry an HMAC signature.
func (s *Service) Signed() bool {
	return len(s.signKey) > 0
}

// Log writes an entry in the background. Only operator session events go
// through here.
func (s *Service) Log(ctx context.Context, entry *audit.AuditEntry) {
	go func() {
		if err := s.LogSync(context.WithoutCancel(ctx), entry); err != nil {
			s.logger.Error().Err(err).
				Str("entityType", string(entry.EntityType)).
				Str("entityId", entry.EntityID).
				Str("action", string(entry.Action)).
				Msg("async audit write failed")
		}
	}()
}

// LogSync builds, signs and stores an entry using ctx, so it joins the
// caller's transaction when ctx carries one. Trace, session and role fields
// left empty are taken from the Origin on ctx.
func (s *Service) LogSync(ctx context.Context, entry *audit.AuditEntry) error {
	rec, err := audit.NewAuditLog(FromContext(ctx, entry))
	if err != nil {
		return fmt.Errorf("build audit log: %w", err)
	}
	if s.Signed() {
		if rec.Signature, err = audit.SignAuditLog(rec, s.signKey); err != nil {
			return fmt.Errorf("sign audit log: %w", err)
		}
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return fmt.Errorf("save audit log: %w", err)
	}

	withEntry(s.logger.Debug(), rec).Msg("audit log written")
	switch rec.RiskLevel {
	case audit.RiskLevelHigh, audit.RiskLevelCritical:
		withEntry(s.logger.Warn(), rec).Msg("high-risk change recorded")
	}
	return nil
}

func withEntry(ev *zerolog.Event, rec *audit.AuditLog) *zerolog.Event {
	return ev.
		Str("auditId", rec.AuditID.String()).
		Str("entityType", string(rec.EntityType)).
		Str("entityId", rec.EntityID).
		Str("action", string(rec.Action)).
		Str("actor", rec.Actor).
		Str("riskLevel", string(rec.RiskLevel))
}

// Page selects one page of a keyset-paginated query. Cursor is the opaque
// value returned as Pagination.Cursor by the previous page.
type Page struct {
	Cursor string
	Limit  int
}

// QueryResult is one page of audit entries.
type QueryResult struct {
	Logs       []*audit.AuditLog `json:"logs"`
	Pagination Pagination        `json:"pagination"`
	TraceID    string            `json:"traceId"`
}

type Pagination struct {
	Cursor  *string `json:"cursor,omitempty"`
	HasMore bool    `json:"hasMore"`
	Count   int     `json:"count"`
}

// Query returns entries matching filter, newest first.
func (s *Service) Query(ctx context.Context, filter audit.QueryFilter, page Page, traceID string) (*QueryResult, error) {
	limit := page.Limit
	switch {
	case limit <= 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}

	var from *audit.Cursor
	if page.Cursor != "" {
		c, err := decodeCursor(page.Cursor)
		if err != nil {
			return nil, err
		}
		from = c
	}

	logs, next, err := s.repo.Query(ctx, filter, from, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("traceId", traceID).Msg("audit query failed")
		return nil, fmt.Errorf("query audit logs: %w", err)
	}

	res := &QueryResult{
		Logs:       logs,
		TraceID:    traceID,
		Pagination: Pagination{Count: len(logs), HasMore: next != nil},
	}
	if next != nil {
		encoded := encodeCursor(next)
		res.Pagination.Cursor = &encoded
	}
	return res, nil
}

func (s *Service) GetByID(ctx context.Context, auditID uuid.UUID, traceID string) (*audit.AuditLog, error) {
	return s.load(ctx, auditID, traceID)
}

// History returns every entry recorded for one deal, contract, invoice or
// other entity, newest first.
func (s *Service) History(ctx context.Context, entityType audit.EntityType, entityID, traceID string) ([]*audit.AuditLog, error) {
	logs, err := s.repo.GetByEntityID(ctx, entityType, entityID)
	if err != nil {
		s.logger.Error().Err(err).
			Str("traceId", traceID).
			Str("entityType", string(entityType)).
			Str("entityId", entityID).
			Msg("entity history lookup failed")
		return nil, fmt.Errorf("get entity history: %w", err)
	}
	return logs, nil
}

// VerifyResult reports whether an entry's signature still matches its content.
type VerifyResult struct {
	AuditID  uuid.UUID `json:"auditId"`
	Verified bool      `json:"verified"`
	Message  string    `json:"message"`
}

func (s *Service) VerifyIntegrity(ctx context.Context, auditID uuid.UUID, traceID string) (*VerifyResult, error) {
	rec, err := s.load(ctx, auditID, traceID)
	if err != nil {
		return nil, err
	}

	res := &VerifyResult{AuditID: auditID}
	if !s.Signed() {
		res.Message = "audit signing is not configured"
		return res, nil
	}
	if len(rec.Signature) == 0 {
		res.Message = "entry is not signed"
		return res, nil
	}

	ok, err := audit.VerifyAuditLogSignature(rec, s.signKey)
	if err != nil {
		return nil, fmt.Errorf("verify audit signature: %w", err)
	}
	res.Verified = ok
	if ok {
		res.Message = "signature matches"
	} else {
		res.Message = "signature mismatch"
		withEntry(s.logger.Warn(), rec).Str("traceId", traceID).Msg("audit entry failed verification")
	}
	return res, nil
}

func (s *Service) load(ctx context.Context, auditID uuid.UUID, traceID string) (*audit.AuditLog, error) {
	rec, err := s.repo.GetByID(ctx, auditID)
	if err != nil {
		s.logger.Error().Err(err).
			Str("traceId", traceID).
			Str("auditId", auditID.String()).
			Msg("audit lookup failed")
		return nil, fmt.Errorf("get audit log: %w", err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Cursors are "<createdAt unix nanos>.<id>", base64url encoded.
func encodeCursor(c *audit.Cursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + "." + strconv.FormatInt(c.ID, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (*audit.Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	ts, id, ok := strings.Cut(string(raw), ".")
	if !ok {
		return nil, ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &audit.Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: n}, nil
}
