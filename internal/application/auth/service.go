package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	appAudit "github.com/dealdesk/dealdesk/internal/application/audit"
	"github.com/dealdesk/dealdesk/internal/domain/audit"
	"github.com/dealdesk/dealdesk/internal/domain/operator"
	"github.com/dealdesk/dealdesk/internal/domain/session"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrOperatorDisabled   = errors.New("operator is disabled")
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrForbidden          = errors.New("insufficient role")
)

// Transactor runs fn in one storage transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service handles operator authentication.
type Service struct {
	operatorRepo operator.Repository
	sessionRepo  session.Repository
	tx           Transactor
	auditSvc     *appAudit.Service
	sessionTTL   time.Duration
	logger       zerolog.Logger
	now          func() time.Time
}

// NewService creates an auth service.
func NewService(
	operatorRepo operator.Repository,
	sessionRepo session.Repository,
	tx Transactor,
	auditSvc *appAudit.Service,
	sessionTTL time.Duration,
	logger zerolog.Logger,
) *Service {
	return &Service{
		operatorRepo: operatorRepo,
		sessionRepo:  sessionRepo,
		tx:           tx,
		auditSvc:     auditSvc,
		sessionTTL:   sessionTTL,
		logger:       logger.With().Str("service", "auth").Logger(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// LoginResult contains login response.
type LoginResult struct {
	Operator *operator.Operator
	Session  *session.Session
	Token    string
}

// CreateOperator adds an operator. actor is "system:cli" for bootstrap.
func (s *Service) CreateOperator(ctx context.Context, username, password string, role operator.Role, groups []string, actor string) (*operator.Operator, error) {
	o, err := operator.NewOperator(username, password, role, groups)
	if err != nil {
		return nil, err
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.operatorRepo.Create(ctx, o); err != nil {
			return err
		}
		return s.auditSvc.LogSync(ctx, &audit.AuditEntry{
			EntityType: audit.EntityTypeOperator,
			EntityID:   o.OperatorID.String(),
			Action:     audit.ActionCreate,
			Actor:      actor,
			NewValues: map[string]interface{}{
				"username": o.Username,
				"role":     o.Role,
				"groups":   o.Groups,
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create operator: %w", err)
	}
	s.logger.Info().Str("operatorId", o.OperatorID.String()).Str("role", string(o.Role)).Msg("operator created")
	return o, nil
}

// HasOperators reports whether any operator exists.
func (s *Service) HasOperators(ctx context.Context) (bool, error) {
	n, err := s.operatorRepo.Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Login authenticates an operator and creates a session.
func (s *Service) Login(ctx context.Context, username, password string, userAgent, ipAddress *string) (*LoginResult, error) {
	o, err := s.operatorRepo.GetByUsername(ctx, operator.NormalizeUsername(username))
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrInvalidCredentials
	}
	if !o.IsActive() {
		return nil, ErrOperatorDisabled
	}
	if !operator.VerifyPassword(o.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	sess := session.New(o.OperatorID, hashToken(token), s.sessionTTL, s.now(), userAgent, ipAddress)
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, &audit.AuditEntry{
		EntityType: audit.EntityTypeOperator,
		EntityID:   o.OperatorID.String(),
		Action:     audit.ActionLogin,
		Actor:      o.ActorString(),
		SessionID:  sess.SessionID.String(),
	})
	s.logger.Info().Str("operatorId", o.OperatorID.String()).Msg("operator login")
	return &LoginResult{Operator: o, Session: sess, Token: token}, nil
}

// Authenticate validates a session token and returns the operator.
func (s *Service) Authenticate(ctx context.Context, token string) (*operator.Operator, *session.Session, error) {
	if token == "" {
		return nil, nil, ErrUnauthenticated
	}
	sess, err := s.sessionRepo.GetByTokenHash(ctx, hashToken(token))
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, ErrUnauthenticated
	}
	now := s.now()
	if sess.Expired(now) {
		_ = s.sessionRepo.Delete(ctx, sess.SessionID)
		return nil, nil, fmt.Errorf("%w: session expired", ErrUnauthenticated)
	}
	o, err := s.operatorRepo.GetByID(ctx, sess.OperatorID)
	if err != nil {
		return nil, nil, err
	}
	if o == nil || !o.IsActive() {
		return nil, nil, fmt.Errorf("%w: operator not active", ErrUnauthenticated)
	}
	if err := s.sessionRepo.Touch(ctx, sess.SessionID, now); err != nil {
		s.logger.Warn().Err(err).Str("sessionId", sess.SessionID.String()).Msg("session touch failed")
	}
	return o, sess, nil
}

// Logout deletes a session token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessionRepo.DeleteByTokenHash(ctx, hashToken(token))
}

// PurgeExpired removes expired sessions.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	n, err := s.sessionRepo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debug().Int("count", n).Msg("purged expired sessions")
	}
	return n, nil
}

// Authorize checks that o holds one of roles.
func Authorize(o *operator.Operator, roles ...operator.Role) error {
	if o == nil {
		return ErrUnauthenticated
	}
	for _, r := range roles {
		if o.Role == r {
			return nil
		}
	}
	return ErrForbidden
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
