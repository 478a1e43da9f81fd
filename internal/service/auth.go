package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
	"github.com/boddenberg/ledger-overview-bfa/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var authTracer = otel.Tracer("service/auth")

const tokenIssuer = "ledger-overview-bfa"

// AuthService issues and validates sessions. A subject logs in by id and
// name; there are no passwords in the ledger schema.
type AuthService struct {
	directory port.SubjectDirectory
	jwtSecret []byte
	accessTTL time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuthService creates a new auth service.
func NewAuthService(directory port.SubjectDirectory, jwtSecret string, accessTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		directory: directory,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
		logger:    logger,
		now:       time.Now,
	}
}

// ============================================================
// Login: POST /api/v1/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	subject, err := domain.ParseSubject(req.Scope, req.SubjectID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "name is required"}
	}
	span.SetAttributes(attribute.String("subject", subject.Key()))

	profile, err := s.directory.LookupSubject(ctx, subject)
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			s.logger.Warn("login: unknown subject", zap.String("subject", subject.Key()))
			return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
		}
		return nil, fmt.Errorf("lookup subject: %w", err)
	}

	if !strings.EqualFold(strings.TrimSpace(profile.Name), name) {
		s.logger.Warn("login: name mismatch", zap.String("subject", subject.Key()))
		return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}

	session, err := s.IssueSession(subject)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	s.logger.Info("subject logged in",
		zap.String("subject", subject.Key()),
		zap.String("session_id", session.ID),
	)

	return &domain.LoginResponse{
		AccessToken: session.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.accessTTL.Seconds()),
		Subject:     subject,
		Name:        profile.Name,
	}, nil
}

// ListSubjects returns the selectable subjects of scope for the login page.
func (s *AuthService) ListSubjects(ctx context.Context, scope domain.Scope) ([]domain.SubjectProfile, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.ListSubjects")
	defer span.End()

	if !scope.Valid() {
		return nil, &domain.ErrValidation{Field: "scope", Message: fmt.Sprintf("unsupported scope %q", scope)}
	}
	return s.directory.ListSubjects(ctx, scope)
}

// ============================================================
// Tokens
// ============================================================

// JWTClaims are the claims carried by access tokens. The subject id is in
// the registered "sub" claim and the session id in "jti".
type JWTClaims struct {
	Scope domain.Scope `json:"scope"`
	jwt.RegisteredClaims
}

// IssueSession signs a new access token for subject.
func (s *AuthService) IssueSession(subject domain.Subject) (*domain.Session, error) {
	now := s.now()
	session := &domain.Session{
		ID:        uuid.NewString(),
		Subject:   subject,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.accessTTL),
	}

	claims := JWTClaims{
		Scope: subject.Scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.ID,
			ID:        session.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}
	session.AccessToken = token
	return session, nil
}

// ValidateAccessToken turns a bearer token back into the session it stands for.
func (s *AuthService) ValidateAccessToken(tokenString string) (*domain.Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}

	subject, err := domain.ParseSubject(claims.Scope, claims.Subject)
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid token subject"}
	}

	session := &domain.Session{
		ID:          claims.ID,
		Subject:     subject,
		AccessToken: tokenString,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}
