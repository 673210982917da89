package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/inkpress/emagazine/internal/kv"
)

var (
	// ErrTokenInvalid covers bad signatures and malformed tokens.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned for structurally valid but expired tokens.
	ErrTokenExpired = errors.New("token expired")
)

// Claims carried by every session token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Session is the index entry stored under session:jti:{jti}. It exists so
// sessions can be enumerated and force-revoked server side.
type Session struct {
	JTI       string    `json:"jti"`
	Subject   string    `json:"sub"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// Service issues and verifies HS256 session tokens and keeps the
// revocation blacklist. Verify does not consult the blacklist; the auth
// middleware composes Verify with IsRevoked.
type Service struct {
	Secret []byte
	KV     *kv.Store
}

func NewService(secret []byte, store *kv.Store) *Service {
	return &Service{Secret: secret, KV: store}
}

// Issue signs a token for subject with the given role and ttl and records
// a session index entry keyed by the fresh jti.
func (s *Service) Issue(ctx context.Context, subject, role string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}

	now := time.Now().UTC()
	jti := uuid.NewString()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	entry, err := json.Marshal(Session{
		JTI:       jti,
		Subject:   subject,
		Role:      role,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return "", err
	}
	if err := s.KV.Set(ctx, kv.SessionPrefix+jti, string(entry), ttl); err != nil {
		return "", fmt.Errorf("store session index: %w", err)
	}

	return signed, nil
}

// Verify checks signature and expiry. It deliberately does not look at the
// blacklist.
func (s *Service) Verify(tokenStr string) (*Claims, error) {
	claims, err := s.parse(tokenStr)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Decode parses and signature-checks a token while ignoring expiry. Used
// on the revocation path, which must tolerate already-expired tokens.
func (s *Service) Decode(tokenStr string) (*Claims, error) {
	claims, err := s.parse(tokenStr, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *Service) parse(tokenStr string, opts ...jwt.ParserOption) (*Claims, error) {
	var claims Claims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.Secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !tkn.Valid || strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return &claims, nil
}

// Revoke blacklists the token's jti for its remaining lifetime and drops
// the session index entry. A token that no longer decodes, or that has
// already expired, is a no-op: the blacklist only ever holds outstanding
// revoked tokens, so it needs no garbage collection. Store errors are
// returned for logging; logout callers are expected to swallow them.
func (s *Service) Revoke(ctx context.Context, tokenStr string) error {
	claims, err := s.Decode(tokenStr)
	if err != nil || claims.ExpiresAt == nil {
		return nil
	}
	return s.revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// RevokeJTI force-revokes a session by jti using the expiry recorded in
// the session index. Used for admin force-logout.
func (s *Service) RevokeJTI(ctx context.Context, jti string) error {
	raw, err := s.KV.Get(ctx, kv.SessionPrefix+jti)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil
		}
		return err
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return fmt.Errorf("decode session index: %w", err)
	}
	return s.revoke(ctx, jti, sess.ExpiresAt)
}

func (s *Service) revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	remaining := time.Until(expiresAt)
	if remaining > 0 {
		if err := s.KV.Set(ctx, kv.BlacklistPrefix+jti, "revoked", remaining); err != nil {
			return fmt.Errorf("blacklist %s: %w", jti, err)
		}
	}
	// Separate write; a crash here leaves a stale index entry, which is
	// harmless because only the blacklist is consulted for denial.
	if err := s.KV.Del(ctx, kv.SessionPrefix+jti); err != nil {
		return fmt.Errorf("drop session index %s: %w", jti, err)
	}
	return nil
}

// IsRevoked reports whether the jti is on the blacklist.
func (s *Service) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return s.KV.Exists(ctx, kv.BlacklistPrefix+jti)
}

// Sessions lists the live session index entries for a subject.
func (s *Service) Sessions(ctx context.Context, subject string) ([]Session, error) {
	keys, err := s.KV.Scan(ctx, kv.SessionPrefix+"*")
	if err != nil {
		return nil, err
	}
	var out []Session
	for _, key := range keys {
		raw, err := s.KV.Get(ctx, key)
		if err != nil {
			if errors.Is(err, kv.ErrNotFound) {
				continue
			}
			return nil, err
		}
		var sess Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			continue
		}
		if sess.Subject == subject {
			out = append(out, sess)
		}
	}
	return out, nil
}
