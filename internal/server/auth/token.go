// Package auth issues and verifies signed session tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/placementhub/vault/internal/common"
	"github.com/placementhub/vault/internal/server/models"
)

// MinSecretLength is the shortest signing secret NewTokenManager accepts.
const MinSecretLength = 32

// Claims is the token payload: sub, iat, exp and jti from the registered set
// plus the account role.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager signs tokens with HS256 and verifies them.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret []byte, ttl time.Duration) (*TokenManager, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &TokenManager{secret: secret, ttl: ttl, now: time.Now}, nil
}

// TTL is how long issued tokens stay valid.
func (m *TokenManager) TTL() time.Duration { return m.ttl }

// Issue returns a signed token for the subject and the identity it encodes.
func (m *TokenManager) Issue(subjectID string, role models.Role) (string, *Identity, error) {
	if subjectID == "" || !role.Valid() {
		return "", nil, common.ErrInvalidToken
	}
	now := m.now().Truncate(time.Second)
	id := &Identity{
		SubjectID: subjectID,
		Role:      role,
		TokenID:   uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.SubjectID,
			ID:        id.TokenID,
			IssuedAt:  jwt.NewNumericDate(id.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(id.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, id, nil
}

// Verify checks signature, algorithm, expiry and claim shape. Expired tokens
// yield common.ErrTokenExpired; every other failure common.ErrInvalidToken.
func (m *TokenManager) Verify(tokenString string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, common.ErrInvalidToken
			}
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" || claims.ID == "" || claims.IssuedAt == nil {
		return nil, common.ErrInvalidToken
	}

	role, err := models.ParseRole(claims.Role)
	if err != nil || string(role) != claims.Role {
		return nil, common.ErrInvalidToken
	}

	return &Identity{
		SubjectID: claims.Subject,
		Role:      role,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
