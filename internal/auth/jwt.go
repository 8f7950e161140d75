package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const emisor = "redprotege-api"

var ErrTokenInvalido = errors.New("auth: token de acceso inválido")

// Claims del token de acceso. Roles es informativo: cada decisión relee el usuario.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTManager firma y valida tokens HS256 de vida corta.
type JWTManager struct {
	secret    []byte
	accessTTL time.Duration
	parser    *jwt.Parser
}

func NewJWTManager(secret string, accessTTL time.Duration) *JWTManager {
	return &JWTManager{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(emisor),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(5*time.Second),
		),
	}
}

// GenerateAccessToken retorna el token firmado y su jti.
func (m *JWTManager) GenerateAccessToken(subject, audience string, roles []string) (string, string, error) {
	ahora := time.Now().UTC()
	c := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    emisor,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(ahora),
			ExpiresAt: jwt.NewNumericDate(ahora.Add(m.accessTTL)),
		},
	}
	firmado, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", "", fmt.Errorf("auth: firmar token: %w", err)
	}
	return firmado, c.ID, nil
}

func (m *JWTManager) ParseAndValidate(tokenString string) (*Claims, error) {
	c := &Claims{}
	if _, err := m.parser.ParseWithClaims(tokenString, c, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalido, err)
	}
	return c, nil
}
