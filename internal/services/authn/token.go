package authn

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mcoot/marketid/internal/dependencies/clock"
	"github.com/mcoot/marketid/internal/model"
)

// Claims carried by an access token. They are a snapshot taken at issue time.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Principal rebuilds the principal the token was issued to
func (c *Claims) Principal() *model.Principal {
	metadata := map[string]any{}
	if c.Role != "" {
		metadata[model.MetadataRole] = c.Role
	}
	if c.Name != "" {
		metadata[model.MetadataName] = c.Name
	}
	return &model.Principal{
		ID:       model.PrincipalID(c.Subject),
		Email:    c.Email,
		Metadata: metadata,
	}
}

// TokenManager issues and validates HMAC-signed JWT access tokens
type TokenManager struct {
	secret     []byte
	expiration time.Duration
	issuer     string
	clock      clock.Clock
}

// NewTokenManager constructs a manager with the provided secret and expiration
func NewTokenManager(secret string, expiration time.Duration, issuer string, clk clock.Clock) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		expiration: expiration,
		issuer:     issuer,
		clock:      clk,
	}
}

// Generate signs a token for principal. The returned claims carry the token's unique ID.
func (m *TokenManager) Generate(principal *model.Principal) (string, *Claims, error) {
	now := m.clock.Now().UTC()
	claims := &Claims{
		Email: principal.Email,
		Role:  principal.MetadataString(model.MetadataRole),
		Name:  principal.MetadataString(model.MetadataName),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   string(principal.ID),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Validate parses the token and checks signature, issuer and expiry against the injected clock
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
