package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidAPIKey = errors.New("invalid api key")
)

// Roles carried in access tokens.
const (
	RoleAuthenticated = "authenticated"
	RoleService       = "service_role"
	RoleAnon          = "anon"
)

// Claims holds access token claims. Subject is the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// UserID parses the subject as a user id.
func (c *Claims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}

// JWTService handles token generation and validation.
type JWTService struct {
	secret      []byte
	apiKey      []byte
	expireHours int
}

// NewJWTService creates a JWT service. An empty apiKey disables the api key check.
func NewJWTService(secret, apiKey string, expireHours int) *JWTService {
	if expireHours <= 0 {
		expireHours = 1
	}
	return &JWTService{
		secret:      []byte(secret),
		apiKey:      []byte(apiKey),
		expireHours: expireHours,
	}
}

// Generate creates a new access token for the user.
func (s *JWTService) Generate(userID uuid.UUID, email, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a JWT, returning claims or error.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}

// CheckAPIKey compares key with the configured public key in constant time.
func (s *JWTService) CheckAPIKey(key string) error {
	if len(s.apiKey) == 0 {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(key), s.apiKey) != 1 {
		return ErrInvalidAPIKey
	}
	return nil
}
