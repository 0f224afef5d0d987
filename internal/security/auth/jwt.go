package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

var (
	errNoToken      = domain.NewError(domain.ErrUnauthenticated, "Access denied. No token provided.")
	errInvalidToken = domain.NewError(domain.ErrInvalidToken, "Invalid token")
	errTokenExpired = domain.NewError(domain.ErrTokenExpired, "Token expired")
)

// Claims binds a token to a user id (the subject). Email and role are
// informational; the session authenticator reloads the user on every request.
type Claims struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// UserID returns the user the token was issued to.
func (c *Claims) UserID() string {
	return c.Subject
}

type TokenManager struct {
	secret    []byte
	issuer    string
	expiresIn time.Duration
	now       func() time.Time
}

func NewTokenManager(secret, issuer string, expiresIn time.Duration) *TokenManager {
	if secret == "" {
		secret = "change-me-in-production"
	}
	if issuer == "" {
		issuer = "payhub"
	}
	if expiresIn <= 0 {
		expiresIn = 7 * 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), issuer: issuer, expiresIn: expiresIn, now: time.Now}
}

func (tm *TokenManager) GenerateToken(user *domain.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", fmt.Errorf("user id required")
	}
	now := tm.now()
	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expiresIn)),
			Issuer:    tm.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// ValidateToken verifies signature and expiry. Expired tokens fail with
// ErrTokenExpired, every other defect with ErrInvalidToken.
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithIssuer(tm.issuer), jwt.WithTimeFunc(tm.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errTokenExpired
		}
		return nil, errInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

// ExtractToken returns the bearer token of an Authorization header value.
func ExtractToken(authHeader string) (string, error) {
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", errNoToken
	}
	return strings.TrimSpace(token), nil
}
