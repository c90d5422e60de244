package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"tablekit-backend/internal/table"
)

// TokenPair is the response returned after successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// userClaims are the user-auth JWT claims. These are distinct from the
// table capability tokens, which are signed with a domain-separated key.
type userClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// Tokens issues and verifies user credentials: short-lived HS256 access
// tokens carrying the user's roles, and opaque refresh tokens whose
// lifetime is enforced against the stored expiry.
type Tokens struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokens(secret string) *Tokens {
	return &Tokens{
		secret:     []byte(secret),
		accessTTL:  15 * time.Minute,
		refreshTTL: 7 * 24 * time.Hour,
	}
}

// IssueAccess signs an access token identifying the given user.
func (t *Tokens) IssueAccess(user *table.UserContext) (string, error) {
	now := time.Now()
	claims := userClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
		},
		Roles: user.Roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccess validates an access token and returns the user it
// identifies, ready for action authorize predicates and row callbacks.
func (t *Tokens) VerifyAccess(tokenStr string) (*table.UserContext, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &userClaims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*userClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return &table.UserContext{ID: claims.Subject, Roles: claims.Roles}, nil
}

// IssueRefresh mints a new opaque refresh token.
func (t *Tokens) IssueRefresh() string {
	return uuid.New().String()
}

// RefreshExpiry is the expiry timestamp for a refresh token issued now.
func (t *Tokens) RefreshExpiry() time.Time {
	return time.Now().Add(t.refreshTTL)
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
