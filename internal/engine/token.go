package engine

import (
	"crypto/sha256"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tablekit-backend/internal/table"
)

// tokenSalt domain-separates capability tokens from the user-auth tokens
// signed with the same configured secret.
const tokenSalt = "tablekit.capability.v1"

// TokenClaims bind a table identity and an optional context map to a
// point in time. There is no exp claim: the age policy belongs to the
// verifier, not the minter.
type TokenClaims struct {
	jwt.RegisteredClaims
	Table   string         `json:"tbl"`
	Context map[string]any `json:"ctx,omitempty"`
}

// TokenService issues and verifies capability tokens. Tokens are minted
// fresh per response, never cached, and expire purely by elapsed time;
// verification performs no I/O.
type TokenService struct {
	key      []byte
	maxAge   time.Duration
	registry *table.Registry
	now      func() time.Time
}

func NewTokenService(secret string, maxAge time.Duration, reg *table.Registry) *TokenService {
	sum := sha256.Sum256([]byte(tokenSalt + secret))
	return &TokenService{key: sum[:], maxAge: maxAge, registry: reg, now: time.Now}
}

// Sign mints an opaque token binding the table identity and context.
func (t *TokenService) Sign(tableName string, tokenCtx map[string]any) (string, error) {
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(t.now()),
		},
		Table:   tableName,
		Context: tokenCtx,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
}

// Verify checks the token signature and age, then resolves the bound
// table against the registry. A cryptographically valid token whose table
// no longer resolves is rejected: stale tokens must not act on renamed or
// removed tables.
func (t *TokenService) Verify(tokenStr string) (*table.Definition, map[string]any, *AppError) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &TokenClaims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.key, nil
	}, jwt.WithoutClaimsValidation(), jwt.WithStrictDecoding())
	if err != nil {
		return nil, nil, InvalidTokenError()
	}

	claims, ok := parsed.Claims.(*TokenClaims)
	if !ok || !parsed.Valid || claims.IssuedAt == nil {
		return nil, nil, InvalidTokenError()
	}
	if t.now().Sub(claims.IssuedAt.Time) > t.maxAge {
		return nil, nil, ExpiredTokenError()
	}

	def := t.registry.Get(claims.Table)
	if def == nil {
		return nil, nil, UnknownTableError(claims.Table)
	}
	return def, claims.Context, nil
}
