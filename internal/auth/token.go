// Package auth verifies the bearer tokens issued by the identity provider and
// turns them into a domain.Identity.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
)

// CookieName is the cookie checked when no Authorization header is sent.
const CookieName = "token"

var (
	ErrNoToken      = errors.New("token is missing")
	ErrInvalidToken = errors.New("token is invalid")
)

// Claims carries the user ID in "sub" and the role in "role".
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks signature and expiry of an HS256 token.
//
// Returns:
//   - domain.Identity: the user the token was issued to. Unknown roles are
//     treated as plain users.
//   - error: ErrInvalidToken when the token cannot be trusted.
func (v *Verifier) Verify(tokenString string) (domain.Identity, error) {
	const op = "auth.Verifier.Verify"

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%s:%w: %v", op, ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return domain.Identity{}, fmt.Errorf("%s:%w: bad subject", op, ErrInvalidToken)
	}

	role := domain.RoleUser
	if domain.Role(claims.Role) == domain.RoleAdmin {
		role = domain.RoleAdmin
	}

	return domain.Identity{UserID: userID, Role: role}, nil
}

// Issue signs a token for id valid for ttl. Used by tooling and tests; the
// service itself never logs users in.
func (v *Verifier) Issue(id domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	return token.SignedString(v.secret)
}

// ExtractToken returns the bearer token from the Authorization header or,
// failing that, the token cookie.
func ExtractToken(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", errors.New("authorization header format must be 'Bearer {token}'")
		}
		return strings.TrimSpace(token), nil
	}

	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	return "", ErrNoToken
}
