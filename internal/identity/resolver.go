package identity

import (
	"context"
	"errors"
	"strconv"

	bazaar_errors "bazaarchat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// Resolver maps the authenticated session to the stable numeric user id.
// Everything in the chat client hangs off this.
type Resolver interface {
	CurrentUserID(ctx context.Context) (int64, error)
}

type SessionClaims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// TokenResolver resolves identity from a platform-issued session token.
type TokenResolver struct {
	secret []byte
	token  string
}

func NewTokenResolver(secret, token string) *TokenResolver {
	return &TokenResolver{secret: []byte(secret), token: token}
}

func (r *TokenResolver) CurrentUserID(ctx context.Context) (int64, error) {
	uid, err := ParseSessionToken(r.token, r.secret)
	if err != nil {
		return 0, err
	}
	return uid, nil
}

// ParseSessionToken validates a session token and extracts the user id.
func ParseSessionToken(tokenString string, secret []byte) (int64, error) {
	if tokenString == "" {
		return 0, bazaar_errors.ErrNoIdentity
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, bazaar_errors.ErrNoIdentity
	}

	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok {
		return 0, bazaar_errors.ErrNoIdentity
	}

	if claims.UserID != 0 {
		return claims.UserID, nil
	}
	// Older tokens carry the id in the subject field.
	if claims.Subject != "" {
		if uid, err := strconv.ParseInt(claims.Subject, 10, 64); err == nil && uid != 0 {
			return uid, nil
		}
	}
	return 0, bazaar_errors.ErrNoIdentity
}

// SignSessionToken mints a token for the given user. Used by the devserver
// and tests; the real platform issues tokens itself.
func SignSessionToken(userID int64, secret []byte, claims jwt.RegisteredClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		UserID:           userID,
		RegisteredClaims: claims,
	})
	return token.SignedString(secret)
}

// StaticResolver returns a fixed user id. Used in tests.
type StaticResolver struct {
	UserID int64
}

func (r StaticResolver) CurrentUserID(ctx context.Context) (int64, error) {
	if r.UserID == 0 {
		return 0, bazaar_errors.ErrNoIdentity
	}
	return r.UserID, nil
}
