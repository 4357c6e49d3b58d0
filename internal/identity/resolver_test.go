package identity

import (
	"context"
	"testing"
	"time"

	bazaar_errors "bazaarchat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func TestParseSessionTokenRoundTrip(t *testing.T) {
	token, err := SignSessionToken(99, testSecret, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	uid, err := ParseSessionToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, int64(99), uid)
}

func TestParseSessionTokenSubjectFallback(t *testing.T) {
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	token, err := raw.SignedString(testSecret)
	require.NoError(t, err)

	uid, err := ParseSessionToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, int64(42), uid)
}

func TestParseSessionTokenRejects(t *testing.T) {
	_, err := ParseSessionToken("", testSecret)
	assert.ErrorIs(t, err, bazaar_errors.ErrNoIdentity)

	_, err = ParseSessionToken("not-a-token", testSecret)
	assert.ErrorIs(t, err, bazaar_errors.ErrNoIdentity)

	token, err := SignSessionToken(7, []byte("other-secret"), jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)
	_, err = ParseSessionToken(token, testSecret)
	assert.ErrorIs(t, err, bazaar_errors.ErrNoIdentity)

	expired, err := SignSessionToken(7, testSecret, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	require.NoError(t, err)
	_, err = ParseSessionToken(expired, testSecret)
	assert.ErrorIs(t, err, bazaar_errors.ErrNoIdentity)
}

func TestStaticResolver(t *testing.T) {
	uid, err := StaticResolver{UserID: 5}.CurrentUserID(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(5), uid)

	_, err = StaticResolver{}.CurrentUserID(context.Background())
	assert.ErrorIs(t, err, bazaar_errors.ErrNoIdentity)
}
