package flatbank_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arhyth/flatbank"
)

type identities map[string]bool

func (ids identities) Exists(username string) bool {
	return ids[username]
}

func TestTokenGate(t *testing.T) {
	ids := identities{"alice": true}

	t.Run("Verify returns the identity of an issued token", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		gate := flatbank.NewTokenGate("secret", time.Hour, ids)

		token, err := gate.Issue("alice")
		reqrd.Nil(err)
		username, err := gate.Verify(token)
		as.Nil(err)
		as.Equal("alice", username)
	})

	t.Run("Verify rejects a token signed with another key", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		token, err := flatbank.NewTokenGate("other", time.Hour, ids).Issue("alice")
		reqrd.Nil(err)

		_, err = flatbank.NewTokenGate("secret", time.Hour, ids).Verify(token)
		as.ErrorAs(err, &flatbank.ErrUnauthorized{})
	})

	t.Run("Verify rejects an expired token", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		gate := flatbank.NewTokenGate("secret", -time.Minute, ids)
		token, err := gate.Issue("alice")
		reqrd.Nil(err)

		_, err = gate.Verify(token)
		as.ErrorAs(err, &flatbank.ErrUnauthorized{})
	})

	t.Run("Verify rejects an identity that no longer exists", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		gate := flatbank.NewTokenGate("secret", time.Hour, ids)
		token, err := gate.Issue("bob")
		reqrd.Nil(err)

		_, err = gate.Verify(token)
		as.ErrorAs(err, &flatbank.ErrUnauthorized{})
	})

	t.Run("Verify rejects unsigned tokens", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		claims := jwt.MapClaims{
			"username": "alice",
			"exp":      time.Now().Add(time.Hour).Unix(),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		reqrd.Nil(err)

		_, err = flatbank.NewTokenGate("secret", time.Hour, ids).Verify(token)
		as.ErrorAs(err, &flatbank.ErrUnauthorized{})
	})

	t.Run("Verify rejects garbage", func(tt *testing.T) {
		as := assert.New(tt)
		_, err := flatbank.NewTokenGate("secret", time.Hour, ids).Verify("not.a.token")
		as.ErrorAs(err, &flatbank.ErrUnauthorized{})
	})
}
