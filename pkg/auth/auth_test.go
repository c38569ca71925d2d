package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	v := NewVerifier("s3cret")
	token, err := v.Issue(Principal{UserID: "u-1", Email: "a@example.com", Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)

	p, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", p.UserID)
	assert.Equal(t, "a@example.com", p.Email)
	assert.True(t, p.IsAdmin())
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier("s3cret")

	other, err := NewVerifier("other").Issue(Principal{UserID: "u"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(other)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong secret")

	expired, err := v.Issue(Principal{UserID: "u"}, -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")

	noSubject, err := v.Issue(Principal{}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(noSubject)
	assert.ErrorIs(t, err, ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken, "alg none")

	_, err = v.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u", IssuedAt: jwt.NewNumericDate(time.Now())},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = v.Verify(noExpiry)
	assert.ErrorIs(t, err, ErrInvalidToken, "no exp")

	var nobody *Principal
	assert.False(t, nobody.IsAdmin())
}
