package auth

import (
	"testing"
	"time"

	apperrors "github.com/alpinai/skilder/internal/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenIssuer_RejectsShortSecret(t *testing.T) {
	_, err := NewTokenIssuer(IssuerConfig{Secret: "short"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrSecretTooShort)
}

func TestIssue_Claims(t *testing.T) {
	clk := newClock()
	issuer := testIssuer(t, clk.Now)

	id := Identity{UserID: "u1", Email: "a@b.c", Role: "admin", WorkspaceID: "ws"}
	token, exp, err := issuer.Issue(id, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(DefaultAccessTTL), exp)

	claims, err := issuer.Verify(token, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Identity)
	assert.Equal(t, KindAccess, claims.Kind)
	assert.Equal(t, DefaultIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, testNow.Unix(), claims.IssuedAt.Unix())
}

func TestIssue_UniqueJTI(t *testing.T) {
	issuer := testIssuer(t, newClock().Now)
	id := Identity{UserID: "u1"}

	a, _, err := issuer.Issue(id, KindRefresh)
	require.NoError(t, err)
	b, _, err := issuer.Issue(id, KindRefresh)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVerify_RejectsWrongKind(t *testing.T) {
	issuer := testIssuer(t, nil)

	token, _, err := issuer.Issue(Identity{UserID: "u1"}, KindRefresh)
	require.NoError(t, err)

	_, err = issuer.Verify(token, KindAccess)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidClaims)
}

func TestVerify_RejectsExpired(t *testing.T) {
	clk := newClock()
	issuer := testIssuer(t, clk.Now)

	token, _, err := issuer.Issue(Identity{UserID: "u1"}, KindAccess)
	require.NoError(t, err)

	clk.Advance(DefaultAccessTTL - time.Second)
	_, err = issuer.Verify(token, KindAccess)
	require.NoError(t, err)

	clk.Advance(2 * time.Second)
	_, err = issuer.Verify(token, KindAccess)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerify_RejectsOtherSecretAndIssuer(t *testing.T) {
	issuer := testIssuer(t, nil)

	other, err := NewTokenIssuer(IssuerConfig{Secret: "ffffffffffffffffffffffffffffffff"}, nil)
	require.NoError(t, err)
	forged, _, err := other.Issue(Identity{UserID: "u1"}, KindAccess)
	require.NoError(t, err)

	_, err = issuer.Verify(forged, KindAccess)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	foreign, err := NewTokenIssuer(IssuerConfig{Secret: testSecret, Issuer: "elsewhere"}, nil)
	require.NoError(t, err)
	token, _, err := foreign.Issue(Identity{UserID: "u1"}, KindAccess)
	require.NoError(t, err)

	_, err = issuer.Verify(token, KindAccess)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestVerify_RejectsNoneAlgorithm(t *testing.T) {
	issuer := testIssuer(t, nil)

	claims := Claims{
		Identity: Identity{UserID: "u1"},
		Kind:     KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = issuer.Verify(token, KindAccess)
	assert.Error(t, err)
}

func TestVerify_RejectsMissingUser(t *testing.T) {
	issuer := testIssuer(t, nil)

	token, _, err := issuer.Issue(Identity{}, KindAccess)
	require.NoError(t, err)

	_, err = issuer.Verify(token, KindAccess)
	assert.Error(t, err)
}
