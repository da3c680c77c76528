package token

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Secret:    []byte("test-secret"),
		Issuer:    "auth.example.test",
		Audience:  "example.test",
		AccessTTL: 15 * time.Minute,
	}
}

func TestCodec_IssueVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	c := NewCodec(testConfig(), nil)
	uid := uuid.Must(uuid.NewV4())
	sid := uuid.Must(uuid.NewV4())

	tok, exp, err := c.IssueAccess(uid, sid)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 2*time.Second)

	id, err := c.VerifyAccess(tok)
	require.NoError(t, err)
	require.Equal(t, uid, id.UserID)
	require.Equal(t, sid, id.SessionID)
}

func TestCodec_VerifyAccess_Expired(t *testing.T) {
	t.Parallel()

	issuedAt := time.Now().Add(-time.Hour)
	issuer := NewCodec(testConfig(), func() time.Time { return issuedAt })
	tok, _, err := issuer.IssueAccess(uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()))
	require.NoError(t, err)

	_, err = NewCodec(testConfig(), nil).VerifyAccess(tok)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_VerifyAccess_WrongIssuerAudienceSecret(t *testing.T) {
	t.Parallel()

	uid, sid := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	verifier := NewCodec(testConfig(), nil)

	cfg := testConfig()
	cfg.Issuer = "someone-else"
	tok, _, err := NewCodec(cfg, nil).IssueAccess(uid, sid)
	require.NoError(t, err)
	_, err = verifier.VerifyAccess(tok)
	require.ErrorIs(t, err, ErrInvalidToken, "issuer")

	cfg = testConfig()
	cfg.Audience = "other-api"
	tok, _, err = NewCodec(cfg, nil).IssueAccess(uid, sid)
	require.NoError(t, err)
	_, err = verifier.VerifyAccess(tok)
	require.ErrorIs(t, err, ErrInvalidToken, "audience")

	cfg = testConfig()
	cfg.Secret = []byte("other-secret")
	tok, _, err = NewCodec(cfg, nil).IssueAccess(uid, sid)
	require.NoError(t, err)
	_, err = verifier.VerifyAccess(tok)
	require.ErrorIs(t, err, ErrInvalidToken, "secret")
}

func TestCodec_VerifyAccess_WrongAlgAndGarbage(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID:    uuid.Must(uuid.NewV4()).String(),
		SessionID: uuid.Must(uuid.NewV4()).String(),
	}
	hs384, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString(cfg.Secret)
	require.NoError(t, err)

	c := NewCodec(cfg, nil)
	_, err = c.VerifyAccess(hs384)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = c.VerifyAccess("this-is-not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)

	claims.SessionID = "not-a-uuid"
	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
	require.NoError(t, err)
	_, err = c.VerifyAccess(bad)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewRefreshToken(t *testing.T) {
	t.Parallel()

	a, err := NewRefreshToken()
	require.NoError(t, err)
	b, err := NewRefreshToken()
	require.NoError(t, err)

	require.Len(t, a, 2*RefreshTokenBytes)
	require.NotEqual(t, a, b)
	_, err = hex.DecodeString(a)
	require.NoError(t, err)
}

func TestHashRefreshToken(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashRefreshToken(""))
	require.Equal(t, HashRefreshToken("abc"), HashRefreshToken("abc"))
	require.NotEqual(t, HashRefreshToken("abc"), HashRefreshToken("abd"))
	require.Len(t, HashRefreshToken("abc"), 64)
}
