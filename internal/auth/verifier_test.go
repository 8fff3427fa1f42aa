package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotfleet-server/iotfleet-server/internal/auth"
	"github.com/iotfleet-server/iotfleet-server/internal/errs"
)

const (
	testIssuer      = "https://cognito-idp.eu-west-1.amazonaws.com/eu-west-1_testpool"
	testTenantClaim = "custom:tenantId"
	testKid         = "test-key-1"
)

type jwksFixture struct {
	key    *rsa.PrivateKey
	server *httptest.Server
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e := big.NewInt(int64(key.PublicKey.E))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kid": testKid,
				"kty": "RSA",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(e.Bytes()),
			}},
		})
	}))
	t.Cleanup(server.Close)

	return &jwksFixture{key: key, server: server}
}

func (f *jwksFixture) sign(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":              testIssuer,
		"sub":              "sub-alice",
		"cognito:username": "alice",
		"email":            "alice@example.com",
		testTenantClaim:    "tenant-1",
		"exp":              time.Now().Add(time.Hour).Unix(),
		"iat":              time.Now().Unix(),
	}
}

func TestJWKSVerifier_AcceptsValidToken(t *testing.T) {
	fixture := newJWKSFixture(t)
	verifier := auth.NewJWKSVerifier(testIssuer, fixture.server.URL, testTenantClaim)

	claims, err := verifier.Verify(context.Background(), fixture.sign(t, testKid, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "sub-alice", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "tenant-1", claims.TenantID)
}

func TestJWKSVerifier_TokenWithoutTenantClaim(t *testing.T) {
	fixture := newJWKSFixture(t)
	verifier := auth.NewJWKSVerifier(testIssuer, fixture.server.URL, testTenantClaim)

	mapClaims := validClaims()
	delete(mapClaims, testTenantClaim)

	claims, err := verifier.Verify(context.Background(), fixture.sign(t, testKid, mapClaims))
	require.NoError(t, err)
	assert.Empty(t, claims.TenantID)
}

func TestJWKSVerifier_RejectsWrongIssuer(t *testing.T) {
	fixture := newJWKSFixture(t)
	verifier := auth.NewJWKSVerifier(testIssuer, fixture.server.URL, testTenantClaim)

	mapClaims := validClaims()
	mapClaims["iss"] = "https://evil.example.com"

	_, err := verifier.Verify(context.Background(), fixture.sign(t, testKid, mapClaims))
	assert.True(t, errs.Is(err, errs.Authentication))
}

func TestJWKSVerifier_RejectsExpiredToken(t *testing.T) {
	fixture := newJWKSFixture(t)
	verifier := auth.NewJWKSVerifier(testIssuer, fixture.server.URL, testTenantClaim)

	mapClaims := validClaims()
	mapClaims["exp"] = time.Now().Add(-time.Hour).Unix()

	_, err := verifier.Verify(context.Background(), fixture.sign(t, testKid, mapClaims))
	assert.True(t, errs.Is(err, errs.Authentication))
}

func TestJWKSVerifier_RejectsTokenWithoutExpiry(t *testing.T) {
	fixture := newJWKSFixture(t)
	verifier := auth.NewJWKSVerifier(testIssuer, fixture.server.URL, testTenantClaim)

	mapClaims := validClaims()
	delete(mapClaims, "exp")

	_, err := verifier.Verify(context.Background(), fixture.sign(t, testKid, mapClaims))
	assert.True(t, errs.Is(err, errs.Authentication))
}

func TestJWKSVerifier_RejectsUnknownKid(t *testing.T) {
	fixture := newJWKSFixture(t)
	verifier := auth.NewJWKSVerifier(testIssuer, fixture.server.URL, testTenantClaim)

	_, err := verifier.Verify(context.Background(), fixture.sign(t, "other-key", validClaims()))
	assert.True(t, errs.Is(err, errs.Authentication))
}

func TestJWKSVerifier_RejectsHMACToken(t *testing.T) {
	fixture := newJWKSFixture(t)
	verifier := auth.NewJWKSVerifier(testIssuer, fixture.server.URL, testTenantClaim)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
	token.Header["kid"] = testKid
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), signed)
	assert.True(t, errs.Is(err, errs.Authentication))
}
