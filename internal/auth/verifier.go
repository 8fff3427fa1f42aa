package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iotfleet-server/iotfleet-server/internal/errs"
)

// IdentityClaims are the verified claims this server cares about.
type IdentityClaims struct {
	Subject  string
	Username string
	Email    string
	TenantID string
}

// Identity returns the member join key for these claims: the email when
// present, the username otherwise. The two are used interchangeably.
func (c *IdentityClaims) Identity() string {
	if c.Email != "" {
		return c.Email
	}
	return c.Username
}

// Verifier validates bearer tokens against the identity provider's
// published keys and extracts claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (*IdentityClaims, error)
}

// jwks is the identity provider's published key set
type jwks struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

// JWKSVerifier verifies RS256 tokens against a JWKS endpoint. Keys are
// cached; an unknown kid triggers a refetch, rate-limited by
// minRefreshInterval so a flood of bad tokens cannot hammer the endpoint.
type JWKSVerifier struct {
	issuer      string
	jwksURL     string
	tenantClaim string
	client      *http.Client

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

const minRefreshInterval = time.Minute

// NewJWKSVerifier creates a verifier for the given issuer. tenantClaim is
// the claim name carrying the identity's tenant attribute.
func NewJWKSVerifier(issuer, jwksURL, tenantClaim string) *JWKSVerifier {
	return &JWKSVerifier{
		issuer:      issuer,
		jwksURL:     jwksURL,
		tenantClaim: tenantClaim,
		client:      &http.Client{Timeout: 10 * time.Second},
		keys:        make(map[string]*rsa.PublicKey),
	}
}

// Verify validates the token and extracts claims
func (v *JWKSVerifier) Verify(ctx context.Context, tokenString string) (*IdentityClaims, error) {
	const op = "auth.Verify"

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no kid header")
		}
		return v.keyForKid(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errs.Wrap(errs.Authentication, op, err)
	}

	str := func(key string) string {
		s, _ := claims[key].(string)
		return s
	}

	return &IdentityClaims{
		Subject:  str("sub"),
		Username: str("cognito:username"),
		Email:    str("email"),
		TenantID: str(v.tenantClaim),
	}, nil
}

// keyForKid returns the cached key for kid, refetching the key set when
// the kid is unknown.
func (v *JWKSVerifier) keyForKid(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	stale := time.Since(v.fetchedAt) > minRefreshInterval
	v.mu.RUnlock()

	if ok {
		return key, nil
	}
	if !stale {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}

	if err := v.refresh(ctx); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	key, ok = v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	return key, nil
}

// refresh fetches and parses the key set
func (v *JWKSVerifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("build jwks request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}

	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAKey(k.N, k.E)
		if err != nil {
			return fmt.Errorf("parse jwks key %s: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}

	v.mu.Lock()
	v.keys = keys
	v.fetchedAt = time.Now()
	v.mu.Unlock()

	return nil
}

// parseRSAKey builds an RSA public key from base64url modulus and exponent
func parseRSAKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	exp := 0
	for _, b := range eb {
		exp = exp<<8 | int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: exp,
	}, nil
}
