package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iotfleet-server/iotfleet-server/pkg/crypto"
)

const claimIssuerName = "iotfleet-tenant-server"

// ProvisioningClaims are the claims of a short-lived provisioning claim
// token handed to a device for self-registration.
type ProvisioningClaims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
}

// ClaimIssuer issues short-lived provisioning claims bound to a tenant.
type ClaimIssuer struct {
	secret string
	ttl    time.Duration
}

// NewClaimIssuer creates a claim issuer
func NewClaimIssuer(secret string, ttl time.Duration) *ClaimIssuer {
	return &ClaimIssuer{secret: secret, ttl: ttl}
}

// Issue signs a provisioning claim for the caller's tenant. Returns the
// token and its expiry.
func (i *ClaimIssuer) Issue(tenantID, subject string) (string, time.Time, error) {
	jti, err := crypto.GenerateRandomString(16)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate claim id: %w", err)
	}

	expiresAt := time.Now().Add(i.ttl)
	claims := ProvisioningClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    claimIssuerName,
			ID:        jti,
		},
		TenantID: tenantID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(i.secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign provisioning claim: %w", err)
	}

	return signed, expiresAt, nil
}

// Validate parses and validates a provisioning claim
func (i *ClaimIssuer) Validate(tokenString string) (*ProvisioningClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ProvisioningClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(i.secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*ProvisioningClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid provisioning claim")
	}

	return claims, nil
}
