package binding

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/iotfleet-server/iotfleet-server/internal/auth"
	"github.com/iotfleet-server/iotfleet-server/internal/errs"
	"github.com/iotfleet-server/iotfleet-server/internal/identity"
	"github.com/iotfleet-server/iotfleet-server/internal/registry"
)

// ProvisionedAttributeName marks an identity whose device finished the
// access binding flow
const ProvisionedAttributeName = "custom:deviceProvisioned"

// Request asks for tenant-scoped device access for the caller's identity
type Request struct {
	IDToken string `json:"idToken" validate:"required"`
}

// Result reports the binding that was established
type Result struct {
	TenantID   string `json:"tenantId"`
	PolicyName string `json:"policyName"`
	Principal  string `json:"principal"`
}

// Binder attaches a tenant-scoped access policy to a caller's federated
// identity. The policy name is a pure function of the tenant id, so
// repeated bindings for one tenant converge on the same policy.
type Binder struct {
	verifier  auth.Verifier
	directory identity.Directory
	registry  registry.Registry
	accountID string
	region    string
}

// NewBinder creates a policy binder
func NewBinder(verifier auth.Verifier, directory identity.Directory, reg registry.Registry, accountID, region string) *Binder {
	return &Binder{
		verifier:  verifier,
		directory: directory,
		registry:  reg,
		accountID: accountID,
		region:    region,
	}
}

// Bind runs the binding flow: verify the caller, ensure the tenant's
// policy exists, exchange the token for a federated principal, attach,
// and mark the identity provisioned. Every step must succeed; a failure
// surfaces with its mapped kind so the caller can retry the flow, whose
// earlier steps are idempotent.
func (b *Binder) Bind(ctx context.Context, req Request) (*Result, error) {
	const op = "binding.Bind"

	claims, err := b.verifier.Verify(ctx, req.IDToken)
	if err != nil {
		return nil, err
	}
	if claims.TenantID == "" {
		return nil, errs.E(errs.Authorization, op, "identity carries no tenant")
	}

	logger := log.With().
		Str("tenant_id", claims.TenantID).
		Str("username", claims.Username).
		Logger()

	policyName := registry.PolicyName(claims.TenantID)
	document, err := registry.PolicyDocument(b.region, b.accountID, claims.TenantID)
	if err != nil {
		return nil, errs.Wrap(errs.Upstream, op, err)
	}
	if err := b.registry.CreatePolicy(ctx, policyName, document); err != nil {
		return nil, err
	}

	principal, err := b.directory.ResolveFederatedIdentity(ctx, req.IDToken)
	if err != nil {
		return nil, err
	}

	if err := b.registry.AttachPolicy(ctx, policyName, principal); err != nil {
		return nil, err
	}

	if err := b.directory.UpdateUserAttribute(ctx, claims.Username, ProvisionedAttributeName, "true"); err != nil {
		logger.Error().Err(err).Msg("Failed to mark identity as provisioned")
		return nil, err
	}

	logger.Info().Str("policy_name", policyName).Msg("Device access policy bound")
	return &Result{
		TenantID:   claims.TenantID,
		PolicyName: policyName,
		Principal:  principal,
	}, nil
}
