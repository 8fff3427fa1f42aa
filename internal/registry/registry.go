// Package registry adapts the external device and policy registry. The
// registry owns device records; this core only reads them and tags new
// devices through provisioning-template overrides.
package registry

import "context"

// Thing is the registry's view of a device.
type Thing struct {
	Name       string
	Attributes map[string]string
}

// TenantTag returns the tenant attribute stamped on the device at
// creation time, empty when the device carries none.
func (t *Thing) TenantTag() string {
	return t.Attributes[TenantAttributeName]
}

// Registry is the device and policy registry consumed by the admission
// gate, the policy binder and the teardown coordinator.
type Registry interface {
	// DescribeThing returns the device, or a NotFound error.
	DescribeThing(ctx context.Context, thingName string) (*Thing, error)

	// CreatePolicy creates the named policy. Creation is idempotent:
	// an already-existing policy is success, never an error.
	CreatePolicy(ctx context.Context, policyName, document string) error
	AttachPolicy(ctx context.Context, policyName, target string) error
	DetachPolicy(ctx context.Context, policyName, target string) error
	DeletePolicy(ctx context.Context, policyName string) error
	ListPolicyTargets(ctx context.Context, policyName string) ([]string, error)

	DeleteThing(ctx context.Context, thingName string) error
	ListThingPrincipals(ctx context.Context, thingName string) ([]string, error)
	DetachThingPrincipal(ctx context.Context, thingName, principal string) error

	DeactivateCertificate(ctx context.Context, certificateID string) error
	DeleteCertificate(ctx context.Context, certificateID string) error

	// DeleteRoleAlias removes the tenant-scoped credential role binding.
	DeleteRoleAlias(ctx context.Context, alias string) error
}
