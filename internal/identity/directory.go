// Package identity adapts the external user-identity and group-membership
// service. Components depend on the Directory interface only; the Cognito
// implementation is injected at wiring time and replaced with a fake in
// tests.
package identity

import "context"

// Directory is the identity directory consumed by the tenant lifecycle
// sagas and the policy binder. Group names are tenant ids.
type Directory interface {
	CreateGroup(ctx context.Context, groupName string) error
	AddUserToGroup(ctx context.Context, username, groupName string) error
	RemoveUserFromGroup(ctx context.Context, username, groupName string) error
	DeleteGroup(ctx context.Context, groupName string) error

	// UpdateUserAttribute sets a single custom attribute on the identity.
	UpdateUserAttribute(ctx context.Context, username, name, value string) error

	// ResolveFederatedIdentity exchanges a bearer token for the caller's
	// resource-level federated identity id.
	ResolveFederatedIdentity(ctx context.Context, idToken string) (string, error)
}
