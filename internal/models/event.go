package models

// IdentityConfirmedEvent is the identity-confirmation lifecycle event
// delivered by the identity directory when a new identity finishes signup.
type IdentityConfirmedEvent struct {
	UserPoolID string `json:"userPoolId"`
	Username   string `json:"username"`
	Email      string `json:"email"`
}

// IdentityDeletedEvent is the identity-deletion lifecycle event. TenantID
// carries the identity's tenant attribute and may be empty when the
// identity never belonged to a tenant.
type IdentityDeletedEvent struct {
	UserPoolID string `json:"userPoolId"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	TenantID   string `json:"tenantId,omitempty"`
}

// TenantEventType classifies tenant lifecycle notifications published
// by this server.
type TenantEventType string

const (
	TenantEventCreated       TenantEventType = "created"
	TenantEventMemberRemoved TenantEventType = "member_removed"
	TenantEventDeleted       TenantEventType = "deleted"
)

// TenantEvent is a tenant lifecycle notification.
type TenantEvent struct {
	Type     TenantEventType `json:"type"`
	TenantID string          `json:"tenantId"`
	Identity string          `json:"identity,omitempty"`
}
