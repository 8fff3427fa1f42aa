package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TenantStatus is the lifecycle status of a tenant
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusInactive  TenantStatus = "inactive"
	TenantStatusSuspended TenantStatus = "suspended"
)

// Valid reports whether s is a known tenant status
func (s TenantStatus) Valid() bool {
	switch s {
	case TenantStatusActive, TenantStatusInactive, TenantStatusSuspended:
		return true
	}
	return false
}

// MemberRole is the role of a member within a tenant
type MemberRole string

const (
	// RoleOwner is assigned to exactly one member, at tenant creation,
	// and is never reassigned.
	RoleOwner  MemberRole = "owner"
	RoleMember MemberRole = "member"
)

// Member is a single tenant member. Identity is the join key and is
// matched against either the email or the username carried in claims.
type Member struct {
	Identity string     `json:"identity"`
	Role     MemberRole `json:"role"`
	JoinedAt time.Time  `json:"joinedAt"`
}

// Members is the ordered member list of a tenant, stored as a single
// JSONB column. Insertion order is join order.
type Members []Member

// Value implements driver.Valuer
func (m Members) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(Members{})
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *Members) Scan(value interface{}) error {
	if value == nil {
		*m = Members{}
		return nil
	}

	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, m)
	case string:
		return json.Unmarshal([]byte(data), m)
	default:
		return fmt.Errorf("unsupported members column type %T", value)
	}
}

// IndexOf returns the position of the member whose Identity equals
// identity, or -1 when no member matches.
func (m Members) IndexOf(identity string) int {
	for i, member := range m {
		if member.Identity == identity {
			return i
		}
	}
	return -1
}

// TenantRecord represents a tenant/organization owning devices and members.
// MemberCount must equal len(Members) after every successful mutation; the
// storage layer changes the two together in a single conditional update.
type TenantRecord struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	Name   string       `json:"name" db:"name"`
	Status TenantStatus `json:"status" db:"status"`

	MemberCount int     `json:"memberCount" db:"member_count"`
	Members     Members `json:"members" db:"members"`

	// OwnerIdentity is the address of the identity that confirmed and
	// thereby created this tenant.
	OwnerIdentity string `json:"ownerIdentity" db:"owner_identity"`
}

// Owner returns the owning member of the record.
func (t *TenantRecord) Owner() *Member {
	for i := range t.Members {
		if t.Members[i].Role == RoleOwner {
			return &t.Members[i]
		}
	}
	return nil
}
