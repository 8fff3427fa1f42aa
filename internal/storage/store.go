package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/iotfleet-server/iotfleet-server/internal/models"
)

// Store defines the tenant record store. Every mutation is an
// existence-guarded conditional primitive; the store never exposes a blind
// write. These single-item guarantees are the only concurrency control in
// the system.
type Store interface {
	// CreateTenant inserts the record and fails with a Conflict error
	// when the tenant id is already present. This guard is the
	// enforcement point of the tenant-id uniqueness invariant.
	CreateTenant(ctx context.Context, tenant *models.TenantRecord) error

	// GetTenant returns the record, or a NotFound error.
	GetTenant(ctx context.Context, id uuid.UUID) (*models.TenantRecord, error)

	// UpdateTenantInfo sets name and status, requiring the record to
	// still exist. A concurrently deleted record yields NotFound; no
	// partial write is ever observed.
	UpdateTenantInfo(ctx context.Context, id uuid.UUID, name string, status models.TenantStatus) error

	// RemoveMemberAt removes the member at index and decrements
	// member_count in a single conditional update, guarded on the
	// member count observed at read time. A lost race yields Conflict.
	RemoveMemberAt(ctx context.Context, id uuid.UUID, index, priorCount int) error

	// DeleteTenant removes the record, NotFound when absent.
	DeleteTenant(ctx context.Context, id uuid.UUID) error

	Close() error
}
