package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iotfleet-server/iotfleet-server/internal/errs"
	"github.com/iotfleet-server/iotfleet-server/internal/models"
)

var now = time.Now

// CreateTenant inserts the record with an existence guard. ON CONFLICT DO
// NOTHING turns a duplicate id into zero affected rows instead of a driver
// error, which keeps the guard observable as a plain row count.
func (s *PostgresStore) CreateTenant(ctx context.Context, tenant *models.TenantRecord) error {
	const op = "storage.CreateTenant"

	ts := now()
	tenant.CreatedAt = ts
	tenant.UpdatedAt = ts
	tenant.MemberCount = len(tenant.Members)

	query := `
        INSERT INTO tenants (
            id, created_at, updated_at, name, status,
            member_count, members, owner_identity
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8
        ) ON CONFLICT (id) DO NOTHING`

	result, err := s.db.ExecContext(ctx, query,
		tenant.ID, tenant.CreatedAt, tenant.UpdatedAt, tenant.Name,
		tenant.Status, tenant.MemberCount, tenant.Members, tenant.OwnerIdentity,
	)
	if err != nil {
		return errs.Wrap(errs.Upstream, op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.Upstream, op, err)
	}
	if rows == 0 {
		return errs.E(errs.Conflict, op, "tenant id already exists")
	}

	return nil
}

// GetTenant gets a tenant record by id
func (s *PostgresStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.TenantRecord, error) {
	const op = "storage.GetTenant"

	query := `
        SELECT id, created_at, updated_at, name, status,
               member_count, members, owner_identity
        FROM tenants
        WHERE id = $1`

	tenant := &models.TenantRecord{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&tenant.ID, &tenant.CreatedAt, &tenant.UpdatedAt, &tenant.Name,
		&tenant.Status, &tenant.MemberCount, &tenant.Members, &tenant.OwnerIdentity,
	)

	if err == sql.ErrNoRows {
		return nil, errs.E(errs.NotFound, op, "tenant not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.Upstream, op, err)
	}

	return tenant, nil
}

// UpdateTenantInfo sets name and status under the record-must-exist guard
func (s *PostgresStore) UpdateTenantInfo(ctx context.Context, id uuid.UUID, name string, status models.TenantStatus) error {
	const op = "storage.UpdateTenantInfo"

	query := `
        UPDATE tenants
        SET name = $2, status = $3, updated_at = $4
        WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id, name, status, now())
	if err != nil {
		return errs.Wrap(errs.Upstream, op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.Upstream, op, err)
	}
	if rows == 0 {
		return errs.E(errs.NotFound, op, "tenant not found")
	}

	return nil
}

// RemoveMemberAt removes members[index] and decrements member_count in one
// statement. The member_count guard makes this a compare-and-swap against
// the count observed when the caller located the member: a record deleted
// or mutated in between affects zero rows.
func (s *PostgresStore) RemoveMemberAt(ctx context.Context, id uuid.UUID, index, priorCount int) error {
	const op = "storage.RemoveMemberAt"

	query := `
        UPDATE tenants
        SET members = members - $2,
            member_count = member_count - 1,
            updated_at = $4
        WHERE id = $1 AND member_count = $3`

	result, err := s.db.ExecContext(ctx, query, id, index, priorCount, now())
	if err != nil {
		return errs.Wrap(errs.Upstream, op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.Upstream, op, err)
	}
	if rows == 0 {
		return errs.E(errs.Conflict, op, "tenant gone or concurrently mutated")
	}

	return nil
}

// DeleteTenant deletes a tenant record
func (s *PostgresStore) DeleteTenant(ctx context.Context, id uuid.UUID) error {
	const op = "storage.DeleteTenant"

	result, err := s.db.ExecContext(ctx, "DELETE FROM tenants WHERE id = $1", id)
	if err != nil {
		return errs.Wrap(errs.Upstream, op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.Upstream, op, err)
	}
	if rows == 0 {
		return errs.E(errs.NotFound, op, "tenant not found")
	}

	return nil
}
