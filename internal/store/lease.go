package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Lease is the current holder of a named replay lease.
type Lease struct {
	Name      string
	Owner     string
	ExpiresAt time.Time
}

// AcquireLease takes or renews the named lease for owner until now+ttl.
//
// The lease is granted when no row exists, when owner already holds it, or
// when the current holder's lease has expired. The check and the write are a
// single upsert statement, so two processes can never both succeed.
func (s *Store) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration, now time.Time) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("acquire lease: ttl must be positive, got %s", ttl)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leases (name, owner, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE
		SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE leases.owner = excluded.owner OR leases.expires_at <= ?
	`, name, owner, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: rows affected: %w", name, err)
	}
	return n > 0, nil
}

// ReleaseLease drops the lease if owner still holds it.
// Releasing a lease that was taken over after expiry is a no-op.
func (s *Store) ReleaseLease(ctx context.Context, name, owner string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE name = ? AND owner = ?`, name, owner)
	if err != nil {
		return false, fmt.Errorf("release lease %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("release lease %s: rows affected: %w", name, err)
	}
	return n > 0, nil
}

// ReadLease returns the current lease row.
// Returns sql.ErrNoRows if nobody holds or has held the lease.
func (s *Store) ReadLease(ctx context.Context, name string) (Lease, error) {
	var (
		l         Lease
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT name, owner, expires_at FROM leases WHERE name = ?
	`, name).Scan(&l.Name, &l.Owner, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Lease{}, err
	}
	if err != nil {
		return Lease{}, fmt.Errorf("read lease %s: %w", name, err)
	}
	l.ExpiresAt = time.UnixMilli(expiresAt)
	return l, nil
}
