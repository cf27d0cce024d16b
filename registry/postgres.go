package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps Lease Records in the lease_records table (see
// [Migrate]).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed lease store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Put replaces the account's record inside one transaction. The existing row
// is locked first so the previous lease id reported matches the row that was
// overwritten; a first-time race between two inserts is settled by ON
// CONFLICT and the loser reports no previous lease.
func (s *PostgresStore) Put(ctx context.Context, rec Record) (PutResult, error) {
	if err := checkRecord(rec); err != nil {
		return PutResult{}, err
	}

	out := PutResult{Record: rec}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT lease_id
			FROM lease_records
			WHERE account_id = $1
			FOR UPDATE
		`, rec.AccountID).Scan(&out.PreviousLeaseID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		var gen int64
		err = tx.QueryRow(ctx, `
			INSERT INTO lease_records (account_id, lease_id, device_label, issued_at, generation)
			VALUES ($1, $2, $3, $4, 1)
			ON CONFLICT (account_id) DO UPDATE SET
				lease_id     = EXCLUDED.lease_id,
				device_label = EXCLUDED.device_label,
				issued_at    = EXCLUDED.issued_at,
				generation   = lease_records.generation + 1
			RETURNING generation
		`, rec.AccountID, rec.LeaseID, rec.DeviceLabel, rec.IssuedAt).Scan(&gen)
		if err != nil {
			return err
		}
		out.Record.Generation = uint64(gen)
		return nil
	})
	if err != nil {
		return PutResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return out, nil
}

// Get loads the account's record by primary key.
func (s *PostgresStore) Get(ctx context.Context, accountID string) (Record, error) {
	rec := Record{AccountID: accountID}
	var gen int64

	err := s.pool.QueryRow(ctx, `
		SELECT lease_id, device_label, issued_at, generation
		FROM lease_records
		WHERE account_id = $1
	`, accountID).Scan(&rec.LeaseID, &rec.DeviceLabel, &rec.IssuedAt, &gen)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rec.IssuedAt = rec.IssuedAt.UTC()
	rec.Generation = uint64(gen)
	return rec, nil
}

// Delete removes the account's record.
func (s *PostgresStore) Delete(ctx context.Context, accountID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM lease_records WHERE account_id = $1`, accountID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Ping checks pool connectivity.
func (s *PostgresStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.pool.Ping(ctx); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
