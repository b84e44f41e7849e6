package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openride/dispatch/pkg/models"
)

// StatusRepository persists per-driver availability and trip state.
type StatusRepository struct {
	db *pgxpool.Pool
}

// NewStatusRepository creates a driver status repository.
func NewStatusRepository(db *pgxpool.Pool) *StatusRepository {
	return &StatusRepository{db: db}
}

// GetStatus loads a driver's status row. Returns (nil, nil) when no row
// exists.
func (r *StatusRepository) GetStatus(ctx context.Context, driverID uuid.UUID) (*models.DriverStatus, error) {
	query := `
		SELECT driver_id, driver_available, ride_status, current_trip_id, status_updated_at
		FROM driver_status
		WHERE driver_id = $1`

	var status models.DriverStatus
	err := r.db.QueryRow(ctx, query, driverID).Scan(
		&status.DriverID, &status.DriverAvailable, &status.RideStatus,
		&status.CurrentTripID, &status.StatusUpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get driver status: %w", err)
	}
	return &status, nil
}

// PatchStatus applies a partial update to a driver's status row. Only fields
// present in the patch are assigned; status_updated_at is always refreshed.
// Returns false when no row exists for the driver.
func (r *StatusRepository) PatchStatus(ctx context.Context, driverID uuid.UUID, patch models.StatusPatch) (bool, error) {
	query, args := buildStatusPatch(driverID, patch)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("patch driver status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CreateStatus inserts a status row for a driver that has never had one.
func (r *StatusRepository) CreateStatus(ctx context.Context, status *models.DriverStatus) error {
	query := `
		INSERT INTO driver_status (driver_id, driver_available, ride_status, current_trip_id, status_updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING status_updated_at`

	err := r.db.QueryRow(ctx, query,
		status.DriverID, status.DriverAvailable, status.RideStatus, status.CurrentTripID,
	).Scan(&status.StatusUpdatedAt)
	if err != nil {
		return fmt.Errorf("insert driver status: %w", err)
	}
	return nil
}

// DeleteStatus removes a driver's status row, for account teardown.
func (r *StatusRepository) DeleteStatus(ctx context.Context, driverID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM driver_status WHERE driver_id = $1`, driverID); err != nil {
		return fmt.Errorf("delete driver status: %w", err)
	}
	return nil
}

// buildStatusPatch assembles the dynamic SET list for a partial status
// update. status_updated_at is always included so readers can see when the
// row last moved, even on an empty patch.
func buildStatusPatch(driverID uuid.UUID, patch models.StatusPatch) (string, []any) {
	sets := []string{"status_updated_at = NOW()"}
	args := []any{driverID}
	arg := 2

	if patch.DriverAvailable != nil {
		sets = append(sets, fmt.Sprintf("driver_available = $%d", arg))
		args = append(args, *patch.DriverAvailable)
		arg++
	}
	if patch.RideStatus != nil {
		sets = append(sets, fmt.Sprintf("ride_status = $%d", arg))
		args = append(args, *patch.RideStatus)
		arg++
	}
	if patch.ClearCurrentTrip {
		sets = append(sets, "current_trip_id = NULL")
	} else if patch.CurrentTripID != nil {
		sets = append(sets, fmt.Sprintf("current_trip_id = $%d", arg))
		args = append(args, *patch.CurrentTripID)
		arg++
	}

	query := fmt.Sprintf("UPDATE driver_status SET %s WHERE driver_id = $1", strings.Join(sets, ", "))
	return query, args
}
