package rider

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openride/dispatch/pkg/common"
	"github.com/openride/dispatch/pkg/models"
)

// Repository persists rider accounts.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a rider repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new rider row.
func (r *Repository) Create(ctx context.Context, rider *models.Rider) error {
	query := `
		INSERT INTO riders (id, name, phone, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query, rider.ID, rider.Name, rider.Phone).
		Scan(&rider.CreatedAt, &rider.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert rider: %w", err)
	}
	return nil
}

// GetByID loads one rider.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Rider, error) {
	query := `
		SELECT id, name, phone, created_at, updated_at
		FROM riders
		WHERE id = $1`

	var rider models.Rider
	err := r.db.QueryRow(ctx, query, id).Scan(
		&rider.ID, &rider.Name, &rider.Phone, &rider.CreatedAt, &rider.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NewNotFoundError("rider not found", err)
	}
	if err != nil {
		return nil, fmt.Errorf("get rider: %w", err)
	}
	return &rider, nil
}

// RideRepository persists durable ride rows.
type RideRepository struct {
	db *pgxpool.Pool
}

// NewRideRepository creates a ride repository.
func NewRideRepository(db *pgxpool.Pool) *RideRepository {
	return &RideRepository{db: db}
}

// Create inserts a ride in its initial requested state.
func (r *RideRepository) Create(ctx context.Context, ride *models.Ride) error {
	query := `
		INSERT INTO rides (id, rider_id, origin_lat, origin_lng, destination_lat, destination_lng, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		ride.ID, ride.RiderID,
		ride.OriginLat, ride.OriginLng, ride.DestinationLat, ride.DestinationLng,
		ride.Status,
	).Scan(&ride.CreatedAt, &ride.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}
	return nil
}

// GetByID loads one ride.
func (r *RideRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Ride, error) {
	query := `
		SELECT id, rider_id, origin_lat, origin_lng, destination_lat, destination_lng,
		       status, driver_id, match_time, pickup_time, dropoff_time, created_at, updated_at
		FROM rides
		WHERE id = $1`

	var ride models.Ride
	err := r.db.QueryRow(ctx, query, id).Scan(
		&ride.ID, &ride.RiderID,
		&ride.OriginLat, &ride.OriginLng, &ride.DestinationLat, &ride.DestinationLng,
		&ride.Status, &ride.DriverID, &ride.MatchTime, &ride.PickupTime, &ride.DropoffTime,
		&ride.CreatedAt, &ride.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NewNotFoundError("ride not found", err)
	}
	if err != nil {
		return nil, fmt.Errorf("get ride: %w", err)
	}
	return &ride, nil
}

// ListByRider returns a rider's rides, newest first.
func (r *RideRepository) ListByRider(ctx context.Context, riderID uuid.UUID, limit, offset int) ([]models.Ride, error) {
	query := `
		SELECT id, rider_id, origin_lat, origin_lng, destination_lat, destination_lng,
		       status, driver_id, match_time, pickup_time, dropoff_time, created_at, updated_at
		FROM rides
		WHERE rider_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, riderID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	defer rows.Close()

	var rides []models.Ride
	for rows.Next() {
		var ride models.Ride
		if err := rows.Scan(
			&ride.ID, &ride.RiderID,
			&ride.OriginLat, &ride.OriginLng, &ride.DestinationLat, &ride.DestinationLng,
			&ride.Status, &ride.DriverID, &ride.MatchTime, &ride.PickupTime, &ride.DropoffTime,
			&ride.CreatedAt, &ride.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ride: %w", err)
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// MarkAssigned records the matcher's decision on the ride row.
func (r *RideRepository) MarkAssigned(ctx context.Context, rideID, driverID uuid.UUID) error {
	query := `
		UPDATE rides
		SET status = $2, driver_id = $3, match_time = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $4`

	_, err := r.db.Exec(ctx, query, rideID, models.RideStatusAssigned, driverID, models.RideStatusRequested)
	if err != nil {
		return fmt.Errorf("mark ride assigned: %w", err)
	}
	return nil
}

// UpdateStatus moves a ride to a new status.
func (r *RideRepository) UpdateStatus(ctx context.Context, rideID uuid.UUID, status models.RideStatus) error {
	query := `
		UPDATE rides
		SET status = $2, updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, rideID, status)
	if err != nil {
		return fmt.Errorf("update ride status: %w", err)
	}
	return nil
}
