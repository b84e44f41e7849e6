package driver

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

// Repository persists driver accounts.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a driver repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new driver row.
func (r *Repository) Create(ctx context.Context, driver *models.Driver) error {
	query := `
		INSERT INTO drivers (id, name, car_id, license_number, rating, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		driver.ID, driver.Name, driver.CarID, driver.LicenseNumber, driver.Rating,
	).Scan(&driver.CreatedAt, &driver.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert driver: %w", err)
	}
	return nil
}

// GetByID loads one driver.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Driver, error) {
	query := `
		SELECT id, name, car_id, license_number, rating, created_at, updated_at
		FROM drivers
		WHERE id = $1`

	var driver models.Driver
	err := r.db.QueryRow(ctx, query, id).Scan(
		&driver.ID, &driver.Name, &driver.CarID, &driver.LicenseNumber, &driver.Rating,
		&driver.CreatedAt, &driver.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NewNotFoundError("driver not found", err)
	}
	if err != nil {
		return nil, fmt.Errorf("get driver: %w", err)
	}
	return &driver, nil
}

// List returns all drivers, newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]models.Driver, error) {
	query := `
		SELECT id, name, car_id, license_number, rating, created_at, updated_at
		FROM drivers
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	defer rows.Close()

	var drivers []models.Driver
	for rows.Next() {
		var driver models.Driver
		if err := rows.Scan(
			&driver.ID, &driver.Name, &driver.CarID, &driver.LicenseNumber, &driver.Rating,
			&driver.CreatedAt, &driver.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		drivers = append(drivers, driver)
	}
	return drivers, rows.Err()
}
