package driver

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/openride/dispatch/pkg/common"
)

// LocationIndex is the live-state surface the location service writes to.
type LocationIndex interface {
	UpdateLocation(ctx context.Context, driverID uuid.UUID, lat, lng float64) error
}

// LocationService ingests driver position reports from the WS reader and the
// HTTP fallback endpoint. It touches only the live-state store; no event is
// emitted and no durable row changes.
type LocationService struct {
	index    LocationIndex
	validate *validator.Validate
}

// NewLocationService creates a location service.
func NewLocationService(index LocationIndex) *LocationService {
	return &LocationService{
		index:    index,
		validate: validator.New(),
	}
}

// Update validates and records one position report.
func (s *LocationService) Update(ctx context.Context, driverID uuid.UUID, lat, lng float64) error {
	if driverID == uuid.Nil {
		return common.NewValidationError("driver_id is required")
	}
	if err := s.validate.Var(lat, "latitude"); err != nil {
		return common.NewValidationError("latitude must be between -90 and 90")
	}
	if err := s.validate.Var(lng, "longitude"); err != nil {
		return common.NewValidationError("longitude must be between -180 and 180")
	}

	return s.index.UpdateLocation(ctx, driverID, lat, lng)
}
