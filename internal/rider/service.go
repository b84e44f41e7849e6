package rider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/openride/dispatch/pkg/common"
	"github.com/openride/dispatch/pkg/eventbus"
	"github.com/openride/dispatch/pkg/logger"
	"github.com/openride/dispatch/pkg/models"
	"go.uber.org/zap"
)

// RideStore is the durable ride surface the intake service writes to.
type RideStore interface {
	Create(ctx context.Context, ride *models.Ride) error
	MarkAssigned(ctx context.Context, rideID, driverID uuid.UUID) error
	UpdateStatus(ctx context.Context, rideID uuid.UUID, status models.RideStatus) error
}

// Service handles ride intake and keeps ride rows in step with lifecycle
// events. The order is strict: persist first, publish second, so no consumer
// ever sees a ride.requested for an un-persisted ride.
type Service struct {
	rides RideStore
	bus   eventbus.Publisher
}

// NewService creates the rider intake service.
func NewService(rides RideStore, bus eventbus.Publisher) *Service {
	return &Service{rides: rides, bus: bus}
}

// RequestRide persists a new ride and announces it on the bus. A publish
// failure surfaces to the caller but the row stays; the rider retries and
// downstream consumers deduplicate by ride_id.
func (s *Service) RequestRide(ctx context.Context, riderID uuid.UUID, originLat, originLng, destLat, destLng float64) (*models.Ride, error) {
	ride := &models.Ride{
		ID:             uuid.New(),
		RiderID:        riderID,
		OriginLat:      originLat,
		OriginLng:      originLng,
		DestinationLat: destLat,
		DestinationLng: destLng,
		Status:         models.RideStatusRequested,
	}
	if err := s.rides.Create(ctx, ride); err != nil {
		return nil, fmt.Errorf("persist ride: %w", err)
	}

	event := eventbus.RideRequestedEvent{
		RideID:         ride.ID,
		RiderID:        ride.RiderID,
		OriginLat:      ride.OriginLat,
		OriginLng:      ride.OriginLng,
		DestinationLat: ride.DestinationLat,
		DestinationLng: ride.DestinationLng,
		CreatedAt:      ride.CreatedAt.UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode ride request: %w", err)
	}
	if err := s.bus.Publish(ctx, eventbus.SubjectRideRequested, data); err != nil {
		logger.ErrorContext(ctx, "ride request publish failed",
			zap.String("ride_id", ride.ID.String()),
			zap.Error(err),
		)
		return ride, common.NewUnavailableError("ride recorded but not dispatched", err)
	}

	logger.InfoContext(ctx, "ride requested",
		zap.String("ride_id", ride.ID.String()),
		zap.String("rider_id", ride.RiderID.String()),
	)
	return ride, nil
}

// HandleAssigned records the matcher's decision on the ride row.
func (s *Service) HandleAssigned(ctx context.Context, event eventbus.DriverAssignedEvent) error {
	if err := s.rides.MarkAssigned(ctx, event.RideID, event.DriverID); err != nil {
		return fmt.Errorf("record assignment for ride %s: %w", event.RideID, err)
	}
	return nil
}

// HandleAccepted moves the ride to accepted when the driver takes it.
func (s *Service) HandleAccepted(ctx context.Context, event eventbus.DriverAcceptedEvent) error {
	if err := s.rides.UpdateStatus(ctx, event.RideID, models.RideStatusAccepted); err != nil {
		return fmt.Errorf("record acceptance for ride %s: %w", event.RideID, err)
	}
	return nil
}

// HandleRejected moves the ride to rejected when the driver declines.
func (s *Service) HandleRejected(ctx context.Context, event eventbus.DriverRejectedEvent) error {
	if err := s.rides.UpdateStatus(ctx, event.RideID, models.RideStatusRejected); err != nil {
		return fmt.Errorf("record rejection for ride %s: %w", event.RideID, err)
	}
	return nil
}

// HandleNoDrivers cancels a ride the matcher could not place.
func (s *Service) HandleNoDrivers(ctx context.Context, event eventbus.NoDriversAvailableEvent) error {
	if err := s.rides.UpdateStatus(ctx, event.RideID, models.RideStatusCanceled); err != nil {
		return fmt.Errorf("record no-drivers for ride %s: %w", event.RideID, err)
	}
	logger.InfoContext(ctx, "ride canceled, no drivers",
		zap.String("ride_id", event.RideID.String()),
	)
	return nil
}
