package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openride/dispatch/internal/livestate"
	"github.com/openride/dispatch/pkg/eventbus"
	"github.com/openride/dispatch/pkg/logger"
	"go.uber.org/zap"
)

// SearchRadiusKM is how far from the pickup point the matcher looks for
// drivers.
const SearchRadiusKM = 2.0

// NoDriversReason is the rider-facing reason attached to an unmatched
// request.
const NoDriversReason = "No available drivers in vicinity"

// GeoSearcher finds drivers near a point, nearest first.
type GeoSearcher interface {
	Search(ctx context.Context, lat, lng, radiusKM float64) ([]livestate.Candidate, error)
}

// Service matches ride requests to the nearest driver. The geo set is the
// sole eligibility list: a driver present in the index is offerable.
type Service struct {
	geo     GeoSearcher
	bus     eventbus.Publisher
	records *recordBook
	now     func() time.Time
}

// NewService creates a matcher service.
func NewService(geo GeoSearcher, bus eventbus.Publisher) *Service {
	return &Service{
		geo:     geo,
		bus:     bus,
		records: newRecordBook(),
		now:     time.Now,
	}
}

// HandleRideRequested runs the match for one ride request: search the radius
// around the pickup point, assign the nearest driver, or report that none
// was found.
func (s *Service) HandleRideRequested(ctx context.Context, event eventbus.RideRequestedEvent) error {
	s.records.put(&RideRecord{
		RideID:     event.RideID,
		RiderID:    event.RiderID,
		State:      MatchStatePending,
		ReceivedAt: s.now(),
	})

	start := s.now()
	candidates, err := s.geo.Search(ctx, event.OriginLat, event.OriginLng, SearchRadiusKM)
	searchDuration.Observe(s.now().Sub(start).Seconds())
	if err != nil {
		return fmt.Errorf("match ride %s: %w", event.RideID, err)
	}

	if len(candidates) == 0 {
		return s.reportNoDrivers(ctx, event)
	}

	return s.assign(ctx, event, candidates[0])
}

func (s *Service) assign(ctx context.Context, event eventbus.RideRequestedEvent, chosen livestate.Candidate) error {
	assigned := eventbus.DriverAssignedEvent{
		RideID:     event.RideID,
		DriverID:   chosen.DriverID,
		AssignedAt: event.CreatedAt,
		PickupLat:  event.OriginLat,
		PickupLng:  event.OriginLng,
		DropoffLat: event.DestinationLat,
		DropoffLng: event.DestinationLng,
	}

	data, err := json.Marshal(assigned)
	if err != nil {
		return fmt.Errorf("encode assignment for ride %s: %w", event.RideID, err)
	}
	if err := s.bus.Publish(ctx, eventbus.SubjectDriverAssigned, data); err != nil {
		return fmt.Errorf("publish assignment for ride %s: %w", event.RideID, err)
	}

	s.records.resolve(event.RideID, MatchStateMatched, &chosen.DriverID, s.now())
	ridesMatched.Inc()

	logger.InfoContext(ctx, "ride matched",
		zap.String("ride_id", event.RideID.String()),
		zap.String("driver_id", chosen.DriverID.String()),
		zap.Float64("distance_m", chosen.DistanceM),
	)
	return nil
}

func (s *Service) reportNoDrivers(ctx context.Context, event eventbus.RideRequestedEvent) error {
	reason := NoDriversReason
	unmatched := eventbus.NoDriversAvailableEvent{
		RideID:      event.RideID,
		RiderID:     event.RiderID,
		RequestedAt: event.CreatedAt,
		Reason:      &reason,
	}

	data, err := json.Marshal(unmatched)
	if err != nil {
		return fmt.Errorf("encode no-drivers for ride %s: %w", event.RideID, err)
	}
	if err := s.bus.Publish(ctx, eventbus.SubjectNoDriversAvailable, data); err != nil {
		return fmt.Errorf("publish no-drivers for ride %s: %w", event.RideID, err)
	}

	s.records.resolve(event.RideID, MatchStateExpired, nil, s.now())
	ridesUnmatched.Inc()

	logger.InfoContext(ctx, "no drivers available",
		zap.String("ride_id", event.RideID.String()),
		zap.Float64("radius_km", SearchRadiusKM),
	)
	return nil
}

// Record returns the matcher's record for a ride, if it is still held.
func (s *Service) Record(rideID uuid.UUID) (*RideRecord, bool) {
	return s.records.get(rideID)
}
