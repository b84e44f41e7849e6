package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openride/dispatch/internal/livestate"
	"github.com/openride/dispatch/pkg/common"
	"github.com/openride/dispatch/pkg/eventbus"
	"github.com/openride/dispatch/pkg/logger"
	"github.com/openride/dispatch/pkg/models"
	"github.com/openride/dispatch/pkg/ws"
	"go.uber.org/zap"
)

// OfferExpirySec is how long a pushed ride offer stays actionable.
const OfferExpirySec = 30

// StatusStore is the durable driver_status surface the lifecycle writes to.
type StatusStore interface {
	GetStatus(ctx context.Context, driverID uuid.UUID) (*models.DriverStatus, error)
	PatchStatus(ctx context.Context, driverID uuid.UUID, patch models.StatusPatch) (bool, error)
	CreateStatus(ctx context.Context, status *models.DriverStatus) error
}

// LiveState is the Redis-backed surface the lifecycle refreshes.
type LiveState interface {
	GetState(ctx context.Context, driverID uuid.UUID) (*livestate.State, error)
	SetState(ctx context.Context, driverID uuid.UUID, available bool, reason livestate.Reason, inRide bool, rideID string) error
	RemoveFromIndex(ctx context.Context, driverID uuid.UUID) error
}

// OfferSender pushes frames to connected driver apps.
type OfferSender interface {
	SendTo(clientID uuid.UUID, frame []byte) bool
}

// Lifecycle drives a driver through assigned, accepted, rejected and back to
// idle. Every transition writes durable state first, then live state, then
// the bus; a later step failing never rolls back an earlier one.
type Lifecycle struct {
	statuses StatusStore
	live     LiveState
	bus      eventbus.Publisher
	hub      OfferSender
	eta      ETACalculator
	now      func() time.Time
}

// NewLifecycle creates the driver ride lifecycle service.
func NewLifecycle(statuses StatusStore, live LiveState, bus eventbus.Publisher, hub OfferSender, eta ETACalculator) *Lifecycle {
	return &Lifecycle{
		statuses: statuses,
		live:     live,
		bus:      bus,
		hub:      hub,
		eta:      eta,
		now:      time.Now,
	}
}

// HandleAssigned reacts to a matcher assignment: mark the driver busy in the
// durable store, refresh live state, then push the offer over the driver's
// socket. A durable failure aborts; live-state and socket failures are
// logged and left to TTL reconciliation.
func (l *Lifecycle) HandleAssigned(ctx context.Context, event eventbus.DriverAssignedEvent) error {
	notAvailable := false
	assigned := models.DriverRideStatusAssigned
	rideID := event.RideID

	patch := models.StatusPatch{
		DriverAvailable: &notAvailable,
		RideStatus:      &assigned,
		CurrentTripID:   &rideID,
	}
	if err := l.patchOrCreate(ctx, event.DriverID, patch); err != nil {
		return fmt.Errorf("assign ride %s to driver %s: %w", event.RideID, event.DriverID, err)
	}

	if err := l.live.SetState(ctx, event.DriverID, false, livestate.ReasonRideAssigned, false, event.RideID.String()); err != nil {
		logger.ErrorContext(ctx, "live-state write failed after assignment",
			zap.String("driver_id", event.DriverID.String()),
			zap.Error(err),
		)
	}

	offer, err := json.Marshal(ws.NewRideOffer(event.RideID, OfferExpirySec,
		ws.Coord{Lat: event.PickupLat, Lng: event.PickupLng},
		ws.Coord{Lat: event.DropoffLat, Lng: event.DropoffLng},
	))
	if err != nil {
		return fmt.Errorf("encode offer for ride %s: %w", event.RideID, err)
	}
	if !l.hub.SendTo(event.DriverID, offer) {
		logger.WarnContext(ctx, "offer not delivered, driver not connected",
			zap.String("driver_id", event.DriverID.String()),
			zap.String("ride_id", event.RideID.String()),
		)
	}

	return nil
}

// AcceptRide moves the driver's current assignment to in-ride and announces
// the acceptance with a pickup ETA.
func (l *Lifecycle) AcceptRide(ctx context.Context, driverID uuid.UUID) error {
	rideID, err := l.assignedTrip(ctx, driverID)
	if err != nil {
		return err
	}

	notAvailable := false
	inRide := models.DriverRideStatusInRide
	patch := models.StatusPatch{
		DriverAvailable: &notAvailable,
		RideStatus:      &inRide,
		CurrentTripID:   &rideID,
	}
	if updated, err := l.statuses.PatchStatus(ctx, driverID, patch); err != nil {
		return fmt.Errorf("accept ride %s: %w", rideID, err)
	} else if !updated {
		return common.NewConflictError("driver has no status row")
	}

	if err := l.live.SetState(ctx, driverID, false, livestate.ReasonInRide, true, rideID.String()); err != nil {
		logger.ErrorContext(ctx, "live-state write failed after accept",
			zap.String("driver_id", driverID.String()),
			zap.Error(err),
		)
	}

	accepted := eventbus.DriverAcceptedEvent{
		RideID:                     rideID,
		DriverID:                   driverID,
		AcceptedAt:                 l.now().UTC(),
		EstimatedPickupTimeMinutes: l.eta.PickupETAMinutes(),
	}
	data, err := json.Marshal(accepted)
	if err != nil {
		return fmt.Errorf("encode acceptance for ride %s: %w", rideID, err)
	}
	if err := l.bus.Publish(ctx, eventbus.SubjectDriverAccepted, data); err != nil {
		// Durable and live state already moved; surface but do not roll back.
		logger.ErrorContext(ctx, "acceptance publish failed",
			zap.String("ride_id", rideID.String()),
			zap.Error(err),
		)
		return common.NewUnavailableError("acceptance recorded but not announced", err)
	}

	logger.InfoContext(ctx, "ride accepted",
		zap.String("driver_id", driverID.String()),
		zap.String("ride_id", rideID.String()),
		zap.Int("eta_minutes", accepted.EstimatedPickupTimeMinutes),
	)
	return nil
}

// RejectRide releases the driver's current assignment and returns them to
// the available pool.
func (l *Lifecycle) RejectRide(ctx context.Context, driverID uuid.UUID) error {
	rideID, err := l.assignedTrip(ctx, driverID)
	if err != nil {
		return err
	}

	available := true
	none := models.DriverRideStatusNone
	patch := models.StatusPatch{
		DriverAvailable:  &available,
		RideStatus:       &none,
		ClearCurrentTrip: true,
	}
	if updated, err := l.statuses.PatchStatus(ctx, driverID, patch); err != nil {
		return fmt.Errorf("reject ride %s: %w", rideID, err)
	} else if !updated {
		return common.NewConflictError("driver has no status row")
	}

	if err := l.live.SetState(ctx, driverID, true, livestate.ReasonAvailable, false, ""); err != nil {
		logger.ErrorContext(ctx, "live-state write failed after reject",
			zap.String("driver_id", driverID.String()),
			zap.Error(err),
		)
	}

	rejected := eventbus.DriverRejectedEvent{RideID: rideID, DriverID: driverID}
	data, err := json.Marshal(rejected)
	if err != nil {
		return fmt.Errorf("encode rejection for ride %s: %w", rideID, err)
	}
	if err := l.bus.Publish(ctx, eventbus.SubjectDriverRejected, data); err != nil {
		logger.ErrorContext(ctx, "rejection publish failed",
			zap.String("ride_id", rideID.String()),
			zap.Error(err),
		)
		return common.NewUnavailableError("rejection recorded but not announced", err)
	}

	logger.InfoContext(ctx, "ride rejected",
		zap.String("driver_id", driverID.String()),
		zap.String("ride_id", rideID.String()),
	)
	return nil
}

// StartRide is a hook for the pickup-arrived transition. Nothing durable
// moves yet.
func (l *Lifecycle) StartRide(ctx context.Context, driverID uuid.UUID) error {
	return nil
}

// CompleteRide is a hook for the trip-complete transition. Nothing durable
// moves yet.
func (l *Lifecycle) CompleteRide(ctx context.Context, driverID uuid.UUID) error {
	return nil
}

// SetAvailability applies a driver's availability toggle, gated by live-state
// reconciliation. Returns true when a durable status row was created rather
// than patched.
func (l *Lifecycle) SetAvailability(ctx context.Context, driverID uuid.UUID, available bool) (created bool, err error) {
	state, err := l.live.GetState(ctx, driverID)
	if err != nil {
		return false, fmt.Errorf("read live state for %s: %w", driverID, err)
	}

	if state != nil {
		verdict := livestate.Reconcile(state, l.now())
		// A driver cannot self-unbind from an active ride; refuse silently.
		if available && verdict.Reason == livestate.ReasonInRide {
			logger.InfoContext(ctx, "availability toggle ignored, driver in ride",
				zap.String("driver_id", driverID.String()),
			)
			return false, nil
		}
	}

	patch := models.StatusPatch{DriverAvailable: &available}
	updated, err := l.statuses.PatchStatus(ctx, driverID, patch)
	if err != nil {
		return false, fmt.Errorf("patch availability for %s: %w", driverID, err)
	}
	if !updated {
		status := &models.DriverStatus{
			DriverID:        driverID,
			DriverAvailable: available,
			RideStatus:      models.DriverRideStatusNone,
		}
		if err := l.statuses.CreateStatus(ctx, status); err != nil {
			return false, fmt.Errorf("create status for %s: %w", driverID, err)
		}
		created = true
	}

	if available {
		if err := l.live.SetState(ctx, driverID, true, livestate.ReasonAvailable, false, ""); err != nil {
			logger.ErrorContext(ctx, "live-state refresh failed on go-online",
				zap.String("driver_id", driverID.String()),
				zap.Error(err),
			)
		}
	} else {
		// Going offline: write the toggle only when state already exists, so
		// an expired key is not resurrected for an offline driver.
		if state != nil {
			if err := l.live.SetState(ctx, driverID, false, livestate.ReasonOfflineToggle, false, ""); err != nil {
				logger.ErrorContext(ctx, "live-state refresh failed on go-offline",
					zap.String("driver_id", driverID.String()),
					zap.Error(err),
				)
			}
		}
		if err := l.live.RemoveFromIndex(ctx, driverID); err != nil {
			logger.ErrorContext(ctx, "geo index prune failed on go-offline",
				zap.String("driver_id", driverID.String()),
				zap.Error(err),
			)
		}
	}

	if err := l.publishAvailability(ctx, driverID, available); err != nil {
		logger.ErrorContext(ctx, "availability publish failed",
			zap.String("driver_id", driverID.String()),
			zap.Error(err),
		)
	}

	return created, nil
}

// PublishAvailability announces a driver's availability on the bus. Exposed
// for driver registration, which seeds the first availability event.
func (l *Lifecycle) PublishAvailability(ctx context.Context, driverID uuid.UUID, available bool) error {
	return l.publishAvailability(ctx, driverID, available)
}

func (l *Lifecycle) publishAvailability(ctx context.Context, driverID uuid.UUID, available bool) error {
	event := eventbus.DriverAvailabilityChangedEvent{
		DriverID:        driverID,
		DriverAvailable: available,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode availability for %s: %w", driverID, err)
	}
	return l.bus.Publish(ctx, eventbus.SubjectAvailabilityChanged, data)
}

// assignedTrip loads the driver's status row and verifies there is a pending
// assignment to act on.
func (l *Lifecycle) assignedTrip(ctx context.Context, driverID uuid.UUID) (uuid.UUID, error) {
	status, err := l.statuses.GetStatus(ctx, driverID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("load status for %s: %w", driverID, err)
	}
	if status == nil {
		return uuid.Nil, common.NewNotFoundError("driver status not found", nil)
	}
	if status.RideStatus != models.DriverRideStatusAssigned || status.CurrentTripID == nil {
		return uuid.Nil, common.NewConflictError("driver has no pending assignment")
	}
	return *status.CurrentTripID, nil
}

// patchOrCreate applies a patch, falling back to insert when the driver has
// never had a status row.
func (l *Lifecycle) patchOrCreate(ctx context.Context, driverID uuid.UUID, patch models.StatusPatch) error {
	updated, err := l.statuses.PatchStatus(ctx, driverID, patch)
	if err != nil {
		return err
	}
	if updated {
		return nil
	}

	status := &models.DriverStatus{
		DriverID:   driverID,
		RideStatus: models.DriverRideStatusNone,
	}
	if patch.DriverAvailable != nil {
		status.DriverAvailable = *patch.DriverAvailable
	}
	if patch.RideStatus != nil {
		status.RideStatus = *patch.RideStatus
	}
	if patch.CurrentTripID != nil && !patch.ClearCurrentTrip {
		status.CurrentTripID = patch.CurrentTripID
	}
	return l.statuses.CreateStatus(ctx, status)
}
