package eventbus

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event is implemented by every typed payload carried on the bus. Validate
// reports a decode failure when required fields are missing; such messages
// are dropped by Consume.
type Event interface {
	Validate() error
}

var (
	errMissingRideID    = errors.New("missing ride_id")
	errMissingRiderID   = errors.New("missing rider_id")
	errMissingDriverID  = errors.New("missing driver_id")
	errMissingTimestamp = errors.New("missing timestamp")
)

// RideRequestedEvent is emitted by rider intake after the ride row is
// persisted.
type RideRequestedEvent struct {
	RideID         uuid.UUID `json:"ride_id"`
	RiderID        uuid.UUID `json:"rider_id"`
	OriginLat      float64   `json:"origin_lat"`
	OriginLng      float64   `json:"origin_lng"`
	DestinationLat float64   `json:"destination_lat"`
	DestinationLng float64   `json:"destination_lng"`
	CreatedAt      time.Time `json:"created_at"`
}

func (e RideRequestedEvent) Validate() error {
	if e.RideID == uuid.Nil {
		return errMissingRideID
	}
	if e.RiderID == uuid.Nil {
		return errMissingRiderID
	}
	if e.CreatedAt.IsZero() {
		return errMissingTimestamp
	}
	return nil
}

// DriverAssignedEvent is emitted by the matcher when a driver is chosen.
type DriverAssignedEvent struct {
	RideID     uuid.UUID `json:"ride_id"`
	DriverID   uuid.UUID `json:"driver_id"`
	AssignedAt time.Time `json:"assigned_at"`
	PickupLat  float64   `json:"pickup_lat"`
	PickupLng  float64   `json:"pickup_lng"`
	DropoffLat float64   `json:"dropoff_lat"`
	DropoffLng float64   `json:"dropoff_lng"`
}

func (e DriverAssignedEvent) Validate() error {
	if e.RideID == uuid.Nil {
		return errMissingRideID
	}
	if e.DriverID == uuid.Nil {
		return errMissingDriverID
	}
	if e.AssignedAt.IsZero() {
		return errMissingTimestamp
	}
	return nil
}

// NoDriversAvailableEvent is emitted by the matcher when the radius search
// comes back empty.
type NoDriversAvailableEvent struct {
	RideID      uuid.UUID `json:"ride_id"`
	RiderID     uuid.UUID `json:"rider_id"`
	RequestedAt time.Time `json:"requested_at"`
	Reason      *string   `json:"reason,omitempty"`
}

func (e NoDriversAvailableEvent) Validate() error {
	if e.RideID == uuid.Nil {
		return errMissingRideID
	}
	if e.RiderID == uuid.Nil {
		return errMissingRiderID
	}
	if e.RequestedAt.IsZero() {
		return errMissingTimestamp
	}
	return nil
}

// DriverAcceptedEvent is emitted when the assigned driver accepts the ride.
type DriverAcceptedEvent struct {
	RideID                     uuid.UUID `json:"ride_id"`
	DriverID                   uuid.UUID `json:"driver_id"`
	AcceptedAt                 time.Time `json:"accepted_at"`
	EstimatedPickupTimeMinutes int       `json:"estimated_pickup_time_minutes"`
}

func (e DriverAcceptedEvent) Validate() error {
	if e.RideID == uuid.Nil {
		return errMissingRideID
	}
	if e.DriverID == uuid.Nil {
		return errMissingDriverID
	}
	if e.AcceptedAt.IsZero() {
		return errMissingTimestamp
	}
	return nil
}

// DriverRejectedEvent is emitted when the assigned driver rejects the ride.
type DriverRejectedEvent struct {
	RideID   uuid.UUID `json:"ride_id"`
	DriverID uuid.UUID `json:"driver_id"`
}

func (e DriverRejectedEvent) Validate() error {
	if e.RideID == uuid.Nil {
		return errMissingRideID
	}
	if e.DriverID == uuid.Nil {
		return errMissingDriverID
	}
	return nil
}

// DriverAvailabilityChangedEvent is emitted on driver creation and on every
// availability toggle.
type DriverAvailabilityChangedEvent struct {
	DriverID        uuid.UUID `json:"driver_id"`
	DriverAvailable bool      `json:"driver_available"`
}

func (e DriverAvailabilityChangedEvent) Validate() error {
	if e.DriverID == uuid.Nil {
		return errMissingDriverID
	}
	return nil
}
