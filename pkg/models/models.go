package models

import (
	"time"

	"github.com/google/uuid"
)

// RideStatus tracks a ride through its durable lifecycle.
type RideStatus string

const (
	RideStatusRequested RideStatus = "requested"
	RideStatusAssigned  RideStatus = "assigned"
	RideStatusAccepted  RideStatus = "accepted"
	RideStatusRejected  RideStatus = "rejected"
	RideStatusCompleted RideStatus = "completed"
	RideStatusCanceled  RideStatus = "canceled"
)

// DriverRideStatus tracks the driver's side of an active trip.
type DriverRideStatus string

const (
	DriverRideStatusNone          DriverRideStatus = "none"
	DriverRideStatusAssigned      DriverRideStatus = "assigned"
	DriverRideStatusPickupArrived DriverRideStatus = "pickup_arrived"
	DriverRideStatusInRide        DriverRideStatus = "in_ride"
	DriverRideStatusCompleted     DriverRideStatus = "completed"
	DriverRideStatusCanceled      DriverRideStatus = "canceled"
)

// Rider is a registered rider account.
type Rider struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ride is the durable ride record owned by the rider service.
type Ride struct {
	ID             uuid.UUID  `json:"id"`
	RiderID        uuid.UUID  `json:"rider_id"`
	OriginLat      float64    `json:"origin_lat"`
	OriginLng      float64    `json:"origin_lng"`
	DestinationLat float64    `json:"destination_lat"`
	DestinationLng float64    `json:"destination_lng"`
	Status         RideStatus `json:"status"`
	DriverID       *uuid.UUID `json:"driver_id,omitempty"`
	MatchTime      *time.Time `json:"match_time,omitempty"`
	PickupTime     *time.Time `json:"pickup_time,omitempty"`
	DropoffTime    *time.Time `json:"dropoff_time,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Driver is a registered driver account.
type Driver struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	CarID         *string   `json:"car_id,omitempty"`
	LicenseNumber *string   `json:"license_number,omitempty"`
	Rating        *float64  `json:"rating,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DriverStatus is the durable per-driver availability and trip row owned by
// the driver service.
type DriverStatus struct {
	DriverID        uuid.UUID        `json:"driver_id"`
	DriverAvailable bool             `json:"driver_available"`
	RideStatus      DriverRideStatus `json:"ride_status"`
	CurrentTripID   *uuid.UUID       `json:"current_trip_id,omitempty"`
	StatusUpdatedAt time.Time        `json:"status_updated_at"`
}

// StatusPatch carries a partial update to a driver_status row. Nil fields are
// left untouched; ClearCurrentTrip sets current_trip_id to NULL.
type StatusPatch struct {
	DriverAvailable  *bool
	RideStatus       *DriverRideStatus
	CurrentTripID    *uuid.UUID
	ClearCurrentTrip bool
}

// IsEmpty reports whether the patch would change nothing.
func (p StatusPatch) IsEmpty() bool {
	return p.DriverAvailable == nil && p.RideStatus == nil && p.CurrentTripID == nil && !p.ClearCurrentTrip
}
