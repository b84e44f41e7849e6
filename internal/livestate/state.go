package livestate

import "fmt"

// Redis key layout. All driver live state lives in one geo set plus one hash
// per driver; every write refreshes the hash TTL so entries self-expire when
// a driver's app goes silent.
const (
	LocationsKey = "drivers:locations"

	FieldAvailable      = "available"
	FieldReason         = "reason"
	FieldLastLocationTS = "last_location_ts"
	FieldLastUpdated    = "last_updated"
	FieldInRide         = "in_ride"
	FieldRideID         = "ride_id"
)

// StateKey returns the per-driver state hash key.
func StateKey(driverID string) string {
	return fmt.Sprintf("drivers:%s:state", driverID)
}

// Reason explains why a driver is or is not dispatchable.
type Reason string

const (
	ReasonAvailable              Reason = "available"
	ReasonOfflineToggle          Reason = "offline_toggle"
	ReasonRideAssigned           Reason = "ride_assigned"
	ReasonInRide                 Reason = "in_ride"
	ReasonStaleLocation          Reason = "stale_location"
	ReasonStaleLocationOrOffline Reason = "stale_location_or_offline"
)

// State is the decoded per-driver live-state hash.
type State struct {
	Available      bool
	Reason         Reason
	LastLocationTS int64 // unix milliseconds of last location report
	LastUpdated    int64 // unix seconds of last state write
	InRide         bool
	RideID         string
}
