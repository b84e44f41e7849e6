package livestate

import "time"

// StaleLocationAfter is how long a driver may go without a location report
// before they are considered undispatchable.
const StaleLocationAfter = 30 * time.Second

// Dispatchable is the reconciled answer to "can this driver take a ride
// right now".
type Dispatchable struct {
	Available bool
	Reason    Reason
}

// Reconcile derives dispatchability from a raw state hash. The checks are
// ordered: absence, then location freshness, then active ride, then the
// driver's own toggle.
func Reconcile(state *State, now time.Time) Dispatchable {
	if state == nil {
		return Dispatchable{Available: false, Reason: ReasonStaleLocationOrOffline}
	}

	lastLocation := time.UnixMilli(state.LastLocationTS)
	if state.LastLocationTS == 0 || now.Sub(lastLocation) > StaleLocationAfter {
		return Dispatchable{Available: false, Reason: ReasonStaleLocation}
	}

	if state.InRide {
		return Dispatchable{Available: false, Reason: ReasonInRide}
	}

	if !state.Available && state.Reason == ReasonOfflineToggle {
		return Dispatchable{Available: false, Reason: ReasonOfflineToggle}
	}

	return Dispatchable{Available: true, Reason: ReasonAvailable}
}
