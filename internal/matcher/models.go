package matcher

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MatchState tracks a ride request through the matcher's in-memory lifecycle.
// Records are ephemeral; a restart forgets in-flight requests and the rider
// retries.
type MatchState string

const (
	MatchStatePending MatchState = "pending"
	MatchStateMatched MatchState = "matched"
	MatchStateExpired MatchState = "expired"
)

// RideRecord is the matcher's working view of one ride request.
type RideRecord struct {
	RideID     uuid.UUID
	RiderID    uuid.UUID
	State      MatchState
	DriverID   *uuid.UUID
	ReceivedAt time.Time
	ResolvedAt *time.Time
}

// recordBook holds in-flight and recently resolved ride records.
type recordBook struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*RideRecord
}

func newRecordBook() *recordBook {
	return &recordBook{records: make(map[uuid.UUID]*RideRecord)}
}

func (b *recordBook) put(record *RideRecord) {
	b.mu.Lock()
	b.records[record.RideID] = record
	b.mu.Unlock()
}

func (b *recordBook) get(rideID uuid.UUID) (*RideRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	record, ok := b.records[rideID]
	return record, ok
}

func (b *recordBook) resolve(rideID uuid.UUID, state MatchState, driverID *uuid.UUID, at time.Time) {
	b.mu.Lock()
	if record, ok := b.records[rideID]; ok {
		record.State = state
		record.DriverID = driverID
		record.ResolvedAt = &at
	}
	b.mu.Unlock()
}
