package livestate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconcile(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-5 * time.Second).UnixMilli()
	stale := now.Add(-45 * time.Second).UnixMilli()

	tests := []struct {
		name  string
		state *State
		want  Dispatchable
	}{
		{
			name:  "absent state means offline or stale",
			state: nil,
			want:  Dispatchable{Available: false, Reason: ReasonStaleLocationOrOffline},
		},
		{
			name:  "no location report ever",
			state: &State{Available: true, Reason: ReasonAvailable},
			want:  Dispatchable{Available: false, Reason: ReasonStaleLocation},
		},
		{
			name:  "stale location overrides availability",
			state: &State{Available: true, Reason: ReasonAvailable, LastLocationTS: stale},
			want:  Dispatchable{Available: false, Reason: ReasonStaleLocation},
		},
		{
			name:  "in ride wins over available flag",
			state: &State{Available: true, Reason: ReasonAvailable, LastLocationTS: fresh, InRide: true},
			want:  Dispatchable{Available: false, Reason: ReasonInRide},
		},
		{
			name:  "driver toggled offline",
			state: &State{Available: false, Reason: ReasonOfflineToggle, LastLocationTS: fresh},
			want:  Dispatchable{Available: false, Reason: ReasonOfflineToggle},
		},
		{
			name:  "fresh and available",
			state: &State{Available: true, Reason: ReasonAvailable, LastLocationTS: fresh},
			want:  Dispatchable{Available: true, Reason: ReasonAvailable},
		},
		{
			name:  "stale check runs before in-ride check",
			state: &State{Available: false, Reason: ReasonInRide, LastLocationTS: stale, InRide: true},
			want:  Dispatchable{Available: false, Reason: ReasonStaleLocation},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reconcile(tt.state, now))
		})
	}
}

func TestReconcileBoundary(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Exactly at the threshold is still fresh.
	atLimit := &State{Available: true, Reason: ReasonAvailable, LastLocationTS: now.Add(-StaleLocationAfter).UnixMilli()}
	assert.True(t, Reconcile(atLimit, now).Available)

	// One millisecond past the threshold is stale.
	past := &State{Available: true, Reason: ReasonAvailable, LastLocationTS: now.Add(-StaleLocationAfter - time.Millisecond).UnixMilli()}
	got := Reconcile(past, now)
	assert.False(t, got.Available)
	assert.Equal(t, ReasonStaleLocation, got.Reason)
}
