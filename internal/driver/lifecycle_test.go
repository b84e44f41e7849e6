package driver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openride/dispatch/internal/livestate"
	"github.com/openride/dispatch/pkg/common"
	"github.com/openride/dispatch/pkg/eventbus"
	"github.com/openride/dispatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ─── mocks ───

type mockStatusStore struct {
	mock.Mock
}

func (m *mockStatusStore) GetStatus(ctx context.Context, driverID uuid.UUID) (*models.DriverStatus, error) {
	args := m.Called(ctx, driverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DriverStatus), args.Error(1)
}

func (m *mockStatusStore) PatchStatus(ctx context.Context, driverID uuid.UUID, patch models.StatusPatch) (bool, error) {
	args := m.Called(ctx, driverID, patch)
	return args.Bool(0), args.Error(1)
}

func (m *mockStatusStore) CreateStatus(ctx context.Context, status *models.DriverStatus) error {
	args := m.Called(ctx, status)
	return args.Error(0)
}

type mockLiveState struct {
	mock.Mock
}

func (m *mockLiveState) GetState(ctx context.Context, driverID uuid.UUID) (*livestate.State, error) {
	args := m.Called(ctx, driverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*livestate.State), args.Error(1)
}

func (m *mockLiveState) SetState(ctx context.Context, driverID uuid.UUID, available bool, reason livestate.Reason, inRide bool, rideID string) error {
	args := m.Called(ctx, driverID, available, reason, inRide, rideID)
	return args.Error(0)
}

func (m *mockLiveState) RemoveFromIndex(ctx context.Context, driverID uuid.UUID) error {
	args := m.Called(ctx, driverID)
	return args.Error(0)
}

type mockBus struct {
	mock.Mock
}

func (m *mockBus) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

type mockHub struct {
	mock.Mock
}

func (m *mockHub) SendTo(clientID uuid.UUID, frame []byte) bool {
	args := m.Called(clientID, frame)
	return args.Bool(0)
}

type fixedETA struct{ minutes int }

func (f fixedETA) PickupETAMinutes() int { return f.minutes }

// ─── helpers ───

type fixture struct {
	statuses *mockStatusStore
	live     *mockLiveState
	bus      *mockBus
	hub      *mockHub
	svc      *Lifecycle
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		statuses: new(mockStatusStore),
		live:     new(mockLiveState),
		bus:      new(mockBus),
		hub:      new(mockHub),
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewLifecycle(f.statuses, f.live, f.bus, f.hub, fixedETA{minutes: 7})
	f.svc.now = func() time.Time { return f.now }
	return f
}

func assignedEvent(driverID uuid.UUID) eventbus.DriverAssignedEvent {
	return eventbus.DriverAssignedEvent{
		RideID:     uuid.New(),
		DriverID:   driverID,
		AssignedAt: time.Date(2025, 6, 1, 11, 59, 0, 0, time.UTC),
		PickupLat:  40.700,
		PickupLng:  -74.000,
		DropoffLat: 40.750,
		DropoffLng: -73.985,
	}
}

// ─── assignment ───

func TestHandleAssignedPatchesThenPushesOffer(t *testing.T) {
	f := newFixture(t)
	driverID := uuid.New()
	event := assignedEvent(driverID)

	f.statuses.On("PatchStatus", mock.Anything, driverID, mock.MatchedBy(func(p models.StatusPatch) bool {
		return p.DriverAvailable != nil && !*p.DriverAvailable &&
			p.RideStatus != nil && *p.RideStatus == models.DriverRideStatusAssigned &&
			p.CurrentTripID != nil && *p.CurrentTripID == event.RideID
	})).Return(true, nil)
	f.live.On("SetState", mock.Anything, driverID, false, livestate.ReasonRideAssigned, false, event.RideID.String()).Return(nil)
	f.hub.On("SendTo", driverID, mock.MatchedBy(func(frame []byte) bool {
		var offer map[string]any
		require.NoError(t, json.Unmarshal(frame, &offer))
		return offer["type"] == "ride_offer" && offer["ride_id"] == event.RideID.String()
	})).Return(true)

	require.NoError(t, f.svc.HandleAssigned(context.Background(), event))

	f.statuses.AssertExpectations(t)
	f.live.AssertExpectations(t)
	f.hub.AssertExpectations(t)
}

func TestHandleAssignedCreatesRowWhenMissing(t *testing.T) {
	f := newFixture(t)
	driverID := uuid.New()
	event := assignedEvent(driverID)

	f.statuses.On("PatchStatus", mock.Anything, driverID, mock.Anything).Return(false, nil)
	f.statuses.On("CreateStatus", mock.Anything, mock.MatchedBy(func(s *models.DriverStatus) bool {
		return s.DriverID == driverID &&
			!s.DriverAvailable &&
			s.RideStatus == models.DriverRideStatusAssigned &&
			s.CurrentTripID != nil && *s.CurrentTripID == event.RideID
	})).Return(nil)
	f.live.On("SetState", mock.Anything, driverID, false, livestate.ReasonRideAssigned, false, event.RideID.String()).Return(nil)
	f.hub.On("SendTo", driverID, mock.Anything).Return(true)

	require.NoError(t, f.svc.HandleAssigned(context.Background(), event))
	f.statuses.AssertExpectations(t)
}

func TestHandleAssignedDurableFailureSkipsLiveAndOffer(t *testing.T) {
	f := newFixture(t)
	driverID := uuid.New()
	event := assignedEvent(driverID)

	f.statuses.On("PatchStatus", mock.Anything, driverID, mock.Anything).Return(false, errors.New("pg down"))

	require.Error(t, f.svc.HandleAssigned(context.Background(), event))

	f.live.AssertNotCalled(t, "SetState", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.hub.AssertNotCalled(t, "SendTo", mock.Anything, mock.Anything)
}

func TestHandleAssignedLiveFailureStillPushesOffer(t *testing.T) {
	f := newFixture(t)
	driverID := uuid.New()
	event := assignedEvent(driverID)

	f.statuses.On("PatchStatus", mock.Anything, driverID, mock.Anything).Return(true, nil)
	f.live.On("SetState", mock.Anything, driverID, false, livestate.ReasonRideAssigned, false, event.RideID.String()).
		Return(errors.New("redis down"))
	f.hub.On("SendTo", driverID, mock.Anything).Return(true)

	// TTL reconciliation recovers live state; the offer still goes out.
	require.NoError(t, f.svc.HandleAssigned(context.Background(), event))
	f.hub.AssertExpectations(t)
}

// ─── accept / reject ───

func statusAssigned(driverID, rideID uuid.UUID) *models.DriverStatus {
	return &models.DriverStatus{
		DriverID:        driverID,
		DriverAvailable: false,
		RideStatus:      models.DriverRideStatusAssigned,
		CurrentTripID:   &rideID,
	}
}

func TestAcceptRidePublishesWithETA(t *testing.T) {
	f := newFixture(t)
	driverID := uuid.New()
	rideID := uuid.New()

	f.statuses.On("GetStatus", mock.Anything, driverID).Return(statusAssigned(driverID, rideID), nil)
	f.statuses.On("PatchStatus", mock.Anything, driverID, mock.MatchedBy(func(p models.StatusPatch) bool {
		return p.RideStatus != nil && *p.RideStatus == models.DriverRideStatusInRide &&
			p.CurrentTripID != nil && *p.CurrentTripID == rideID
	})).Return(true, nil)
	f.live.On("SetState", mock.Anything, driverID, false, livestate.ReasonInRide, true, rideID.String()).Return(nil)

	var published eventbus.DriverAcceptedEvent
	f.bus.On("Publish", mock.Anything, eventbus.SubjectDriverAccepted, mock.Anything).
		Run(func(args mock.Arguments) {
			require.NoError(t, json.Unmarshal(args.Get(2).([]byte), &published))
		}).
		Return(nil)

	require.NoError(t, f.svc.AcceptRide(context.Background(), driverID))

	assert.Equal(t, rideID, published.RideID)
	assert.Equal(t, driverID, published.DriverID)
	assert.Equal(t, f.now, published.AcceptedAt)
	assert.Equal(t, 7, published.EstimatedPickupTimeMinutes)
}

func TestAcceptRideWithoutAssignmentConflicts(t *testing.T) {
	f := newFixture(t)
	driverID := uuid.New()

	f.statuses.On("GetStatus", mock.Anything, driverID).Return(&models.DriverStatus{
		DriverID:        driverID,
		DriverAvailable: true,
		RideStatus:      models.DriverRideStatusNone,
	}, nil)

	err := f.svc.AcceptRide(context.Background(), driverID)
	require.Error(t, err)

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 409, appErr.Code)
	f.bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestAcceptRideUnknownDriver(t *testing.T) {
	f := newFixture(t)
	driverID := uuid.New()

	f.statuses.On("GetStatus", mock.Anything, driverID).Return(nil, nil)

	err := f.svc.AcceptRide(context.Background(), driverID)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.Code)
}

func TestRejectRideReleasesDriver(t *testing.T) {
	f := newFixture(t)
	driverID := uuid.New()
	rideID := uuid.New()

	f.statuses.On("GetStatus", mock.Anything, driverID).Return(statusAssigned(driverID, rideID), nil)
	f.statuses.On("PatchStatus", mock.Anything, driverID, mock.MatchedBy(func(p models.StatusPatch) bool {
		return p.DriverAvailable != nil && *p.DriverAvailable &&
			p.RideStatus != nil && *p.RideStatus == models.DriverRideStatusNone &&
			p.ClearCurrentTrip
	})).Return(true, nil)
	f.live.On("SetState", mock.Anything, driverID, true, livestate.ReasonAvailable, false, "").Return(nil)

	var published eventbus.DriverRejectedEvent
	f.bus.On("Publish", mock.Anything, eventbus.SubjectDriverRejected, mock.Anything).
		Run(func(args mock.Arguments) {
			require.NoError(t, json.Unmarshal(args.Get(2).([]byte), &published))
		}).
		Return(nil)

	require.NoError(t, f.svc.RejectRide(context.Background(), driverID))
	assert.Equal(t, rideID, published.RideID)
	assert.Equal(t, driverID, published.DriverID)
}

// ─── availability toggle ───

func freshState(now time.Time, available bool, reason livestate.Reason, inRide bool) *livestate.State {
	return &livestate.State{
		Available:      available,
		Reason:         reason,
		InRide:         inRide,
		LastLocationTS: now.Add(-5 * time.Second).UnixMilli(),
	}
}

func TestSetAvailabilityInRideGateIsSilentNoOp(t *testing.T) {
	f := newFixture(t)
	driverID := uuid.New()

	f.live.On("GetState", mock.Anything, driverID).
		Return(freshState(f.now, false, livestate.ReasonInRide, true), nil)

	created, err := f.svc.SetAvailability(context.Background(), driverID, true)
	require.NoError(t, err)
	assert.False(t, created)

	// Both stores untouched, nothing announced.
	f.statuses.AssertNotCalled(t, "PatchStatus", mock.Anything, mock.Anything, mock.Anything)
	f.live.AssertNotCalled(t, "SetState", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestSetAvailabilityOnlineWithEmptyStateCreatesRow(t *testing.T) {
	f := newFixture(t)
	driverID := uuid.New()

	f.live.On("GetState", mock.Anything, driverID).Return(nil, nil)
	f.statuses.On("PatchStatus", mock.Anything, driverID, mock.Anything).Return(false, nil)
	f.statuses.On("CreateStatus", mock.Anything, mock.MatchedBy(func(s *models.DriverStatus) bool {
		return s.DriverID == driverID && s.DriverAvailable && s.RideStatus == models.DriverRideStatusNone
	})).Return(nil)
	f.live.On("SetState", mock.Anything, driverID, true, livestate.ReasonAvailable, false, "").Return(nil)
	f.bus.On("Publish", mock.Anything, eventbus.SubjectAvailabilityChanged, mock.Anything).Return(nil)

	created, err := f.svc.SetAvailability(context.Background(), driverID, true)
	require.NoError(t, err)
	assert.True(t, created)
	f.statuses.AssertExpectations(t)
	f.live.AssertExpectations(t)
}

func TestSetAvailabilityOfflineWithEmptyStateSkipsLiveWrite(t *testing.T) {
	f := newFixture(t)
	driverID := uuid.New()

	f.live.On("GetState", mock.Anything, driverID).Return(nil, nil)
	f.statuses.On("PatchStatus", mock.Anything, driverID, mock.MatchedBy(func(p models.StatusPatch) bool {
		return p.DriverAvailable != nil && !*p.DriverAvailable
	})).Return(true, nil)
	f.live.On("RemoveFromIndex", mock.Anything, driverID).Return(nil)
	f.bus.On("Publish", mock.Anything, eventbus.SubjectAvailabilityChanged, mock.Anything).Return(nil)

	created, err := f.svc.SetAvailability(context.Background(), driverID, false)
	require.NoError(t, err)
	assert.False(t, created)

	// An expired key is not resurrected for a driver going offline.
	f.live.AssertNotCalled(t, "SetState", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSetAvailabilityOfflineWritesToggleAndPrunesIndex(t *testing.T) {
	f := newFixture(t)
	driverID := uuid.New()

	f.live.On("GetState", mock.Anything, driverID).
		Return(freshState(f.now, true, livestate.ReasonAvailable, false), nil)
	f.statuses.On("PatchStatus", mock.Anything, driverID, mock.Anything).Return(true, nil)
	f.live.On("SetState", mock.Anything, driverID, false, livestate.ReasonOfflineToggle, false, "").Return(nil)
	f.live.On("RemoveFromIndex", mock.Anything, driverID).Return(nil)

	var published eventbus.DriverAvailabilityChangedEvent
	f.bus.On("Publish", mock.Anything, eventbus.SubjectAvailabilityChanged, mock.Anything).
		Run(func(args mock.Arguments) {
			require.NoError(t, json.Unmarshal(args.Get(2).([]byte), &published))
		}).
		Return(nil)

	created, err := f.svc.SetAvailability(context.Background(), driverID, false)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, driverID, published.DriverID)
	assert.False(t, published.DriverAvailable)
	f.live.AssertExpectations(t)
}

func TestSetAvailabilityStaleLocationStillGoesOnline(t *testing.T) {
	f := newFixture(t)
	driverID := uuid.New()

	stale := &livestate.State{
		Available:      true,
		Reason:         livestate.ReasonAvailable,
		LastLocationTS: f.now.Add(-60 * time.Second).UnixMilli(),
	}
	f.live.On("GetState", mock.Anything, driverID).Return(stale, nil)
	f.statuses.On("PatchStatus", mock.Anything, driverID, mock.Anything).Return(true, nil)
	f.live.On("SetState", mock.Anything, driverID, true, livestate.ReasonAvailable, false, "").Return(nil)
	f.bus.On("Publish", mock.Anything, eventbus.SubjectAvailabilityChanged, mock.Anything).Return(nil)

	created, err := f.svc.SetAvailability(context.Background(), driverID, true)
	require.NoError(t, err)
	assert.False(t, created)
	f.live.AssertExpectations(t)
}
