package livestate

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	store := NewStore(db)
	store.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return store, mock
}

func TestUpdateLocationPipelinesGeoAndTimestamp(t *testing.T) {
	store, mock := newTestStore(t)
	driverID := uuid.New()
	key := StateKey(driverID.String())
	nowMS := strconv.FormatInt(store.now().UnixMilli(), 10)

	mock.ExpectTxPipeline()
	mock.ExpectGeoAdd(LocationsKey, &redis.GeoLocation{
		Name:      driverID.String(),
		Longitude: -122.4194,
		Latitude:  37.7749,
	}).SetVal(1)
	mock.ExpectHSet(key, FieldLastLocationTS, nowMS).SetVal(1)
	mock.ExpectExpire(key, StateTTL).SetVal(true)
	mock.ExpectTxPipelineExec()

	err := store.UpdateLocation(context.Background(), driverID, 37.7749, -122.4194)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStateWritesAvailabilityFieldsOnly(t *testing.T) {
	store, mock := newTestStore(t)
	driverID := uuid.New()
	key := StateKey(driverID.String())
	nowS := strconv.FormatInt(store.now().Unix(), 10)

	mock.ExpectTxPipeline()
	mock.ExpectHSet(key,
		FieldAvailable, "false",
		FieldReason, string(ReasonOfflineToggle),
		FieldInRide, "false",
		FieldRideID, "",
		FieldLastUpdated, nowS,
	).SetVal(5)
	mock.ExpectExpire(key, StateTTL).SetVal(true)
	mock.ExpectTxPipelineExec()

	err := store.SetState(context.Background(), driverID, false, ReasonOfflineToggle, false, "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStateAbsentReturnsNil(t *testing.T) {
	store, mock := newTestStore(t)
	driverID := uuid.New()

	mock.ExpectHGetAll(StateKey(driverID.String())).SetVal(map[string]string{})

	state, err := store.GetState(context.Background(), driverID)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestGetStateDecodesFields(t *testing.T) {
	store, mock := newTestStore(t)
	driverID := uuid.New()
	rideID := uuid.New().String()

	mock.ExpectHGetAll(StateKey(driverID.String())).SetVal(map[string]string{
		FieldAvailable:      "false",
		FieldReason:         string(ReasonInRide),
		FieldInRide:         "true",
		FieldRideID:         rideID,
		FieldLastLocationTS: "1748779200000",
		FieldLastUpdated:    "1748779200",
	})

	state, err := store.GetState(context.Background(), driverID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.False(t, state.Available)
	assert.Equal(t, ReasonInRide, state.Reason)
	assert.True(t, state.InRide)
	assert.Equal(t, rideID, state.RideID)
	assert.Equal(t, int64(1748779200000), state.LastLocationTS)
	assert.Equal(t, int64(1748779200), state.LastUpdated)
}

func TestRemoveFromIndex(t *testing.T) {
	store, mock := newTestStore(t)
	driverID := uuid.New()

	mock.ExpectZRem(LocationsKey, driverID.String()).SetVal(1)

	require.NoError(t, store.RemoveFromIndex(context.Background(), driverID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchReturnsNearestFirstInMeters(t *testing.T) {
	store, mock := newTestStore(t)
	near := uuid.New()
	far := uuid.New()

	mock.ExpectGeoSearchLocation(LocationsKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  -122.4194,
			Latitude:   37.7749,
			Radius:     2.0,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithDist: true,
	}).SetVal([]redis.GeoLocation{
		{Name: near.String(), Dist: 0.25},
		{Name: far.String(), Dist: 1.8},
		{Name: "not-a-uuid", Dist: 1.9},
	})

	candidates, err := store.Search(context.Background(), 37.7749, -122.4194, 2.0)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, near, candidates[0].DriverID)
	assert.InDelta(t, 250.0, candidates[0].DistanceM, 0.001)
	assert.Equal(t, far, candidates[1].DriverID)
	assert.InDelta(t, 1800.0, candidates[1].DistanceM, 0.001)
}
