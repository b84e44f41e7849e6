package livestate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// StateTTL bounds how long a driver's live state outlives its last write.
const StateTTL = 90 * time.Second

// Candidate is one driver returned from a radius search, nearest first.
type Candidate struct {
	DriverID  uuid.UUID
	DistanceM float64
}

// Store reads and writes driver live state in Redis. All multi-key writes go
// through MULTI/EXEC so the geo set and the state hash never diverge.
type Store struct {
	rdb redis.Cmdable
	now func() time.Time
}

// NewStore creates a live-state store backed by the given Redis client.
func NewStore(rdb redis.Cmdable) *Store {
	return &Store{rdb: rdb, now: time.Now}
}

// UpdateLocation records a driver's latest position in the geo set and
// refreshes the location timestamp and TTL on the state hash.
func (s *Store) UpdateLocation(ctx context.Context, driverID uuid.UUID, lat, lng float64) error {
	key := StateKey(driverID.String())
	nowMS := s.now().UnixMilli()

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.GeoAdd(ctx, LocationsKey, &redis.GeoLocation{
			Name:      driverID.String(),
			Longitude: lng,
			Latitude:  lat,
		})
		pipe.HSet(ctx, key, FieldLastLocationTS, strconv.FormatInt(nowMS, 10))
		pipe.Expire(ctx, key, StateTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update location for %s: %w", driverID, err)
	}
	return nil
}

// SetState overwrites the availability fields of a driver's state hash and
// refreshes its TTL. The location timestamp is deliberately left alone so
// availability flips do not mask a stale location.
func (s *Store) SetState(ctx context.Context, driverID uuid.UUID, available bool, reason Reason, inRide bool, rideID string) error {
	key := StateKey(driverID.String())
	nowS := s.now().Unix()

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			FieldAvailable, strconv.FormatBool(available),
			FieldReason, string(reason),
			FieldInRide, strconv.FormatBool(inRide),
			FieldRideID, rideID,
			FieldLastUpdated, strconv.FormatInt(nowS, 10),
		)
		pipe.Expire(ctx, key, StateTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set state for %s: %w", driverID, err)
	}
	return nil
}

// GetState loads a driver's state hash. A missing or expired hash returns
// (nil, nil).
func (s *Store) GetState(ctx context.Context, driverID uuid.UUID) (*State, error) {
	fields, err := s.rdb.HGetAll(ctx, StateKey(driverID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get state for %s: %w", driverID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	state := &State{
		Reason: Reason(fields[FieldReason]),
		RideID: fields[FieldRideID],
	}
	state.Available, _ = strconv.ParseBool(fields[FieldAvailable])
	state.InRide, _ = strconv.ParseBool(fields[FieldInRide])
	state.LastLocationTS, _ = strconv.ParseInt(fields[FieldLastLocationTS], 10, 64)
	state.LastUpdated, _ = strconv.ParseInt(fields[FieldLastUpdated], 10, 64)

	return state, nil
}

// RemoveFromIndex drops a driver from the geo set so radius searches stop
// returning them.
func (s *Store) RemoveFromIndex(ctx context.Context, driverID uuid.UUID) error {
	if err := s.rdb.ZRem(ctx, LocationsKey, driverID.String()).Err(); err != nil {
		return fmt.Errorf("remove %s from index: %w", driverID, err)
	}
	return nil
}

// Search returns drivers within radiusKM of the given point, nearest first.
func (s *Store) Search(ctx context.Context, lat, lng, radiusKM float64) ([]Candidate, error) {
	locs, err := s.rdb.GeoSearchLocation(ctx, LocationsKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lng,
			Latitude:   lat,
			Radius:     radiusKM,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geo search: %w", err)
	}

	candidates := make([]Candidate, 0, len(locs))
	for _, loc := range locs {
		id, err := uuid.Parse(loc.Name)
		if err != nil {
			continue
		}
		candidates = append(candidates, Candidate{
			DriverID:  id,
			DistanceM: loc.Dist * 1000,
		})
	}
	return candidates, nil
}
