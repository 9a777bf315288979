package oracle

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCacheBackend struct {
	values  map[string]TeamFeatures
	getErr  error
	setErr  error
	setCalls int
}

func newFakeCacheBackend() *fakeCacheBackend {
	return &fakeCacheBackend{values: make(map[string]TeamFeatures)}
}

func (c *fakeCacheBackend) Get(_ context.Context, key string) (TeamFeatures, bool, error) {
	if c.getErr != nil {
		return TeamFeatures{}, false, c.getErr
	}
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *fakeCacheBackend) Set(_ context.Context, key string, value TeamFeatures, _ time.Duration) error {
	c.setCalls++
	if c.setErr != nil {
		return c.setErr
	}
	c.values[key] = value
	return nil
}

type fakeTeamFeatureReader struct {
	teams map[string]*Team
	err   error
}

func (r *fakeTeamFeatureReader) GetTeam(_ context.Context, teamID string) (*Team, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.teams[teamID], nil
}

func TestFeatureStoreGetCacheHit(t *testing.T) {
	cache := newFakeCacheBackend()
	cache.values[cacheKey("t1")] = TeamFeatures{Attack: 1.5, Defense: 0.8, HomeBias: 0.1}
	db := &fakeTeamFeatureReader{teams: map[string]*Team{}}
	fs := NewFeatureStore(cache, db, nil)

	got, err := fs.Get(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Attack != 1.5 {
		t.Errorf("expected cache hit value, got %+v", got)
	}
}

func TestFeatureStoreGetFallsThroughOnCacheMiss(t *testing.T) {
	cache := newFakeCacheBackend()
	db := &fakeTeamFeatureReader{teams: map[string]*Team{
		"t1": {ID: "t1", AttackRating: 1.2, DefenseRating: 0.9, HomeBias: 0.05},
	}}
	fs := NewFeatureStore(cache, db, func() string { return "poisson-v1" })

	got, err := fs.Get(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Attack != 1.2 || got.ModelVersion != "poisson-v1" {
		t.Errorf("expected db fallback with model version stamped, got %+v", got)
	}
	if cache.setCalls != 1 {
		t.Errorf("expected the cache miss to be written back, got %d Set calls", cache.setCalls)
	}
}

func TestFeatureStoreGetDegradesGracefullyOnCacheError(t *testing.T) {
	cache := newFakeCacheBackend()
	cache.getErr = errors.New("connection refused")
	db := &fakeTeamFeatureReader{teams: map[string]*Team{
		"t1": {ID: "t1", AttackRating: 1.1, DefenseRating: 1.0, HomeBias: 0.0},
	}}
	fs := NewFeatureStore(cache, db, nil)

	got, err := fs.Get(context.Background(), "t1")
	if err != nil {
		t.Fatalf("expected cache errors to degrade rather than propagate, got %v", err)
	}
	if got.Attack != 1.1 {
		t.Errorf("expected db fallback value despite cache error, got %+v", got)
	}
}

func TestFeatureStoreGetUnknownTeamReturnsDefaults(t *testing.T) {
	cache := newFakeCacheBackend()
	db := &fakeTeamFeatureReader{teams: map[string]*Team{}}
	fs := NewFeatureStore(cache, db, nil)

	got, err := fs.Get(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Attack != DefaultAttackRating || got.Defense != DefaultDefenseRating {
		t.Errorf("expected default strengths for unknown team, got %+v", got)
	}
}

func TestFeatureStoreRefreshWriteThroughs(t *testing.T) {
	cache := newFakeCacheBackend()
	db := &fakeTeamFeatureReader{teams: map[string]*Team{
		"t1": {ID: "t1", AttackRating: 1.3, DefenseRating: 0.7, HomeBias: 0.02},
	}}
	fs := NewFeatureStore(cache, db, nil)

	if err := fs.Refresh(context.Background(), "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok, _ := cache.Get(context.Background(), cacheKey("t1"))
	if !ok || v.Attack != 1.3 {
		t.Errorf("expected Refresh to write through the refreshed features, got ok=%v v=%+v", ok, v)
	}
}

func TestFeatureStoreWriteThroughNoopWithoutCache(t *testing.T) {
	fs := NewFeatureStore(nil, &fakeTeamFeatureReader{}, nil)
	fs.WriteThrough(context.Background(), "t1", TeamFeatures{Attack: 1.0})
}
