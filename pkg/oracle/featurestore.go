package oracle

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// FeatureStoreTTL is the cache TTL of §4.6.
const FeatureStoreTTL = 7 * 24 * time.Hour

// TeamFeatures is the cached value keyed by team id.
type TeamFeatures struct {
	Attack       float64 `json:"attack"`
	Defense      float64 `json:"defense"`
	HomeBias     float64 `json:"home_bias"`
	ModelVersion string  `json:"model_version"`
}

// CacheBackend is the narrow contract FS needs from a cache
// implementation (satisfied by cache.Redis); kept separate from the
// database so a down cache degrades rather than fails, per §4.6.
type CacheBackend interface {
	Get(ctx context.Context, key string) (TeamFeatures, bool, error)
	Set(ctx context.Context, key string, value TeamFeatures, ttl time.Duration) error
}

// TeamFeatureReader is the database fallback/read-through source.
type TeamFeatureReader interface {
	GetTeam(ctx context.Context, teamID string) (*Team, error)
}

// FeatureStore is a read-through, write-through cache of team-strength
// vectors. If the cache backend is unavailable, every read falls back to
// the database and every write becomes a no-op: the system must remain
// functional (§4.6), so cache errors are logged, never propagated.
type FeatureStore struct {
	cache          CacheBackend
	db             TeamFeatureReader
	activeModelVer func() string
}

func NewFeatureStore(cache CacheBackend, db TeamFeatureReader, activeModelVer func() string) *FeatureStore {
	return &FeatureStore{cache: cache, db: db, activeModelVer: activeModelVer}
}

func cacheKey(teamID string) string {
	return "team-features:" + teamID
}

// Get reads a team's cached strengths, falling through to the database
// (and caching the result) on a miss or a degraded cache.
func (fs *FeatureStore) Get(ctx context.Context, teamID string) (TeamFeatures, error) {
	if fs.cache != nil {
		if v, ok, err := fs.cache.Get(ctx, cacheKey(teamID)); err != nil {
			log.Warn().Err(err).Str("team_id", teamID).Msg("feature store cache unavailable, falling back to database")
		} else if ok {
			return v, nil
		}
	}

	team, err := fs.db.GetTeam(ctx, teamID)
	if err != nil {
		return TeamFeatures{}, err
	}
	if team == nil {
		return TeamFeatures{Attack: DefaultAttackRating, Defense: DefaultDefenseRating, HomeBias: DefaultHomeBias}, nil
	}

	features := TeamFeatures{
		Attack:   team.AttackRating,
		Defense:  team.DefenseRating,
		HomeBias: team.HomeBias,
	}
	if fs.activeModelVer != nil {
		features.ModelVersion = fs.activeModelVer()
	}

	if fs.cache != nil {
		if err := fs.cache.Set(ctx, cacheKey(teamID), features, FeatureStoreTTL); err != nil {
			log.Warn().Err(err).Str("team_id", teamID).Msg("feature store cache write failed, continuing without cache")
		}
	}
	return features, nil
}

// Refresh re-reads a team from the database and write-throughs the
// result unconditionally, bypassing whatever is currently cached. Used
// by the scheduled feature-store sweep (internal/scheduler) to re-warm
// entries well before the 7-day TTL would otherwise expire them.
func (fs *FeatureStore) Refresh(ctx context.Context, teamID string) error {
	team, err := fs.db.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if team == nil {
		return nil
	}
	features := TeamFeatures{Attack: team.AttackRating, Defense: team.DefenseRating, HomeBias: team.HomeBias}
	if fs.activeModelVer != nil {
		features.ModelVersion = fs.activeModelVer()
	}
	fs.WriteThrough(ctx, teamID, features)
	return nil
}

// WriteThrough refreshes the cache for a team on model activation (§4.6).
// A cache failure here is a no-op, never an error returned to MTS.
func (fs *FeatureStore) WriteThrough(ctx context.Context, teamID string, features TeamFeatures) {
	if fs.cache == nil {
		return
	}
	if err := fs.cache.Set(ctx, cacheKey(teamID), features, FeatureStoreTTL); err != nil {
		log.Warn().Err(err).Str("team_id", teamID).Msg("feature store write-through failed")
	}
}
