// Package regime provides the current-market-regime snapshot used to bucket
// patterns and detect transitions.
package regime

import (
	"context"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/models"
)

const snapshotKey = "current"

// Detector supplies the current market regime snapshot.
type Detector interface {
	Current(ctx context.Context) (models.RegimeSnapshot, error)
}

// CachedDetector wraps another detector with a short-lived cache so hot
// paths (classification, daily checks) don't hammer the upstream source.
type CachedDetector struct {
	inner  Detector
	cache  *cache.Cache
	logger *logrus.Logger
}

// NewCachedDetector caches snapshots from inner for ttl.
func NewCachedDetector(inner Detector, ttl time.Duration, logger *logrus.Logger) *CachedDetector {
	return &CachedDetector{
		inner:  inner,
		cache:  cache.New(ttl, ttl*2),
		logger: logger,
	}
}

// Current returns the cached snapshot, refreshing from the inner detector
// when expired. A refresh failure with no cached value propagates; the
// cache never serves stale data past its TTL.
func (d *CachedDetector) Current(ctx context.Context) (models.RegimeSnapshot, error) {
	if cached, found := d.cache.Get(snapshotKey); found {
		return cached.(models.RegimeSnapshot), nil
	}

	snapshot, err := d.inner.Current(ctx)
	if err != nil {
		return models.RegimeSnapshot{}, err
	}

	d.cache.SetDefault(snapshotKey, snapshot)
	d.logger.WithFields(logrus.Fields{
		"regime":     snapshot.Regime,
		"fear_greed": snapshot.FearGreedValue,
	}).Debug("Refreshed regime snapshot")

	return snapshot, nil
}

// StaticDetector returns a fixed snapshot. Used in tests and CLI runs where
// the regime is supplied externally.
type StaticDetector struct {
	Snapshot models.RegimeSnapshot
}

func (s StaticDetector) Current(ctx context.Context) (models.RegimeSnapshot, error) {
	return s.Snapshot, nil
}
