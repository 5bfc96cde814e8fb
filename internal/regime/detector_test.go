package regime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/models"
)

type countingDetector struct {
	calls    int
	snapshot models.RegimeSnapshot
	err      error
}

func (c *countingDetector) Current(ctx context.Context) (models.RegimeSnapshot, error) {
	c.calls++
	if c.err != nil {
		return models.RegimeSnapshot{}, c.err
	}
	return c.snapshot, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestCachedDetectorServesFromCache(t *testing.T) {
	inner := &countingDetector{snapshot: models.RegimeSnapshot{Regime: models.RegimeFear, FearGreedValue: 30}}
	d := NewCachedDetector(inner, 15*time.Minute, quietLogger())

	first, err := d.Current(context.Background())
	require.NoError(t, err)
	second, err := d.Current(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedDetectorPropagatesRefreshError(t *testing.T) {
	inner := &countingDetector{err: errors.New("feed unavailable")}
	d := NewCachedDetector(inner, 15*time.Minute, quietLogger())

	_, err := d.Current(context.Background())
	assert.Error(t, err)
}

func TestStaticDetector(t *testing.T) {
	d := StaticDetector{Snapshot: models.RegimeSnapshot{Regime: models.RegimeGreed, FearGreedValue: 70}}

	snapshot, err := d.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RegimeGreed, snapshot.Regime)
}
