package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/analyzer"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/classifier"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/config"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/memory"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/models"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/regime"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/repository"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/tracker"
)

type txMarker struct{}

// recordingTxRunner marks the derived context so fakes can verify their
// calls happened inside the transaction callback.
type recordingTxRunner struct {
	calls int
}

func (r *recordingTxRunner) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	r.calls++
	return fn(context.WithValue(ctx, txMarker{}, true))
}

func inTx(ctx context.Context) bool {
	return ctx.Value(txMarker{}) != nil
}

type fakePatternRepo struct {
	byID         map[string]*models.Pattern
	updateInTx   bool
	updateCalled bool
}

func (f *fakePatternRepo) Create(ctx context.Context, components models.PatternComponents) error {
	return nil
}

func (f *fakePatternRepo) GetStats(ctx context.Context, patternID string) (*models.Pattern, error) {
	if p, ok := f.byID[patternID]; ok {
		return p, nil
	}
	return nil, models.ErrNotFound
}

func (f *fakePatternRepo) UpdateOnTradeClose(ctx context.Context, patternID string, result models.TradeResult, closedAt time.Time) (*models.Pattern, error) {
	f.updateCalled = true
	f.updateInTx = inTx(ctx)
	if p, ok := f.byID[patternID]; ok {
		return p, nil
	}
	return nil, models.ErrPatternUnknown
}

func (f *fakePatternRepo) TopPatterns(ctx context.Context, limit, minTrades int) ([]*models.Pattern, error) {
	return nil, nil
}

func (f *fakePatternRepo) BreakingPatterns(ctx context.Context, threshold float64, minTrades int) ([]*models.Pattern, error) {
	return nil, nil
}

func (f *fakePatternRepo) RegimePatterns(ctx context.Context, regime string) ([]*models.Pattern, error) {
	return nil, nil
}

func (f *fakePatternRepo) HotPatterns(ctx context.Context, minImprovement float64) ([]*models.Pattern, error) {
	return nil, nil
}

func (f *fakePatternRepo) DeactivateStale(ctx context.Context, daysInactive int) (int64, error) {
	return 0, nil
}

func (f *fakePatternRepo) SummaryStats(ctx context.Context) (*models.PatternSummary, error) {
	return &models.PatternSummary{}, nil
}

type fakeTradeRepo struct {
	closed         *models.PatternTrade
	finalizeInTx   bool
	finalizeCalled bool
}

func (f *fakeTradeRepo) RecordEntry(ctx context.Context, trade *models.PatternTrade) error {
	return nil
}

func (f *fakeTradeRepo) FinalizeExit(ctx context.Context, exit models.TradeExit) error {
	f.finalizeCalled = true
	f.finalizeInTx = inTx(ctx)
	return nil
}

func (f *fakeTradeRepo) GetByBatchAndSymbol(ctx context.Context, batchID, symbol string) (*models.PatternTrade, error) {
	if f.closed != nil {
		return f.closed, nil
	}
	return nil, models.ErrNotFound
}

func (f *fakeTradeRepo) DominantRegimeSince(ctx context.Context, since time.Time) (string, error) {
	return "", nil
}

func (f *fakeTradeRepo) RecentByPattern(ctx context.Context, patternID string, limit int) ([]*models.PatternTrade, error) {
	return nil, nil
}

type countingDetector struct {
	calls    int
	snapshot models.RegimeSnapshot
}

func (c *countingDetector) Current(ctx context.Context) (models.RegimeSnapshot, error) {
	c.calls++
	return c.snapshot, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newLiveSystem(patterns *fakePatternRepo, trades *fakeTradeRepo, detector regime.Detector, tx txRunner) *LiveSystem {
	logger := quietLogger()
	repos := &repository.Repositories{Patterns: patterns, Trades: trades}
	trk := tracker.NewTracker(patterns, trades, time.Minute, logger)
	injector := memory.NewInjector(memory.NewRegistry(), nil, trades, 100, logger)
	learning := &config.LearningConfig{TopLimit: 10, MinTrades: 20, BreakingThreshold: 0.40, HotImprovement: 0.10}

	return &LiveSystem{
		classifier: classifier.NewClassifier(patterns, classifier.DefaultThresholds(), logger),
		tracker:    trk,
		injector:   injector,
		analyzer:   analyzer.NewAnalyzer(repos, trk, injector, learning, 30, logger),
		trades:     trades,
		detector:   detector,
		tx:         tx,
		logger:     logger,
	}
}

func closedPattern(id string) *models.Pattern {
	return &models.Pattern{
		PatternID:       id,
		StrategyType:    "mean_reversion",
		MarketRegime:    models.RegimeFear,
		VolumeProfile:   "high",
		TechnicalSetup:  "oversold",
		TotalTrades:     25,
		WinRate:         0.52,
		RecentWinRate:   0.50,
		ConfidenceLevel: models.ConfidenceMedium,
	}
}

func TestRecordExitCommitsCloseAtomically(t *testing.T) {
	patternID := "mean_reversion_fear_high_oversold"
	pnl := 1.2
	patterns := &fakePatternRepo{byID: map[string]*models.Pattern{patternID: closedPattern(patternID)}}
	trades := &fakeTradeRepo{closed: &models.PatternTrade{
		PatternID:  patternID,
		BatchID:    "b1",
		Symbol:     "AAPL",
		PnlPercent: &pnl,
	}}
	tx := &recordingTxRunner{}
	s := newLiveSystem(patterns, trades, nil, tx)

	err := s.RecordExit(context.Background(), patternID, models.TradeExit{
		BatchID:    "b1",
		Symbol:     "AAPL",
		ExitDate:   time.Now(),
		PnlPercent: pnl,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, tx.calls)
	// Both writes of the close sequence ran inside the transaction.
	assert.True(t, trades.finalizeCalled)
	assert.True(t, trades.finalizeInTx)
	assert.True(t, patterns.updateCalled)
	assert.True(t, patterns.updateInTx)
}

func TestClassifyFallsBackToDetector(t *testing.T) {
	patterns := &fakePatternRepo{byID: make(map[string]*models.Pattern)}
	detector := &countingDetector{snapshot: models.RegimeSnapshot{Regime: models.RegimeFear, FearGreedValue: 30}}
	s := newLiveSystem(patterns, &fakeTradeRepo{}, detector, &recordingTxRunner{})

	c, err := s.Classify(context.Background(), models.TechnicalSnapshot{RSI2: models.Float(25)}, models.RegimeSnapshot{})
	require.NoError(t, err)
	assert.Equal(t, 1, detector.calls)
	assert.Equal(t, models.RegimeFear, c.Components.MarketRegime)

	// A caller-supplied snapshot wins over the detector.
	c, err = s.Classify(context.Background(), models.TechnicalSnapshot{RSI2: models.Float(25)}, models.RegimeSnapshot{Regime: models.RegimeGreed, FearGreedValue: 70})
	require.NoError(t, err)
	assert.Equal(t, 1, detector.calls)
	assert.Equal(t, models.RegimeGreed, c.Components.MarketRegime)
}

func TestDisabledSystemIsInert(t *testing.T) {
	var s System = DisabledSystem{}
	ctx := context.Background()

	assert.False(t, s.Enabled())

	classification, err := s.Classify(ctx, models.TechnicalSnapshot{}, models.RegimeSnapshot{})
	require.NoError(t, err)
	assert.NotNil(t, classification)

	assert.NoError(t, s.RecordEntry(ctx, "p1", models.TradeEntry{}))
	assert.NoError(t, s.RecordExit(ctx, "p1", models.TradeExit{}))

	pc, err := s.PatternContext(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, pc.Exists)
	assert.Equal(t, "Pattern learning unavailable", pc.Recommendation)
}
