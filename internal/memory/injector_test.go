package memory

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

type recordingChannel struct {
	role    string
	lessons []Lesson
	fail    bool
}

func (r *recordingChannel) Name() string { return r.role }

func (r *recordingChannel) AddSituations(ctx context.Context, lessons []Lesson) error {
	if r.fail {
		return errors.New("channel unavailable")
	}
	r.lessons = append(r.lessons, lessons...)
	return nil
}

type recordingEventRepo struct {
	events []*models.LearningEvent
}

func (r *recordingEventRepo) Append(ctx context.Context, event *models.LearningEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEventRepo) RecentLessons(ctx context.Context, days int) ([]*models.LearningEvent, error) {
	return r.events, nil
}

type fakeTradeRepo struct {
	recent []*models.PatternTrade
	err    error
}

func (f *fakeTradeRepo) RecordEntry(ctx context.Context, trade *models.PatternTrade) error {
	return nil
}

func (f *fakeTradeRepo) FinalizeExit(ctx context.Context, exit models.TradeExit) error {
	return nil
}

func (f *fakeTradeRepo) GetByBatchAndSymbol(ctx context.Context, batchID, symbol string) (*models.PatternTrade, error) {
	return nil, models.ErrNotFound
}

func (f *fakeTradeRepo) DominantRegimeSince(ctx context.Context, since time.Time) (string, error) {
	return "", nil
}

func (f *fakeTradeRepo) RecentByPattern(ctx context.Context, patternID string, limit int) ([]*models.PatternTrade, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.recent) > limit {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type testHarness struct {
	injector *Injector
	channels map[string]*recordingChannel
	events   *recordingEventRepo
	trades   *fakeTradeRepo
}

func newHarness() *testHarness {
	channels := make(map[string]*recordingChannel)
	var all []Channel
	for _, role := range AllChannels() {
		ch := &recordingChannel{role: role}
		channels[role] = ch
		all = append(all, ch)
	}
	events := &recordingEventRepo{}
	trades := &fakeTradeRepo{}
	return &testHarness{
		injector: NewInjector(NewRegistry(all...), events, trades, 100, quietLogger()),
		channels: channels,
		events:   events,
		trades:   trades,
	}
}

func winningPattern(id string) *models.Pattern {
	return &models.Pattern{
		PatternID:       id,
		StrategyType:    "mean_reversion",
		MarketRegime:    models.RegimeFear,
		VolumeProfile:   "high",
		TechnicalSetup:  "oversold",
		TotalTrades:     40,
		WinRate:         0.70,
		RecentWinRate:   0.75,
		Expectancy:      1.8,
		MomentumScore:   0.05,
		ConfidenceLevel: models.ConfidenceMedium,
	}
}

func losingPattern(id string) *models.Pattern {
	p := winningPattern(id)
	p.WinRate = 0.35
	p.RecentWinRate = 0.30
	p.Expectancy = -1.2
	return p
}

func TestBatchRoutesWinnersToBullsAndJudges(t *testing.T) {
	h := newHarness()

	count, err := h.injector.InjectPatternBatch(context.Background(), []*models.Pattern{winningPattern("p1")}, models.LessonScheduled)
	require.NoError(t, err)

	// trader + bull + judge
	assert.Equal(t, 3, count)
	assert.Len(t, h.channels[ChannelTrader].lessons, 1)
	assert.Len(t, h.channels[ChannelBull].lessons, 1)
	assert.Len(t, h.channels[ChannelInvestJudge].lessons, 1)
	assert.Empty(t, h.channels[ChannelBear].lessons)
	assert.Empty(t, h.channels[ChannelRiskManager].lessons)

	assert.Contains(t, h.channels[ChannelBull].lessons[0].Recommendation, "BULLISH PATTERN")
	assert.Contains(t, h.channels[ChannelInvestJudge].lessons[0].Recommendation, "FAVORABLE PATTERN")
}

func TestBatchRoutesLosersToBearsAndRisk(t *testing.T) {
	h := newHarness()

	count, err := h.injector.InjectPatternBatch(context.Background(), []*models.Pattern{losingPattern("p1")}, models.LessonScheduled)
	require.NoError(t, err)

	assert.Equal(t, 3, count)
	assert.Len(t, h.channels[ChannelTrader].lessons, 1)
	assert.Len(t, h.channels[ChannelBear].lessons, 1)
	assert.Len(t, h.channels[ChannelRiskManager].lessons, 1)
	assert.Empty(t, h.channels[ChannelBull].lessons)

	assert.Contains(t, h.channels[ChannelBear].lessons[0].Recommendation, "BEARISH WARNING")
	assert.Contains(t, h.channels[ChannelRiskManager].lessons[0].Recommendation, "HIGH RISK PATTERN")
}

func TestBatchMidRangePatternOnlyReachesTrader(t *testing.T) {
	h := newHarness()

	p := winningPattern("p1")
	p.WinRate = 0.50

	count, err := h.injector.InjectPatternBatch(context.Background(), []*models.Pattern{p}, models.LessonScheduled)
	require.NoError(t, err)

	assert.Equal(t, 1, count)
	assert.Len(t, h.channels[ChannelTrader].lessons, 1)
	assert.Empty(t, h.channels[ChannelBull].lessons)
	assert.Empty(t, h.channels[ChannelBear].lessons)
}

func TestBatchDeduplicatesRepeatedPatterns(t *testing.T) {
	h := newHarness()

	first, err := h.injector.InjectPatternBatch(context.Background(), []*models.Pattern{winningPattern("p1")}, models.LessonScheduled)
	require.NoError(t, err)
	assert.Equal(t, 3, first)

	second, err := h.injector.InjectPatternBatch(context.Background(), []*models.Pattern{winningPattern("p1")}, models.LessonScheduled)
	require.NoError(t, err)
	assert.Zero(t, second)
}

func TestBatchRecordsLearningEvent(t *testing.T) {
	h := newHarness()

	_, err := h.injector.InjectPatternBatch(context.Background(), []*models.Pattern{winningPattern("p1"), losingPattern("p2")}, models.LessonScheduled)
	require.NoError(t, err)

	require.Len(t, h.events.events, 1)
	event := h.events.events[0]
	assert.Equal(t, models.LessonScheduled, event.LessonType)
	assert.ElementsMatch(t, []string{"p1", "p2"}, event.PatternIDs)
}

func closedTrade(patternID string, pnl float64) *models.PatternTrade {
	now := time.Now()
	days := 4
	reason := models.ExitReasonStop
	return &models.PatternTrade{
		PatternID:        patternID,
		BatchID:          "b1",
		Symbol:           "AAPL",
		EntryDate:        now.AddDate(0, 0, -days),
		EntryPrice:       100.25,
		EntryRSI:         models.Float(25),
		EntryVolumeRatio: models.Float(1.8),
		EntryVIX:         models.Float(28.5),
		EntryFearGreed:   models.Float(22),
		RegimeAtEntry:    models.RegimeFear,
		ExitDate:         &now,
		ExitPrice:        models.Float(104.75),
		ExitReason:       &reason,
		HoldingDays:      &days,
		PnlPercent:       &pnl,
		MaxGainPercent:   models.Float(6.1),
		MaxDrawdownPct:   models.Float(2.3),
	}
}

func TestSingleOutcomeFailureText(t *testing.T) {
	h := newHarness()

	ok, err := h.injector.InjectSinglePatternOutcome(context.Background(), "p1", closedTrade("p1", -4.2))
	require.NoError(t, err)
	assert.True(t, ok)

	// Immediate outcomes reach every channel, dedup does not apply.
	for role, ch := range h.channels {
		require.Len(t, ch.lessons, 1, "channel %s", role)
		assert.Contains(t, ch.lessons[0].Recommendation, "PATTERN FAILURE")
		assert.Contains(t, ch.lessons[0].Recommendation, "Monitor for potential breakdown")
		assert.Contains(t, ch.lessons[0].Recommendation, "Exit trigger: stop_loss")
	}

	require.Len(t, h.events.events, 1)
	assert.Equal(t, models.LessonImmediateOutcome, h.events.events[0].LessonType)
}

func TestSingleOutcomeBypassesDedup(t *testing.T) {
	h := newHarness()

	_, err := h.injector.InjectPatternBatch(context.Background(), []*models.Pattern{winningPattern("p1")}, models.LessonScheduled)
	require.NoError(t, err)

	ok, err := h.injector.InjectSinglePatternOutcome(context.Background(), "p1", closedTrade("p1", 4.0))
	require.NoError(t, err)
	assert.True(t, ok)

	// Batch lesson plus the immediate outcome.
	assert.Len(t, h.channels[ChannelTrader].lessons, 2)
}

func TestSingleOutcomeToleratesChannelFailure(t *testing.T) {
	h := newHarness()
	h.channels[ChannelBull].fail = true

	ok, err := h.injector.InjectSinglePatternOutcome(context.Background(), "p1", closedTrade("p1", 1.0))
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Empty(t, h.channels[ChannelBull].lessons)
	assert.Len(t, h.channels[ChannelTrader].lessons, 1)
	assert.Len(t, h.channels[ChannelBear].lessons, 1)

	// Failed channel is excluded from the recorded event.
	require.Len(t, h.events.events, 1)
	assert.NotContains(t, h.events.events[0].Channels, ChannelBull)
}

func TestRegimeTransitionReachesAllChannels(t *testing.T) {
	h := newHarness()

	err := h.injector.InjectRegimeTransitionLessons(context.Background(),
		models.RegimeFear, models.RegimeGreed,
		[]string{"a", "b", "c", "d"}, nil)
	require.NoError(t, err)

	for role, ch := range h.channels {
		require.Len(t, ch.lessons, 1, "channel %s", role)
		assert.Contains(t, ch.lessons[0].Situation, "MARKET REGIME CHANGE DETECTED")
		// Only the first three breaking patterns are named.
		assert.Contains(t, ch.lessons[0].Recommendation, "a, b, c")
		assert.NotContains(t, ch.lessons[0].Recommendation, "d")
		assert.Contains(t, ch.lessons[0].Recommendation, "None identified yet")
	}

	require.Len(t, h.events.events, 1)
	assert.Equal(t, models.LessonRegimeTransition, h.events.events[0].LessonType)
}

func TestClosedPositionFramingPerRole(t *testing.T) {
	h := newHarness()

	pattern := winningPattern("p1")
	count, err := h.injector.InjectClosedPositionMemories(context.Background(), closedTrade("p1", 4.5), pattern)
	require.NoError(t, err)

	// Two lessons per channel: trade outcome plus pattern update.
	assert.Equal(t, 2*len(AllChannels()), count)

	assert.Contains(t, h.channels[ChannelBull].lessons[0].Recommendation, "BULLISH WIN")
	assert.Contains(t, h.channels[ChannelRiskManager].lessons[0].Recommendation, "RISK EVENT")
	// Bears only get the win framed plainly.
	assert.NotContains(t, h.channels[ChannelBear].lessons[0].Recommendation, "BEARISH VALIDATION")

	require.Len(t, h.events.events, 1)
	assert.Equal(t, models.LessonPositionClosed, h.events.events[0].LessonType)
}

func TestClosedPositionLossFraming(t *testing.T) {
	h := newHarness()

	_, err := h.injector.InjectClosedPositionMemories(context.Background(), closedTrade("p1", -1.5), losingPattern("p1"))
	require.NoError(t, err)

	assert.Contains(t, h.channels[ChannelBear].lessons[0].Recommendation, "BEARISH VALIDATION")
	// Loss under the 3% threshold stays out of the risk framing.
	assert.NotContains(t, h.channels[ChannelRiskManager].lessons[0].Recommendation, "RISK EVENT")
}

func TestClosedPositionNarrativeDetail(t *testing.T) {
	h := newHarness()

	_, err := h.injector.InjectClosedPositionMemories(context.Background(), closedTrade("p1", 4.5), winningPattern("p1"))
	require.NoError(t, err)

	situation := h.channels[ChannelTrader].lessons[0].Situation
	assert.Contains(t, situation, "Completed trade in AAPL")
	assert.Contains(t, situation, "RSI(2): 25.0")
	assert.Contains(t, situation, "Volume Ratio: 1.8x average")
	assert.Contains(t, situation, "Entry Price: $100.25")
	assert.Contains(t, situation, "Exit Price: $104.75")
	assert.Contains(t, situation, "Fear & Greed Index: 22.0")
	assert.Contains(t, situation, "VIX Level: 28.5")
	assert.Contains(t, situation, "Exit Reason: stop_loss")
	assert.Contains(t, situation, "Holding Period: 4 days")
	assert.Contains(t, situation, "P&L: +4.50%")
	assert.Contains(t, situation, "Max Gain: 6.1%")
	assert.Contains(t, situation, "Max Drawdown: 2.3%")
	assert.Contains(t, situation, "Pattern Win Rate: 70.0% (historical)")
}

func TestClosedPositionIncludesRecentExamples(t *testing.T) {
	h := newHarness()
	h.trades.recent = []*models.PatternTrade{
		{Symbol: "MSFT", PnlPercent: models.Float(2.1)},
		{Symbol: "NVDA", PnlPercent: models.Float(-1.0)},
	}

	_, err := h.injector.InjectClosedPositionMemories(context.Background(), closedTrade("p1", 1.0), winningPattern("p1"))
	require.NoError(t, err)

	// The pattern update is the second lesson on each channel.
	patternLesson := h.channels[ChannelTrader].lessons[1]
	assert.Contains(t, patternLesson.Recommendation, "Recent Examples: MSFT (+2.1%), NVDA (-1.0%)")
}

func TestBatchAppendsRecentExamples(t *testing.T) {
	h := newHarness()
	h.trades.recent = []*models.PatternTrade{
		{Symbol: "AMD", PnlPercent: models.Float(3.4)},
	}

	_, err := h.injector.InjectPatternBatch(context.Background(), []*models.Pattern{winningPattern("p1")}, models.LessonScheduled)
	require.NoError(t, err)

	assert.Contains(t, h.channels[ChannelTrader].lessons[0].Recommendation, "Recent Examples: AMD (+3.4%)")
}

func TestRecentExamplesFailureDoesNotBlockInjection(t *testing.T) {
	h := newHarness()
	h.trades.err = errors.New("history unavailable")

	count, err := h.injector.InjectClosedPositionMemories(context.Background(), closedTrade("p1", 1.0), winningPattern("p1"))
	require.NoError(t, err)
	assert.Equal(t, 2*len(AllChannels()), count)
}

func TestFormatPatternAsMemoryTiers(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.Pattern)
		want   string
	}{
		{
			name:   "highly successful",
			mutate: func(p *models.Pattern) { p.WinRate = 0.70; p.RecentWinRate = 0.75 },
			want:   "HIGHLY SUCCESSFUL",
		},
		{
			name:   "positive edge",
			mutate: func(p *models.Pattern) { p.WinRate = 0.58; p.RecentWinRate = 0.60; p.MomentumScore = 0.08 },
			want:   "POSITIVE EDGE",
		},
		{
			name:   "underperforming",
			mutate: func(p *models.Pattern) { p.WinRate = 0.35; p.RecentWinRate = 0.40 },
			want:   "UNDERPERFORMING",
		},
		{
			name:   "deteriorating",
			mutate: func(p *models.Pattern) { p.WinRate = 0.55; p.RecentWinRate = 0.40; p.MomentumScore = -0.20 },
			want:   "DETERIORATION",
		},
		{
			name:   "neutral",
			mutate: func(p *models.Pattern) { p.WinRate = 0.50; p.RecentWinRate = 0.50; p.MomentumScore = 0 },
			want:   "NEUTRAL",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := winningPattern("p1")
			tc.mutate(p)
			lesson := FormatPatternAsMemory(p)
			assert.Contains(t, lesson.Recommendation, tc.want)
			assert.Contains(t, lesson.Situation, "Fear regime")
		})
	}
}

func TestLowConfidencePatternsCarryWarning(t *testing.T) {
	p := winningPattern("p1")
	p.TotalTrades = 8
	p.ConfidenceLevel = models.ConfidenceLow

	lesson := FormatPatternAsMemory(p)
	assert.Contains(t, lesson.Recommendation, "LIMITED DATA WARNING")
	assert.Contains(t, lesson.Recommendation, "Only 8 historical trades")
}
