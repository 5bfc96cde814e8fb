package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/metrics"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/models"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/repository"
)

// Audience routing thresholds on historical win rate.
const (
	bullishWinRate = 0.60
	bearishWinRate = 0.45
)

// Injector converts pattern statistics into lessons and routes them to the
// role channels. Scheduled batches are deduplicated against a bounded
// history; trade-close paths bypass dedup so fresh outcomes always land.
type Injector struct {
	registry *Registry
	events   repository.LearningEventRepository
	trades   repository.PatternTradeRepository
	logger   *logrus.Logger

	mu          sync.Mutex
	injected    []string
	maxInjected int
}

// NewInjector creates an injector with the given dedup history size. The
// trade repository supplies recent examples for pattern lessons; nil skips
// that enrichment.
func NewInjector(registry *Registry, events repository.LearningEventRepository, trades repository.PatternTradeRepository, dedupSize int, logger *logrus.Logger) *Injector {
	if dedupSize <= 0 {
		dedupSize = 100
	}
	return &Injector{
		registry:    registry,
		events:      events,
		trades:      trades,
		logger:      logger,
		maxInjected: dedupSize,
	}
}

// FormatPatternAsMemory renders a pattern's statistics as one lesson.
func FormatPatternAsMemory(p *models.Pattern) Lesson {
	return Lesson{
		Situation:      buildSituation(p),
		Recommendation: buildRecommendation(p),
	}
}

func buildSituation(p *models.Pattern) string {
	regime := titleCase(strings.ReplaceAll(p.MarketRegime, "_", " "))
	strategy := strings.ReplaceAll(p.StrategyType, "_", " ")

	return fmt.Sprintf(
		"Market displayed %s regime conditions. Technical indicators suggested %s setup with %s RSI conditions. Volume was %s relative to recent average. Pattern classification: %s",
		regime, strategy, p.TechnicalSetup, p.VolumeProfile, p.PatternID)
}

// buildRecommendation picks one of five performance tiers; first match wins.
func buildRecommendation(p *models.Pattern) string {
	var strength, confidenceNote string
	switch p.ConfidenceLevel {
	case models.ConfidenceLow:
		strength = "LIMITED DATA WARNING: "
		confidenceNote = fmt.Sprintf("Only %d historical trades.", p.TotalTrades)
	case models.ConfidenceHigh:
		strength = "HIGH CONFIDENCE: "
		confidenceNote = fmt.Sprintf("Based on %d trades.", p.TotalTrades)
	default:
		confidenceNote = fmt.Sprintf("Moderate confidence from %d trades.", p.TotalTrades)
	}

	switch {
	case p.WinRate > 0.65 && p.RecentWinRate > 0.70:
		return fmt.Sprintf("%sThis pattern has been HIGHLY SUCCESSFUL with %.1f%% historical win rate. Recent performance even stronger at %.1f%%. %s INCREASE CONVICTION and consider LARGER POSITION SIZE up to 1.5x normal. Expected value: %.2f%% per trade. Pattern momentum: IMPROVING.",
			strength, p.WinRate*100, p.RecentWinRate*100, confidenceNote, p.Expectancy)
	case p.WinRate > 0.55 && p.MomentumScore > 0.05:
		return fmt.Sprintf("%sThis pattern shows POSITIVE EDGE with %.1f%% win rate. Recent trend improving (%.1f%% recently). %s Proceed with NORMAL TO HIGH conviction. Standard position sizing appropriate. Expected value: %.2f%% per trade.",
			strength, p.WinRate*100, p.RecentWinRate*100, confidenceNote, p.Expectancy)
	case p.WinRate < 0.40 || p.RecentWinRate < 0.35:
		return fmt.Sprintf("%sWARNING: This pattern is UNDERPERFORMING with only %.1f%% historical wins. Recent performance concerning at %.1f%%. %s REDUCE CONVICTION significantly. Consider HOLDING instead of BUYING. If entering, use 50%% normal position size. Expected loss: %.2f%%.",
			strength, p.WinRate*100, p.RecentWinRate*100, confidenceNote, p.Expectancy)
	case p.MomentumScore < -0.15:
		return fmt.Sprintf("%sCAUTION: Pattern showing DETERIORATION. Historical %.1f%% win rate but recent only %.1f%%. %s Pattern may be BREAKING DOWN. Reduce position size and tighten stops. Monitor closely for regime change. Current expectancy: %.2f%%.",
			strength, p.WinRate*100, p.RecentWinRate*100, confidenceNote, p.Expectancy)
	default:
		return fmt.Sprintf("%sPattern shows NEUTRAL performance with %.1f%% win rate. Recent performance %.1f%%. %s Use STANDARD conviction and position sizing. No edge detected. Expected value near zero: %.2f%% per trade.",
			strength, p.WinRate*100, p.RecentWinRate*100, confidenceNote, p.Expectancy)
	}
}

// InjectPatternBatch routes pattern lessons to their audiences. Traders see
// everything; bulls and judges see winners, bears and risk managers see
// losers. Returns the count of (lesson x channel) deliveries.
func (inj *Injector) InjectPatternBatch(ctx context.Context, patterns []*models.Pattern, lessonType string) (int, error) {
	if lessonType == "" {
		lessonType = models.LessonScheduled
	}

	byChannel := make(map[string][]Lesson)
	var injectedPatterns []*models.Pattern

	for _, p := range patterns {
		if inj.wasRecentlyInjected(p.PatternID) {
			continue
		}

		lesson := FormatPatternAsMemory(p)
		lesson.Recommendation += inj.recentExamples(ctx, p.PatternID)

		if p.WinRate > bullishWinRate {
			byChannel[ChannelBull] = append(byChannel[ChannelBull], Lesson{
				Situation:      lesson.Situation,
				Recommendation: "BULLISH PATTERN: " + lesson.Recommendation + " Historical data strongly supports aggressive positioning.",
			})
			byChannel[ChannelInvestJudge] = append(byChannel[ChannelInvestJudge], Lesson{
				Situation:      lesson.Situation,
				Recommendation: "FAVORABLE PATTERN: " + lesson.Recommendation + " Consider tilting bullish but maintain risk awareness.",
			})
		} else if p.WinRate < bearishWinRate {
			byChannel[ChannelBear] = append(byChannel[ChannelBear], Lesson{
				Situation:      lesson.Situation,
				Recommendation: "BEARISH WARNING: " + lesson.Recommendation + " Historical data suggests caution or avoidance.",
			})
			byChannel[ChannelRiskManager] = append(byChannel[ChannelRiskManager], Lesson{
				Situation:      lesson.Situation,
				Recommendation: "HIGH RISK PATTERN: " + lesson.Recommendation + " Implement strict risk controls or avoid entry.",
			})
		}

		byChannel[ChannelTrader] = append(byChannel[ChannelTrader], lesson)

		inj.recordInjection(p.PatternID)
		injectedPatterns = append(injectedPatterns, p)
	}

	total := 0
	for role, lessons := range byChannel {
		if err := inj.deliver(ctx, role, lessons); err != nil {
			continue
		}
		total += len(lessons)
	}

	if total > 0 {
		inj.logBatchEvent(ctx, injectedPatterns, lessonType)
	}

	inj.logger.WithFields(logrus.Fields{
		"lesson_type": lessonType,
		"patterns":    len(injectedPatterns),
		"deliveries":  total,
	}).Info("Pattern lessons injected")

	return total, nil
}

// InjectSinglePatternOutcome pushes immediate feedback to every channel
// when a pattern-based trade closes. Bypasses dedup.
func (inj *Injector) InjectSinglePatternOutcome(ctx context.Context, patternID string, trade *models.PatternTrade) (bool, error) {
	pnl := trade.RealizedPnlPercent()

	holdingDays := "N/A"
	if trade.HoldingDays != nil {
		holdingDays = fmt.Sprintf("%d", *trade.HoldingDays)
	}
	situation := fmt.Sprintf(
		"Just completed trade in %s regime. Entry RSI %s, volume %sx normal. Pattern ID: %s. Held for %s days.",
		orUnknown(trade.RegimeAtEntry), floatOrNA(trade.EntryRSI), floatOrNA(trade.EntryVolumeRatio), patternID, holdingDays)

	var recommendation string
	switch {
	case pnl > 3.0:
		recommendation = fmt.Sprintf("SUCCESSFUL PATTERN TRADE: +%.1f%% return! Pattern %s continues performing excellently. INCREASE conviction on similar setups. This validates the pattern's edge. Consider larger position next time.", pnl, patternID)
	case pnl > 0:
		recommendation = fmt.Sprintf("Winning trade: +%.1f%% return. Pattern %s performed as expected. Maintain current approach.", pnl, patternID)
	case pnl < -2.0:
		recommendation = fmt.Sprintf("PATTERN FAILURE: %.1f%% loss. Pattern %s did not work this time. Monitor for potential breakdown. If pattern continues failing, reduce position size or avoid.", pnl, patternID)
	default:
		recommendation = fmt.Sprintf("Minor loss: %.1f%%. Pattern %s didn't work but loss contained. Continue monitoring performance.", pnl, patternID)
	}
	if trade.ExitReason != nil && *trade.ExitReason != "" {
		recommendation += fmt.Sprintf(" Exit trigger: %s.", *trade.ExitReason)
	}

	lesson := Lesson{Situation: situation, Recommendation: recommendation}

	var delivered []string
	for _, role := range inj.registry.Names() {
		if err := inj.deliver(ctx, role, []Lesson{lesson}); err != nil {
			continue
		}
		delivered = append(delivered, role)
	}

	inj.logEvent(ctx, models.NewLearningEvent(
		models.LessonImmediateOutcome, []string{patternID}, situation, recommendation, delivered))

	inj.logger.WithFields(logrus.Fields{
		"pattern_id": patternID,
		"symbol":     trade.Symbol,
		"channels":   len(delivered),
	}).Info("Real-time outcome feedback injected")

	return len(delivered) > 0, nil
}

// InjectRegimeTransitionLessons broadcasts a regime-change lesson to every
// channel, naming up to three breaking and three emerging patterns.
func (inj *Injector) InjectRegimeTransitionLessons(ctx context.Context, fromRegime, toRegime string, breaking, emerging []string) error {
	situation := fmt.Sprintf(
		"MARKET REGIME CHANGE DETECTED: Shifted from %s to %s. This transition typically causes significant pattern performance changes. Historical transitions show different strategies become optimal.",
		fromRegime, toRegime)

	recommendation := fmt.Sprintf(
		"ADJUST STRATEGY for %s regime: AVOID these breaking patterns: %s. FAVOR these emerging patterns: %s. Reduce position sizes during transition period until patterns stabilize. Monitor pattern performance closely for next 5-10 trades.",
		toRegime, joinOrNone(breaking, 3), joinOrNone(emerging, 3))

	lesson := Lesson{Situation: situation, Recommendation: recommendation}

	var delivered []string
	for _, role := range inj.registry.Names() {
		if err := inj.deliver(ctx, role, []Lesson{lesson}); err != nil {
			continue
		}
		delivered = append(delivered, role)
	}

	patternIDs := append(append([]string{}, breaking...), emerging...)
	inj.logEvent(ctx, models.NewLearningEvent(
		models.LessonRegimeTransition, patternIDs, situation, recommendation, delivered))

	return nil
}

// InjectClosedPositionMemories delivers a two-part lesson on position close:
// the trade outcome itself plus the pattern's refreshed statistics.
// Winning trades get a bull framing, losing trades a bear framing, large
// moves a risk framing; everyone else gets the plain lesson. Bypasses dedup.
func (inj *Injector) InjectClosedPositionMemories(ctx context.Context, trade *models.PatternTrade, pattern *models.Pattern) (int, error) {
	pnl := trade.RealizedPnlPercent()

	tradeLesson := Lesson{
		Situation:      buildClosedTradeSituation(trade, pattern),
		Recommendation: buildRecommendation(pattern),
	}
	patternLesson := FormatPatternAsMemory(pattern)
	patternLesson.Recommendation += inj.recentExamples(ctx, trade.PatternID)

	delivered := 0
	var channels []string
	for _, role := range inj.registry.Names() {
		lessons := make([]Lesson, 0, 2)
		switch {
		case role == ChannelBull && pnl > 0:
			lessons = append(lessons, Lesson{tradeLesson.Situation, "BULLISH WIN: " + tradeLesson.Recommendation})
		case role == ChannelBear && pnl < 0:
			lessons = append(lessons, Lesson{tradeLesson.Situation, "BEARISH VALIDATION: " + tradeLesson.Recommendation})
		case role == ChannelRiskManager && (pnl > 3 || pnl < -3):
			lessons = append(lessons, Lesson{tradeLesson.Situation, "RISK EVENT: " + tradeLesson.Recommendation})
		default:
			lessons = append(lessons, tradeLesson)
		}
		lessons = append(lessons, patternLesson)

		if err := inj.deliver(ctx, role, lessons); err != nil {
			continue
		}
		delivered += len(lessons)
		channels = append(channels, role)
	}

	inj.logEvent(ctx, models.NewLearningEvent(
		models.LessonPositionClosed,
		[]string{trade.PatternID},
		fmt.Sprintf("Closed %s with %.2f%% P&L", trade.Symbol, pnl),
		fmt.Sprintf("Pattern %.1f%% win rate after %d trades", pattern.WinRate*100, pattern.TotalTrades),
		channels,
	))

	inj.logger.WithFields(logrus.Fields{
		"symbol":     trade.Symbol,
		"pattern_id": trade.PatternID,
		"deliveries": delivered,
	}).Info("Closed position memories injected")

	return delivered, nil
}

// buildClosedTradeSituation renders the full trade narrative in sections:
// technicals at entry, sentiment at entry, execution details, and outcome.
func buildClosedTradeSituation(trade *models.PatternTrade, pattern *models.Pattern) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Completed trade in %s\n", trade.Symbol)
	fmt.Fprintf(&b, "Technical Analysis at Entry:\n")
	fmt.Fprintf(&b, "RSI(2): %s\n", floatOrNA(trade.EntryRSI))
	fmt.Fprintf(&b, "Volume Ratio: %sx average\n", floatOrNA(trade.EntryVolumeRatio))
	fmt.Fprintf(&b, "ATR: %s\n", floatOrNA(trade.EntryATR))
	fmt.Fprintf(&b, "Entry Price: $%.2f\n", trade.EntryPrice)
	fmt.Fprintf(&b, "Market Regime: %s\n\n", orUnknown(trade.RegimeAtEntry))

	fmt.Fprintf(&b, "Market Sentiment at Entry:\n")
	fmt.Fprintf(&b, "Fear & Greed Index: %s\n", floatOrNA(trade.EntryFearGreed))
	fmt.Fprintf(&b, "VIX Level: %s\n", floatOrNA(trade.EntryVIX))
	fmt.Fprintf(&b, "Pattern Matched: %s\n\n", trade.PatternID)

	fmt.Fprintf(&b, "Trade Execution Details:\n")
	fmt.Fprintf(&b, "Entry Date: %s\n", trade.EntryDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "Exit Date: %s\n", dateOrNA(trade.ExitDate))
	fmt.Fprintf(&b, "Exit Price: %s\n", priceOrNA(trade.ExitPrice))
	fmt.Fprintf(&b, "Holding Period: %s days\n", intOrNA(trade.HoldingDays))
	fmt.Fprintf(&b, "Exit Reason: %s\n\n", reasonOrUnknown(trade.ExitReason))

	fmt.Fprintf(&b, "Trade Outcome:\n")
	fmt.Fprintf(&b, "P&L: %+.2f%%\n", trade.RealizedPnlPercent())
	fmt.Fprintf(&b, "Max Gain: %s%%\n", floatOrNA(trade.MaxGainPercent))
	fmt.Fprintf(&b, "Max Drawdown: %s%%\n", floatOrNA(trade.MaxDrawdownPct))
	fmt.Fprintf(&b, "Pattern Win Rate: %.1f%% (historical)", pattern.WinRate*100)

	return b.String()
}

// recentExamples renders up to three recently closed trades for a pattern
// as appended lesson context; empty string when history is unavailable.
func (inj *Injector) recentExamples(ctx context.Context, patternID string) string {
	if inj.trades == nil {
		return ""
	}
	trades, err := inj.trades.RecentByPattern(ctx, patternID, 3)
	if err != nil {
		inj.logger.WithError(err).WithField("pattern_id", patternID).Debug("Recent trade lookup failed")
		return ""
	}
	if len(trades) == 0 {
		return ""
	}

	parts := make([]string, 0, len(trades))
	for _, t := range trades {
		parts = append(parts, fmt.Sprintf("%s (%+.1f%%)", t.Symbol, t.RealizedPnlPercent()))
	}
	return " Recent Examples: " + strings.Join(parts, ", ")
}

// deliver pushes lessons to one channel, isolating failures.
func (inj *Injector) deliver(ctx context.Context, role string, lessons []Lesson) error {
	if len(lessons) == 0 {
		return nil
	}
	if err := inj.registry.Get(role).AddSituations(ctx, lessons); err != nil {
		metrics.InjectionFailuresTotal.WithLabelValues(role).Inc()
		inj.logger.WithError(err).WithField("channel", role).Warn("Failed to inject lessons")
		return err
	}
	metrics.MemoriesInjectedTotal.WithLabelValues(role).Add(float64(len(lessons)))
	return nil
}

func (inj *Injector) wasRecentlyInjected(patternID string) bool {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	for _, id := range inj.injected {
		if id == patternID {
			return true
		}
	}
	return false
}

func (inj *Injector) recordInjection(patternID string) {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	inj.injected = append(inj.injected, patternID)
	if len(inj.injected) > inj.maxInjected {
		inj.injected = inj.injected[len(inj.injected)-inj.maxInjected:]
	}
}

// logBatchEvent summarises a batch injection into the learning log.
func (inj *Injector) logBatchEvent(ctx context.Context, patterns []*models.Pattern, lessonType string) {
	ids := make([]string, len(patterns))
	sum := 0.0
	for i, p := range patterns {
		ids[i] = p.PatternID
		sum += p.WinRate
	}
	avg := 0.0
	if len(patterns) > 0 {
		avg = sum / float64(len(patterns))
	}

	inj.logEvent(ctx, models.NewLearningEvent(
		lessonType,
		ids,
		fmt.Sprintf("%s learning from %d patterns", lessonType, len(patterns)),
		fmt.Sprintf("Average win rate: %.1f%%", avg*100),
		inj.registry.Names(),
	))
}

// logEvent appends to the audit log; failures are logged, never propagated,
// so a broken log never blocks lesson delivery.
func (inj *Injector) logEvent(ctx context.Context, event *models.LearningEvent) {
	if inj.events == nil {
		return
	}
	if err := inj.events.Append(ctx, event); err != nil {
		inj.logger.WithError(err).Warn("Failed to record learning event")
		return
	}
	metrics.LearningEventsTotal.WithLabelValues(event.LessonType).Inc()
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func joinOrNone(ids []string, max int) string {
	if len(ids) == 0 {
		return "None identified yet"
	}
	if len(ids) > max {
		ids = ids[:max]
	}
	return strings.Join(ids, ", ")
}

func orUnknown(s string) string {
	if s == "" {
		return "current"
	}
	return s
}

func floatOrNA(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", *v)
}

func intOrNA(v *int) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%d", *v)
}

func priceOrNA(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("$%.2f", *v)
}

func dateOrNA(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.Format("2006-01-02")
}

func reasonOrUnknown(s *string) string {
	if s == nil || *s == "" {
		return models.ExitReasonUnknown
	}
	return *s
}
