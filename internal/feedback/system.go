// Package feedback is the facade the trading pipeline calls into. It hides
// the classifier/tracker/injector wiring behind one interface and degrades
// to a no-op when the pattern subsystem is disabled or its schema is absent.
package feedback

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/analyzer"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/classifier"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/config"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/database"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/memory"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/models"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/regime"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/repository"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/tracker"
)

// txRunner runs a function inside a database transaction. database.DB
// satisfies it; tests substitute a passthrough.
type txRunner interface {
	WithTransaction(ctx context.Context, fn func(context.Context) error) error
}

// System is the pattern feedback surface the pipeline sees. Implementations
// must tolerate being called even when learning is unavailable.
type System interface {
	// Enabled reports whether pattern learning is live.
	Enabled() bool
	// Classify resolves the pattern bucket for a candidate.
	Classify(ctx context.Context, technicals models.TechnicalSnapshot, regime models.RegimeSnapshot) (*classifier.Classification, error)
	// RecordEntry tracks a new position under its pattern.
	RecordEntry(ctx context.Context, patternID string, entry models.TradeEntry) error
	// RecordExit closes a position, updates statistics, and triggers
	// close-time learning.
	RecordExit(ctx context.Context, patternID string, exit models.TradeExit) error
	// PatternContext returns the cached decision-time context.
	PatternContext(ctx context.Context, patternID string) (*tracker.PatternContext, error)
}

// LiveSystem is the fully wired pipeline.
type LiveSystem struct {
	classifier *classifier.Classifier
	tracker    *tracker.Tracker
	injector   *memory.Injector
	analyzer   *analyzer.Analyzer
	trades     repository.PatternTradeRepository
	detector   regime.Detector
	tx         txRunner
	logger     *logrus.Logger
}

// NewSystem wires the pattern subsystem, or returns the disabled no-op when
// patterns are switched off in config or the schema is missing. Callers
// never need to nil-check. detector is the caller's live regime feed; it is
// wrapped with the configured cache and consulted when Classify receives a
// zero snapshot. Batch jobs that never classify may pass nil.
func NewSystem(ctx context.Context, cfg *config.Config, db *database.DB, detector regime.Detector, logger *logrus.Logger) System {
	if !cfg.Patterns.Enabled {
		logger.Info("Pattern learning disabled by configuration")
		return DisabledSystem{}
	}

	ok, err := database.VerifyPatternSchema(ctx, db)
	if err != nil || !ok {
		logger.WithError(err).Warn("Pattern schema unavailable, learning disabled")
		return DisabledSystem{}
	}

	repos := repository.NewRepositories(db, logger)
	cls := classifier.NewClassifier(repos.Patterns, classifier.ThresholdsFromConfig(&cfg.Patterns), logger)
	trk := tracker.NewTracker(repos.Patterns, repos.Trades, cfg.Patterns.ContextCacheTTL(), logger)

	registry := memory.NewRegistry(memory.NewHTTPChannels(&cfg.Memory, logger)...)
	injector := memory.NewInjector(registry, repos.Events, repos.Trades, cfg.Patterns.DedupHistorySize, logger)
	anl := analyzer.NewAnalyzer(repos, trk, injector, &cfg.Learning, cfg.Patterns.StaleDays, logger)

	if detector != nil {
		detector = regime.NewCachedDetector(detector, cfg.Learning.RegimeCacheTTL(), logger)
	}

	return &LiveSystem{
		classifier: cls,
		tracker:    trk,
		injector:   injector,
		analyzer:   anl,
		trades:     repos.Trades,
		detector:   detector,
		tx:         db,
		logger:     logger,
	}
}

func (s *LiveSystem) Enabled() bool { return true }

// Classify resolves the pattern bucket. A zero regime snapshot is filled
// from the detector so callers without their own market view still get a
// regime-qualified classification.
func (s *LiveSystem) Classify(ctx context.Context, technicals models.TechnicalSnapshot, snapshot models.RegimeSnapshot) (*classifier.Classification, error) {
	if snapshot.IsZero() && s.detector != nil {
		current, err := s.detector.Current(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve market regime: %w", err)
		}
		snapshot = current
	}
	return s.classifier.ClassifyTrade(ctx, technicals, snapshot)
}

func (s *LiveSystem) RecordEntry(ctx context.Context, patternID string, entry models.TradeEntry) error {
	return s.tracker.TrackEntry(ctx, patternID, entry)
}

// RecordExit runs the full close sequence: finalize the trade, refresh
// statistics, inject close-time memories, and check for surprises. The
// trade-history update and the statistics fold commit atomically. Learning
// failures after a successful statistics update are logged, not returned;
// the close itself already succeeded.
func (s *LiveSystem) RecordExit(ctx context.Context, patternID string, exit models.TradeExit) error {
	var pattern *models.Pattern
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		p, err := s.tracker.TrackExit(txCtx, patternID, exit)
		if err != nil {
			return err
		}
		pattern = p
		return nil
	})
	if err != nil {
		return err
	}

	trade, err := s.trades.GetByBatchAndSymbol(ctx, exit.BatchID, exit.Symbol)
	if err != nil {
		s.logger.WithError(err).Warn("Closed trade lookup failed, skipping close-time learning")
		return nil
	}

	if _, err := s.injector.InjectClosedPositionMemories(ctx, trade, pattern); err != nil {
		s.logger.WithError(err).Warn("Closed position memory injection failed")
	}

	if _, err := s.analyzer.AnalyzeClosedPosition(ctx, trade); err != nil {
		s.logger.WithError(err).Warn("Closed position surprise analysis failed")
	}

	return nil
}

func (s *LiveSystem) PatternContext(ctx context.Context, patternID string) (*tracker.PatternContext, error) {
	return s.tracker.GetPatternContext(ctx, patternID)
}

// Analyzer exposes the analysis cycles for the scheduler and CLI.
func (s *LiveSystem) Analyzer() *analyzer.Analyzer { return s.analyzer }

// Tracker exposes the tracker for reporting surfaces.
func (s *LiveSystem) Tracker() *tracker.Tracker { return s.tracker }

// DisabledSystem satisfies System with no-ops so the trading pipeline runs
// unchanged when learning is unavailable.
type DisabledSystem struct{}

func (DisabledSystem) Enabled() bool { return false }

func (DisabledSystem) Classify(ctx context.Context, technicals models.TechnicalSnapshot, regime models.RegimeSnapshot) (*classifier.Classification, error) {
	return &classifier.Classification{}, nil
}

func (DisabledSystem) RecordEntry(ctx context.Context, patternID string, entry models.TradeEntry) error {
	return nil
}

func (DisabledSystem) RecordExit(ctx context.Context, patternID string, exit models.TradeExit) error {
	return nil
}

func (DisabledSystem) PatternContext(ctx context.Context, patternID string) (*tracker.PatternContext, error) {
	return &tracker.PatternContext{
		PatternID:      patternID,
		Exists:         false,
		Recommendation: "Pattern learning unavailable",
	}, nil
}
