package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/atlas-desktop/aurum-control-plane/internal/metrics"
	"github.com/atlas-desktop/aurum-control-plane/internal/pipeline"
	"github.com/atlas-desktop/aurum-control-plane/internal/settings"
	"github.com/atlas-desktop/aurum-control-plane/internal/store"
	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"go.uber.org/zap"
)

// Scanner fans the Signal Pipeline across a universe of (symbol, timeframe)
// cells and persists ranked TradingSignal rows per scan.
type Scanner struct {
	logger   *zap.Logger
	pipeline *pipeline.Pipeline
	candles  *store.CandleRepository
	signals  *store.SignalRepository
	settings *settings.Service
	metrics  *metrics.Registry
}

// SetMetrics attaches a Prometheus registry. Optional.
func (s *Scanner) SetMetrics(m *metrics.Registry) {
	s.metrics = m
}

// New constructs a Scanner.
func New(logger *zap.Logger, pipe *pipeline.Pipeline, candles *store.CandleRepository, signals *store.SignalRepository, settingsSvc *settings.Service) *Scanner {
	return &Scanner{
		logger:   logger.Named("scanner"),
		pipeline: pipe,
		candles:  candles,
		signals:  signals,
		settings: settingsSvc,
	}
}

// Result is one scanned signal with its universe-weighted rank score.
type Result struct {
	Signal       types.TradingSignal
	AdjustedScore float64
}

// Scan loads the configured universe, analyzes every (symbol, timeframe)
// cell, persists all resulting signals in one transaction, and returns them
// sorted by adjusted score descending.
func (s *Scanner) Scan(ctx context.Context, userID string) ([]Result, error) {
	start := time.Now()
	universe := ParseUniverse(s.settings.GetString(ctx, settings.KeyScannerUniverseJSON))

	var toPersist []types.TradingSignal
	var results []Result

	for _, sym := range universe.Symbols {
		for _, tf := range universe.Timeframes {
			candles, err := s.candles.Recent(ctx, sym.Symbol, tf, universe.MinCandles)
			if err != nil {
				s.logger.Warn("loading candles failed, skipping cell",
					zap.String("symbol", sym.Symbol), zap.String("timeframe", tf), zap.Error(err))
				continue
			}
			if len(candles) < universe.MinCandles {
				continue
			}

			signal, err := s.pipeline.Analyze(ctx, userID, sym.Symbol, tf, candles)
			if err != nil {
				s.logger.Warn("analyze failed, skipping cell",
					zap.String("symbol", sym.Symbol), zap.String("timeframe", tf), zap.Error(err))
				continue
			}
			signal.Source = types.SourceScanner

			adjusted := RankScore(signal.Score, sym.Weight)
			signal.Score = adjusted

			toPersist = append(toPersist, *signal)
			results = append(results, Result{Signal: *signal, AdjustedScore: adjusted})
		}
	}

	if err := s.signals.InsertBatch(ctx, toPersist); err != nil {
		return nil, fmt.Errorf("scanner: persisting scan results: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].AdjustedScore > results[j].AdjustedScore })

	if universe.TopK > 0 && len(results) > universe.TopK {
		results = results[:universe.TopK]
	}

	if s.metrics != nil {
		s.metrics.ObserveScan(time.Since(start).Seconds(), len(toPersist))
	}

	return results, nil
}
