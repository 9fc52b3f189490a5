// Package ingest pulls candle history from the broker bridge and persists it
// idempotently, feeding the Opportunity Scanner's candle reads.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/aurum-control-plane/internal/broker"
	"github.com/atlas-desktop/aurum-control-plane/internal/store"
	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"go.uber.org/zap"
)

const ratesTimeout = 3500 * time.Millisecond // per the bridge's RATES budget

// Service fetches recent candles for the scanner's universe and writes any
// not already present.
type Service struct {
	logger  *zap.Logger
	bridge  *broker.Client
	candles *store.CandleRepository
}

// New constructs an ingest Service.
func New(logger *zap.Logger, bridge *broker.Client, candles *store.CandleRepository) *Service {
	return &Service{logger: logger.Named("ingest"), bridge: bridge, candles: candles}
}

// IngestUniverse fetches and persists candles for every (symbol, timeframe)
// cell in universe, in time-ascending order. A per-cell failure is logged
// and skipped rather than aborting the whole pass.
func (s *Service) IngestUniverse(ctx context.Context, universe types.Universe) (int, error) {
	if s.bridge == nil {
		return 0, fmt.Errorf("ingest: no broker bridge configured")
	}

	total := 0
	for _, sym := range universe.Symbols {
		for _, tf := range universe.Timeframes {
			n, err := s.ingestOne(ctx, sym.Symbol, tf, universe.MinCandles)
			if err != nil {
				s.logger.Warn("ingest cell failed",
					zap.String("symbol", sym.Symbol), zap.String("timeframe", tf), zap.Error(err))
				continue
			}
			total += n
		}
	}
	return total, nil
}

func (s *Service) ingestOne(ctx context.Context, symbol, timeframe string, count int) (int, error) {
	request := map[string]any{
		"action":    string(broker.ActionRates),
		"symbol":    symbol,
		"timeframe": timeframe,
		"count":     count,
	}

	reply, err := s.bridge.Send(request, ratesTimeout)
	if err != nil {
		return 0, fmt.Errorf("ingest: fetching rates for %s/%s: %w", symbol, timeframe, err)
	}

	candles := broker.ParseRates(symbol, timeframe, reply)
	if len(candles) == 0 {
		return 0, nil
	}

	inserted, err := s.candles.Insert(ctx, candles)
	if err != nil {
		return 0, fmt.Errorf("ingest: persisting candles for %s/%s: %w", symbol, timeframe, err)
	}
	return inserted, nil
}
