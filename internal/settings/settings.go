// Package settings provides read-through access to the app_settings control
// surface: feature flags and numeric thresholds consulted by governance and
// the scheduler on every decision. Unlike internal/config, every key here has
// a row (or a documented default) and may be mutated at runtime.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/atlas-desktop/aurum-control-plane/internal/store"
	"go.uber.org/zap"
)

// Recognized keys, per the settings surface table.
const (
	KeyTradingMode      = "TRADING_MODE"
	KeyExecutionBridge  = "EXECUTION_BRIDGE"
	KeyExecGuardEnabled = "EXEC_GUARD_ENABLED"

	KeyExecMaxSlippage  = "EXEC_MAX_SLIPPAGE"
	KeyExecMaxLatencyMs = "EXEC_MAX_LATENCY_MS"
	KeyExecTimeoutMs    = "EXEC_TIMEOUT_MS"

	KeyExecViolationWindowMin       = "EXEC_VIOLATION_WINDOW_MIN"
	KeyExecMaxViolationsInWindow    = "EXEC_MAX_VIOLATIONS_IN_WINDOW"
	KeyExecDisableAutoOnViolation   = "EXEC_DISABLE_AUTO_ON_VIOLATION"

	KeyAutoSelectEnabled           = "AUTO_SELECT_ENABLED"
	KeyAutoSelectDisableReason     = "AUTO_SELECT_DISABLE_REASON"
	KeyAutoSelectMinScore          = "AUTO_SELECT_MIN_SCORE"
	KeyAutoSelectMinConfidence     = "AUTO_SELECT_MIN_CONFIDENCE"
	KeyAutoSelectMaxTradesPerHour  = "AUTO_SELECT_MAX_TRADES_PER_HOUR"
	KeyAutoSelectSystemUserID      = "AUTO_SELECT_SYSTEM_USER_ID"
	KeyAutoSelectSystemBalance     = "AUTO_SELECT_SYSTEM_BALANCE"

	KeyPredictiveMaxReportAgeMin = "PREDICTIVE_MAX_REPORT_AGE_MIN"
	KeyPredictiveStabilityMin    = "PREDICTIVE_STABILITY_MIN"

	KeyDXYProvider          = "DXY_PROVIDER"
	KeyDXYAPIKey            = "DXY_API_KEY"
	KeyDXYRefreshSeconds    = "DXY_REFRESH_SECONDS"
	KeyDXYCacheTTLSeconds   = "DXY_CACHE_TTL_SECONDS"

	KeyScannerUniverseJSON = "SCANNER_UNIVERSE_JSON"

	KeyMT5ConnectionsJSON  = "MT5_CONNECTIONS_JSON"
	KeyMT5ConnectionActive = "MT5_CONNECTION_ACTIVE_ID"

	KeyMT5OrderRetries = "MT5_ORDER_RETRIES"
)

var defaults = map[string]string{
	KeyTradingMode:                 "paper",
	KeyExecutionBridge:             "mt5_zmq",
	KeyExecGuardEnabled:            "true",
	KeyExecMaxSlippage:             "2.5",
	KeyExecMaxLatencyMs:            "1500",
	KeyExecTimeoutMs:               "5000",
	KeyExecViolationWindowMin:      "15",
	KeyExecMaxViolationsInWindow:   "3",
	KeyExecDisableAutoOnViolation:  "true",
	KeyAutoSelectEnabled:           "true",
	KeyAutoSelectDisableReason:     "",
	KeyAutoSelectMinScore:          "65",
	KeyAutoSelectMinConfidence:     "70",
	KeyAutoSelectMaxTradesPerHour:  "2",
	KeyAutoSelectSystemUserID:      "system",
	KeyAutoSelectSystemBalance:     "10000",
	KeyPredictiveMaxReportAgeMin:   "360",
	KeyPredictiveStabilityMin:      "120",
	KeyDXYProvider:                 "primary",
	KeyDXYAPIKey:                   "",
	KeyDXYRefreshSeconds:           "30",
	KeyDXYCacheTTLSeconds:          "60",
	KeyScannerUniverseJSON:         "",
	KeyMT5ConnectionsJSON:          "[]",
	KeyMT5ConnectionActive:         "",
	KeyMT5OrderRetries:             "3",
}

// Service is the read-through settings surface. Reads fall back to a
// documented default when no row is stored; writes always land in the
// database so the scheduler re-reads the latest value on every tick.
type Service struct {
	logger *zap.Logger
	repo   *store.SettingsRepository
}

// New constructs a settings Service.
func New(logger *zap.Logger, repo *store.SettingsRepository) *Service {
	return &Service{logger: logger.Named("settings"), repo: repo}
}

// GetString returns the stored value for key, or its documented default.
func (s *Service) GetString(ctx context.Context, key string) string {
	row, err := s.repo.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("reading setting failed, using default", zap.String("key", key), zap.Error(err))
		}
		return defaults[key]
	}
	return row.Value
}

// GetBool parses the setting as a bool, defaulting to false on parse failure.
func (s *Service) GetBool(ctx context.Context, key string) bool {
	v, err := strconv.ParseBool(s.GetString(ctx, key))
	if err != nil {
		return false
	}
	return v
}

// GetFloat parses the setting as a float64, defaulting to 0 on parse failure.
func (s *Service) GetFloat(ctx context.Context, key string) float64 {
	v, err := strconv.ParseFloat(s.GetString(ctx, key), 64)
	if err != nil {
		return 0
	}
	return v
}

// GetInt parses the setting as an int, defaulting to 0 on parse failure.
func (s *Service) GetInt(ctx context.Context, key string) int {
	v, err := strconv.Atoi(s.GetString(ctx, key))
	if err != nil {
		return 0
	}
	return v
}

// Set upserts a setting value.
func (s *Service) Set(ctx context.Context, key, value string) error {
	return s.repo.Set(ctx, key, value, false)
}

// SetBool upserts a boolean setting value.
func (s *Service) SetBool(ctx context.Context, key string, value bool) error {
	return s.Set(ctx, key, strconv.FormatBool(value))
}
