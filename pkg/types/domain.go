// Package types provides shared type definitions for the trading backend.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalAction is the enumerated action a TradingSignal recommends.
type SignalAction string

const (
	ActionBuy        SignalAction = "BUY"
	ActionSell       SignalAction = "SELL"
	ActionNeutral    SignalAction = "NEUTRAL"
	ActionWait       SignalAction = "WAIT"
	ActionStrongBuy  SignalAction = "STRONG_BUY"
	ActionStrongSell SignalAction = "STRONG_SELL"
)

// SignalSource identifies who produced a TradingSignal.
type SignalSource string

const (
	SourceEngine  SignalSource = "engine"
	SourceScanner SignalSource = "scanner"
	SourceWebhook SignalSource = "webhook"
)

// ExecutionStatus is the terminal state of an ExecutionEvent.
type ExecutionStatus string

const (
	ExecStatusSimulated ExecutionStatus = "simulated"
	ExecStatusSuccess   ExecutionStatus = "success"
	ExecStatusBlocked   ExecutionStatus = "blocked"
	ExecStatusError     ExecutionStatus = "error"
)

// RegimeType is the coarse market-behavior classification.
type RegimeType string

const (
	RegimeTrendUp        RegimeType = "trend_up"
	RegimeTrendDown      RegimeType = "trend_down"
	RegimeRange          RegimeType = "range"
	RegimeHighVolatility RegimeType = "high_volatility"
	RegimeLowLiquidity   RegimeType = "low_liquidity"
)

// ModelKind is the family of a registered predictive model artifact.
type ModelKind string

const (
	ModelXGBoost  ModelKind = "xgboost"
	ModelLightGBM ModelKind = "lightgbm"
	ModelLSTM     ModelKind = "lstm"
)

// Candle is one OHLCV bar for a (symbol, timeframe, time) key.
type Candle struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Time      time.Time       `json:"time"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Valid reports whether the candle satisfies low <= min(o,c) <= max(o,c) <= high.
func (c Candle) Valid() bool {
	lo := decimal.Min(c.Open, c.Close)
	hi := decimal.Max(c.Open, c.Close)
	return c.Low.LessThanOrEqual(lo) && hi.LessThanOrEqual(c.High)
}

// FeatureVector is the immutable output of the Feature Extractor.
// Any pointer field is nil when its window was not satisfied.
type FeatureVector struct {
	Symbol    string
	LastClose *decimal.Decimal
	EMAFast   *decimal.Decimal
	EMASlow   *decimal.Decimal
	EMASpread *decimal.Decimal
	ATR       *decimal.Decimal
	ATRPct    *decimal.Decimal
	BBWidth   *decimal.Decimal
	NBars     int
}

// MarketRegime is the Regime Classifier's output. Not persisted.
type MarketRegime struct {
	Primary    RegimeType
	Tags       map[string]bool
	Confidence float64
	Reasons    map[string]float64
}

// ScoreBreakdown is the Scorer's output. Not persisted.
type ScoreBreakdown struct {
	Total      float64
	Components map[string]float64
	Reasons    []string
}

// TradingSignal is the persisted output of the Signal Pipeline.
type TradingSignal struct {
	ID            string
	UserID        string
	Source        SignalSource
	Symbol        string
	Timeframe     string
	Action        SignalAction
	Confidence    float64 // 0..100
	Score         float64
	EntryPrice    decimal.Decimal
	SuggestedSL   decimal.Decimal
	SuggestedTP   decimal.Decimal
	Reasons       []string
	Context       map[string]any
	CreatedAt     time.Time
}

// ModelRegistryEntry describes a registered model artifact.
type ModelRegistryEntry struct {
	ID           string
	ModelType    ModelKind
	Symbol       string
	Timeframe    string
	Version      string
	ArtifactPath string
	Metrics      map[string]float64
	IsActive     bool
	CreatedAt    time.Time
}

// ExecutionEvent is the append-only audit log of every order attempt.
type ExecutionEvent struct {
	ID              string
	CreatedAt       time.Time
	UserID          string
	Source          SignalSource
	Symbol          string
	Side            OrderSide
	Volume          decimal.Decimal
	RequestedPrice  decimal.Decimal
	SL              decimal.Decimal
	TP              decimal.Decimal
	Status          ExecutionStatus
	Ticket          string
	FillPrice       *decimal.Decimal
	Slippage        *decimal.Decimal
	LatencyMs       *int64
	BridgeConnected bool
	Error           string
	Request         map[string]any
	Response        map[string]any
}

// MT5PositionSnapshot is the latest known state of a broker position.
type MT5PositionSnapshot struct {
	AccountID  string
	Ticket     string
	Side       OrderSide
	Volume     decimal.Decimal
	OpenPrice  decimal.Decimal
	SL         decimal.Decimal
	TP         decimal.Decimal
	Profit     decimal.Decimal
	Swap       decimal.Decimal
	Commission decimal.Decimal
	OpenTime   time.Time
	Magic      int64
	Comment    string
	UpdatedAt  time.Time
}

// AppSetting is one row of the runtime control surface.
type AppSetting struct {
	Key      string
	Value    string
	IsSecret bool
}

// PredictiveReport is the output of walk-forward/Monte-Carlo recomputation,
// read by governance to gate automation.
type PredictiveReport struct {
	ID             string
	Symbol         string
	Timeframe      string
	WFSharpe       decimal.Decimal
	WFWinRate      decimal.Decimal
	WFAvgReturn    decimal.Decimal
	MCMaxDD        decimal.Decimal
	MCVaR95        decimal.Decimal
	DriftScore     decimal.Decimal
	StabilityScore decimal.Decimal
	Meta           map[string]any
	CreatedAt      time.Time
}

// DXYImpact classifies the directional effect of a DXY move on gold.
type DXYImpact string

const (
	DXYImpactBullish DXYImpact = "bullish"
	DXYImpactBearish DXYImpact = "bearish"
	DXYImpactNeutral DXYImpact = "neutral"
)

// DXYStrength classifies the magnitude of a DXY move or correlation.
type DXYStrength string

const (
	DXYStrengthLow      DXYStrength = "low"
	DXYStrengthModerate DXYStrength = "moderate"
	DXYStrengthStrong   DXYStrength = "strong"
)

// DXYContext is the cached, single-key, TTL-bounded USD-index context.
type DXYContext struct {
	Provider      string
	Symbol        string
	CurrentDXY    decimal.Decimal
	Impact        DXYImpact
	Strength      DXYStrength
	CorrRolling   *float64
	CorrStrength  DXYStrength
	KeyLevels     []decimal.Decimal
	LevelBreakout bool
	UpdatedAt     time.Time
}

// ActivityEvent is a transient, non-persisted broadcast event.
type ActivityEvent struct {
	Type        string         `json:"type"`
	Payload     any            `json:"payload"`
	TimestampMs int64          `json:"timestamp_ms"`
}

// UniverseSymbol is one scanner universe member with a rank weight.
type UniverseSymbol struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"`
}

// Universe describes the scanner's symbol/timeframe matrix.
type Universe struct {
	Symbols     []UniverseSymbol `json:"symbols"`
	Timeframes  []string         `json:"timeframes"`
	MinCandles  int              `json:"min_candles"`
	TopK        int              `json:"top_k"`
}
