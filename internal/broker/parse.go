package broker

import (
	"time"

	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"github.com/shopspring/decimal"
)

// ParseRates extracts the candle list from a RATES reply. The bridge may
// nest the list under one of rates|items|data, or return it bare.
func ParseRates(symbol, timeframe string, reply map[string]any) []types.Candle {
	var rows []any
	if list, ok := reply["rates"].([]any); ok {
		rows = list
	} else if list, ok := reply["items"].([]any); ok {
		rows = list
	} else if list, ok := reply["data"].([]any); ok {
		rows = list
	}

	var out []types.Candle
	for _, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		c := types.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			Time:      timeFromAny(firstPresent(row, "time", "timestamp")),
			Open:      decFromAny(row["open"]),
			High:      decFromAny(row["high"]),
			Low:       decFromAny(row["low"]),
			Close:     decFromAny(row["close"]),
			Volume:    decFromAny(firstPresent(row, "tick_volume", "volume")),
		}
		out = append(out, c)
	}
	return out
}

// Fill is the normalized outcome of a SEND_ORDER reply.
type Fill struct {
	Ticket    string
	FillPrice *decimal.Decimal
	ErrorMsg  string
}

// ParseFill extracts ticket/fill_price from the first present of a
// conventional set of keys, or the error field if the bridge rejected the order.
func ParseFill(reply map[string]any) Fill {
	var fill Fill
	if errMsg, ok := reply["error"]; ok {
		if s, ok := errMsg.(string); ok {
			fill.ErrorMsg = s
		} else {
			fill.ErrorMsg = "bridge error"
		}
	}

	fill.Ticket = stringFromAny(firstPresent(reply, "ticket", "order", "deal", "id"))
	if price := firstPresent(reply, "fill_price", "filled_price", "price"); price != nil {
		d := decFromAny(price)
		fill.FillPrice = &d
	}
	return fill
}

// ParsePositions normalizes a GET_POSITIONS reply into position snapshots.
func ParsePositions(accountID string, reply map[string]any) []types.MT5PositionSnapshot {
	var rows []any
	if list, ok := reply["positions"].([]any); ok {
		rows = list
	} else if list, ok := reply["data"].([]any); ok {
		rows = list
	}

	var out []types.MT5PositionSnapshot
	for _, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, types.MT5PositionSnapshot{
			AccountID:  accountID,
			Ticket:     stringFromAny(row["ticket"]),
			Side:       types.OrderSide(stringFromAny(row["side"])),
			Volume:     decFromAny(row["volume"]),
			OpenPrice:  decFromAny(row["open_price"]),
			SL:         decFromAny(row["sl"]),
			TP:         decFromAny(row["tp"]),
			Profit:     decFromAny(row["profit"]),
			Swap:       decFromAny(row["swap"]),
			Commission: decFromAny(row["commission"]),
			OpenTime:   timeFromAny(row["open_time"]),
			Magic:      int64FromAny(row["magic"]),
			Comment:    stringFromAny(row["comment"]),
			UpdatedAt:  time.Now().UTC(),
		})
	}
	return out
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func decFromAny(v any) decimal.Decimal {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t)
	case string:
		d, err := decimal.NewFromString(t)
		if err == nil {
			return d
		}
	}
	return decimal.Zero
}

func stringFromAny(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return decimal.NewFromFloat(t).String()
	default:
		return ""
	}
}

func int64FromAny(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		d, err := decimal.NewFromString(t)
		if err == nil {
			return d.IntPart()
		}
	}
	return 0
}

func timeFromAny(v any) time.Time {
	switch t := v.(type) {
	case float64:
		return time.UnixMilli(int64(t) * unixScale(t)).UTC()
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

// unixScale guesses whether a numeric timestamp is seconds or milliseconds:
// broker bridges commonly emit unix seconds.
func unixScale(v float64) int64 {
	if v > 1e12 {
		return 1
	}
	return 1000
}
