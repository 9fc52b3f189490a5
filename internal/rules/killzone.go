package rules

import "time"

// Session identifies a named trading session window.
type Session string

const (
	SessionAsian          Session = "asian"
	SessionLondon         Session = "london"
	SessionNewYork        Session = "new_york"
	SessionOverlap        Session = "london_ny_overlap"
	SessionOffHours       Session = "off_hours"
)

// KillZone describes the current session's trading characteristics.
type KillZone struct {
	CanTrade         bool
	Session          Session
	VolatilityRating int
	LiquidityRating  int
	Reasons          []string
}

type sessionWindow struct {
	session     Session
	startHour   int
	endHour     int
	volatility  int
	liquidity   int
	recommended bool
}

// Fixed UTC session windows, overlap checked first (highest priority).
var windows = []sessionWindow{
	{SessionOverlap, 13, 16, 5, 5, true},
	{SessionNewYork, 13, 21, 4, 5, false},
	{SessionLondon, 7, 16, 4, 4, false},
	{SessionAsian, 0, 8, 2, 2, false},
}

// KillZoneClock classifies the current UTC time into a trading session.
type KillZoneClock struct{}

// NewKillZoneClock constructs a stateless KillZoneClock.
func NewKillZoneClock() *KillZoneClock {
	return &KillZoneClock{}
}

// Evaluate returns the KillZone for the given UTC time. can_trade requires
// liquidity >= 4 and a recommended session.
func (k *KillZoneClock) Evaluate(now time.Time) KillZone {
	hour := now.UTC().Hour()

	for _, w := range windows {
		if hour >= w.startHour && hour < w.endHour {
			kz := KillZone{
				Session:          w.session,
				VolatilityRating: w.volatility,
				LiquidityRating:  w.liquidity,
				CanTrade:         w.recommended && w.liquidity >= 4,
			}
			if !kz.CanTrade {
				kz.Reasons = append(kz.Reasons, "Outside optimal trading hours")
			}
			return kz
		}
	}

	return KillZone{
		Session:          SessionOffHours,
		VolatilityRating: 1,
		LiquidityRating:  1,
		CanTrade:         false,
		Reasons:          []string{"Outside optimal trading hours"},
	}
}

// NextSession returns the session that starts at or after now, and the wait
// duration until it begins.
func (k *KillZoneClock) NextSession(now time.Time) (Session, time.Duration) {
	hour := now.UTC().Hour()
	best := SessionAsian
	bestWait := 24 * time.Hour

	for _, w := range windows {
		wait := waitUntilHour(hour, now, w.startHour)
		if wait < bestWait {
			bestWait = wait
			best = w.session
		}
	}
	return best, bestWait
}

func waitUntilHour(curHour int, now time.Time, targetHour int) time.Duration {
	delta := targetHour - curHour
	if delta <= 0 {
		delta += 24
	}
	target := time.Date(now.Year(), now.Month(), now.Day(), targetHour, 0, 0, 0, time.UTC)
	if targetHour <= curHour {
		target = target.Add(24 * time.Hour)
	}
	return target.Sub(now)
}
