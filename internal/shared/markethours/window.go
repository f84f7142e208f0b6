// Package markethours defines the trading-session window used to gate
// live ticks and filter backfilled bars.
package markethours

import (
	"os"
	"time"
)

// Window is a daily trading session expressed as minutes since local
// midnight. Both bounds are inclusive: a tick at exactly the open or the
// close minute is inside the session.
type Window struct {
	Loc       *time.Location
	OpenMins  int // e.g. 9*60+15 for 09:15
	CloseMins int // e.g. 15*60+30 for 15:30
}

// NSE returns the default window: 09:15-15:30 Indian Standard Time.
// A fixed zone is used so the window works without tzdata on the host.
func NSE() Window {
	return Window{
		Loc:       time.FixedZone("IST", 5*3600+30*60),
		OpenMins:  9*60 + 15,
		CloseMins: 15*60 + 30,
	}
}

// FromEnv builds a Window from MARKET_TZ_OFFSET_MINUTES, MARKET_OPEN and
// MARKET_CLOSE (HH:MM), falling back to the NSE defaults for anything unset
// or unparseable.
func FromEnv() Window {
	w := NSE()
	if v := os.Getenv("MARKET_OPEN"); v != "" {
		if m, ok := parseClock(v); ok {
			w.OpenMins = m
		}
	}
	if v := os.Getenv("MARKET_CLOSE"); v != "" {
		if m, ok := parseClock(v); ok {
			w.CloseMins = m
		}
	}
	return w
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// Contains reports whether t falls inside the trading session, evaluated in
// the window's location.
func (w Window) Contains(t time.Time) bool {
	lt := t.In(w.Loc)
	mins := lt.Hour()*60 + lt.Minute()
	return mins >= w.OpenMins && mins <= w.CloseMins
}

// AnchorEpoch returns the Unix time of the session open on 1970-01-01 in the
// window's location. Resample buckets are aligned to this anchor so that
// every bucket boundary lands on the session-open grid.
func (w Window) AnchorEpoch() int64 {
	return time.Date(1970, 1, 1, w.OpenMins/60, w.OpenMins%60, 0, 0, w.Loc).Unix()
}

// Now returns the current time in the window's location.
func (w Window) Now() time.Time {
	return time.Now().In(w.Loc)
}
