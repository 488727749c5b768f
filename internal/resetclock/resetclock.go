// Package resetclock computes daily reset boundaries for a configurable wall-clock time of day.
//
// A boundary is the instant on a calendar day whose local time equals the configured hour and
// minute. Markers record which boundary was last applied as the calendar date of that boundary.
package resetclock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// MarkerLayout is the layout of reset markers written by this package.
	MarkerLayout = "2006-01-02"
	// legacyMarkerLayout matches markers written by the browser app (Date.toDateString).
	legacyMarkerLayout = "Mon Jan 02 2006"
)

// ResetTime is the configured time of day at which daily tasks reset.
type ResetTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// Clamp forces hour into 0..23 and minute into 0..59.
func (r ResetTime) Clamp() ResetTime {
	return ResetTime{Hour: clamp(r.Hour, 0, 23), Minute: clamp(r.Minute, 0, 59)}
}

func (r ResetTime) Valid() bool {
	return r.Hour >= 0 && r.Hour <= 23 && r.Minute >= 0 && r.Minute <= 59
}

func (r ResetTime) String() string {
	return fmt.Sprintf("%02d:%02d", r.Hour, r.Minute)
}

// CronSpec returns a seconds-enabled cron spec firing at the reset time every day.
func (r ResetTime) CronSpec() string {
	// cron format: second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", r.Minute, r.Hour)
}

// ParseResetTime parses an HH:MM string.
func ParseResetTime(raw string) (ResetTime, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return ResetTime{}, fmt.Errorf("invalid time %q, expected HH:MM", raw)
	}
	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || hour < 0 || hour > 23 {
		return ResetTime{}, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || minute < 0 || minute > 59 {
		return ResetTime{}, fmt.Errorf("invalid minute in %q", raw)
	}
	return ResetTime{Hour: hour, Minute: minute}, nil
}

// boundaryOn returns the boundary on the calendar day of day, in day's location.
func boundaryOn(day time.Time, hour, minute int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, day.Location())
}

// LastBoundary returns the most recent boundary at or before now.
func LastBoundary(hour, minute int, now time.Time) time.Time {
	b := boundaryOn(now, hour, minute)
	if now.Before(b) {
		b = b.AddDate(0, 0, -1)
	}
	return b
}

// NextBoundary returns the first boundary at or after now.
func NextBoundary(hour, minute int, now time.Time) time.Time {
	b := boundaryOn(now, hour, minute)
	if b.Before(now) {
		b = b.AddDate(0, 0, 1)
	}
	return b
}

// TimeUntilNextBoundary returns how long until the clock next reads hour:minute.
// At the boundary instant itself the result is zero.
func TimeUntilNextBoundary(hour, minute int, now time.Time) time.Duration {
	return NextBoundary(hour, minute, now).Sub(now)
}

// IsResetDue reports whether a boundary has been crossed since the boundary recorded by
// lastResetMarker. An empty or unreadable marker means no reset was ever applied.
func IsResetDue(lastResetMarker string, hour, minute int, now time.Time) bool {
	if strings.TrimSpace(lastResetMarker) == "" {
		return true
	}
	day, err := ParseMarker(lastResetMarker, now.Location())
	if err != nil {
		return true
	}
	lastReset := boundaryOn(day, hour, minute)
	today := boundaryOn(now, hour, minute)
	yesterday := today.AddDate(0, 0, -1)

	if !now.Before(today) && lastReset.Before(today) {
		return true
	}
	// Catches gaps of more than one full cycle while now sits before today's boundary.
	if now.Before(today) && lastReset.Before(yesterday) {
		return true
	}
	return false
}

// ResetMarkerFor returns the marker identifying the boundary most recently crossed at now.
func ResetMarkerFor(hour, minute int, now time.Time) string {
	return LastBoundary(hour, minute, now).Format(MarkerLayout)
}

// ParseMarker reads a marker written either by this package or by the browser app.
func ParseMarker(marker string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	raw := strings.TrimSpace(marker)
	for _, layout := range []string{MarkerLayout, legacyMarkerLayout, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid reset marker %q", marker)
}

// NormalizeMarker rewrites a readable marker in MarkerLayout and drops unreadable ones.
func NormalizeMarker(marker string, loc *time.Location) string {
	if strings.TrimSpace(marker) == "" {
		return ""
	}
	t, err := ParseMarker(marker, loc)
	if err != nil {
		return ""
	}
	return t.Format(MarkerLayout)
}

// LaterMarker returns whichever of current and candidate names the later day.
// Markers never move backwards.
func LaterMarker(current, candidate string, loc *time.Location) string {
	cur, err := ParseMarker(current, loc)
	if err != nil {
		return candidate
	}
	next, err := ParseMarker(candidate, loc)
	if err != nil {
		return current
	}
	if next.Before(cur) {
		return current
	}
	return candidate
}

// FormatCountdown renders d as HH:MM:SS.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
