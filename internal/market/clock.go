package market

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // exchange timezones must resolve in minimal containers

	"volumetracker/config"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// Clock answers trading-session questions for one exchange calendar.
// It holds no time source; callers pass now explicitly.
type Clock struct {
	loc      *time.Location
	open     time.Duration // offset from local midnight
	close    time.Duration // inclusive
	weekdays [7]bool
	holidays map[string]struct{} // "2006-01-02" in loc
}

// NewClock builds a Clock from the market configuration.
func NewClock(cfg config.MarketConfig) (*Clock, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	open, err := parseTimeOfDay(cfg.Open)
	if err != nil {
		return nil, fmt.Errorf("market open: %w", err)
	}
	closeAt, err := parseTimeOfDay(cfg.Close)
	if err != nil {
		return nil, fmt.Errorf("market close: %w", err)
	}
	if closeAt < open {
		return nil, fmt.Errorf("market close %s is before open %s", cfg.Close, cfg.Open)
	}

	c := &Clock{
		loc:      loc,
		open:     open,
		close:    closeAt,
		holidays: make(map[string]struct{}, len(cfg.Holidays)),
	}

	days := cfg.Weekdays
	if len(days) == 0 {
		days = []string{"mon", "tue", "wed", "thu", "fri"}
	}
	for _, d := range days {
		name := strings.ToLower(strings.TrimSpace(d))
		if len(name) > 3 {
			name = name[:3] // "monday" -> "mon"
		}
		wd, ok := weekdayNames[name]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", d)
		}
		c.weekdays[wd] = true
	}

	for _, h := range cfg.Holidays {
		day, err := time.ParseInLocation(time.DateOnly, h, loc)
		if err != nil {
			return nil, fmt.Errorf("holiday %q: %w", h, err)
		}
		c.holidays[day.Format(time.DateOnly)] = struct{}{}
	}

	return c, nil
}

// Location is the exchange timezone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// IsTradingDay reports whether the calendar day of t is a session day.
func (c *Clock) IsTradingDay(t time.Time) bool {
	t = t.In(c.loc)
	if !c.weekdays[t.Weekday()] {
		return false
	}
	_, holiday := c.holidays[t.Format(time.DateOnly)]
	return !holiday
}

// IsSessionOpen reports whether now falls on a trading day between the open
// and close times, both inclusive.
func (c *Clock) IsSessionOpen(now time.Time) bool {
	now = now.In(c.loc)
	if !c.IsTradingDay(now) {
		return false
	}
	return !now.Before(c.at(now, c.open)) && !now.After(c.at(now, c.close))
}

// NextOpen returns today's open when now is before it on a trading day,
// otherwise the open of the next trading day.
func (c *Clock) NextOpen(now time.Time) time.Time {
	now = now.In(c.loc)
	day := midnight(now)

	// Bounded by one year so a calendar with every day excluded cannot spin.
	for i := 0; i <= 366; i++ {
		d := time.Date(day.Year(), day.Month(), day.Day()+i, 0, 0, 0, 0, c.loc)
		if !c.IsTradingDay(d) {
			continue
		}
		open := c.at(d, c.open)
		if open.After(now) {
			return open
		}
	}
	return now.AddDate(1, 0, 0)
}

// SleepDuration is the time left until NextOpen, never negative.
func (c *Clock) SleepDuration(now time.Time) time.Duration {
	d := c.NextOpen(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// at returns the wall-clock time offset from the day's local midnight. It is
// computed from the calendar fields so DST shifts do not move the open.
func (c *Clock) at(day time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)
	s := int(offset % time.Minute / time.Second)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, s, 0, c.loc)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func parseTimeOfDay(s string) (time.Duration, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}
