// Package session answers whether the exchange is open for new entries.
package session

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Calendar describes one trading session per weekday plus exchange holidays.
type Calendar struct {
	loc      *time.Location
	open     time.Duration // offset from local midnight
	close    time.Duration
	holidays map[string]struct{}
}

type fileConfig struct {
	Timezone string   `yaml:"timezone"`
	Open     string   `yaml:"open"`
	Close    string   `yaml:"close"`
	Holidays []string `yaml:"holidays"`
}

func ist() *time.Location {
	if loc, err := time.LoadLocation("Asia/Kolkata"); err == nil {
		return loc
	}
	return time.FixedZone("IST", 5*3600+1800)
}

// NSE returns the regular 09:15-15:30 IST session with no holidays.
func NSE() *Calendar {
	return &Calendar{
		loc:      ist(),
		open:     9*time.Hour + 15*time.Minute,
		close:    15*time.Hour + 30*time.Minute,
		holidays: map[string]struct{}{},
	}
}

// Load reads a yaml calendar; missing fields fall back to the NSE defaults.
//
//	timezone: Asia/Kolkata
//	open: "09:15"
//	close: "15:30"
//	holidays: ["2026-01-26", "2026-03-03"]
func Load(path string) (*Calendar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}

	cal := NSE()
	if tz := strings.TrimSpace(fc.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("timezone %q: %w", tz, err)
		}
		cal.loc = loc
	}
	if fc.Open != "" {
		if cal.open, err = parseClock(fc.Open); err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
	}
	if fc.Close != "" {
		if cal.close, err = parseClock(fc.Close); err != nil {
			return nil, fmt.Errorf("close: %w", err)
		}
	}
	if cal.close <= cal.open {
		return nil, fmt.Errorf("close %s must be after open %s", fc.Close, fc.Open)
	}
	for _, h := range fc.Holidays {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(h))
		if err != nil {
			return nil, fmt.Errorf("holiday %q: %w", h, err)
		}
		cal.holidays[d.Format("2006-01-02")] = struct{}{}
	}
	return cal, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (c *Calendar) tradingDay(local time.Time) bool {
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := c.holidays[local.Format("2006-01-02")]
	return !holiday
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// IsOpen reports whether t falls inside a session (bounds inclusive).
func (c *Calendar) IsOpen(t time.Time) bool {
	local := t.In(c.loc)
	if !c.tradingDay(local) {
		return false
	}
	since := local.Sub(midnight(local))
	return since >= c.open && since <= c.close
}

// NextOpen returns the start of the next session at or after t.
func (c *Calendar) NextOpen(t time.Time) time.Time {
	local := t.In(c.loc)
	day := midnight(local)
	for i := 0; i < 15; i++ {
		candidate := day.AddDate(0, 0, i).Add(c.open)
		if c.tradingDay(candidate) && !candidate.Before(local) {
			return candidate
		}
	}
	return day.AddDate(0, 0, 15).Add(c.open)
}

// Location is the calendar's time zone.
func (c *Calendar) Location() *time.Location { return c.loc }
