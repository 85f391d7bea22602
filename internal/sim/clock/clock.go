// Package clock maps simulation days and hours onto the civil calendar.
//
// The engine runs on an integer step clock, step = 24*day + hour. A Calendar
// anchors day 0 to a start date so that rules can reference weekdays, months,
// epidemiological weeks and absolute dates.
package clock

import (
	"fmt"
	"time"
)

const HoursPerDay = 24

// Step returns the integer step for a given day and hour.
func Step(day, hour int) int { return HoursPerDay*day + hour }

// DayHour splits a step back into (day, hour).
func DayHour(step int) (int, int) { return step / HoursPerDay, step % HoursPerDay }

// Calendar anchors simulation day 0 to a civil date.
type Calendar struct {
	start time.Time
}

const DefaultStartDate = "2020-01-01"

func NewCalendar(startDate string) (*Calendar, error) {
	if startDate == "" {
		startDate = DefaultStartDate
	}
	t, err := time.ParseInLocation("2006-01-02", startDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("start date %q: %w", startDate, err)
	}
	return &Calendar{start: t}, nil
}

// Date returns the civil date of a simulation day.
func (c *Calendar) Date(day int) time.Time {
	return c.start.AddDate(0, 0, day)
}

// DateString returns the YYYY-MM-DD form of a simulation day.
func (c *Calendar) DateString(day int) string {
	return c.Date(day).Format("2006-01-02")
}

// DayOfWeek returns 0=Sunday .. 6=Saturday for a simulation day.
func (c *Calendar) DayOfWeek(day int) int {
	return int(c.Date(day).Weekday())
}

func (c *Calendar) IsWeekend(day int) bool {
	wd := c.DayOfWeek(day)
	return wd == 0 || wd == 6
}

func (c *Calendar) IsWeekday(day int) bool { return !c.IsWeekend(day) }

func (c *Calendar) Year(day int) int  { return c.Date(day).Year() }
func (c *Calendar) Month(day int) int { return int(c.Date(day).Month()) }
func (c *Calendar) DayOfMonth(day int) int {
	return c.Date(day).Day()
}

// SimWeek is the zero-based week of the simulation.
func (c *Calendar) SimWeek(day int) int { return day / 7 }

// EpiWeek returns the MMWR epidemiological week (1..53) of a simulation day.
// MMWR weeks start on Sunday; week 1 is the week containing at least four
// days of the new calendar year.
func (c *Calendar) EpiWeek(day int) int {
	d := c.Date(day)
	year := d.Year()
	start := mmwrWeekOneStart(year)
	if d.Before(start) {
		start = mmwrWeekOneStart(year - 1)
	} else {
		next := mmwrWeekOneStart(year + 1)
		if !d.Before(next) {
			start = next
		}
	}
	return int(d.Sub(start).Hours()/24)/7 + 1
}

// mmwrWeekOneStart returns the Sunday starting MMWR week 1 of the given year.
func mmwrWeekOneStart(year int) time.Time {
	jan1 := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	sunday := jan1.AddDate(0, 0, -int(jan1.Weekday()))
	// Week must contain at least 4 days of the new year, i.e. Jan 4 or later.
	if jan1.Weekday() >= time.Thursday {
		sunday = sunday.AddDate(0, 0, 7)
	}
	return sunday
}

// HoursUntil returns the number of hours from (day, hour) to the given
// absolute date at the given hour of day. Returns 0 if the date is malformed
// or already past.
func (c *Calendar) HoursUntil(day, hour int, date string, atHour int) int {
	t, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return 0
	}
	days := int(t.Sub(c.Date(day)).Hours() / 24)
	h := HoursPerDay*days + (atHour - hour)
	if h < 0 {
		return 0
	}
	return h
}

// DayOfYearIs reports whether the simulation day falls on the given civil
// month and day of month. Used for annual boundaries such as school rollover.
func (c *Calendar) DayOfYearIs(day, month, dayOfMonth int) bool {
	d := c.Date(day)
	return int(d.Month()) == month && d.Day() == dayOfMonth
}
