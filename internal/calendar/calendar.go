// Package calendar models working-hours calendars and converts a number of
// working hours into a wall-clock deadline.
package calendar

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// searchHorizonDays bounds how far PlanHours walks before giving up.
const searchHorizonDays = 730

var (
	// ErrInvalidCalendar marks a calendar that cannot be planned against.
	ErrInvalidCalendar = errors.New("invalid calendar")
	// ErrNoWorkingTime is returned when the horizon holds too few working hours.
	ErrNoWorkingTime = errors.New("no working time within planning horizon")
)

// Attendance is one working interval on a weekday, expressed as fractional
// hours of the day in the calendar time zone (9.5 means 09:30).
type Attendance struct {
	Weekday  time.Weekday `json:"weekday"`
	HourFrom float64      `json:"hour_from"`
	HourTo   float64      `json:"hour_to"`
}

// Leave is a non-working period such as a public holiday.
type Leave struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Calendar defines business hours and holidays for a team or the company.
type Calendar struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Timezone    string       `json:"timezone"`
	IsDefault   bool         `json:"is_default"`
	Attendances []Attendance `json:"attendances"`
	Leaves      []Leave      `json:"leaves"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type interval struct {
	start time.Time
	end   time.Time
}

// Location resolves the calendar time zone; an empty zone means UTC.
func (c *Calendar) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidCalendar, c.Timezone, err)
	}
	return loc, nil
}

// Validate checks that the calendar can be planned against.
func (c *Calendar) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil calendar", ErrInvalidCalendar)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if len(c.Attendances) == 0 {
		return fmt.Errorf("%w: no attendances", ErrInvalidCalendar)
	}
	byDay := make(map[time.Weekday][]Attendance)
	for _, att := range c.Attendances {
		if att.Weekday < time.Sunday || att.Weekday > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidCalendar, att.Weekday)
		}
		if att.HourFrom < 0 || att.HourTo > 24 || att.HourFrom >= att.HourTo {
			return fmt.Errorf("%w: attendance %s %.2f-%.2f", ErrInvalidCalendar, att.Weekday, att.HourFrom, att.HourTo)
		}
		byDay[att.Weekday] = append(byDay[att.Weekday], att)
	}
	for day, list := range byDay {
		sort.Slice(list, func(i, j int) bool { return list[i].HourFrom < list[j].HourFrom })
		for i := 1; i < len(list); i++ {
			if list[i].HourFrom < list[i-1].HourTo {
				return fmt.Errorf("%w: overlapping attendances on %s", ErrInvalidCalendar, day)
			}
		}
	}
	for _, leave := range c.Leaves {
		if !leave.Start.Before(leave.End) {
			return fmt.Errorf("%w: leave %q ends before it starts", ErrInvalidCalendar, leave.Name)
		}
	}
	return nil
}

// PlanHours returns the instant reached after hours of working time counted
// from start. Non-positive hours return start unchanged.
func (c *Calendar) PlanHours(start time.Time, hours float64) (time.Time, error) {
	if hours <= 0 {
		return start, nil
	}
	if err := c.Validate(); err != nil {
		return time.Time{}, err
	}
	loc, _ := c.Location()

	remaining := time.Duration(math.Round(hours * float64(time.Hour)))
	cursor := start.In(loc)
	day := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), 0, 0, 0, 0, loc)

	for i := 0; i < searchHorizonDays; i++ {
		for _, iv := range c.workIntervals(day) {
			from := iv.start
			if from.Before(cursor) {
				from = cursor
			}
			if !from.Before(iv.end) {
				continue
			}
			available := iv.end.Sub(from)
			if available >= remaining {
				return from.Add(remaining).In(start.Location()), nil
			}
			remaining -= available
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, ErrNoWorkingTime
}

// WorkingHoursOn returns the working time available on the given date.
func (c *Calendar) WorkingHoursOn(date time.Time) float64 {
	loc, err := c.Location()
	if err != nil {
		return 0
	}
	local := date.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	var total time.Duration
	for _, iv := range c.workIntervals(day) {
		total += iv.end.Sub(iv.start)
	}
	return total.Hours()
}

// workIntervals lists the working intervals of day (midnight in the calendar
// zone) in chronological order with leaves cut out.
func (c *Calendar) workIntervals(day time.Time) []interval {
	var attendances []Attendance
	for _, att := range c.Attendances {
		if att.Weekday == day.Weekday() {
			attendances = append(attendances, att)
		}
	}
	sort.Slice(attendances, func(i, j int) bool { return attendances[i].HourFrom < attendances[j].HourFrom })

	intervals := make([]interval, 0, len(attendances))
	for _, att := range attendances {
		intervals = append(intervals, interval{
			start: atHour(day, att.HourFrom),
			end:   atHour(day, att.HourTo),
		})
	}
	for _, leave := range c.Leaves {
		intervals = subtract(intervals, interval{start: leave.Start, end: leave.End})
	}
	return intervals
}

func atHour(day time.Time, hour float64) time.Time {
	minutes := int(math.Round(hour * 60))
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, day.Location())
}

func subtract(intervals []interval, cut interval) []interval {
	out := make([]interval, 0, len(intervals))
	for _, iv := range intervals {
		if !cut.start.Before(iv.end) || !iv.start.Before(cut.end) {
			out = append(out, iv)
			continue
		}
		if iv.start.Before(cut.start) {
			out = append(out, interval{start: iv.start, end: cut.start})
		}
		if cut.end.Before(iv.end) {
			out = append(out, interval{start: cut.end, end: iv.end})
		}
	}
	return out
}

// Standard builds a Monday–Friday calendar with one daily interval.
func Standard(name, timezone string, hourFrom, hourTo float64) *Calendar {
	cal := &Calendar{Name: name, Timezone: timezone}
	for day := time.Monday; day <= time.Friday; day++ {
		cal.Attendances = append(cal.Attendances, Attendance{Weekday: day, HourFrom: hourFrom, HourTo: hourTo})
	}
	return cal
}
