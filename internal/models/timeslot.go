package models

import (
	"fmt"
	"strings"
	"time"
)

// Period groups slots into the three daily teaching blocks.
type Period string

const (
	PeriodMorning    Period = "MORNING"
	PeriodMidMorning Period = "MID_MORNING"
	PeriodAfternoon  Period = "AFTERNOON"
)

// Clock is a wall-clock time of day expressed in minutes after midnight.
type Clock int

// NewClock builds a Clock from hour and minute.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock parses "HH:MM".
func ParseClock(raw string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", raw, err)
	}
	return NewClock(t.Hour(), t.Minute()), nil
}

// Hour returns the hour component.
func (c Clock) Hour() int { return int(c) / 60 }

// Minute returns the minute component.
func (c Clock) Minute() int { return int(c) % 60 }

// String renders the clock as "HH:MM".
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// SlotKey identifies a slot for conflict detection. Only the day and the start
// time participate; the declared end time and period are ignored.
type SlotKey struct {
	Day   time.Weekday
	Start Clock
}

// TimeSlot is one cell of the weekly grid. Slots are created once per run and
// shared read-only by every candidate schedule.
type TimeSlot struct {
	Day    time.Weekday `json:"day"`
	Start  Clock        `json:"start"`
	End    Clock        `json:"end"`
	Period Period       `json:"period"`
}

// Key returns the conflict-detection key of the slot.
func (s TimeSlot) Key() SlotKey {
	return SlotKey{Day: s.Day, Start: s.Start}
}

// Equal reports whether both slots share a day and start time.
func (s TimeSlot) Equal(other TimeSlot) bool {
	return s.Key() == other.Key()
}

// Minutes returns the declared slot length.
func (s TimeSlot) Minutes() int {
	return int(s.End - s.Start)
}

// Precedes reports whether next starts on the same day exactly when s ends.
func (s TimeSlot) Precedes(next TimeSlot) bool {
	return s.Day == next.Day && s.End == next.Start
}

func (s TimeSlot) String() string {
	return fmt.Sprintf("%s %s-%s", strings.ToUpper(s.Day.String()), s.Start, s.End)
}

// Window is a fixed non-teaching interval such as a break.
type Window struct {
	Label string
	Start Clock
	End   Clock
}

// Minutes returns the window length.
func (w Window) Minutes() int {
	return int(w.End - w.Start)
}

const (
	// NominalSlotMinutes is the length of every slot in the standard week.
	NominalSlotMinutes = 55
	// LabSuffix marks lab subject codes; the theory code is the lab code without it.
	LabSuffix = "_L"
)

var (
	// MorningBreak separates the morning and mid-morning periods.
	MorningBreak = Window{Label: "BREAK", Start: NewClock(9, 50), End: NewClock(10, 20)}
	// LunchBreak separates the mid-morning and afternoon periods.
	LunchBreak = Window{Label: "LUNCH", Start: NewClock(13, 5), End: NewClock(14, 0)}
)

// TeachingDays lists the scheduled weekdays in grid order.
var TeachingDays = []time.Weekday{
	time.Monday,
	time.Tuesday,
	time.Wednesday,
	time.Thursday,
	time.Friday,
	time.Saturday,
}

// StandardWeek builds the fixed weekly grid: two morning slots from 08:00,
// three mid-morning slots from 10:20 and four afternoon slots from 14:00.
// Saturday has no afternoon.
func StandardWeek() []TimeSlot {
	slots := make([]TimeSlot, 0, 50)
	for _, day := range TeachingDays {
		slots = appendRun(slots, day, NewClock(8, 0), 2, PeriodMorning)
		slots = appendRun(slots, day, NewClock(10, 20), 3, PeriodMidMorning)
		if day != time.Saturday {
			slots = appendRun(slots, day, NewClock(14, 0), 4, PeriodAfternoon)
		}
	}
	return slots
}

func appendRun(slots []TimeSlot, day time.Weekday, start Clock, count int, period Period) []TimeSlot {
	for i := 0; i < count; i++ {
		end := start + NominalSlotMinutes
		slots = append(slots, TimeSlot{Day: day, Start: start, End: end, Period: period})
		start = end
	}
	return slots
}

// ParseWeekday accepts full English day names in any case.
func ParseWeekday(raw string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == name {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", raw)
}
