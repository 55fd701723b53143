package domain

import (
	"fmt"
	"time"
)

type HorizonType string

const (
	HorizonExactDate HorizonType = "exact_date"
	HorizonEndOfYear HorizonType = "end_of_year"
	HorizonQuarter   HorizonType = "quarter"
	HorizonMonth     HorizonType = "month"
	HorizonYear      HorizonType = "year"
	HorizonWeek      HorizonType = "week"
	HorizonDay       HorizonType = "day"
	HorizonCustom    HorizonType = "custom"
)

// HorizonWindow is the calendar window in which a prediction may resolve.
// Windows are values: a correction produces a new version via Supersede.
type HorizonWindow struct {
	Start            time.Time
	End              time.Time
	Corrected        bool
	CorrectionReason string
	Version          int
	CreatedAt        time.Time
}

func NewHorizonWindow(start, end time.Time) HorizonWindow {
	return HorizonWindow{Start: Day(start), End: Day(end), Version: 1}
}

func (w HorizonWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: horizon bounds are required", ErrInvalidInput)
	}
	if w.End.Before(w.Start) {
		return fmt.Errorf("%w: horizon start %s after end %s", ErrInvalidInput, DayKey(w.Start), DayKey(w.End))
	}
	return nil
}

func (w HorizonWindow) IsZero() bool { return w.Start.IsZero() && w.End.IsZero() }

// Days is the inclusive number of calendar days in the window.
func (w HorizonWindow) Days() int { return DaysBetween(w.Start, w.End) + 1 }

// Supersede returns the next version of w with new bounds. w itself is left
// untouched so callers can keep it as history.
func (w HorizonWindow) Supersede(start, end time.Time, reason string, at time.Time) (HorizonWindow, error) {
	next := HorizonWindow{
		Start:            Day(start),
		End:              Day(end),
		Corrected:        true,
		CorrectionReason: reason,
		Version:          w.Version + 1,
		CreatedAt:        at,
	}
	if err := next.Validate(); err != nil {
		return HorizonWindow{}, err
	}
	return next, nil
}

func (w HorizonWindow) SameRange(o HorizonWindow) bool {
	return Day(w.Start).Equal(Day(o.Start)) && Day(w.End).Equal(Day(o.End))
}
