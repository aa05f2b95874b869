// Package scheduler implements the SM-2-derived review scheduling function.
// Schedule is pure: the only clock it sees is the "now" passed in.
package scheduler

import (
	"math"
	"time"

	"github.com/cardpilot/cardpilot/internal/model"
)

// relearnDelay is how soon a new card graded Again comes back. This is the
// one place an interval is minutes rather than days.
const relearnDelay = 10 * time.Minute

// State is a card's scheduling state. Due is nil for never-studied cards.
type State struct {
	EaseFactor   float64
	IntervalDays int
	Repetitions  int
	Due          *time.Time
}

// NewState returns the scheduling state of a card that was never studied.
func NewState() State {
	return State{EaseFactor: model.DefaultEaseFactor}
}

// Schedule computes the next scheduling state for a review graded g at time
// now. Interval growth uses calendar-day arithmetic so due dates stay aligned
// to calendar days regardless of time of day.
func Schedule(s State, g model.Grade, now time.Time) State {
	wasNew := s.Repetitions == 0
	next := s

	switch g {
	case model.Again:
		if wasNew {
			// Short-term relearning: come back in minutes, leave the
			// ease factor alone.
			next.IntervalDays = 0
			next.Repetitions = 0
			next.Due = timePtr(now.Add(relearnDelay))
			next.EaseFactor = clampEase(next.EaseFactor)
			return next
		}
		next.Repetitions = 0
		next.IntervalDays = 1
		next.EaseFactor = clampEase(s.EaseFactor - 0.2)
		next.Due = timePtr(addDays(now, 1))

	case model.Hard:
		if wasNew {
			next.IntervalDays = 1
			next.Repetitions = 1
		} else {
			// Repetitions stay put but never drop below 1; the lapse
			// reset is reserved for Again.
			next.Repetitions = max(1, s.Repetitions)
			next.IntervalDays = max(1, round(float64(s.IntervalDays)*1.2))
		}
		next.EaseFactor = clampEase(s.EaseFactor - 0.15)
		next.Due = timePtr(addDays(now, next.IntervalDays))

	case model.Good:
		switch s.Repetitions {
		case 0:
			next.IntervalDays = 1
		case 1:
			next.IntervalDays = 6
		default:
			next.IntervalDays = round(float64(s.IntervalDays) * s.EaseFactor)
		}
		next.Repetitions = s.Repetitions + 1
		next.EaseFactor = clampEase(s.EaseFactor)
		next.Due = timePtr(addDays(now, next.IntervalDays))

	case model.Easy:
		if wasNew {
			next.IntervalDays = 4
		} else {
			next.IntervalDays = round(float64(s.IntervalDays) * s.EaseFactor * 1.3)
		}
		next.Repetitions = s.Repetitions + 1
		next.EaseFactor = clampEase(s.EaseFactor + 0.15)
		next.Due = timePtr(addDays(now, next.IntervalDays))
	}

	if next.IntervalDays < 0 {
		next.IntervalDays = 0
	}
	return next
}

func clampEase(ef float64) float64 {
	return math.Min(model.MaxEaseFactor, math.Max(model.MinEaseFactor, ef))
}

func round(v float64) int {
	return int(math.Round(v))
}

func addDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
