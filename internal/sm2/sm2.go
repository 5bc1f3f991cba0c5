package sm2

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Quality is the self-reported recall quality of a review, from 0 (blackout)
// to 5 (perfect recall).
type Quality int

const (
	MinQuality Quality = 0
	MaxQuality Quality = 5

	// PassingQuality is the lowest quality counted as a successful recall.
	PassingQuality Quality = 3
)

const (
	DefaultEaseFactor = 2.5
	MinEaseFactor     = 1.3
)

// ErrInvalidQuality is returned when a quality falls outside [0, 5].
var ErrInvalidQuality = errors.New("sm2: quality must be between 0 and 5")

// Valid reports whether q is inside the accepted range.
func (q Quality) Valid() bool {
	return q >= MinQuality && q <= MaxQuality
}

// Passed reports whether q counts as a successful recall.
func (q Quality) Passed() bool {
	return q >= PassingQuality
}

// State is the scheduling state carried from one review to the next.
type State struct {
	EaseFactor  float64
	Interval    int // days
	Repetitions int
}

// DefaultState is the state of a card that has never been reviewed.
func DefaultState() State {
	return State{
		EaseFactor:  DefaultEaseFactor,
		Interval:    0,
		Repetitions: 0,
	}
}

// Schedule is the outcome of a review: the new state and when the card is
// next due.
type Schedule struct {
	State
	NextReviewAt time.Time
}

// NextReview computes the state that follows prev after a review of the given
// quality taken at now.
func NextReview(quality Quality, prev State, now time.Time) (Schedule, error) {
	if !quality.Valid() {
		return Schedule{}, fmt.Errorf("%w: got %d", ErrInvalidQuality, quality)
	}

	var next State
	if quality.Passed() {
		switch prev.Repetitions {
		case 0:
			next.Interval = 1
		case 1:
			next.Interval = 6
		default:
			next.Interval = int(math.Round(float64(prev.Interval) * prev.EaseFactor))
		}
		next.Repetitions = prev.Repetitions + 1
	} else {
		next.Repetitions = 0
		next.Interval = 1
	}

	// The ease update depends only on the previous ease and the raw quality,
	// never on which branch was taken above.
	next.EaseFactor = NextEaseFactor(prev.EaseFactor, quality)

	return Schedule{
		State:        next,
		NextReviewAt: NextDueDate(now, next.Interval),
	}, nil
}

// NextEaseFactor applies the SM-2 ease adjustment and clamps the result at
// MinEaseFactor.
func NextEaseFactor(ease float64, quality Quality) float64 {
	miss := float64(MaxQuality - quality)
	return math.Max(MinEaseFactor, ease+(0.1-miss*(0.08+miss*0.02)))
}

// NextDueDate adds interval calendar days to from.
func NextDueDate(from time.Time, interval int) time.Time {
	return from.AddDate(0, 0, interval)
}
