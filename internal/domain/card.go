package domain

import (
	"time"

	"github.com/conorfennell/knolreview/internal/sm2"
)

// Difficulty is the author's estimate of how hard a card is.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// ParseDifficulty maps free text onto a Difficulty, defaulting to Medium.
func ParseDifficulty(s string) Difficulty {
	switch Difficulty(s) {
	case Easy, Medium, Hard:
		return Difficulty(s)
	default:
		return Medium
	}
}

// Card is a single flashcard. Reviews holds its review history in insertion
// order; it may be nil when the history was not loaded.
type Card struct {
	ID         int64          `json:"id"`
	Hash       string         `json:"hash"`
	Front      string         `json:"front"`
	Back       string         `json:"back"`
	Subject    string         `json:"subject"`
	Difficulty Difficulty     `json:"difficulty"`
	SourceID   *int64         `json:"sourceId,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	Reviews    []ReviewRecord `json:"reviews,omitempty"`
}

// LatestReview returns the review with the latest ReviewedAt, or nil if the
// card has never been reviewed. When two reviews share a timestamp the one
// inserted last wins.
func (c Card) LatestReview() *ReviewRecord {
	var latest *ReviewRecord
	for i := range c.Reviews {
		r := &c.Reviews[i]
		if latest == nil || !r.ReviewedAt.Before(latest.ReviewedAt) {
			latest = r
		}
	}
	return latest
}

// ScheduleState is the state the next review of this card starts from.
func (c Card) ScheduleState() sm2.State {
	if r := c.LatestReview(); r != nil {
		return r.State()
	}
	return sm2.DefaultState()
}

// ReviewRecord is one completed review of one card. Records are immutable
// once stored.
type ReviewRecord struct {
	ID           int64       `json:"id"`
	CardID       int64       `json:"flashcardId"`
	Quality      sm2.Quality `json:"quality"`
	EaseFactor   float64     `json:"easeFactor"`
	Interval     int         `json:"interval"`
	Repetitions  int         `json:"repetitions"`
	ReviewedAt   time.Time   `json:"reviewedAt"`
	NextReviewAt time.Time   `json:"nextReviewAt"`
}

// State extracts the scheduling state carried by the record.
func (r ReviewRecord) State() sm2.State {
	return sm2.State{
		EaseFactor:  r.EaseFactor,
		Interval:    r.Interval,
		Repetitions: r.Repetitions,
	}
}
