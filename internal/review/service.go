package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/conorfennell/knolreview/internal/domain"
	"github.com/conorfennell/knolreview/internal/sm2"
)

// ErrUnknownCard is returned when a review is submitted for a card the store
// does not know about.
var ErrUnknownCard = errors.New("review: unknown card")

// Store is the persistence the review service needs. Lookups return a nil
// result with a nil error when nothing is found.
type Store interface {
	FindCard(ctx context.Context, id int64) (*domain.Card, error)
	LatestReview(ctx context.Context, cardID int64) (*domain.ReviewRecord, error)
	AppendReview(ctx context.Context, rec domain.ReviewRecord) (domain.ReviewRecord, error)
}

// Clock abstracts the current time so tests can pin it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// Service records reviews and answers which cards are due.
//
// It holds no locks. Callers are expected to submit at most one review per
// card at a time; the store decides which of two racing appends is latest.
type Service struct {
	store  Store
	clock  Clock
	logger *slog.Logger
}

// NewService creates a Service. A nil clock uses the system clock and a nil
// logger uses slog.Default().
func NewService(store Store, clock Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// SubmitReview schedules the next review of cardID from the given quality and
// appends the result to the card's history. Nothing is written when the
// quality is invalid or the card does not exist. Store errors are returned
// as-is.
func (s *Service) SubmitReview(ctx context.Context, cardID int64, quality sm2.Quality) (domain.ReviewRecord, error) {
	if !quality.Valid() {
		return domain.ReviewRecord{}, fmt.Errorf("%w: got %d", sm2.ErrInvalidQuality, quality)
	}

	card, err := s.store.FindCard(ctx, cardID)
	if err != nil {
		return domain.ReviewRecord{}, err
	}
	if card == nil {
		return domain.ReviewRecord{}, fmt.Errorf("%w: %d", ErrUnknownCard, cardID)
	}

	prev := sm2.DefaultState()
	latest, err := s.store.LatestReview(ctx, cardID)
	if err != nil {
		return domain.ReviewRecord{}, err
	}
	if latest != nil {
		prev = latest.State()
	}

	now := s.clock.Now()
	next, err := sm2.NextReview(quality, prev, now)
	if err != nil {
		return domain.ReviewRecord{}, err
	}

	rec, err := s.store.AppendReview(ctx, domain.ReviewRecord{
		CardID:       cardID,
		Quality:      quality,
		EaseFactor:   next.EaseFactor,
		Interval:     next.Interval,
		Repetitions:  next.Repetitions,
		ReviewedAt:   now,
		NextReviewAt: next.NextReviewAt,
	})
	if err != nil {
		return domain.ReviewRecord{}, err
	}

	s.logger.Debug("review recorded",
		"card_id", cardID,
		"quality", int(quality),
		"interval", rec.Interval,
		"repetitions", rec.Repetitions,
		"ease_factor", rec.EaseFactor,
		"next_review_at", rec.NextReviewAt,
	)
	return rec, nil
}

// ListDueCards returns the cards due at asOf. A zero asOf means now.
func (s *Service) ListDueCards(cards []domain.Card, asOf time.Time) []domain.Card {
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}
	return SelectDue(cards, asOf)
}
