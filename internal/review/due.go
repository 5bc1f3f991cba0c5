package review

import (
	"time"

	"github.com/conorfennell/knolreview/internal/domain"
)

// IsDue reports whether card should be shown at asOf. A card that has never
// been reviewed is always due; otherwise it is due once its latest review's
// NextReviewAt has been reached.
func IsDue(card domain.Card, asOf time.Time) bool {
	latest := card.LatestReview()
	if latest == nil {
		return true
	}
	return !latest.NextReviewAt.After(asOf)
}

// SelectDue returns the cards that are due at asOf, in input order.
func SelectDue(cards []domain.Card, asOf time.Time) []domain.Card {
	due, _ := Partition(cards, asOf)
	return due
}

// Partition splits cards into those due at asOf and the rest. Every input
// card lands in exactly one of the two slices.
func Partition(cards []domain.Card, asOf time.Time) (due, notDue []domain.Card) {
	due = make([]domain.Card, 0, len(cards))
	for _, card := range cards {
		if IsDue(card, asOf) {
			due = append(due, card)
		} else {
			notDue = append(notDue, card)
		}
	}
	return due, notDue
}
