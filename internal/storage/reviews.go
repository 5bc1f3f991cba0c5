package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/knolreview/internal/domain"
	"github.com/conorfennell/knolreview/internal/sm2"
)

const reviewColumns = `id, card_id, quality, ease_factor, interval_days, repetitions, reviewed_at, next_review_at`

func scanReview(row rowScanner) (domain.ReviewRecord, error) {
	var (
		r       domain.ReviewRecord
		quality int
	)
	err := row.Scan(&r.ID, &r.CardID, &quality, &r.EaseFactor, &r.Interval, &r.Repetitions, &r.ReviewedAt, &r.NextReviewAt)
	if err != nil {
		return domain.ReviewRecord{}, err
	}
	r.Quality = sm2.Quality(quality)
	return r, nil
}

// AppendReview stores a new review record and returns it with its ID set.
// Existing records are never modified.
func (db *DB) AppendReview(ctx context.Context, rec domain.ReviewRecord) (domain.ReviewRecord, error) {
	rec.ReviewedAt = rec.ReviewedAt.UTC()
	rec.NextReviewAt = rec.NextReviewAt.UTC()

	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO reviews (card_id, quality, ease_factor, interval_days, repetitions, reviewed_at, next_review_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		rec.CardID,
		int(rec.Quality),
		rec.EaseFactor,
		rec.Interval,
		rec.Repetitions,
		rec.ReviewedAt,
		rec.NextReviewAt,
	)
	if err != nil {
		return domain.ReviewRecord{}, fmt.Errorf("failed to append review for card %d: %w", rec.CardID, err)
	}
	rec.ID, err = res.LastInsertId()
	if err != nil {
		return domain.ReviewRecord{}, fmt.Errorf("failed to get last insert ID for review of card %d: %w", rec.CardID, err)
	}
	return rec, nil
}

// LatestReview returns the card's most recent review, or nil if it has never
// been reviewed. Reviews sharing a timestamp are ordered by insertion.
func (db *DB) LatestReview(ctx context.Context, cardID int64) (*domain.ReviewRecord, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews WHERE card_id = ?
		ORDER BY reviewed_at DESC, id DESC
		LIMIT 1
	`, cardID)
	r, err := scanReview(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Never reviewed
		}
		return nil, fmt.Errorf("failed to get latest review for card %d: %w", cardID, err)
	}
	return &r, nil
}

// ListReviews returns a card's review history in insertion order.
func (db *DB) ListReviews(ctx context.Context, cardID int64) ([]domain.ReviewRecord, error) {
	reviews, err := db.queryReviews(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE card_id = ? ORDER BY id`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews for card %d: %w", cardID, err)
	}
	return reviews, nil
}

func (db *DB) queryReviews(ctx context.Context, query string, args ...any) ([]domain.ReviewRecord, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []domain.ReviewRecord
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}
