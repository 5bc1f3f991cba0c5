package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/knolreview/internal/domain"
)

const cardColumns = `id, hash, front, back, subject, difficulty, source_id, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (domain.Card, error) {
	var (
		c          domain.Card
		difficulty string
		sourceID   sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.Hash, &c.Front, &c.Back, &c.Subject, &difficulty, &sourceID, &c.CreatedAt); err != nil {
		return domain.Card{}, err
	}
	c.Difficulty = domain.ParseDifficulty(difficulty)
	if sourceID.Valid {
		id := sourceID.Int64
		c.SourceID = &id
	}
	return c, nil
}

// InsertCard stores a new card and returns it with its ID and creation time
// filled in. SourceID may be nil for cards created directly rather than
// imported.
func (db *DB) InsertCard(ctx context.Context, card domain.Card) (domain.Card, error) {
	if card.CreatedAt.IsZero() {
		card.CreatedAt = time.Now()
	}
	card.CreatedAt = card.CreatedAt.UTC()
	if card.Difficulty == "" {
		card.Difficulty = domain.Medium
	}

	var sourceID sql.NullInt64
	if card.SourceID != nil {
		sourceID = sql.NullInt64{Int64: *card.SourceID, Valid: true}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to begin insert of card %s: %w", card.Hash, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO cards (hash, front, back, subject, difficulty, source_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		card.Hash,
		card.Front,
		card.Back,
		card.Subject,
		string(card.Difficulty),
		sourceID,
		card.CreatedAt,
	)
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to insert card %s: %w", card.Hash, err)
	}
	card.ID, err = res.LastInsertId()
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to get last insert ID for card %s: %w", card.Hash, err)
	}
	if sourceID.Valid {
		if err := linkCardSource(ctx, tx, card.ID, sourceID.Int64); err != nil {
			return domain.Card{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Card{}, fmt.Errorf("failed to commit card %s: %w", card.Hash, err)
	}
	card.Reviews = nil
	return card, nil
}

// FindCard retrieves a card by ID, without its review history.
func (db *DB) FindCard(ctx context.Context, id int64) (*domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, fmt.Errorf("failed to find card %d: %w", id, err)
	}
	return &c, nil
}

// FindCardByHash retrieves a card by its content hash.
func (db *DB) FindCardByHash(ctx context.Context, hash string) (*domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE hash = ?`, hash)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, fmt.Errorf("failed to find card by hash %s: %w", hash, err)
	}
	return &c, nil
}

// ListCards returns every card, newest first, each with its full review
// history attached. An empty subject matches all cards.
func (db *DB) ListCards(ctx context.Context, subject string) ([]domain.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards`
	var args []any
	if subject != "" {
		query += ` WHERE subject = ?`
		args = append(args, subject)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	cards, err := db.queryCards(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	if err := db.attachReviews(ctx, cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// GetCardsBySourceID retrieves all cards a source contains, including cards
// first imported from another source.
func (db *DB) GetCardsBySourceID(ctx context.Context, sourceID int64) ([]domain.Card, error) {
	cards, err := db.queryCards(ctx, `
		SELECT `+cardColumns+` FROM cards
		WHERE id IN (SELECT card_id FROM card_sources WHERE source_id = ?)
		ORDER BY id
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	return cards, nil
}

// DeleteCard removes a card; its review history goes with it.
func (db *DB) DeleteCard(ctx context.Context, id int64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete card %d: %w", id, err)
	}
	return nil
}

// LinkCardSource records that a source contains an existing card.
func (db *DB) LinkCardSource(ctx context.Context, cardID, sourceID int64) error {
	return linkCardSource(ctx, db.conn, cardID, sourceID)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func linkCardSource(ctx context.Context, ex execer, cardID, sourceID int64) error {
	_, err := ex.ExecContext(ctx, `
		INSERT OR IGNORE INTO card_sources (card_id, source_id)
		VALUES (?, ?)
	`, cardID, sourceID)
	if err != nil {
		return fmt.Errorf("failed to link card %d to source %d: %w", cardID, sourceID, err)
	}
	return nil
}

// ReleaseCard records that a source no longer contains a card. The card is
// deleted, with its review history, only when no other source still has it
// and it was imported rather than created directly. Otherwise ownership moves
// to a remaining source. It reports whether the card was deleted.
func (db *DB) ReleaseCard(ctx context.Context, cardID, sourceID int64) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin release of card %d: %w", cardID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM card_sources WHERE card_id = ? AND source_id = ?`, cardID, sourceID); err != nil {
		return false, fmt.Errorf("failed to unlink card %d from source %d: %w", cardID, sourceID, err)
	}

	var owner sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT source_id FROM cards WHERE id = ?`, cardID).Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, tx.Commit()
		}
		return false, fmt.Errorf("failed to read owner of card %d: %w", cardID, err)
	}

	var other sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT source_id FROM card_sources
		WHERE card_id = ? ORDER BY source_id LIMIT 1
	`, cardID).Scan(&other)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to find other sources of card %d: %w", cardID, err)
	}

	deleted := false
	switch {
	case !owner.Valid:
		// Created directly; a source dropping it does not remove it.
	case other.Valid:
		if owner.Int64 == sourceID {
			if _, err := tx.ExecContext(ctx, `UPDATE cards SET source_id = ? WHERE id = ?`, other.Int64, cardID); err != nil {
				return false, fmt.Errorf("failed to move card %d to source %d: %w", cardID, other.Int64, err)
			}
		}
	default:
		if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, cardID); err != nil {
			return false, fmt.Errorf("failed to delete card %d: %w", cardID, err)
		}
		deleted = true
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit release of card %d: %w", cardID, err)
	}
	return deleted, nil
}

func (db *DB) queryCards(ctx context.Context, query string, args ...any) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// attachReviews loads the review history of cards in one query.
func (db *DB) attachReviews(ctx context.Context, cards []domain.Card) error {
	if len(cards) == 0 {
		return nil
	}

	index := make(map[int64]int, len(cards))
	placeholders := make([]string, len(cards))
	args := make([]any, len(cards))
	for i, c := range cards {
		index[c.ID] = i
		placeholders[i] = "?"
		args[i] = c.ID
	}

	reviews, err := db.queryReviews(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE card_id IN (`+strings.Join(placeholders, ",")+`) ORDER BY id`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to load reviews: %w", err)
	}
	for _, r := range reviews {
		i := index[r.CardID]
		cards[i].Reviews = append(cards[i].Reviews, r)
	}
	return nil
}
