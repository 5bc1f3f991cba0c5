package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolreview/internal/domain"
	"github.com/conorfennell/knolreview/internal/knol"
	"github.com/conorfennell/knolreview/internal/review"
)

var _ review.Store = (*DB)(nil)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "knolreview.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func insertCard(t *testing.T, db *DB, front, subject string) domain.Card {
	t.Helper()
	card := domain.Card{Front: front, Back: "back of " + front, Subject: subject}
	card.Hash = knol.Hash(card)
	stored, err := db.InsertCard(context.Background(), card)
	require.NoError(t, err)
	return stored
}

func TestCards(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	bio := insertCard(t, db, "What is a cell?", "Biology")
	chem := insertCard(t, db, "What is a mole?", "Chemistry")
	assert.NotZero(t, bio.ID)
	assert.NotEqual(t, bio.ID, chem.ID)
	assert.Equal(t, domain.Medium, bio.Difficulty)

	found, err := db.FindCard(ctx, bio.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, bio.Front, found.Front)
	assert.Equal(t, bio.Hash, found.Hash)
	assert.Nil(t, found.SourceID)
	assert.WithinDuration(t, bio.CreatedAt, found.CreatedAt, 0)

	byHash, err := db.FindCardByHash(ctx, chem.Hash)
	require.NoError(t, err)
	require.NotNil(t, byHash)
	assert.Equal(t, chem.ID, byHash.ID)

	missing, err := db.FindCard(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := db.ListCards(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyBio, err := db.ListCards(ctx, "Biology")
	require.NoError(t, err)
	require.Len(t, onlyBio, 1)
	assert.Equal(t, bio.ID, onlyBio[0].ID)

	_, err = db.InsertCard(ctx, domain.Card{Front: "dup", Hash: bio.Hash})
	assert.Error(t, err, "hash is unique")
}

func TestReviewsAppendOnly(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	card := insertCard(t, db, "Capital of Peru?", "Geography")

	latest, err := db.LatestReview(ctx, card.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	reviewedAt := time.Date(2024, 2, 1, 9, 0, 0, 123456789, time.UTC)
	first, err := db.AppendReview(ctx, domain.ReviewRecord{
		CardID: card.ID, Quality: 4, EaseFactor: 2.5, Interval: 1, Repetitions: 1,
		ReviewedAt: reviewedAt, NextReviewAt: reviewedAt.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	// Same timestamp: insertion order decides.
	second, err := db.AppendReview(ctx, domain.ReviewRecord{
		CardID: card.ID, Quality: 5, EaseFactor: 2.6, Interval: 6, Repetitions: 2,
		ReviewedAt: reviewedAt, NextReviewAt: reviewedAt.AddDate(0, 0, 6),
	})
	require.NoError(t, err)

	latest, err = db.LatestReview(ctx, card.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, 6, latest.Interval)
	assert.InDelta(t, 2.6, latest.EaseFactor, 1e-12)
	assert.WithinDuration(t, reviewedAt.AddDate(0, 0, 6), latest.NextReviewAt, 0)

	// An older review appended later does not become latest.
	_, err = db.AppendReview(ctx, domain.ReviewRecord{
		CardID: card.ID, Quality: 1, EaseFactor: 1.96, Interval: 1, Repetitions: 0,
		ReviewedAt: reviewedAt.Add(-time.Hour), NextReviewAt: reviewedAt.Add(23 * time.Hour),
	})
	require.NoError(t, err)
	latest, err = db.LatestReview(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	history, err := db.ListReviews(ctx, card.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, first.ID, history[0].ID)

	cards, err := db.ListCards(ctx, "")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	require.Len(t, cards[0].Reviews, 3)
	assert.Equal(t, second.ID, cards[0].LatestReview().ID)
}

func TestReviewConstraints(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	card := insertCard(t, db, "Floor?", "")
	now := time.Now()

	_, err := db.AppendReview(ctx, domain.ReviewRecord{
		CardID: card.ID, Quality: 3, EaseFactor: 1.2, Interval: 1, ReviewedAt: now, NextReviewAt: now,
	})
	assert.Error(t, err, "ease below 1.3 is rejected")

	_, err = db.AppendReview(ctx, domain.ReviewRecord{
		CardID: 4242, Quality: 3, EaseFactor: 2.5, Interval: 1, ReviewedAt: now, NextReviewAt: now,
	})
	assert.Error(t, err, "review for a missing card is rejected")
}

func TestDeleteCardCascadesReviews(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	card := insertCard(t, db, "Gone soon", "")
	now := time.Now()

	_, err := db.AppendReview(ctx, domain.ReviewRecord{
		CardID: card.ID, Quality: 3, EaseFactor: 2.36, Interval: 1, Repetitions: 1, ReviewedAt: now, NextReviewAt: now,
	})
	require.NoError(t, err)

	require.NoError(t, db.DeleteCard(ctx, card.ID))

	history, err := db.ListReviews(ctx, card.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSources(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	id, err := db.InsertSource(ctx, "/tmp/decks", SourceLocal)
	require.NoError(t, err)

	src, err := db.FindSourceByPath(ctx, "/tmp/decks")
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.Equal(t, id, src.ID)
	assert.Equal(t, SourceLocal, src.Type)
	assert.False(t, src.LastScanned.Valid)

	scannedAt := time.Date(2024, 4, 4, 4, 4, 4, 0, time.UTC)
	require.NoError(t, db.UpdateSourceLastScanned(ctx, id, scannedAt))

	sources, err := db.GetAllSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.True(t, sources[0].LastScanned.Valid)
	assert.WithinDuration(t, scannedAt, sources[0].LastScanned.Time, 0)

	card := domain.Card{Front: "From source", SourceID: &id}
	card.Hash = knol.Hash(card)
	_, err = db.InsertCard(ctx, card)
	require.NoError(t, err)

	bySource, err := db.GetCardsBySourceID(ctx, id)
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	require.NotNil(t, bySource[0].SourceID)
	assert.Equal(t, id, *bySource[0].SourceID)

	require.NoError(t, db.DeleteSource(ctx, id))
	bySource, err = db.GetCardsBySourceID(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, bySource)

	missing, err := db.FindSourceByPath(ctx, "/nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSharedCardOwnership(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	idA, err := db.InsertSource(ctx, "/decks/a", SourceLocal)
	require.NoError(t, err)
	idB, err := db.InsertSource(ctx, "/decks/b", SourceLocal)
	require.NoError(t, err)

	card := domain.Card{Front: "Shared", SourceID: &idA}
	card.Hash = knol.Hash(card)
	shared, err := db.InsertCard(ctx, card)
	require.NoError(t, err)
	require.NoError(t, db.LinkCardSource(ctx, shared.ID, idB))
	require.NoError(t, db.LinkCardSource(ctx, shared.ID, idB), "linking twice is a no-op")

	manual := insertCard(t, db, "Typed in", "")
	require.NoError(t, db.LinkCardSource(ctx, manual.ID, idA))

	inB, err := db.GetCardsBySourceID(ctx, idB)
	require.NoError(t, err)
	require.Len(t, inB, 1)
	assert.Equal(t, shared.ID, inB[0].ID)

	t.Run("deleting the owner hands the card over", func(t *testing.T) {
		require.NoError(t, db.DeleteSource(ctx, idA))

		found, err := db.FindCard(ctx, shared.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		require.NotNil(t, found.SourceID)
		assert.Equal(t, idB, *found.SourceID)

		kept, err := db.FindCard(ctx, manual.ID)
		require.NoError(t, err)
		assert.NotNil(t, kept, "cards created directly do not belong to a source")
	})

	t.Run("releasing from the last source deletes", func(t *testing.T) {
		deleted, err := db.ReleaseCard(ctx, shared.ID, idB)
		require.NoError(t, err)
		assert.True(t, deleted)

		found, err := db.FindCard(ctx, shared.ID)
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("releasing a direct card keeps it", func(t *testing.T) {
		require.NoError(t, db.LinkCardSource(ctx, manual.ID, idB))
		deleted, err := db.ReleaseCard(ctx, manual.ID, idB)
		require.NoError(t, err)
		assert.False(t, deleted)

		found, err := db.FindCard(ctx, manual.ID)
		require.NoError(t, err)
		assert.NotNil(t, found)
	})
}

func TestSourceType(t *testing.T) {
	assert.Equal(t, SourceGit, SourceType("https://github.com/example/decks"))
	assert.Equal(t, SourceGit, SourceType("git@github.com:example/decks.git"))
	assert.Equal(t, SourceLocal, SourceType("./notes"))
}

func TestSubmitReviewAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	card := insertCard(t, db, "Integration?", "")

	svc := review.NewService(db, nil, nil)
	first, err := svc.SubmitReview(ctx, card.ID, 5)
	require.NoError(t, err)
	second, err := svc.SubmitReview(ctx, card.ID, 5)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Interval)
	assert.Equal(t, 6, second.Interval)
	assert.Equal(t, 2, second.Repetitions)
	assert.InDelta(t, 2.7, second.EaseFactor, 1e-9)

	_, err = svc.SubmitReview(ctx, card.ID+100, 5)
	assert.ErrorIs(t, err, review.ErrUnknownCard)
}
