package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolreview/internal/storage"
)

func TestRunAddSourceThenSync(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cards.db")
	decks := filepath.Join(dir, "decks")
	require.NoError(t, os.MkdirAll(decks, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(decks, "deck.md"), []byte("Q: One?\nA: 1\n---\nQ: Two?\nA: 2\n"), 0o644))

	base := []string{"--db-path", dbPath, "--log-level", "error"}
	require.NoError(t, run(append(base, "--add-source", decks)))
	require.NoError(t, run(append(base, "--add-source", decks)), "adding twice is a no-op")
	require.NoError(t, run(append(base, "--sync")))

	db, err := storage.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	sources, err := db.GetAllSources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 1)

	cards, err := db.ListCards(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, cards, 2)
}

func TestRunRejectsBadConfig(t *testing.T) {
	assert.Error(t, run([]string{"--log-format", "xml"}))
}
