package knol

import (
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conorfennell/knolreview/internal/domain"
)

func TestNormalize(t *testing.T) {
	card := domain.Card{
		Front:   "  What is SM-2? \r\n",
		Back:    "A spaced\r\nrepetition algorithm.",
		Subject: "Learning Science",
	}
	assert.Equal(t, "13:what is sm-2?30:a spaced\nrepetition algorithm.16:learning science", Normalize(card))
}

func TestHash(t *testing.T) {
	t.Run("hashes the normalized text", func(t *testing.T) {
		card := domain.Card{Front: "Q", Back: "A", Subject: "S"}
		want := fmt.Sprintf("%x", sha256.Sum256([]byte("1:q1:a1:s")))
		assert.Equal(t, want, Hash(card))
	})

	t.Run("ignores difficulty and identity fields", func(t *testing.T) {
		a := domain.Card{ID: 1, Front: "Test", Difficulty: domain.Easy}
		b := domain.Card{ID: 2, Front: "Test", Difficulty: domain.Hard}
		assert.Equal(t, Hash(a), Hash(b))
	})

	t.Run("normalization produces same hash", func(t *testing.T) {
		a := domain.Card{Front: "  what is go? ", Back: "A programming language."}
		b := domain.Card{Front: "What Is Go?", Back: "A programming language."}
		assert.Equal(t, Hash(a), Hash(b))
	})

	t.Run("different cards have different hashes", func(t *testing.T) {
		assert.NotEqual(t, Hash(domain.Card{Front: "Card 1"}), Hash(domain.Card{Front: "Card 2"}))
	})

	t.Run("fields do not bleed into each other", func(t *testing.T) {
		a := domain.Card{Front: "ab", Back: "c"}
		b := domain.Card{Front: "a", Back: "bc"}
		assert.NotEqual(t, Hash(a), Hash(b))

		multiline := domain.Card{Front: "a\nb", Back: "c"}
		shifted := domain.Card{Front: "a", Back: "b\nc"}
		assert.NotEqual(t, Hash(multiline), Hash(shifted))
	})
}
