package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/knolreview/internal/domain"
)

// Normalize joins the card's front, back and subject after cleaning each
// part: lowercased, trimmed, CRLF line endings folded to LF. Each part is
// prefixed with its byte length so no text moves between parts unnoticed.
func Normalize(card domain.Card) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return strings.TrimSpace(p)
	}

	var b strings.Builder
	for _, part := range []string{card.Front, card.Back, card.Subject} {
		p := normalizePart(part)
		fmt.Fprintf(&b, "%d:%s", len(p), p)
	}
	return b.String()
}

// Hash returns the hex SHA-256 of the normalized card. Imported cards are
// keyed by this value so their review history survives re-imports.
func Hash(card domain.Card) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return fmt.Sprintf("%x", sum)
}
