package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/knolreview/internal/domain"
)

type field int

const (
	seeking field = iota
	readingFront
	readingBack
	readingSubject
	readingDifficulty
)

const separator = "---"

// maxLineSize bounds a single line of a deck file.
const maxLineSize = 1 << 20

var prefixes = []struct {
	prefix string
	field  field
}{
	{"Q:", readingFront},
	{"A:", readingBack},
	{"S:", readingSubject},
	{"D:", readingDifficulty},
}

// ParseFile reads a file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads cards from r. Each card starts with a "Q:" line and may carry
// "A:", "S:" and "D:" blocks; blocks run until the next prefix, a "---"
// separator or the next "Q:". Cards without a front are dropped.
//
// On a read error Parse returns the cards completed before the failing line
// together with the error; the card being read at that point is discarded.
func Parse(r io.Reader) ([]domain.Card, error) {
	p := &cardParser{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		p.line(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return p.cards, err
	}

	p.finishCard()
	return p.cards, nil
}

type cardParser struct {
	cards   []domain.Card
	current domain.Card
	state   field
	block   []string
}

func (p *cardParser) line(line string) {
	if strings.TrimRight(line, " \t") == separator {
		p.finishCard()
		return
	}

	for _, pf := range prefixes {
		if !strings.HasPrefix(line, pf.prefix) {
			continue
		}
		p.flushBlock()
		if pf.field == readingFront && p.state != seeking {
			p.finishCard()
		}
		p.state = pf.field
		p.block = append(p.block, strings.TrimPrefix(line[len(pf.prefix):], " "))
		return
	}

	if p.state != seeking {
		p.block = append(p.block, line)
	}
}

// flushBlock stores the accumulated block in the field being read.
func (p *cardParser) flushBlock() {
	if len(p.block) == 0 {
		return
	}
	content := strings.TrimRight(strings.Join(p.block, "\n"), "\n")
	switch p.state {
	case readingFront:
		p.current.Front = content
	case readingBack:
		p.current.Back = content
	case readingSubject:
		p.current.Subject = strings.TrimSpace(content)
	case readingDifficulty:
		p.current.Difficulty = domain.ParseDifficulty(strings.ToLower(strings.TrimSpace(content)))
	}
	p.block = nil
}

func (p *cardParser) finishCard() {
	p.flushBlock()
	if p.current.Front != "" {
		if p.current.Difficulty == "" {
			p.current.Difficulty = domain.Medium
		}
		p.cards = append(p.cards, p.current)
	}
	p.current = domain.Card{}
	p.state = seeking
}
