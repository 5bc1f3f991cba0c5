package storage

const schema = `
-- The 'sources' table tracks where imported cards come from, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local', -- 'local' or 'git'
    last_scanned DATETIME
);

-- The 'cards' table stores the flashcards themselves.
CREATE TABLE IF NOT EXISTS cards (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    hash TEXT NOT NULL UNIQUE,
    front TEXT NOT NULL,
    back TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    difficulty TEXT NOT NULL DEFAULT 'medium',
    source_id INTEGER,
    created_at DATETIME NOT NULL,

    FOREIGN KEY(source_id) REFERENCES sources(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_cards_subject ON cards(subject);

-- The 'card_sources' table records every source that contains a card. A card
-- shared by several sources lives as long as any of them still has it;
-- cards.source_id names the source that currently owns it.
CREATE TABLE IF NOT EXISTS card_sources (
    card_id INTEGER NOT NULL,
    source_id INTEGER NOT NULL,

    PRIMARY KEY (card_id, source_id),
    FOREIGN KEY(card_id) REFERENCES cards(id) ON DELETE CASCADE,
    FOREIGN KEY(source_id) REFERENCES sources(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_card_sources_source ON card_sources(source_id);

INSERT OR IGNORE INTO card_sources (card_id, source_id)
SELECT id, source_id FROM cards WHERE source_id IS NOT NULL;

-- The 'reviews' table is the append-only review history of each card.
CREATE TABLE IF NOT EXISTS reviews (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    card_id INTEGER NOT NULL,
    quality INTEGER NOT NULL CHECK (quality BETWEEN 0 AND 5),
    ease_factor REAL NOT NULL CHECK (ease_factor >= 1.3),
    interval_days INTEGER NOT NULL CHECK (interval_days >= 0),
    repetitions INTEGER NOT NULL CHECK (repetitions >= 0),
    reviewed_at DATETIME NOT NULL,
    next_review_at DATETIME NOT NULL,

    FOREIGN KEY(card_id) REFERENCES cards(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_reviews_card ON reviews(card_id, reviewed_at);
`
