package sync

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/knolreview/internal/gitsource"
	"github.com/conorfennell/knolreview/internal/knol"
	"github.com/conorfennell/knolreview/internal/parser"
	"github.com/conorfennell/knolreview/internal/storage"
)

// Syncer imports cards from every configured source.
type Syncer struct {
	DB       *storage.DB
	ReposDir string
	Logger   *slog.Logger
	Progress io.Writer // git clone/pull output; nil discards it
}

// Result summarizes one reconciliation.
type Result struct {
	Parsed   int
	Inserted int
	Deleted  int
	Released int // dropped by this source but kept for another
	Errors   []error

	// Incomplete is set when a deck file could not be read in full. Orphans
	// are not removed from an incomplete scan.
	Incomplete bool
}

// Run iterates over all sources and reconciles them. A failing source is
// logged and skipped; only failing to list sources aborts the run.
func (s *Syncer) Run(ctx context.Context) error {
	logger := s.logger()
	logger.Info("starting sync for all sources")

	sources, err := s.DB.GetAllSources(ctx)
	if err != nil {
		return fmt.Errorf("failed to get sources: %w", err)
	}

	if len(sources) == 0 {
		logger.Info("no sources configured; add one with --add-source <path/or/url.git>")
		return nil
	}

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Info("syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		localPath := source.Path
		if source.Type == storage.SourceGit {
			localPath, err = s.checkout(ctx, source.Path)
			if err != nil {
				logger.Error("error syncing git repo", "url", source.Path, "error", err)
				continue
			}
		}

		res, err := s.Reconcile(ctx, source.ID, localPath)
		if err != nil {
			logger.Error("error reconciling source", "source_id", source.ID, "path", localPath, "error", err)
			continue
		}
		for _, e := range res.Errors {
			logger.Warn("card import problem", "source_id", source.ID, "error", e)
		}
		logger.Info("reconciliation complete",
			"path", localPath,
			"parsed_cards", res.Parsed,
			"inserted", res.Inserted,
			"orphaned_deleted", res.Deleted,
			"released", res.Released,
			"incomplete", res.Incomplete,
			"errors", len(res.Errors),
		)
	}
	logger.Info("sync complete")
	return nil
}

func (s *Syncer) checkout(ctx context.Context, repoURL string) (string, error) {
	if err := os.MkdirAll(s.ReposDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create repos directory: %w", err)
	}
	localPath, err := gitsource.LocalPath(s.ReposDir, repoURL)
	if err != nil {
		return "", err
	}
	progress := s.Progress
	if progress == nil {
		progress = io.Discard
	}
	if err := gitsource.Sync(ctx, s.logger(), repoURL, localPath, progress); err != nil {
		return "", err
	}
	return localPath, nil
}

// Reconcile parses every markdown file under dir, inserts cards not seen
// before and releases cards of the source that no longer appear. Existing
// cards are matched by content hash, so their review history is kept; a
// released card is only deleted once no source contains it.
func (s *Syncer) Reconcile(ctx context.Context, sourceID int64, dir string) (Result, error) {
	var res Result
	found := make(map[string]bool)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		fileCards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			res.Errors = append(res.Errors, fmt.Errorf("parsing %s: %w", path, parseErr))
			res.Incomplete = true
		}
		for _, card := range fileCards {
			card.Hash = knol.Hash(card)
			res.Parsed++
			if found[card.Hash] {
				continue
			}
			found[card.Hash] = true

			existing, err := s.DB.FindCardByHash(ctx, card.Hash)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("db check for %s: %w", card.Hash, err))
				continue
			}
			if existing != nil {
				if err := s.DB.LinkCardSource(ctx, existing.ID, sourceID); err != nil {
					res.Errors = append(res.Errors, err)
				}
				continue
			}
			card.SourceID = &sourceID
			if _, err := s.DB.InsertCard(ctx, card); err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("db insert for %s: %w", card.Hash, err))
				continue
			}
			res.Inserted++
		}
		return nil
	})
	if walkErr != nil {
		return res, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}

	if res.Incomplete {
		s.logger().Warn("skipping orphan removal after parse errors", "source_id", sourceID)
	} else if err := s.releaseOrphans(ctx, sourceID, found, &res); err != nil {
		return res, err
	}

	if err := s.DB.UpdateSourceLastScanned(ctx, sourceID, time.Now()); err != nil {
		res.Errors = append(res.Errors, err)
	}
	return res, nil
}

func (s *Syncer) releaseOrphans(ctx context.Context, sourceID int64, found map[string]bool, res *Result) error {
	dbCards, err := s.DB.GetCardsBySourceID(ctx, sourceID)
	if err != nil {
		return err
	}
	for _, c := range dbCards {
		if found[c.Hash] {
			continue
		}
		deleted, err := s.DB.ReleaseCard(ctx, c.ID, sourceID)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("release orphaned %s: %w", c.Hash, err))
			continue
		}
		if deleted {
			res.Deleted++
		} else {
			res.Released++
		}
	}
	return nil
}

func (s *Syncer) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
