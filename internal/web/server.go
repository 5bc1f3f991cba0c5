package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/knolreview/internal/domain"
	"github.com/conorfennell/knolreview/internal/knol"
	"github.com/conorfennell/knolreview/internal/review"
	"github.com/conorfennell/knolreview/internal/sm2"
	"github.com/conorfennell/knolreview/internal/storage"
)

// Syncer runs a sync of all card sources.
type Syncer interface {
	Run(ctx context.Context) error
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	db       *storage.DB
	reviews  *review.Service
	syncer   Syncer
	logger   *slog.Logger
	validate *validator.Validate
	router   *http.ServeMux
	dueLimit int
}

// Options configures optional Server behaviour.
type Options struct {
	Syncer   Syncer
	Logger   *slog.Logger
	DueLimit int // cap on cards returned by ?dueOnly=true; 0 means no cap
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, reviews *review.Service, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		db:       db,
		reviews:  reviews,
		syncer:   opts.Syncer,
		logger:   logger,
		validate: newValidator(),
		router:   http.NewServeMux(),
		dueLimit: opts.DueLimit,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /flashcards", s.handleListFlashcards())
	s.router.HandleFunc("POST /flashcards", s.handleCreateFlashcard())
	s.router.HandleFunc("DELETE /flashcards/{id}", s.handleDeleteFlashcard())
	s.router.HandleFunc("GET /flashcards/{id}/reviews", s.handleListReviews())
	s.router.HandleFunc("POST /flashcards/review", s.handlePostReview())

	s.router.HandleFunc("GET /sources", s.handleGetSources())
	s.router.HandleFunc("POST /sources", s.handlePostSource())
	s.router.HandleFunc("DELETE /sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /sync", s.handlePostSync())
}

// handleListFlashcards returns all cards, optionally filtered by subject and
// to those currently due.
func (s *Server) handleListFlashcards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := r.URL.Query().Get("subject")
		dueOnly := r.URL.Query().Get("dueOnly") == "true"

		cards, err := s.db.ListCards(r.Context(), subject)
		if err != nil {
			s.serverError(w, "Failed to fetch flashcards", err)
			return
		}

		if dueOnly {
			cards = s.reviews.ListDueCards(cards, time.Time{})
			if s.dueLimit > 0 && len(cards) > s.dueLimit {
				cards = cards[:s.dueLimit]
			}
		}
		if cards == nil {
			cards = []domain.Card{}
		}
		writeJSON(w, http.StatusOK, cards)
	}
}

type createFlashcardRequest struct {
	Front      string `json:"front" validate:"required"`
	Back       string `json:"back" validate:"required"`
	Subject    string `json:"subject"`
	Difficulty string `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
}

// handleCreateFlashcard adds a card that does not come from any source.
func (s *Server) handleCreateFlashcard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createFlashcardRequest
		if !s.decode(w, r, &req) {
			return
		}

		card := domain.Card{
			Front:      req.Front,
			Back:       req.Back,
			Subject:    req.Subject,
			Difficulty: domain.ParseDifficulty(req.Difficulty),
		}
		card.Hash = knol.Hash(card)

		existing, err := s.db.FindCardByHash(r.Context(), card.Hash)
		if err != nil {
			s.serverError(w, "Failed to create flashcard", err)
			return
		}
		if existing != nil {
			writeError(w, http.StatusConflict, "Flashcard already exists")
			return
		}

		stored, err := s.db.InsertCard(r.Context(), card)
		if err != nil {
			s.serverError(w, "Failed to create flashcard", err)
			return
		}
		writeJSON(w, http.StatusCreated, stored)
	}
}

// handleDeleteFlashcard removes a card and its review history.
func (s *Server) handleDeleteFlashcard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := s.db.DeleteCard(r.Context(), id); err != nil {
			s.serverError(w, "Failed to delete flashcard", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleListReviews returns a card's review history, oldest first.
func (s *Server) handleListReviews() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		card, err := s.db.FindCard(r.Context(), id)
		if err != nil {
			s.serverError(w, "Failed to fetch reviews", err)
			return
		}
		if card == nil {
			writeError(w, http.StatusNotFound, "Flashcard not found")
			return
		}
		reviews, err := s.db.ListReviews(r.Context(), id)
		if err != nil {
			s.serverError(w, "Failed to fetch reviews", err)
			return
		}
		if reviews == nil {
			reviews = []domain.ReviewRecord{}
		}
		writeJSON(w, http.StatusOK, reviews)
	}
}

type reviewRequest struct {
	FlashcardID *int64 `json:"flashcardId" validate:"required"`
	Quality     *int   `json:"quality" validate:"required"`
}

// handlePostReview records a review and returns the stored record.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reviewRequest
		if !s.decode(w, r, &req) {
			return
		}

		rec, err := s.reviews.SubmitReview(r.Context(), *req.FlashcardID, sm2.Quality(*req.Quality))
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, rec)
		case errors.Is(err, sm2.ErrInvalidQuality):
			writeError(w, http.StatusBadRequest, "Quality must be between 0 and 5")
		case errors.Is(err, review.ErrUnknownCard):
			writeError(w, http.StatusNotFound, "Flashcard not found")
		default:
			s.serverError(w, "Failed to create review", err)
		}
	}
}

type sourceResponse struct {
	ID          int64      `json:"id"`
	Path        string     `json:"path"`
	Type        string     `json:"type"`
	LastScanned *time.Time `json:"lastScanned,omitempty"`
}

func (s *Server) writeSources(w http.ResponseWriter, r *http.Request, status int) {
	sources, err := s.db.GetAllSources(r.Context())
	if err != nil {
		s.serverError(w, "Failed to fetch sources", err)
		return
	}
	out := make([]sourceResponse, 0, len(sources))
	for _, src := range sources {
		sr := sourceResponse{ID: src.ID, Path: src.Path, Type: src.Type}
		if src.LastScanned.Valid {
			t := src.LastScanned.Time
			sr.LastScanned = &t
		}
		out = append(out, sr)
	}
	writeJSON(w, status, out)
}

// handleGetSources lists the configured card sources.
func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeSources(w, r, http.StatusOK)
	}
}

type sourceRequest struct {
	Path string `json:"path" validate:"required"`
}

// handlePostSource adds a new source and returns the updated source list.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sourceRequest
		if !s.decode(w, r, &req) {
			return
		}

		existing, err := s.db.FindSourceByPath(r.Context(), req.Path)
		if err != nil {
			s.serverError(w, "Failed to add source", err)
			return
		}
		if existing != nil {
			writeError(w, http.StatusConflict, "Source already exists")
			return
		}
		if _, err := s.db.InsertSource(r.Context(), req.Path, storage.SourceType(req.Path)); err != nil {
			s.serverError(w, "Failed to add source", err)
			return
		}
		s.writeSources(w, r, http.StatusCreated)
	}
}

// handleDeleteSource deletes a source and returns the updated source list.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := s.db.DeleteSource(r.Context(), id); err != nil {
			s.serverError(w, "Failed to delete source", err)
			return
		}
		s.writeSources(w, r, http.StatusOK)
	}
}

// handlePostSync runs a sync in the foreground and returns the source list.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.syncer == nil {
			writeError(w, http.StatusServiceUnavailable, "Sync is not configured")
			return
		}
		if err := s.syncer.Run(r.Context()); err != nil {
			s.serverError(w, "Sync failed", err)
			return
		}
		s.writeSources(w, r, http.StatusOK)
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it, writing a 400 on
// failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "required" {
			return fe.Field() + " is required"
		}
		return fe.Field() + " is invalid"
	}
	return "Invalid request"
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ID")
		return 0, false
	}
	return id, true
}

func (s *Server) serverError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
