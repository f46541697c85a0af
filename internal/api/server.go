// Package api provides the operational HTTP server: health, backfill
// triggering and inspection, balance history, and quote lookups. The
// user-facing view layer lives elsewhere; this surface is for operators
// and internal tooling.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/account-rollup/internal/models"
	"github.com/account-rollup/internal/types"
)

// Service interfaces for dependency injection and testing

// AccountReader looks up accounts referenced by request paths.
type AccountReader interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

// BackfillRequester queues a historical recompute for an account.
type BackfillRequester interface {
	RequestBackfill(accountID string, startDate *time.Time)
}

// BackfillJobReader looks up recorded backfill runs.
type BackfillJobReader interface {
	GetByID(ctx context.Context, jobID string) (*models.BackfillJob, error)
}

// HistoryReader serves the chart-history mirror.
type HistoryReader interface {
	GetBalanceHistory(ctx context.Context, accountID string, from, to time.Time) ([]*models.BalanceHistoryPoint, error)
}

// QuoteReader serves latest prices.
type QuoteReader interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, bool, error)
}

// Server represents the operational HTTP server.
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	accountRepo AccountReader
	backfills   BackfillRequester
	jobRepo     BackfillJobReader
	historyRepo HistoryReader
	quotes      QuoteReader
	config      *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new operational server instance.
func NewServer(
	config *ServerConfig,
	accountRepo AccountReader,
	backfills BackfillRequester,
	jobRepo BackfillJobReader,
	historyRepo HistoryReader,
	quotes QuoteReader,
) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		accountRepo: accountRepo,
		backfills:   backfills,
		jobRepo:     jobRepo,
		historyRepo: historyRepo,
		quotes:      quotes,
		config:      config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/accounts/{id}/backfill", s.handleRequestBackfill).Methods("POST")
	api.HandleFunc("/accounts/{id}/history", s.handleGetHistory).Methods("GET")
	api.HandleFunc("/backfill/jobs/{id}", s.handleGetBackfillJob).Methods("GET")
	api.HandleFunc("/quotes/{symbol}", s.handleGetQuote).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "account-rollup",
	})
}

// backfillRequest is the optional body of a backfill trigger. A missing
// or empty start date requests a full-history recompute.
type backfillRequest struct {
	StartDate string `json:"startDate,omitempty"`
}

// handleRequestBackfill queues a backfill for the account. The
// recompute itself runs inside the account's next refresh cycle, never
// concurrently with a mark.
func (s *Server) handleRequestBackfill(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]

	account, err := s.accountRepo.GetByID(r.Context(), accountID)
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}
	if account == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "account not found", nil)
		return
	}

	var req backfillRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := parseJSONBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body", nil)
			return
		}
	}

	var startDate *time.Time
	if req.StartDate != "" {
		parsed, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "startDate must be YYYY-MM-DD", nil)
			return
		}
		startDate = types.TimePtr(parsed.UTC())
	}

	s.backfills.RequestBackfill(accountID, startDate)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status":    "queued",
		"accountId": accountID,
	})
}

// handleGetBackfillJob returns one recorded backfill run.
func (s *Server) handleGetBackfillJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	job, err := s.jobRepo.GetByID(r.Context(), jobID)
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}
	if job == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "backfill job not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// handleGetHistory returns the account's daily balance history from the
// chart mirror for an inclusive date range.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]

	from, err := parseDateParam(r, "from", time.Time{})
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "from must be YYYY-MM-DD", nil)
		return
	}
	to, err := parseDateParam(r, "to", time.Now().UTC())
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "to must be YYYY-MM-DD", nil)
		return
	}

	points, err := s.historyRepo.GetBalanceHistory(r.Context(), accountID, from, to)
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"accountId": accountID,
		"points":    points,
	})
}

// handleGetQuote returns the latest known price for a symbol.
func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	price, found, err := s.quotes.Price(r.Context(), symbol)
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "symbol not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"symbol": symbol,
		"price":  price.String(),
	})
}

func parseDateParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting ops server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down ops server...")
	return s.httpServer.Shutdown(ctx)
}
