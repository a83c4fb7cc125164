// Package api serves the engine over JSON/HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rustyeddy/paper/broker"
	"github.com/rustyeddy/paper/sim"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service is the engine surface the server needs. *sim.Engine satisfies it.
type Service interface {
	broker.Broker
	Tick(ctx context.Context) (sim.TickReport, error)
	Instruments(ctx context.Context) ([]broker.Instrument, error)
	Valuation(ctx context.Context, owner string) (sim.Valuation, error)
	CashTransactions(ctx context.Context, owner string) ([]broker.CashTransaction, error)
	Reset(ctx context.Context, owner string) (broker.Account, error)
}

type Options struct {
	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins []string
	Logger         *zap.Logger
	// Now picks "today" for due cash entries.
	Now func() time.Time
}

// Server handles the REST API
type Server struct {
	svc     Service
	router  *mux.Router
	handler http.Handler
	log     *zap.Logger
	now     func() time.Time
}

// NewServer creates a new API server
func NewServer(svc Service, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		svc:    svc,
		router: mux.NewRouter(),
		log:    opts.Logger,
		now:    opts.Now,
	}
	s.setupRoutes()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	s.handler = c.Handler(s.accessLog(s.router))
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/instruments", s.handleInstruments).Methods(http.MethodGet)
	api.HandleFunc("/tick", s.handleTick).Methods(http.MethodPost)
	api.HandleFunc("/accounts", s.handleOpenAccount).Methods(http.MethodPost)

	// owner-scoped routes settle due cash before anything else
	acct := api.PathPrefix("/accounts/{owner}").Subrouter()
	acct.Use(s.applyDue)
	acct.HandleFunc("", s.handleGetAccount).Methods(http.MethodGet)
	acct.HandleFunc("/valuation", s.handleValuation).Methods(http.MethodGet)
	acct.HandleFunc("/positions", s.handleGetPositions).Methods(http.MethodGet)
	acct.HandleFunc("/orders", s.handleGetOrders).Methods(http.MethodGet)
	acct.HandleFunc("/orders", s.handleSubmitOrder).Methods(http.MethodPost)
	acct.HandleFunc("/orders/{id}", s.handleCancelOrder).Methods(http.MethodDelete)
	acct.HandleFunc("/trades", s.handleGetTrades).Methods(http.MethodGet)
	acct.HandleFunc("/cash", s.handleListCash).Methods(http.MethodGet)
	acct.HandleFunc("/cash", s.handleScheduleCash).Methods(http.MethodPost)
	acct.HandleFunc("/cash/apply", s.handleApplyCash).Methods(http.MethodPost)
	acct.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)
}

func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("api listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown api: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// Middleware
// ==============================

func (s *Server) applyDue(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := mux.Vars(r)["owner"]
		if err := s.svc.ApplyDue(r.Context(), owner, s.now()); err != nil {
			s.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	ins, err := s.svc.Instruments(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ins)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.Tick(r.Context())
	switch {
	case errors.Is(err, sim.ErrPartialSweep):
		s.log.Warn("tick swept with errors", zap.Strings("errors", rep.Errors))
	case err != nil:
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type openAccountRequest struct {
	Owner string `json:"owner"`
}

func (s *Server) handleOpenAccount(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	a, err := s.svc.OpenAccount(r.Context(), req.Owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.GetAccount(r.Context(), mux.Vars(r)["owner"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleValuation(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Valuation(r.Context(), mux.Vars(r)["owner"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	ps, err := s.svc.GetPositions(r.Context(), mux.Vars(r)["owner"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ps))
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.svc.GetOrders(r.Context(), mux.Vars(r)["owner"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(orders))
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	var req broker.OrderRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Owner != "" && req.Owner != owner {
		s.writeError(w, broker.Invalid("owner", "body owner %q does not match path", req.Owner))
		return
	}
	req.Owner = owner
	res, err := s.svc.SubmitOrder(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	o, err := s.svc.CancelOrder(r.Context(), vars["owner"], vars["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	ts, err := s.svc.GetTrades(r.Context(), mux.Vars(r)["owner"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ts))
}

func (s *Server) handleListCash(w http.ResponseWriter, r *http.Request) {
	cs, err := s.svc.CashTransactions(r.Context(), mux.Vars(r)["owner"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(cs))
}

type cashRequest struct {
	Type   broker.CashType `json:"type"`
	Amount decimal.Decimal `json:"amount"`
	// Date is YYYY-MM-DD; empty means today.
	Date string `json:"date,omitempty"`
}

func (s *Server) handleScheduleCash(w http.ResponseWriter, r *http.Request) {
	var req cashRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	on, err := s.parseDate(req.Date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	c, err := s.svc.ScheduleCashTransaction(r.Context(), mux.Vars(r)["owner"], req.Type, req.Amount, on)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

type applyRequest struct {
	AsOf string `json:"as_of,omitempty"`
}

// handleApplyCash settles entries due by as_of, which may be later than
// today; the middleware already covered today.
func (s *Server) handleApplyCash(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	var req applyRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
	}
	asOf, err := s.parseDate(req.AsOf)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.svc.ApplyDue(r.Context(), owner, asOf); err != nil {
		s.writeError(w, err)
		return
	}
	cs, err := s.svc.CashTransactions(r.Context(), owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(cs))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Reset(r.Context(), mux.Vars(r)["owner"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ==============================
// Helpers
// ==============================

const dateLayout = "2006-01-02"

func (s *Server) parseDate(v string) (time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return broker.Day(s.now()), nil
	}
	d, err := time.Parse(dateLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, broker.Invalid("date", "want YYYY-MM-DD, got %q", v)
	}
	return d, nil
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return broker.Invalid("body", "%v", err)
	}
	return nil
}

// StatusOf maps an engine error to its HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, broker.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, broker.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, broker.ErrExists), errors.Is(err, broker.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := StatusOf(err)
	if code == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
