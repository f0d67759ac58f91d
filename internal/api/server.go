package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/chidi150c/polyguard/internal/alerts"
	"github.com/chidi150c/polyguard/internal/guards"
	"github.com/chidi150c/polyguard/internal/market"
	"github.com/chidi150c/polyguard/internal/orders"
	"github.com/chidi150c/polyguard/internal/risk"
	"github.com/chidi150c/polyguard/internal/util"
)

// Persister stores order and alert state after every change.
type Persister interface {
	SaveOrder(orders.Order) error
	SaveAlert(alerts.Alert) error
	DeleteAlert(id string) error
}

// Server exposes the guard over REST and websocket.
type Server struct {
	guard   *guards.Guard
	store   Persister // may be nil
	router  *mux.Router
	hub     *Hub
	log     *zap.Logger
	origins []string
}

func NewServer(g *guards.Guard, st Persister, origins []string, log *zap.Logger) *Server {
	log = util.OrNop(log)
	s := &Server{
		guard:   g,
		store:   st,
		router:  mux.NewRouter(),
		hub:     NewHub(log),
		log:     log,
		origins: origins,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Trading limits
	api.HandleFunc("/trading/can-trade", s.handleCanTrade).Methods("POST")
	api.HandleFunc("/trading/limits", s.handleLimits).Methods("GET")
	api.HandleFunc("/trading/daily-stats", s.handleDailyStats).Methods("GET")

	// Orders
	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/status", s.handleOrderStatus).Methods("POST")

	// Markets
	api.HandleFunc("/markets/{marketId}/context", s.handleMarketContext).Methods("POST")
	api.HandleFunc("/markets/{marketId}/quote", s.handleQuote).Methods("POST")

	// Alerts
	api.HandleFunc("/alerts", s.handleCreateAlert).Methods("POST")
	api.HandleFunc("/alerts", s.handleListAlerts).Methods("GET")
	api.HandleFunc("/alerts/{id}", s.handleGetAlert).Methods("GET")
	api.HandleFunc("/alerts/{id}", s.handleDeleteAlert).Methods("DELETE")
	api.HandleFunc("/alerts/{id}/evaluate", s.handleEvaluateAlert).Methods("POST")
	api.HandleFunc("/alerts/{id}/reset", s.handleResetAlert).Methods("POST")
	api.HandleFunc("/alerts/{id}/active", s.handleSetAlertActive).Methods("POST")

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("api_listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api shutdown: %w", err)
		}
		return nil
	}
}

// ==============================
// Trading limits
// ==============================

func (s *Server) handleCanTrade(w http.ResponseWriter, r *http.Request) {
	var p risk.Proposal
	if !s.decode(w, r, &p) {
		return
	}
	d, err := s.guard.Admit(p)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.guard.Limits())
}

func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.guard.DailyStats())
}

// ==============================
// Orders
// ==============================

// handlePlaceOrder admits the order against the limits and, when allowed,
// starts tracking it. A denial is 403 with the decision as the body.
func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.NewOrder
	if !s.decode(w, r, &req) {
		return
	}
	d, o, err := s.guard.PlaceOrder(req)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !d.Allowed {
		respondJSON(w, http.StatusForbidden, PlaceOrderResponse{Decision: d})
		return
	}
	s.persistOrder(o)
	s.hub.BroadcastToChannel("orders", WSMessage{Type: "order", Data: o})
	respondJSON(w, http.StatusCreated, PlaceOrderResponse{Decision: d, Order: &o})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := orders.Filter{MarketID: q.Get("market"), Status: orders.Status(q.Get("status"))}
	if v := q.Get("open"); v != "" {
		open, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid query", "open must be a boolean")
			return
		}
		f.OpenOnly = open
	}
	list := s.guard.Orders(f)
	if list == nil {
		list = []orders.Order{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	o, ok := s.guard.Order(id)
	if !ok {
		s.fail(w, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, id))
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.guard.ReportStatus(orders.StatusUpdate{
		OrderID:     mux.Vars(r)["id"],
		Status:      req.Status,
		FilledDelta: req.FilledDelta,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	if res.Applied {
		s.persistOrder(res.Order)
		msg := WSMessage{Type: "order", Data: res}
		s.hub.BroadcastToChannel("orders", msg)
		s.hub.BroadcastToChannel("orders:"+res.Order.MarketID, msg)
	}
	respondJSON(w, http.StatusOK, res)
}

// ==============================
// Markets
// ==============================

func (s *Server) handleMarketContext(w http.ResponseWriter, r *http.Request) {
	var snap market.Snapshot
	if !s.decode(w, r, &snap) {
		return
	}
	snap.MarketID = mux.Vars(r)["marketId"]
	ctx, err := s.guard.Analyze(snap)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ctx)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var q alerts.Quote
	if !s.decode(w, r, &q) {
		return
	}
	marketID := mux.Vars(r)["marketId"]
	fired, err := s.guard.CheckQuote(marketID, q)
	if err != nil {
		s.fail(w, err)
		return
	}
	// Edge state changed for every alert of the market, fired or not.
	for _, a := range s.guard.Alerts(true) {
		if a.MarketID == marketID {
			s.persistAlert(a)
		}
	}
	for _, a := range fired {
		s.broadcastAlert(a)
	}
	if fired == nil {
		fired = []alerts.Alert{}
	}
	respondJSON(w, http.StatusOK, QuoteResponse{MarketID: marketID, Triggered: fired})
}

// ==============================
// Alerts
// ==============================

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req alerts.Registration
	if !s.decode(w, r, &req) {
		return
	}
	a, err := s.guard.RegisterAlert(req)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.persistAlert(a)
	respondJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	include := false
	if v := r.URL.Query().Get("includeTriggered"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid query", "includeTriggered must be a boolean")
			return
		}
		include = b
	}
	respondJSON(w, http.StatusOK, s.guard.Alerts(include))
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, ok := s.guard.Alert(id)
	if !ok {
		s.fail(w, fmt.Errorf("%w: %s", alerts.ErrAlertNotFound, id))
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.guard.DeleteAlert(id); err != nil {
		s.fail(w, err)
		return
	}
	if s.store != nil {
		if err := s.store.DeleteAlert(id); err != nil {
			s.log.Error("alert_delete_persist_failed", zap.String("alert_id", id), zap.Error(err))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvaluateAlert(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, a, err := s.guard.EvaluateAlert(mux.Vars(r)["id"], req.CurrentPrice)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.persistAlert(a)
	if res.Triggered {
		s.broadcastAlert(a)
	}
	respondJSON(w, http.StatusOK, EvaluateResponse{Triggered: res.Triggered, Alert: a})
}

func (s *Server) handleResetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := s.guard.ResetAlert(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.persistAlert(a)
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleSetAlertActive(w http.ResponseWriter, r *http.Request) {
	var req ActiveRequest
	if !s.decode(w, r, &req) {
		return
	}
	a, err := s.guard.SetAlertActive(mux.Vars(r)["id"], req.Active)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.persistAlert(a)
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Date: s.guard.DailyStats().Date})
}

// ==============================
// Helpers
// ==============================

func (s *Server) broadcastAlert(a alerts.Alert) {
	msg := WSMessage{Type: "alert", Data: a}
	s.hub.BroadcastToChannel("alerts", msg)
	s.hub.BroadcastToChannel("alerts:"+a.MarketID, msg)
}

func (s *Server) persistOrder(o orders.Order) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveOrder(o); err != nil {
		s.log.Error("order_persist_failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (s *Server) persistAlert(a alerts.Alert) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveAlert(a); err != nil {
		s.log.Error("alert_persist_failed", zap.String("alert_id", a.ID), zap.Error(err))
	}
}

// decode reads a JSON body into v, rejecting unknown fields.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

// fail maps domain errors to HTTP status codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status, title := http.StatusInternalServerError, "internal error"
	switch {
	case util.IsValidation(err):
		status, title = http.StatusBadRequest, "validation failed"
	case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, alerts.ErrAlertNotFound):
		status, title = http.StatusNotFound, "not found"
	case errors.Is(err, orders.ErrDuplicateOrder):
		status, title = http.StatusConflict, "duplicate order"
	case errors.Is(err, orders.ErrInvalidTransition):
		status, title = http.StatusConflict, "invalid transition"
	case errors.Is(err, orders.ErrExceedsOriginalSize):
		status, title = http.StatusUnprocessableEntity, "exceeds original size"
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request_failed", zap.Error(err))
	}
	respondError(w, status, title, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, title, message string) {
	respondJSON(w, status, ErrorResponse{Error: title, Message: message})
}
