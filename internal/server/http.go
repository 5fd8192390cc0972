package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"TrioMint/internal/coin"
	"TrioMint/internal/market"
	"TrioMint/internal/observability"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Server is the HTTP/JSON surface over the market engine. Authentication is
// the caller's concern: owner and buyer ids in requests are trusted to have
// been authorized upstream.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Allocator *market.Allocator
	Engine    *market.Engine
	History   *market.History
	Coins     market.CoinStore
	Health    *observability.HealthChecker
	Metrics   *observability.Metrics
	Log       zerolog.Logger
}

func New(addr string, deps *Deps) *Server {
	h := &handlers{deps: deps}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", deps.Health.LivenessHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", deps.Health.ReadinessHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Handle("/coins/mint", h.instrument("mint", h.mint)).Methods(http.MethodPost)
	api.Handle("/coins/{id:[0-9]+}/buy", h.instrument("buy", h.buy)).Methods(http.MethodPost)
	api.Handle("/coins/{id:[0-9]+}/history", h.instrument("history", h.history)).Methods(http.MethodGet)
	api.Handle("/coins", h.instrument("coins", h.listCoins)).Methods(http.MethodGet)
	api.Handle("/supply", h.instrument("supply", h.supply)).Methods(http.MethodGet)
	api.Handle("/ledger", h.instrument("ledger", h.ledger)).Methods(http.MethodGet)

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		log: deps.Log,
	}
}

// Start runs the HTTP server until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutCtx)
	}()

	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// --- handlers ---

type handlers struct {
	deps *Deps
}

type mintRequest struct {
	Count   int        `json:"count"`
	Value   int64      `json:"value"`
	OwnerID *uuid.UUID `json:"owner_id,omitempty"`
}

type buyRequest struct {
	BuyerID uuid.UUID `json:"buyer_id"`
	Price   int64     `json:"price"`
}

type coinResponse struct {
	ID          int64      `json:"id"`
	Triple      [3]int     `json:"triple"`
	Fingerprint string     `json:"fingerprint"`
	Value       int64      `json:"value"`
	OwnerID     *uuid.UUID `json:"owner_id,omitempty"`
	MintedAt    time.Time  `json:"minted_at"`
}

type historyResponse struct {
	SellerDisplayName string    `json:"seller_display_name"`
	BuyerDisplayName  string    `json:"buyer_display_name"`
	Amount            int64     `json:"amount"`
	TransferredAt     time.Time `json:"transferred_at"`
}

func (h *handlers) mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Count < 1 || req.Value <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "count and value must be positive")
		return
	}

	var hint uuid.NullUUID
	if req.OwnerID != nil {
		hint = uuid.NullUUID{UUID: *req.OwnerID, Valid: true}
	}

	minted, err := h.deps.Allocator.MintBatch(r.Context(), req.Count, req.Value, hint)
	body := map[string]interface{}{"minted": coinResponses(minted)}
	if err != nil {
		status, code := outcome(err)
		body["error"] = code
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusCreated, body)
}

func (h *handlers) buy(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.BuyerID == coin.Vendor {
		writeError(w, http.StatusBadRequest, "bad_request", "buyer_id is required")
		return
	}
	if req.Price <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "price must be positive")
		return
	}

	c, err := h.deps.Engine.Transfer(r.Context(), id, req.BuyerID, req.Price)
	if err != nil {
		status, code := outcome(err)
		writeError(w, status, code, code)
		return
	}
	writeJSON(w, http.StatusOK, toCoinResponse(*c))
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	events, err := h.deps.History.HistoryOf(r.Context(), id)
	if err != nil {
		status, code := outcome(err)
		writeError(w, status, code, code)
		return
	}

	out := make([]historyResponse, 0, len(events))
	for _, evt := range events {
		out = append(out, historyResponse{
			SellerDisplayName: evt.SellerName,
			BuyerDisplayName:  evt.BuyerName,
			Amount:            evt.Entry.Amount,
			TransferredAt:     evt.Entry.TransferredAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) listCoins(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r)

	var (
		coins []coin.Coin
		err   error
	)
	if ownerParam := r.URL.Query().Get("owner"); ownerParam != "" {
		owner, parseErr := uuid.Parse(ownerParam)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid owner id")
			return
		}
		coins, err = h.deps.Coins.ListOwnedBy(r.Context(), owner, offset, limit)
	} else {
		coins, err = h.deps.Coins.ListFree(r.Context(), offset, limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "write_failed", "listing failed")
		return
	}
	writeJSON(w, http.StatusOK, coinResponses(coins))
}

func (h *handlers) supply(w http.ResponseWriter, r *http.Request) {
	remaining, err := h.deps.Allocator.RemainingSupply(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "write_failed", "supply query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"remaining": remaining})
}

func (h *handlers) ledger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f market.BrowseFilter
	f.CounterpartyName = q.Get("counterparty")
	if v := q.Get("counterparty_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid counterparty_id")
			return
		}
		f.Counterparty = &id
	}
	if v := q.Get("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid from timestamp")
			return
		}
		f.From = &ts
	}
	if v := q.Get("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid to timestamp")
			return
		}
		f.To = &ts
	}
	if v := q.Get("min_amount"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid min_amount")
			return
		}
		f.MinAmount = &n
	}
	if v := q.Get("max_amount"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid max_amount")
			return
		}
		f.MaxAmount = &n
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	if f.PageSize < 0 {
		f.PageSize = 0
	}

	events, err := h.deps.History.Browse(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "write_failed", "ledger query failed")
		return
	}

	out := make([]map[string]interface{}, 0, len(events))
	for _, evt := range events {
		out = append(out, map[string]interface{}{
			"coin_id":        evt.Entry.CoinID,
			"seller":         evt.SellerName,
			"buyer":          evt.BuyerName,
			"amount":         evt.Entry.Amount,
			"transferred_at": evt.Entry.TransferredAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// instrument wraps a handler with request counting and latency observation.
func (h *handlers) instrument(route string, fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		h.deps.Metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		h.deps.Metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// --- helpers ---

// outcome maps engine errors to HTTP status and a stable outcome code.
func outcome(err error) (int, string) {
	switch {
	case errors.Is(err, coin.ErrCoinNotFound):
		return http.StatusNotFound, "coin_not_found"
	case errors.Is(err, coin.ErrAlreadyOwned):
		return http.StatusConflict, "coin_already_owned"
	case errors.Is(err, coin.ErrSpaceExhausted):
		return http.StatusConflict, "space_exhausted"
	case errors.Is(err, coin.ErrInconsistentState):
		return http.StatusInternalServerError, "inconsistent_state"
	case errors.Is(err, coin.ErrLedgerWriteFailed):
		return http.StatusServiceUnavailable, "ledger_write_failed"
	default:
		return http.StatusServiceUnavailable, "write_failed"
	}
}

func toCoinResponse(c coin.Coin) coinResponse {
	resp := coinResponse{
		ID:          c.ID,
		Triple:      [3]int{c.Triple.X, c.Triple.Y, c.Triple.Z},
		Fingerprint: c.Fingerprint,
		Value:       c.Value,
		MintedAt:    c.MintedAt,
	}
	if c.Owner.Valid {
		owner := c.Owner.UUID
		resp.OwnerID = &owner
	}
	return resp
}

func coinResponses(coins []coin.Coin) []coinResponse {
	out := make([]coinResponse, 0, len(coins))
	for _, c := range coins {
		out = append(out, toCoinResponse(c))
	}
	return out
}

func pagination(r *http.Request) (offset, limit int) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(q.Get("page_size"))
	if limit < 1 || limit > 500 {
		limit = 50
	}
	return (page - 1) * limit, limit
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
