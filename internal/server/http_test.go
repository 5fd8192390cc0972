package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"TrioMint/internal/coin"
	"TrioMint/internal/market"
	"TrioMint/internal/observability"
	"TrioMint/internal/profile"
	"TrioMint/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	testMetrics = observability.NewMetrics()
	testLogger  = zerolog.New(nil).Level(zerolog.Disabled)
)

var (
	testAlice = uuid.New()
	testBob   = uuid.New()
)

func newTestServer(t *testing.T) (*Server, *store.MemCoinStore, *store.MemLedgerStore) {
	t.Helper()

	coins := store.NewMemCoinStore()
	ledger := store.NewMemLedgerStore()

	space, err := coin.NewSpace(3)
	if err != nil {
		t.Fatalf("new space: %v", err)
	}

	health := observability.NewHealthChecker()
	health.SetReady(true)

	deps := &Deps{
		Allocator: market.NewAllocator(coins, ledger, space, testMetrics, testLogger),
		Engine:    market.NewEngine(coins, ledger, testMetrics, testLogger),
		History: market.NewHistory(ledger, profile.Static{
			testAlice: "Alice",
			testBob:   "Bob",
		}),
		Coins:   coins,
		Health:  health,
		Metrics: testMetrics,
		Log:     testLogger,
	}
	return New(":0", deps), coins, ledger
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestServer_MintReturnsCoins(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/coins/mint", map[string]interface{}{
		"count": 2,
		"value": 100,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201 (%s)", rec.Code, rec.Body.String())
	}

	var resp struct {
		Minted []struct {
			ID          int64  `json:"id"`
			Triple      [3]int `json:"triple"`
			Fingerprint string `json:"fingerprint"`
		} `json:"minted"`
	}
	decode(t, rec, &resp)
	if len(resp.Minted) != 2 {
		t.Fatalf("minted: got %d coins, want 2", len(resp.Minted))
	}
	if resp.Minted[0].Triple != [3]int{1, 1, 1} || resp.Minted[1].Triple != [3]int{1, 1, 2} {
		t.Errorf("triples out of order: %v, %v", resp.Minted[0].Triple, resp.Minted[1].Triple)
	}
	if resp.Minted[0].Fingerprint == "" {
		t.Error("minted coin missing fingerprint")
	}
}

func TestServer_MintValidation(t *testing.T) {
	s, _, _ := newTestServer(t)

	for _, body := range []map[string]interface{}{
		{"count": 0, "value": 100},
		{"count": 1, "value": 0},
		{"count": 1, "value": -5},
	} {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/coins/mint", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("mint %v: got %d, want 400", body, rec.Code)
		}
	}
}

func TestServer_MintExhaustionReportsPartialBatch(t *testing.T) {
	s, _, _ := newTestServer(t)

	// 27 combinations in a bound-3 space; ask for more.
	rec := doJSON(t, s, http.MethodPost, "/api/v1/coins/mint", map[string]interface{}{
		"count": 30,
		"value": 100,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want 409", rec.Code)
	}

	var resp struct {
		Minted []json.RawMessage `json:"minted"`
		Error  string            `json:"error"`
	}
	decode(t, rec, &resp)
	if len(resp.Minted) != 27 {
		t.Errorf("minted: got %d coins, want 27", len(resp.Minted))
	}
	if resp.Error != "space_exhausted" {
		t.Errorf("error code: got %q, want space_exhausted", resp.Error)
	}
}

func TestServer_BuyLifecycle(t *testing.T) {
	s, _, ledger := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/coins/mint", map[string]interface{}{
		"count": 1,
		"value": 100,
	})
	var minted struct {
		Minted []struct {
			ID int64 `json:"id"`
		} `json:"minted"`
	}
	decode(t, rec, &minted)
	id := minted.Minted[0].ID

	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/v1/coins/%d/buy", id), map[string]interface{}{
		"buyer_id": testAlice,
		"price":    500,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("buy: got %d, want 200 (%s)", rec.Code, rec.Body.String())
	}

	var bought struct {
		OwnerID *uuid.UUID `json:"owner_id"`
		Value   int64      `json:"value"`
	}
	decode(t, rec, &bought)
	if bought.OwnerID == nil || *bought.OwnerID != testAlice {
		t.Errorf("owner: got %v, want %s", bought.OwnerID, testAlice)
	}
	// The sale price is recorded on the ledger; face value is unchanged.
	if bought.Value != 100 {
		t.Errorf("face value after sale: got %d, want 100", bought.Value)
	}

	// Genesis plus the sale.
	if ledger.Len() != 2 {
		t.Errorf("ledger entries: got %d, want 2", ledger.Len())
	}

	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/v1/coins/%d/buy", id), map[string]interface{}{
		"buyer_id": testBob,
		"price":    600,
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("second buy: got %d, want 409", rec.Code)
	}
	var errResp struct {
		Error string `json:"error"`
	}
	decode(t, rec, &errResp)
	if errResp.Error != "coin_already_owned" {
		t.Errorf("error code: got %q, want coin_already_owned", errResp.Error)
	}
}

func TestServer_BuyValidation(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/coins/1/buy", map[string]interface{}{
		"buyer_id": uuid.Nil,
		"price":    100,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("nil buyer: got %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/coins/1/buy", map[string]interface{}{
		"buyer_id": testAlice,
		"price":    0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero price: got %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/coins/42/buy", map[string]interface{}{
		"buyer_id": testAlice,
		"price":    100,
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing coin: got %d, want 404", rec.Code)
	}
}

func TestServer_HistoryNamesParticipants(t *testing.T) {
	s, _, _ := newTestServer(t)

	doJSON(t, s, http.MethodPost, "/api/v1/coins/mint", map[string]interface{}{
		"count": 1, "value": 100,
	})
	doJSON(t, s, http.MethodPost, "/api/v1/coins/1/buy", map[string]interface{}{
		"buyer_id": testAlice, "price": 500,
	})

	rec := doJSON(t, s, http.MethodGet, "/api/v1/coins/1/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: got %d, want 200", rec.Code)
	}

	var events []struct {
		Seller string `json:"seller_display_name"`
		Buyer  string `json:"buyer_display_name"`
		Amount int64  `json:"amount"`
	}
	decode(t, rec, &events)
	if len(events) != 1 {
		t.Fatalf("events: got %d, want 1", len(events))
	}
	if events[0].Seller != "stranger" || events[0].Buyer != "Alice" {
		t.Errorf("names: got %q -> %q, want stranger -> Alice", events[0].Seller, events[0].Buyer)
	}
	if events[0].Amount != 500 {
		t.Errorf("amount: got %d, want 500", events[0].Amount)
	}
}

func TestServer_HistoryOfUnsoldCoinIsEmpty(t *testing.T) {
	s, _, _ := newTestServer(t)

	doJSON(t, s, http.MethodPost, "/api/v1/coins/mint", map[string]interface{}{
		"count": 1, "value": 100,
	})

	rec := doJSON(t, s, http.MethodGet, "/api/v1/coins/1/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: got %d, want 200", rec.Code)
	}
	var events []json.RawMessage
	decode(t, rec, &events)
	if len(events) != 0 {
		t.Errorf("unsold coin history: got %d events, want 0", len(events))
	}
}

func TestServer_ListCoinsAndSupply(t *testing.T) {
	s, _, _ := newTestServer(t)

	doJSON(t, s, http.MethodPost, "/api/v1/coins/mint", map[string]interface{}{
		"count": 3, "value": 100,
	})
	doJSON(t, s, http.MethodPost, "/api/v1/coins/2/buy", map[string]interface{}{
		"buyer_id": testAlice, "price": 500,
	})

	rec := doJSON(t, s, http.MethodGet, "/api/v1/coins", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list coins: got %d, want 200", rec.Code)
	}
	var free []json.RawMessage
	decode(t, rec, &free)
	if len(free) != 2 {
		t.Errorf("free coins: got %d, want 2", len(free))
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/coins?owner="+testAlice.String(), nil)
	var owned []json.RawMessage
	decode(t, rec, &owned)
	if len(owned) != 1 {
		t.Errorf("owned coins: got %d, want 1", len(owned))
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/coins?owner=not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad owner id: got %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/supply", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("supply: got %d, want 200", rec.Code)
	}
	var supply struct {
		Remaining int `json:"remaining"`
	}
	decode(t, rec, &supply)
	if supply.Remaining != 24 {
		t.Errorf("remaining: got %d, want 24", supply.Remaining)
	}
}

func TestServer_LedgerBrowse(t *testing.T) {
	s, _, _ := newTestServer(t)

	doJSON(t, s, http.MethodPost, "/api/v1/coins/mint", map[string]interface{}{
		"count": 2, "value": 100,
	})
	doJSON(t, s, http.MethodPost, "/api/v1/coins/1/buy", map[string]interface{}{
		"buyer_id": testAlice, "price": 500,
	})
	doJSON(t, s, http.MethodPost, "/api/v1/coins/2/buy", map[string]interface{}{
		"buyer_id": testBob, "price": 900,
	})

	rec := doJSON(t, s, http.MethodGet, "/api/v1/ledger?counterparty=alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ledger: got %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	var entries []struct {
		Buyer  string `json:"buyer"`
		Amount int64  `json:"amount"`
	}
	decode(t, rec, &entries)
	if len(entries) != 1 || entries[0].Buyer != "Alice" {
		t.Fatalf("name filter: got %+v, want one entry bought by Alice", entries)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/ledger?min_amount=600", nil)
	decode(t, rec, &entries)
	if len(entries) != 1 || entries[0].Amount != 900 {
		t.Errorf("amount filter: got %+v, want the 900 sale", entries)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/ledger?counterparty_id=not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad counterparty_id: got %d, want 400", rec.Code)
	}
}

func TestServer_HealthEndpoints(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz: got %d, want 200", rec.Code)
	}
	rec = doJSON(t, s, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readyz: got %d, want 200", rec.Code)
	}
}
