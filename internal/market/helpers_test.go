package market_test

import (
	"TrioMint/internal/coin"
	"TrioMint/internal/market"
	"TrioMint/internal/observability"
	"TrioMint/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Prometheus collectors register against the default registry, so the test
// binary shares one Metrics instance.
var testMetrics = observability.NewMetrics()

var testLogger = observability.NewLoggerWithLevel("test", zerolog.Disabled)

type fixture struct {
	coins  *store.MemCoinStore
	ledger *store.MemLedgerStore
	alloc  *market.Allocator
	engine *market.Engine
}

func newFixture(bound int) *fixture {
	space, err := coin.NewSpace(bound)
	if err != nil {
		panic(err)
	}

	coins := store.NewMemCoinStore()
	ledger := store.NewMemLedgerStore()

	return &fixture{
		coins:  coins,
		ledger: ledger,
		alloc:  market.NewAllocator(coins, ledger, space, testMetrics, testLogger),
		engine: market.NewEngine(coins, ledger, testMetrics, testLogger),
	}
}

func owned(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: true}
}
