package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TrioMint/internal/coin"
	"TrioMint/internal/event"
	"TrioMint/internal/observability"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine executes ownership transfers as a two-write saga: claim the coin in
// the coin store, then append a ledger entry. There is no transaction spanning
// both stores; a failed second write is compensated by restoring the coin's
// previous owner. At-most-one winner per coin is guaranteed by the store's
// conditional claim, not by locking in the engine.
type Engine struct {
	coins   CoinStore
	ledger  LedgerStore
	metrics *observability.Metrics
	log     zerolog.Logger
	events  chan<- event.MarketEvent
	now     func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineClock overrides the transfer timestamp source.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithEngineEvents attaches an outbound event channel. Sends are non-blocking.
func WithEngineEvents(ch chan<- event.MarketEvent) EngineOption {
	return func(e *Engine) { e.events = ch }
}

func NewEngine(
	coins CoinStore,
	ledger LedgerStore,
	metrics *observability.Metrics,
	log zerolog.Logger,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		coins:   coins,
		ledger:  ledger,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transfer moves a free (vendor-held) coin to buyer at the agreed price.
// Outcomes: the refreshed coin on success, coin.ErrCoinNotFound,
// coin.ErrAlreadyOwned, coin.ErrWriteFailed, coin.ErrLedgerWriteFailed
// (compensated), or coin.ErrInconsistentState when compensation itself failed.
func (e *Engine) Transfer(ctx context.Context, coinID int64, buyer uuid.UUID, price int64) (*coin.Coin, error) {
	start := e.now()

	c, err := e.coins.GetByID(ctx, coinID)
	if err != nil {
		if errors.Is(err, coin.ErrCoinNotFound) {
			e.metrics.TransfersRejected.WithLabelValues("not_found").Inc()
			return nil, err
		}
		e.metrics.TransfersRejected.WithLabelValues("write_failed").Inc()
		return nil, fmt.Errorf("%w: coin lookup: %v", coin.ErrWriteFailed, err)
	}

	// Only vendor-held coins are purchasable. A resale path would check
	// against an expected non-vendor owner here instead.
	if !c.Free() {
		e.metrics.TransfersRejected.WithLabelValues("already_owned").Inc()
		return nil, coin.ErrAlreadyOwned
	}

	previousOwner := c.Owner

	// Write 1: conditional claim. Zero rows claimed means another transfer
	// won the coin since we read it.
	claimed, err := e.coins.ClaimOwner(ctx, coinID, buyer)
	if err != nil {
		e.metrics.TransfersRejected.WithLabelValues("write_failed").Inc()
		return nil, fmt.Errorf("%w: owner claim: %v", coin.ErrWriteFailed, err)
	}
	if !claimed {
		e.metrics.TransfersRejected.WithLabelValues("already_owned").Inc()
		return nil, coin.ErrAlreadyOwned
	}

	// Write 2: ledger entry. Seller is the pre-transfer owner (vendor here).
	entry := &coin.LedgerEntry{
		CoinID:        coinID,
		Seller:        c.CurrentOwner(),
		Buyer:         buyer,
		Amount:        price,
		TransferredAt: e.now(),
	}

	if err := e.ledger.Append(ctx, entry); err != nil {
		return nil, e.compensate(ctx, c, previousOwner, err)
	}
	e.metrics.LedgerEntriesWritten.Inc()

	c.Owner = uuid.NullUUID{UUID: buyer, Valid: true}

	e.metrics.TransfersCompleted.Inc()
	e.metrics.TransferDuration.Observe(e.now().Sub(start).Seconds())
	e.log.Info().
		Int64("coin_id", coinID).
		Str("buyer", buyer.String()).
		Int64("price", price).
		Msg("coin transferred")

	e.emit(event.MarketEvent{
		Type:        event.TypeCoinTransferred,
		EventType:   event.TypeCoinTransferred.String(),
		CoinID:      coinID,
		Fingerprint: c.Fingerprint,
		Seller:      entry.Seller,
		Buyer:       buyer,
		Amount:      price,
		Timestamp:   entry.TransferredAt,
	})

	return c, nil
}

// compensate restores the coin's pre-transfer owner after a failed ledger
// append. A failed compensation is the one condition that must page a human:
// the coin is in an unrecoverable partial state.
func (e *Engine) compensate(ctx context.Context, c *coin.Coin, previousOwner uuid.NullUUID, appendErr error) error {
	restored := *c
	restored.Owner = previousOwner

	if err := e.coins.Update(ctx, &restored); err != nil {
		e.metrics.InconsistentStates.Inc()
		e.log.Error().
			Bool("alert", true).
			Int64("coin_id", c.ID).
			AnErr("append_err", appendErr).
			AnErr("compensation_err", err).
			Msg("transfer compensation failed: coin owner does not match ledger")
		return fmt.Errorf("%w: coin %d: %v", coin.ErrInconsistentState, c.ID, err)
	}

	e.metrics.CompensationsApplied.Inc()
	e.log.Warn().
		Int64("coin_id", c.ID).
		Err(appendErr).
		Msg("ledger write failed, owner restored")
	return fmt.Errorf("%w: %v", coin.ErrLedgerWriteFailed, appendErr)
}

func (e *Engine) emit(evt event.MarketEvent) {
	if e.events == nil {
		return
	}
	select {
	case e.events <- evt:
	default:
		e.metrics.PublishDrops.Inc()
	}
}
