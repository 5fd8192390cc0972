package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"TrioMint/internal/coin"
	"TrioMint/internal/event"
	"TrioMint/internal/observability"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Allocator finds never-before-used triples in the bounded space and mints
// coins against them. Enumeration is lexicographic ascending over (X, Y, Z)
// from a process-local cursor; the store's unique triple index is the backstop
// against concurrent minters in other processes. A mint is atomic to callers:
// a coin is visible only once both its record and its genesis ledger entry
// exist.
type Allocator struct {
	coins   CoinStore
	ledger  LedgerStore
	space   coin.Space
	metrics *observability.Metrics
	log     zerolog.Logger
	events  chan<- event.MarketEvent
	now     func() time.Time

	mu     sync.Mutex
	cursor int // next enumeration index to examine
}

// AllocatorOption configures an Allocator.
type AllocatorOption func(*Allocator)

// WithAllocatorClock overrides the mint timestamp source.
func WithAllocatorClock(now func() time.Time) AllocatorOption {
	return func(a *Allocator) { a.now = now }
}

// WithAllocatorEvents attaches an outbound event channel. Sends are
// non-blocking; a full channel drops the event.
func WithAllocatorEvents(ch chan<- event.MarketEvent) AllocatorOption {
	return func(a *Allocator) { a.events = ch }
}

func NewAllocator(
	coins CoinStore,
	ledger LedgerStore,
	space coin.Space,
	metrics *observability.Metrics,
	log zerolog.Logger,
	opts ...AllocatorOption,
) *Allocator {
	a := &Allocator{
		coins:   coins,
		ledger:  ledger,
		space:   space,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Mint allocates the first unused triple in enumeration order and mints a
// coin against it. ownerHint, when valid, becomes the initial owner and the
// genesis buyer; otherwise the coin is vendor-held and free for sale.
// Returns coin.ErrSpaceExhausted when every combination is in use, with no
// writes performed.
func (a *Allocator) Mint(ctx context.Context, value int64, ownerHint uuid.NullUUID) (*coin.Coin, error) {
	if value <= 0 {
		return nil, fmt.Errorf("coin value must be positive, got %d", value)
	}

	start := a.now()

	// Serialize enumeration within this process so concurrent mints don't
	// race each other to the same candidate.
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := a.cursor; i < a.space.Size(); i++ {
		candidate := a.space.At(i)

		inUse, err := a.coins.TripleInUse(ctx, candidate)
		if err != nil {
			a.metrics.MintRejected.WithLabelValues("write_failed").Inc()
			return nil, fmt.Errorf("%w: triple lookup: %v", coin.ErrWriteFailed, err)
		}
		if inUse {
			a.cursor = i + 1
			continue
		}

		c := &coin.Coin{
			Triple:      candidate,
			Value:       value,
			Owner:       ownerHint,
			Fingerprint: coin.FingerprintOf(candidate),
			MintedAt:    a.now(),
		}

		if err := a.coins.Insert(ctx, c); err != nil {
			if errors.Is(err, coin.ErrTripleTaken) {
				// Another minter won this candidate between the lookup
				// and the insert. Ordinary control flow: advance.
				a.metrics.MintCollisions.Inc()
				a.cursor = i + 1
				continue
			}
			a.metrics.MintRejected.WithLabelValues("write_failed").Inc()
			return nil, fmt.Errorf("%w: coin insert: %v", coin.ErrWriteFailed, err)
		}

		// The cursor advances only once the genesis entry is committed. A
		// rolled-back mint leaves the candidate free, and the next attempt
		// must find it again.
		if err := a.appendGenesis(ctx, c); err != nil {
			return nil, err
		}
		a.cursor = i + 1

		a.metrics.CoinsMinted.Inc()
		a.metrics.MintDuration.Observe(a.now().Sub(start).Seconds())
		a.log.Info().
			Int64("coin_id", c.ID).
			Str("triple", candidate.String()).
			Str("fingerprint", c.Fingerprint).
			Int64("value", c.Value).
			Msg("coin minted")

		a.emit(event.MarketEvent{
			Type:        event.TypeCoinMinted,
			EventType:   event.TypeCoinMinted.String(),
			CoinID:      c.ID,
			Fingerprint: c.Fingerprint,
			Seller:      coin.Vendor,
			Buyer:       c.CurrentOwner(),
			Amount:      c.Value,
			Timestamp:   c.MintedAt,
		})

		return c, nil
	}

	a.metrics.MintRejected.WithLabelValues("space_exhausted").Inc()
	return nil, coin.ErrSpaceExhausted
}

// appendGenesis writes the coin's first ledger entry. If the append fails the
// coin insert is rolled back so callers never observe a coin without a
// provable history.
func (a *Allocator) appendGenesis(ctx context.Context, c *coin.Coin) error {
	genesis := &coin.LedgerEntry{
		CoinID:        c.ID,
		Seller:        coin.Vendor,
		Buyer:         c.CurrentOwner(),
		Amount:        c.Value,
		TransferredAt: c.MintedAt,
	}

	err := a.ledger.Append(ctx, genesis)
	if err == nil {
		a.metrics.LedgerEntriesWritten.Inc()
		return nil
	}

	if delErr := a.coins.Delete(ctx, c.ID); delErr != nil {
		a.metrics.InconsistentStates.Inc()
		a.log.Error().
			Bool("alert", true).
			Int64("coin_id", c.ID).
			Str("triple", c.Triple.String()).
			AnErr("append_err", err).
			AnErr("rollback_err", delErr).
			Msg("mint rollback failed: coin exists without genesis entry")
		return fmt.Errorf("%w: mint rollback of coin %d: %v", coin.ErrInconsistentState, c.ID, delErr)
	}

	a.metrics.MintRollbacks.Inc()
	a.log.Warn().
		Int64("coin_id", c.ID).
		Str("triple", c.Triple.String()).
		Err(err).
		Msg("genesis write failed, coin insert rolled back")
	return fmt.Errorf("%w: genesis append: %v", coin.ErrLedgerWriteFailed, err)
}

// MintBatch mints up to n coins in enumeration order. It stops at the first
// failure and returns the coins minted so far together with the failure;
// prior successes in the batch are not rolled back.
func (a *Allocator) MintBatch(ctx context.Context, n int, value int64, ownerHint uuid.NullUUID) ([]coin.Coin, error) {
	if n < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", n)
	}

	minted := make([]coin.Coin, 0, n)
	for i := 0; i < n; i++ {
		c, err := a.Mint(ctx, value, ownerHint)
		if err != nil {
			return minted, err
		}
		minted = append(minted, *c)
	}
	return minted, nil
}

// RemainingSupply returns the number of triples not yet minted. Never
// negative.
func (a *Allocator) RemainingSupply(ctx context.Context) (int, error) {
	count, err := a.coins.CountMinted(ctx)
	if err != nil {
		return 0, fmt.Errorf("count minted: %w", err)
	}

	remaining := a.space.Size() - count
	if remaining < 0 {
		remaining = 0
	}
	a.metrics.SupplyRemaining.Set(float64(remaining))
	return remaining, nil
}

func (a *Allocator) emit(evt event.MarketEvent) {
	if a.events == nil {
		return
	}
	select {
	case a.events <- evt:
	default:
		a.metrics.PublishDrops.Inc()
	}
}
