package market_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"TrioMint/internal/coin"

	"github.com/google/uuid"
)

func TestEngine_TransferFreeCoin(t *testing.T) {
	fx := newFixture(2)
	ctx := context.Background()
	buyer := uuid.New()

	c, err := fx.alloc.Mint(ctx, 100, uuid.NullUUID{})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	got, err := fx.engine.Transfer(ctx, c.ID, buyer, 500)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got.CurrentOwner() != buyer {
		t.Errorf("owner after transfer: got %s, want %s", got.CurrentOwner(), buyer)
	}

	stored, err := fx.coins.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("get coin: %v", err)
	}
	if stored.CurrentOwner() != buyer {
		t.Errorf("stored owner: got %s, want %s", stored.CurrentOwner(), buyer)
	}

	entries, _ := fx.ledger.HistoryOf(ctx, c.ID)
	if len(entries) != 2 { // genesis + transfer
		t.Fatalf("ledger entries: got %d, want 2", len(entries))
	}
	transfer := entries[1]
	if transfer.Seller != coin.Vendor {
		t.Errorf("transfer seller: got %s, want vendor sentinel", transfer.Seller)
	}
	if transfer.Buyer != buyer {
		t.Errorf("transfer buyer: got %s, want %s", transfer.Buyer, buyer)
	}
	if transfer.Amount != 500 {
		t.Errorf("transfer amount: got %d, want 500", transfer.Amount)
	}
}

func TestEngine_TransferMissingCoin(t *testing.T) {
	fx := newFixture(2)

	_, err := fx.engine.Transfer(context.Background(), 404, uuid.New(), 100)
	if !errors.Is(err, coin.ErrCoinNotFound) {
		t.Fatalf("got %v, want ErrCoinNotFound", err)
	}
}

func TestEngine_TransferOwnedCoinRejectedWithoutWrites(t *testing.T) {
	fx := newFixture(2)
	ctx := context.Background()
	firstBuyer := uuid.New()

	c, _ := fx.alloc.Mint(ctx, 100, uuid.NullUUID{})
	if _, err := fx.engine.Transfer(ctx, c.ID, firstBuyer, 500); err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	entriesBefore := fx.ledger.Len()

	_, err := fx.engine.Transfer(ctx, c.ID, uuid.New(), 700)
	if !errors.Is(err, coin.ErrAlreadyOwned) {
		t.Fatalf("got %v, want ErrAlreadyOwned", err)
	}

	stored, _ := fx.coins.GetByID(ctx, c.ID)
	if stored.CurrentOwner() != firstBuyer {
		t.Errorf("owner changed by rejected transfer: %s", stored.CurrentOwner())
	}
	if fx.ledger.Len() != entriesBefore {
		t.Errorf("ledger grew on rejected transfer: %d -> %d", entriesBefore, fx.ledger.Len())
	}
}

func TestEngine_ClaimFailureIsWriteFailed(t *testing.T) {
	fx := newFixture(2)
	ctx := context.Background()

	c, _ := fx.alloc.Mint(ctx, 100, uuid.NullUUID{})
	fx.coins.ClaimErr = func(int64) error { return fmt.Errorf("connection lost") }

	_, err := fx.engine.Transfer(ctx, c.ID, uuid.New(), 500)
	if !errors.Is(err, coin.ErrWriteFailed) {
		t.Fatalf("got %v, want ErrWriteFailed", err)
	}
	if fx.ledger.Len() != 1 { // genesis only
		t.Errorf("ledger entries: got %d, want 1", fx.ledger.Len())
	}
}

func TestEngine_LedgerFailureCompensates(t *testing.T) {
	fx := newFixture(2)
	ctx := context.Background()

	c, _ := fx.alloc.Mint(ctx, 100, uuid.NullUUID{})
	fx.ledger.AppendErr = func(e *coin.LedgerEntry) error {
		if e.Seller == coin.Vendor && e.Buyer != coin.Vendor {
			return fmt.Errorf("disk full")
		}
		return nil
	}

	_, err := fx.engine.Transfer(ctx, c.ID, uuid.New(), 500)
	if !errors.Is(err, coin.ErrLedgerWriteFailed) {
		t.Fatalf("got %v, want ErrLedgerWriteFailed", err)
	}

	// Owner restored, no orphan ledger entry.
	stored, _ := fx.coins.GetByID(ctx, c.ID)
	if !stored.Free() {
		t.Errorf("owner not restored: %v", stored.Owner)
	}
	if fx.ledger.Len() != 1 { // genesis only
		t.Errorf("ledger entries: got %d, want 1", fx.ledger.Len())
	}

	// The coin is sellable again after compensation.
	buyer := uuid.New()
	fx.ledger.AppendErr = nil
	if _, err := fx.engine.Transfer(ctx, c.ID, buyer, 500); err != nil {
		t.Fatalf("transfer after compensation: %v", err)
	}
}

func TestEngine_CompensationFailureIsInconsistentState(t *testing.T) {
	fx := newFixture(2)
	ctx := context.Background()

	c, _ := fx.alloc.Mint(ctx, 100, uuid.NullUUID{})
	fx.ledger.AppendErr = func(e *coin.LedgerEntry) error {
		if e.Buyer != coin.Vendor {
			return fmt.Errorf("disk full")
		}
		return nil
	}
	fx.coins.UpdateErr = func(*coin.Coin) error { return fmt.Errorf("connection lost") }

	_, err := fx.engine.Transfer(ctx, c.ID, uuid.New(), 500)
	if !errors.Is(err, coin.ErrInconsistentState) {
		t.Fatalf("got %v, want ErrInconsistentState", err)
	}
}

func TestEngine_ConcurrentTransfersHaveOneWinner(t *testing.T) {
	fx := newFixture(2)
	ctx := context.Background()

	c, _ := fx.alloc.Mint(ctx, 100, uuid.NullUUID{})

	const contenders = 8
	var wg sync.WaitGroup
	winners := make(chan uuid.UUID, contenders)
	rejections := make(chan error, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buyer := uuid.New()
			if _, err := fx.engine.Transfer(ctx, c.ID, buyer, 500); err != nil {
				rejections <- err
				return
			}
			winners <- buyer
		}()
	}
	wg.Wait()
	close(winners)
	close(rejections)

	var winner uuid.UUID
	wins := 0
	for w := range winners {
		winner = w
		wins++
	}
	if wins != 1 {
		t.Fatalf("winners: got %d, want exactly 1", wins)
	}

	for err := range rejections {
		if !errors.Is(err, coin.ErrAlreadyOwned) {
			t.Errorf("loser saw %v, want ErrAlreadyOwned", err)
		}
	}

	stored, _ := fx.coins.GetByID(ctx, c.ID)
	if stored.CurrentOwner() != winner {
		t.Errorf("final owner %s is not the winner %s", stored.CurrentOwner(), winner)
	}
	if fx.ledger.Len() != 2 { // genesis + exactly one transfer
		t.Errorf("ledger entries: got %d, want 2", fx.ledger.Len())
	}
}
