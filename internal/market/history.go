package market

import (
	"context"
	"fmt"
	"strings"

	"TrioMint/internal/coin"

	"github.com/google/uuid"
)

// UnknownDisplayName stands in for any party whose display name cannot be
// resolved, including the vendor sentinel.
const UnknownDisplayName = "stranger"

// OwnershipEvent is one link of a coin's ownership chain, enriched with
// display identities.
type OwnershipEvent struct {
	Entry      coin.LedgerEntry
	SellerName string
	BuyerName  string
}

// BrowseFilter extends the store-level ledger filter with a counterparty
// display-name match, which can only be evaluated after resolution.
type BrowseFilter struct {
	coin.LedgerFilter
	CounterpartyName string
}

// History reconstructs ownership chains from the ledger. Read-only; identity
// resolution is an injected capability so the ledger stays testable without a
// profile fixture.
type History struct {
	ledger   LedgerStore
	profiles ProfileResolver
}

func NewHistory(ledger LedgerStore, profiles ProfileResolver) *History {
	return &History{ledger: ledger, profiles: profiles}
}

// HistoryOf returns the coin's transfer chain oldest-first. A coin with no
// entries yields an empty slice, not an error.
func (h *History) HistoryOf(ctx context.Context, coinID int64) ([]OwnershipEvent, error) {
	entries, err := h.ledger.HistoryOf(ctx, coinID)
	if err != nil {
		return nil, fmt.Errorf("ledger history of coin %d: %w", coinID, err)
	}

	events := make([]OwnershipEvent, 0, len(entries))
	for _, entry := range entries {
		// A vendor-to-vendor genesis records the mint, not an ownership
		// change; the chain of a never-sold coin is empty.
		if entry.Seller == coin.Vendor && entry.Buyer == coin.Vendor {
			continue
		}
		events = append(events, OwnershipEvent{
			Entry:      entry,
			SellerName: h.displayName(ctx, entry.Seller),
			BuyerName:  h.displayName(ctx, entry.Buyer),
		})
	}
	return events, nil
}

// ForOwner returns enriched entries where owner appears on either side.
func (h *History) ForOwner(ctx context.Context, owner uuid.UUID) ([]OwnershipEvent, error) {
	entries, err := h.ledger.ForOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("ledger entries for owner %s: %w", owner, err)
	}
	return h.enrich(ctx, entries), nil
}

// Browse returns a filtered, order-stable, paginated ledger view. ID-keyed
// filters push down to the store; the display-name filter is evaluated here
// after resolution, with pagination applied to the filtered sequence.
func (h *History) Browse(ctx context.Context, f BrowseFilter) ([]OwnershipEvent, error) {
	if f.CounterpartyName == "" {
		entries, err := h.ledger.List(ctx, f.LedgerFilter)
		if err != nil {
			return nil, fmt.Errorf("ledger list: %w", err)
		}
		return h.enrich(ctx, entries), nil
	}

	// Name filtering cannot push down: fetch the unpaginated (but otherwise
	// filtered) sequence, filter on resolved names, then page. The space is
	// small and bounded, so this stays cheap.
	unpaged := f.LedgerFilter
	unpaged.Page = 1
	unpaged.PageSize = -1

	entries, err := h.ledger.List(ctx, unpaged)
	if err != nil {
		return nil, fmt.Errorf("ledger list: %w", err)
	}

	want := strings.ToLower(f.CounterpartyName)
	matched := make([]OwnershipEvent, 0, len(entries))
	for _, entry := range entries {
		evt := OwnershipEvent{
			Entry:      entry,
			SellerName: h.displayName(ctx, entry.Seller),
			BuyerName:  h.displayName(ctx, entry.Buyer),
		}
		if strings.Contains(strings.ToLower(evt.SellerName), want) ||
			strings.Contains(strings.ToLower(evt.BuyerName), want) {
			matched = append(matched, evt)
		}
	}

	offset := f.Offset()
	if offset >= len(matched) {
		return []OwnershipEvent{}, nil
	}
	end := len(matched)
	if limit := f.Limit(); limit >= 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], nil
}

func (h *History) enrich(ctx context.Context, entries []coin.LedgerEntry) []OwnershipEvent {
	events := make([]OwnershipEvent, 0, len(entries))
	for _, entry := range entries {
		events = append(events, OwnershipEvent{
			Entry:      entry,
			SellerName: h.displayName(ctx, entry.Seller),
			BuyerName:  h.displayName(ctx, entry.Buyer),
		})
	}
	return events
}

func (h *History) displayName(ctx context.Context, id uuid.UUID) string {
	if id == coin.Vendor {
		return UnknownDisplayName
	}
	name, err := h.profiles.ResolveDisplayName(ctx, id)
	if err != nil || name == "" {
		return UnknownDisplayName
	}
	return name
}
