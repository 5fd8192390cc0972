package coin

import (
	"time"

	"github.com/google/uuid"
)

// Vendor is the reserved issuer identity. It appears as the seller on genesis
// ledger entries and as the buyer when a coin is minted without an owner hint.
var Vendor = uuid.Nil

// Coin is a minted token. Triple and ID are immutable after mint; Owner
// transitions only through the transfer engine. An invalid Owner means the
// coin is held by the vendor and available for sale.
type Coin struct {
	ID          int64
	Triple      Triple
	Value       int64 // minor units
	Owner       uuid.NullUUID
	Fingerprint string
	MintedAt    time.Time
}

// Free reports whether the coin is still vendor-held.
func (c *Coin) Free() bool {
	return !c.Owner.Valid
}

// CurrentOwner returns the owner id, or Vendor for a free coin.
func (c *Coin) CurrentOwner() uuid.UUID {
	if c.Owner.Valid {
		return c.Owner.UUID
	}
	return Vendor
}

// LedgerEntry is one immutable transfer record. Seller or Buyer equal to
// Vendor denote the issuing party. Entries are append-only; Remove exists only
// as the compensating action of a failed sibling write.
type LedgerEntry struct {
	ID            int64
	CoinID        int64
	Seller        uuid.UUID
	Buyer         uuid.UUID
	Amount        int64
	TransferredAt time.Time
}

// LedgerFilter narrows ledger listings. Nil fields are ignored. Page is
// 1-based; page n of size s covers entries [(n-1)*s, n*s) of the filtered,
// order-stable result set.
type LedgerFilter struct {
	Counterparty *uuid.UUID
	From         *time.Time
	To           *time.Time
	MinAmount    *int64
	MaxAmount    *int64
	Page         int
	PageSize     int
}

// Offset returns the row offset implied by Page/PageSize.
func (f LedgerFilter) Offset() int {
	limit := f.Limit()
	if limit < 0 {
		return 0
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}

// Limit returns the page size, defaulting when zero. Negative means
// unbounded.
func (f LedgerFilter) Limit() int {
	if f.PageSize == 0 {
		return 50
	}
	return f.PageSize
}
