package market

import (
	"context"

	"TrioMint/internal/coin"

	"github.com/google/uuid"
)

// CoinStore persists coin records. Implementations return coin.ErrTripleTaken
// from Insert on a duplicate triple and coin.ErrCoinNotFound from GetByID;
// uniqueness of triples is otherwise the allocator's concern, not the store's.
type CoinStore interface {
	Insert(ctx context.Context, c *coin.Coin) error
	Update(ctx context.Context, c *coin.Coin) error

	// Delete removes a coin record. Compensation-only: used when a mint's
	// genesis ledger write failed after the insert succeeded.
	Delete(ctx context.Context, id int64) error

	// ClaimOwner conditionally sets the owner of a free coin. Returns false
	// with a nil error when the coin was not free at claim time; the
	// at-most-one-winner guarantee under concurrent transfers rests here.
	ClaimOwner(ctx context.Context, id int64, buyer uuid.UUID) (bool, error)

	GetByID(ctx context.Context, id int64) (*coin.Coin, error)
	ListFree(ctx context.Context, offset, limit int) ([]coin.Coin, error)
	ListOwnedBy(ctx context.Context, owner uuid.UUID, offset, limit int) ([]coin.Coin, error)

	TripleInUse(ctx context.Context, t coin.Triple) (bool, error)
	CountMinted(ctx context.Context) (int, error)

	// CacheFingerprint backfills the stored fingerprint of a coin that was
	// read without one. Compute-once, read-many.
	CacheFingerprint(ctx context.Context, id int64, fingerprint string) error
}

// LedgerStore persists the append-only transfer history.
type LedgerStore interface {
	Append(ctx context.Context, e *coin.LedgerEntry) error

	// Remove deletes an entry. Compensation-only; never a business operation.
	Remove(ctx context.Context, id int64) error

	// HistoryOf returns a coin's entries ordered by transfer time ascending.
	HistoryOf(ctx context.Context, coinID int64) ([]coin.LedgerEntry, error)

	// ForOwner returns entries where the owner appears as buyer or seller.
	ForOwner(ctx context.Context, owner uuid.UUID) ([]coin.LedgerEntry, error)

	List(ctx context.Context, f coin.LedgerFilter) ([]coin.LedgerEntry, error)
}

// ProfileResolver maps an owner id to a display name. Backed by an external
// profile store; the engine only reads through it.
type ProfileResolver interface {
	ResolveDisplayName(ctx context.Context, id uuid.UUID) (string, error)
}
