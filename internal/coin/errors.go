package coin

import "errors"

// Outcome errors surfaced to callers. API layers match with errors.Is and map
// to stable response codes; raw storage errors stay wrapped underneath.
var (
	// ErrCoinNotFound: no coin with the requested id.
	ErrCoinNotFound = errors.New("coin not found")

	// ErrAlreadyOwned: the coin's owner precondition failed; it is no longer
	// vendor-held.
	ErrAlreadyOwned = errors.New("coin already owned")

	// ErrSpaceExhausted: every triple in the space is minted.
	ErrSpaceExhausted = errors.New("triple space exhausted")

	// ErrTripleTaken: a duplicate-triple insert was rejected by the store.
	// Ordinary allocator control flow, not a caller-visible failure.
	ErrTripleTaken = errors.New("triple already in use")

	// ErrWriteFailed: a single store write failed; no state was changed.
	ErrWriteFailed = errors.New("store write failed")

	// ErrLedgerWriteFailed: the ledger write of a two-write operation failed
	// after the first write succeeded; compensation was applied.
	ErrLedgerWriteFailed = errors.New("ledger write failed")

	// ErrInconsistentState: compensation itself failed. Fatal; requires
	// operator intervention and must never be swallowed.
	ErrInconsistentState = errors.New("inconsistent state, manual intervention required")
)
