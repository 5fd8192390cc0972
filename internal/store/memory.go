package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"TrioMint/internal/coin"

	"github.com/google/uuid"
)

// MemCoinStore is an in-memory CoinStore with the same contract as the
// Postgres store, for tests and local runs. The optional error hooks simulate
// storage failures (each fires once per call when set).
type MemCoinStore struct {
	mu      sync.Mutex
	nextID  int64
	coins   map[int64]coin.Coin
	triples map[coin.Triple]int64

	InsertErr func(c *coin.Coin) error
	UpdateErr func(c *coin.Coin) error
	DeleteErr func(id int64) error
	ClaimErr  func(id int64) error
}

func NewMemCoinStore() *MemCoinStore {
	return &MemCoinStore{
		nextID:  1,
		coins:   make(map[int64]coin.Coin),
		triples: make(map[coin.Triple]int64),
	}
}

func (s *MemCoinStore) Insert(ctx context.Context, c *coin.Coin) error {
	if s.InsertErr != nil {
		if err := s.InsertErr(c); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.triples[c.Triple]; taken {
		return fmt.Errorf("%w: %s", coin.ErrTripleTaken, c.Triple)
	}

	c.ID = s.nextID
	s.nextID++
	s.coins[c.ID] = *c
	s.triples[c.Triple] = c.ID
	return nil
}

func (s *MemCoinStore) Update(ctx context.Context, c *coin.Coin) error {
	if s.UpdateErr != nil {
		if err := s.UpdateErr(c); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.coins[c.ID]; !ok {
		return fmt.Errorf("%w: id %d", coin.ErrCoinNotFound, c.ID)
	}
	s.coins[c.ID] = *c
	return nil
}

func (s *MemCoinStore) Delete(ctx context.Context, id int64) error {
	if s.DeleteErr != nil {
		if err := s.DeleteErr(id); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coins[id]
	if !ok {
		return fmt.Errorf("%w: id %d", coin.ErrCoinNotFound, id)
	}
	delete(s.coins, id)
	delete(s.triples, c.Triple)
	return nil
}

func (s *MemCoinStore) ClaimOwner(ctx context.Context, id int64, buyer uuid.UUID) (bool, error) {
	if s.ClaimErr != nil {
		if err := s.ClaimErr(id); err != nil {
			return false, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coins[id]
	if !ok || c.Owner.Valid {
		return false, nil
	}
	c.Owner = uuid.NullUUID{UUID: buyer, Valid: true}
	s.coins[id] = c
	return true, nil
}

func (s *MemCoinStore) GetByID(ctx context.Context, id int64) (*coin.Coin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coins[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", coin.ErrCoinNotFound, id)
	}
	if c.Fingerprint == "" {
		c.Fingerprint = coin.FingerprintOf(c.Triple)
		s.coins[id] = c
	}
	return &c, nil
}

func (s *MemCoinStore) ListFree(ctx context.Context, offset, limit int) ([]coin.Coin, error) {
	return s.list(func(c coin.Coin) bool { return !c.Owner.Valid }, offset, limit), nil
}

func (s *MemCoinStore) ListOwnedBy(ctx context.Context, owner uuid.UUID, offset, limit int) ([]coin.Coin, error) {
	return s.list(func(c coin.Coin) bool {
		return c.Owner.Valid && c.Owner.UUID == owner
	}, offset, limit), nil
}

func (s *MemCoinStore) list(keep func(coin.Coin) bool, offset, limit int) []coin.Coin {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]coin.Coin, 0, len(s.coins))
	for _, c := range s.coins {
		if keep(c) {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	if offset >= len(matched) {
		return []coin.Coin{}
	}
	end := len(matched)
	if limit >= 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end]
}

func (s *MemCoinStore) TripleInUse(ctx context.Context, t coin.Triple) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.triples[t]
	return ok, nil
}

func (s *MemCoinStore) CountMinted(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.coins), nil
}

func (s *MemCoinStore) CacheFingerprint(ctx context.Context, id int64, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coins[id]
	if !ok {
		return fmt.Errorf("%w: id %d", coin.ErrCoinNotFound, id)
	}
	if c.Fingerprint == "" {
		c.Fingerprint = fingerprint
		s.coins[id] = c
	}
	return nil
}

// MemLedgerStore is an in-memory LedgerStore mirroring the Postgres contract.
type MemLedgerStore struct {
	mu      sync.Mutex
	nextID  int64
	entries []coin.LedgerEntry

	AppendErr func(e *coin.LedgerEntry) error
	RemoveErr func(id int64) error
}

func NewMemLedgerStore() *MemLedgerStore {
	return &MemLedgerStore{nextID: 1}
}

func (s *MemLedgerStore) Append(ctx context.Context, e *coin.LedgerEntry) error {
	if s.AppendErr != nil {
		if err := s.AppendErr(e); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = s.nextID
	s.nextID++
	s.entries = append(s.entries, *e)
	return nil
}

func (s *MemLedgerStore) Remove(ctx context.Context, id int64) error {
	if s.RemoveErr != nil {
		if err := s.RemoveErr(id); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("ledger entry %d not found", id)
}

func (s *MemLedgerStore) HistoryOf(ctx context.Context, coinID int64) ([]coin.LedgerEntry, error) {
	return s.filter(func(e coin.LedgerEntry) bool { return e.CoinID == coinID }), nil
}

func (s *MemLedgerStore) ForOwner(ctx context.Context, owner uuid.UUID) ([]coin.LedgerEntry, error) {
	return s.filter(func(e coin.LedgerEntry) bool {
		return e.Seller == owner || e.Buyer == owner
	}), nil
}

func (s *MemLedgerStore) List(ctx context.Context, f coin.LedgerFilter) ([]coin.LedgerEntry, error) {
	matched := s.filter(func(e coin.LedgerEntry) bool {
		if f.Counterparty != nil && e.Seller != *f.Counterparty && e.Buyer != *f.Counterparty {
			return false
		}
		if f.From != nil && e.TransferredAt.Before(*f.From) {
			return false
		}
		if f.To != nil && e.TransferredAt.After(*f.To) {
			return false
		}
		if f.MinAmount != nil && e.Amount < *f.MinAmount {
			return false
		}
		if f.MaxAmount != nil && e.Amount > *f.MaxAmount {
			return false
		}
		return true
	})

	offset := f.Offset()
	if offset >= len(matched) {
		return []coin.LedgerEntry{}, nil
	}
	end := len(matched)
	if limit := f.Limit(); limit >= 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], nil
}

// Len returns the number of stored entries.
func (s *MemLedgerStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemLedgerStore) filter(keep func(coin.LedgerEntry) bool) []coin.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]coin.LedgerEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if keep(e) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].TransferredAt.Equal(matched[j].TransferredAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].TransferredAt.Before(matched[j].TransferredAt)
	})
	return matched
}
