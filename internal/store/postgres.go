package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"TrioMint/internal/coin"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code raised by the unique index on
// (x, y, z). The allocator treats it as control flow, not failure.
const uniqueViolation = "23505"

// PostgresCoinStore persists coins in market.coins.
type PostgresCoinStore struct {
	db *sql.DB
}

func NewPostgresCoinStore(db *sql.DB) *PostgresCoinStore {
	return &PostgresCoinStore{db: db}
}

func (s *PostgresCoinStore) Insert(ctx context.Context, c *coin.Coin) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO market.coins (x, y, z, value, owner_id, fingerprint, minted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, c.Triple.X, c.Triple.Y, c.Triple.Z, c.Value, c.Owner, c.Fingerprint, c.MintedAt).Scan(&c.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("%w: %s", coin.ErrTripleTaken, c.Triple)
		}
		return fmt.Errorf("insert coin: %w", err)
	}
	return nil
}

func (s *PostgresCoinStore) Update(ctx context.Context, c *coin.Coin) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE market.coins
		SET value = $2, owner_id = $3, fingerprint = $4, minted_at = $5
		WHERE id = $1
	`, c.ID, c.Value, c.Owner, c.Fingerprint, c.MintedAt)
	if err != nil {
		return fmt.Errorf("update coin %d: %w", c.ID, err)
	}
	return requireRow(res, c.ID)
}

func (s *PostgresCoinStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM market.coins WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete coin %d: %w", id, err)
	}
	return requireRow(res, id)
}

// ClaimOwner performs the conditional free-to-owned transition. The WHERE
// clause is the arbiter under concurrent transfers: only one caller sees an
// affected row.
func (s *PostgresCoinStore) ClaimOwner(ctx context.Context, id int64, buyer uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE market.coins SET owner_id = $2
		WHERE id = $1 AND owner_id IS NULL
	`, id, buyer)
	if err != nil {
		return false, fmt.Errorf("claim coin %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim coin %d: rows affected: %w", id, err)
	}
	return n == 1, nil
}

func (s *PostgresCoinStore) GetByID(ctx context.Context, id int64) (*coin.Coin, error) {
	c, err := scanCoin(s.db.QueryRowContext(ctx, `
		SELECT id, x, y, z, value, owner_id, fingerprint, minted_at
		FROM market.coins WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", coin.ErrCoinNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get coin %d: %w", id, err)
	}

	// Fingerprint cache miss: compute once and backfill. Best effort; the
	// caller still gets the computed value.
	if c.Fingerprint == "" {
		c.Fingerprint = coin.FingerprintOf(c.Triple)
		_ = s.CacheFingerprint(ctx, c.ID, c.Fingerprint)
	}
	return c, nil
}

func (s *PostgresCoinStore) ListFree(ctx context.Context, offset, limit int) ([]coin.Coin, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, x, y, z, value, owner_id, fingerprint, minted_at
		FROM market.coins
		WHERE owner_id IS NULL
		ORDER BY id
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list free coins: %w", err)
	}
	return collectCoins(rows)
}

func (s *PostgresCoinStore) ListOwnedBy(ctx context.Context, owner uuid.UUID, offset, limit int) ([]coin.Coin, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, x, y, z, value, owner_id, fingerprint, minted_at
		FROM market.coins
		WHERE owner_id = $1
		ORDER BY id
		OFFSET $2 LIMIT $3
	`, owner, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list coins of %s: %w", owner, err)
	}
	return collectCoins(rows)
}

func (s *PostgresCoinStore) TripleInUse(ctx context.Context, t coin.Triple) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM market.coins WHERE x = $1 AND y = $2 AND z = $3)
	`, t.X, t.Y, t.Z).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("triple in use %s: %w", t, err)
	}
	return exists, nil
}

func (s *PostgresCoinStore) CountMinted(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM market.coins`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count coins: %w", err)
	}
	return n, nil
}

func (s *PostgresCoinStore) CacheFingerprint(ctx context.Context, id int64, fingerprint string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE market.coins SET fingerprint = $2 WHERE id = $1 AND fingerprint = ''
	`, id, fingerprint)
	if err != nil {
		return fmt.Errorf("cache fingerprint for coin %d: %w", id, err)
	}
	return nil
}

// PostgresLedgerStore persists transfer records in market.ledger.
type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{db: db}
}

func (s *PostgresLedgerStore) Append(ctx context.Context, e *coin.LedgerEntry) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO market.ledger (coin_id, seller_id, buyer_id, amount, transferred_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, e.CoinID, e.Seller, e.Buyer, e.Amount, e.TransferredAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (s *PostgresLedgerStore) Remove(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM market.ledger WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("remove ledger entry %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove ledger entry %d: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("ledger entry %d not found", id)
	}
	return nil
}

func (s *PostgresLedgerStore) HistoryOf(ctx context.Context, coinID int64) ([]coin.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, coin_id, seller_id, buyer_id, amount, transferred_at
		FROM market.ledger
		WHERE coin_id = $1
		ORDER BY transferred_at, id
	`, coinID)
	if err != nil {
		return nil, fmt.Errorf("history of coin %d: %w", coinID, err)
	}
	return collectEntries(rows)
}

func (s *PostgresLedgerStore) ForOwner(ctx context.Context, owner uuid.UUID) ([]coin.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, coin_id, seller_id, buyer_id, amount, transferred_at
		FROM market.ledger
		WHERE seller_id = $1 OR buyer_id = $1
		ORDER BY transferred_at, id
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("ledger entries for %s: %w", owner, err)
	}
	return collectEntries(rows)
}

func (s *PostgresLedgerStore) List(ctx context.Context, f coin.LedgerFilter) ([]coin.LedgerEntry, error) {
	query := `
		SELECT id, coin_id, seller_id, buyer_id, amount, transferred_at
		FROM market.ledger
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if f.Counterparty != nil {
		query += fmt.Sprintf(" AND (seller_id = $%d OR buyer_id = $%d)", argIdx, argIdx)
		args = append(args, *f.Counterparty)
		argIdx++
	}
	if f.From != nil {
		query += fmt.Sprintf(" AND transferred_at >= $%d", argIdx)
		args = append(args, *f.From)
		argIdx++
	}
	if f.To != nil {
		query += fmt.Sprintf(" AND transferred_at <= $%d", argIdx)
		args = append(args, *f.To)
		argIdx++
	}
	if f.MinAmount != nil {
		query += fmt.Sprintf(" AND amount >= $%d", argIdx)
		args = append(args, *f.MinAmount)
		argIdx++
	}
	if f.MaxAmount != nil {
		query += fmt.Sprintf(" AND amount <= $%d", argIdx)
		args = append(args, *f.MaxAmount)
		argIdx++
	}

	query += " ORDER BY transferred_at, id"

	if limit := f.Limit(); limit >= 0 {
		query += fmt.Sprintf(" OFFSET $%d LIMIT $%d", argIdx, argIdx+1)
		args = append(args, f.Offset(), limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return collectEntries(rows)
}

// --- scan helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCoin(row rowScanner) (*coin.Coin, error) {
	var c coin.Coin
	var fingerprint sql.NullString
	if err := row.Scan(
		&c.ID, &c.Triple.X, &c.Triple.Y, &c.Triple.Z,
		&c.Value, &c.Owner, &fingerprint, &c.MintedAt,
	); err != nil {
		return nil, err
	}
	c.Fingerprint = fingerprint.String
	return &c, nil
}

func collectCoins(rows *sql.Rows) ([]coin.Coin, error) {
	defer rows.Close()

	var coins []coin.Coin
	for rows.Next() {
		c, err := scanCoin(rows)
		if err != nil {
			return nil, err
		}
		coins = append(coins, *c)
	}
	return coins, rows.Err()
}

func collectEntries(rows *sql.Rows) ([]coin.LedgerEntry, error) {
	defer rows.Close()

	var entries []coin.LedgerEntry
	for rows.Next() {
		var e coin.LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.CoinID, &e.Seller, &e.Buyer, &e.Amount, &e.TransferredAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", coin.ErrCoinNotFound, id)
	}
	return nil
}
