package event

import (
	"time"

	"github.com/google/uuid"
)

// Type discriminator for market events
type Type int32

const (
	TypeUnknown Type = iota
	TypeCoinMinted
	TypeCoinTransferred
)

func (t Type) String() string {
	switch t {
	case TypeCoinMinted:
		return "CoinMinted"
	case TypeCoinTransferred:
		return "CoinTransferred"
	default:
		return "Unknown"
	}
}

// MarketEvent is published outbound after a mint or transfer has been
// committed to the stores. Downstream consumers that miss events can query
// the ledger directly; publication is best-effort.
type MarketEvent struct {
	Type        Type      `json:"-"`
	EventType   string    `json:"event_type"`
	CoinID      int64     `json:"coin_id"`
	Fingerprint string    `json:"fingerprint"`
	Seller      uuid.UUID `json:"seller"`
	Buyer       uuid.UUID `json:"buyer"`
	Amount      int64     `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
}
