package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/journal"
	"github.com/xraph/fundme/types"
)

// ==================== Journal models ====================

// Amounts are decimal strings: BSON has no unsigned 256-bit integer.
type entryModel struct {
	grove.BaseModel `grove:"table:fundme_journal"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	LedgerID  string    `grove:"ledger_id"  bson:"ledger_id"`
	Sequence  int64     `grove:"sequence"   bson:"sequence"`
	Kind      string    `grove:"kind"       bson:"kind"`
	Address   string    `grove:"address"    bson:"address"`
	Amount    string    `grove:"amount"     bson:"amount"`
	USDValue  string    `grove:"usd_value"  bson:"usd_value"`
	Funders   []string  `grove:"funders"    bson:"funders,omitempty"`
	Timestamp time.Time `grove:"timestamp"  bson:"timestamp"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
}

func toEntryModel(e *journal.Entry) *entryModel {
	return &entryModel{
		ID:        e.ID.String(),
		LedgerID:  e.LedgerID.String(),
		Sequence:  int64(e.Sequence),
		Kind:      string(e.Kind),
		Address:   e.Address.String(),
		Amount:    e.Amount.String(),
		USDValue:  e.USDValue.String(),
		Funders:   types.Strings(e.Funders),
		Timestamp: e.Timestamp,
		CreatedAt: now(),
	}
}

func fromEntryModel(m *entryModel) (*journal.Entry, error) {
	entryID, err := id.ParseEntryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fundme.ErrJournalCorrupt, err)
	}
	ledgerID, err := id.ParseLedgerID(m.LedgerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fundme.ErrJournalCorrupt, err)
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fundme.ErrJournalCorrupt, err)
	}
	usd, err := types.ParseAmount(m.USDValue)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fundme.ErrJournalCorrupt, err)
	}

	return &journal.Entry{
		ID:        entryID,
		LedgerID:  ledgerID,
		Sequence:  uint64(m.Sequence),
		Kind:      journal.Kind(m.Kind),
		Address:   types.Address(m.Address),
		Amount:    amount,
		USDValue:  usd,
		Funders:   types.Addresses(m.Funders),
		Timestamp: m.Timestamp,
	}, nil
}

func now() time.Time {
	return time.Now().UTC()
}
