package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/journal"
	"github.com/xraph/fundme/types"
)

// ==================== Journal models ====================

type entryModel struct {
	grove.BaseModel `grove:"table:fundme_journal"`

	ID        string    `grove:"id,pk"`
	LedgerID  string    `grove:"ledger_id"`
	Sequence  int64     `grove:"sequence"`
	Kind      string    `grove:"kind"`
	Address   string    `grove:"address"`
	Amount    string    `grove:"amount"`
	USDValue  string    `grove:"usd_value"`
	Funders   string    `grove:"funders"`
	Timestamp time.Time `grove:"timestamp"`
	CreatedAt time.Time `grove:"created_at"`
}

func toEntryModel(e *journal.Entry) (*entryModel, error) {
	funders, err := json.Marshal(types.Strings(e.Funders))
	if err != nil {
		return nil, err
	}

	return &entryModel{
		ID:        e.ID.String(),
		LedgerID:  e.LedgerID.String(),
		Sequence:  int64(e.Sequence),
		Kind:      string(e.Kind),
		Address:   e.Address.String(),
		Amount:    e.Amount.String(),
		USDValue:  e.USDValue.String(),
		Funders:   string(funders),
		Timestamp: e.Timestamp,
		CreatedAt: time.Now().UTC(),
	}, nil
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

	var funders []string
	if m.Funders != "" {
		if err := json.Unmarshal([]byte(m.Funders), &funders); err != nil {
			return nil, fmt.Errorf("%w: %w", fundme.ErrJournalCorrupt, err)
		}
	}

	return &journal.Entry{
		ID:        entryID,
		LedgerID:  ledgerID,
		Sequence:  uint64(m.Sequence),
		Kind:      journal.Kind(m.Kind),
		Address:   types.Address(m.Address),
		Amount:    amount,
		USDValue:  usd,
		Funders:   types.Addresses(funders),
		Timestamp: m.Timestamp,
	}, nil
}
