package fundme

import (
	"github.com/xraph/fundme/journal"
	"github.com/xraph/fundme/types"
)

// Re-export common types for convenience so users don't have to import types package.

// Amount is re-exported from types package.
type Amount = types.Amount

// Address is re-exported from types package.
type Address = types.Address

// Entry is re-exported from journal package.
type Entry = journal.Entry

// Re-export Amount constructors
var (
	Units          = types.Units
	ParseUnits     = types.ParseUnits
	MustParseUnits = types.MustParseUnits
	ZeroAmount     = types.Zero
	Sum            = types.Sum
)

// Re-export Address constructor
var ParseAddress = types.ParseAddress
