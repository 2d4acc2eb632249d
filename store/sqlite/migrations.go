package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the fundme store (SQLite).
var Migrations = migrate.NewGroup("fundme")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_fundme_journal",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fundme_journal (
    id         TEXT PRIMARY KEY,
    ledger_id  TEXT NOT NULL,
    sequence   INTEGER NOT NULL,
    kind       TEXT NOT NULL,
    address    TEXT NOT NULL DEFAULT '',
    amount     TEXT NOT NULL DEFAULT '0',
    usd_value  TEXT NOT NULL DEFAULT '0',
    funders    TEXT NOT NULL DEFAULT '[]',
    timestamp  TEXT NOT NULL DEFAULT (datetime('now')),
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_fundme_journal_ledger_seq ON fundme_journal (ledger_id, sequence);
CREATE INDEX IF NOT EXISTS idx_fundme_journal_ledger_kind ON fundme_journal (ledger_id, kind);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fundme_journal`)
				return err
			},
		},
	)
}
