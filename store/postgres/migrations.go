package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the fundme store (PostgreSQL).
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
    sequence   BIGINT NOT NULL,
    kind       TEXT NOT NULL,
    address    TEXT NOT NULL DEFAULT '',
    amount     TEXT NOT NULL DEFAULT '0',
    usd_value  TEXT NOT NULL DEFAULT '0',
    funders    JSONB NOT NULL DEFAULT '[]',
    timestamp  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
