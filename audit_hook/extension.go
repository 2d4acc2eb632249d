// Package audithook bridges Ledger lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/journal"
	"github.com/xraph/fundme/plugin"
	"github.com/xraph/fundme/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin           = (*Extension)(nil)
	_ plugin.OnInit           = (*Extension)(nil)
	_ plugin.OnShutdown       = (*Extension)(nil)
	_ plugin.OnReplayed       = (*Extension)(nil)
	_ plugin.OnFunded         = (*Extension)(nil)
	_ plugin.OnFundRejected   = (*Extension)(nil)
	_ plugin.OnWithdrawn      = (*Extension)(nil)
	_ plugin.OnWithdrawFailed = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// ledgerInfo is the part of *fundme.Ledger the hook reads on start.
type ledgerInfo interface {
	ID() id.LedgerID
	Owner() types.Address
	Address() types.Address
}

// Extension bridges Ledger lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
	ledgerID string
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit implements plugin.OnInit.
func (e *Extension) OnInit(ctx context.Context, l any) error {
	info, ok := l.(ledgerInfo)
	if !ok {
		return nil
	}
	e.ledgerID = info.ID().String()
	return e.record(ctx, ActionLedgerStarted, SeverityInfo, OutcomeSuccess,
		ResourceLedger, e.ledgerID, CategoryLifecycle, nil,
		"owner", info.Owner().String(),
		"address", info.Address().String(),
	)
}

// OnShutdown implements plugin.OnShutdown.
func (e *Extension) OnShutdown(ctx context.Context) error {
	return e.record(ctx, ActionLedgerStopped, SeverityInfo, OutcomeSuccess,
		ResourceLedger, e.ledgerID, CategoryLifecycle, nil,
	)
}

// OnReplayed implements plugin.OnReplayed.
func (e *Extension) OnReplayed(ctx context.Context, ledgerID id.LedgerID, entries int, elapsed time.Duration) error {
	return e.record(ctx, ActionLedgerReplayed, SeverityInfo, OutcomeSuccess,
		ResourceLedger, ledgerID.String(), CategoryLifecycle, nil,
		"entries", entries,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Contribution hooks
// ──────────────────────────────────────────────────

// OnFunded implements plugin.OnFunded.
func (e *Extension) OnFunded(ctx context.Context, entry *journal.Entry) error {
	return e.record(ctx, ActionContributionAccepted, SeverityInfo, OutcomeSuccess,
		ResourceContribution, entry.ID.String(), CategoryFunding, nil,
		"ledger_id", entry.LedgerID.String(),
		"contributor", entry.Address.String(),
		"amount", entry.Amount.String(),
		"usd_value", entry.USDValue.FormatUnits(types.USDDecimals),
		"sequence", entry.Sequence,
	)
}

// OnFundRejected implements plugin.OnFundRejected.
func (e *Extension) OnFundRejected(ctx context.Context, contributor types.Address, amount types.Amount, reason error) error {
	severity := SeverityError
	switch {
	case errors.Is(reason, fundme.ErrInsufficientContribution):
		// Below-minimum contributions are routine.
		severity = SeverityInfo
	case errors.Is(reason, fundme.ErrTransferFailed), errors.Is(reason, fundme.ErrPriceUnavailable):
		severity = SeverityWarning
	}
	return e.record(ctx, ActionContributionRejected, severity, OutcomeFailure,
		ResourceContribution, "", CategoryFunding, reason,
		"ledger_id", e.ledgerID,
		"contributor", contributor.String(),
		"amount", amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnWithdrawn implements plugin.OnWithdrawn.
func (e *Extension) OnWithdrawn(ctx context.Context, entry *journal.Entry) error {
	return e.record(ctx, ActionWithdrawalCompleted, SeverityInfo, OutcomeSuccess,
		ResourceWithdrawal, entry.ID.String(), CategoryPayment, nil,
		"ledger_id", entry.LedgerID.String(),
		"owner", entry.Address.String(),
		"amount", entry.Amount.String(),
		"funders_cleared", len(entry.Funders),
		"sequence", entry.Sequence,
	)
}

// OnWithdrawFailed implements plugin.OnWithdrawFailed.
func (e *Extension) OnWithdrawFailed(ctx context.Context, caller types.Address, reason error) error {
	if fundme.IsAuthorizationError(reason) {
		return e.record(ctx, ActionWithdrawalDenied, SeverityWarning, OutcomeFailure,
			ResourceWithdrawal, "", CategoryAccess, reason,
			"ledger_id", e.ledgerID,
			"caller", caller.String(),
		)
	}

	severity := SeverityError
	if errors.Is(reason, fundme.ErrJournalCorrupt) {
		severity = SeverityCritical
	}
	return e.record(ctx, ActionWithdrawalFailed, severity, OutcomeFailure,
		ResourceWithdrawal, "", CategoryPayment, reason,
		"ledger_id", e.ledgerID,
		"caller", caller.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
