// Package observability provides a metrics extension for fundme that records
// lifecycle event counts via a MetricFactory such as forge's app.Metrics().
package observability

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/journal"
	"github.com/xraph/fundme/plugin"
	"github.com/xraph/fundme/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin           = (*MetricsExtension)(nil)
	_ plugin.OnInit           = (*MetricsExtension)(nil)
	_ plugin.OnReplayed       = (*MetricsExtension)(nil)
	_ plugin.OnFunded         = (*MetricsExtension)(nil)
	_ plugin.OnFundRejected   = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawn      = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawFailed = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records ledger lifecycle metrics.
// Register it as a fundme plugin to track contributions and withdrawals.
type MetricsExtension struct {
	factory MetricFactory

	// Lifecycle metrics
	LedgersStarted Counter
	ReplayEntries  Histogram
	ReplayLatency  Histogram

	// Contribution metrics
	ContributionsAccepted Counter
	ContributionUSD       Histogram
	RejectedBelowMinimum  Counter
	RejectedPriceFeed     Counter
	RejectedTransfer      Counter
	RejectedOther         Counter

	// Withdrawal metrics
	Withdrawals           Counter
	WithdrawnAmount       Histogram
	FundersCleared        Histogram
	WithdrawUnauthorized  Counter
	WithdrawTransferFails Counter

	// Error metrics
	StoreErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		LedgersStarted: factory.Counter("fundme.ledger.started"),
		ReplayEntries:  factory.Histogram("fundme.replay.entries"),
		ReplayLatency:  factory.Histogram("fundme.replay.latency_ms"),

		ContributionsAccepted: factory.Counter("fundme.contribution.accepted"),
		ContributionUSD:       factory.Histogram("fundme.contribution.usd_value"),
		RejectedBelowMinimum:  factory.Counter("fundme.contribution.rejected.below_minimum"),
		RejectedPriceFeed:     factory.Counter("fundme.contribution.rejected.price_unavailable"),
		RejectedTransfer:      factory.Counter("fundme.contribution.rejected.transfer_failed"),
		RejectedOther:         factory.Counter("fundme.contribution.rejected.other"),

		Withdrawals:           factory.Counter("fundme.withdrawal.completed"),
		WithdrawnAmount:       factory.Histogram("fundme.withdrawal.amount"),
		FundersCleared:        factory.Histogram("fundme.withdrawal.funders_cleared"),
		WithdrawUnauthorized:  factory.Counter("fundme.withdrawal.unauthorized"),
		WithdrawTransferFails: factory.Counter("fundme.withdrawal.transfer_failed"),

		StoreErrors: factory.Counter("fundme.store.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	m.LedgersStarted.Inc()
	return nil
}

// OnReplayed implements plugin.OnReplayed.
func (m *MetricsExtension) OnReplayed(_ context.Context, _ id.LedgerID, entries int, elapsed time.Duration) error {
	m.ReplayEntries.Observe(float64(entries))
	m.ReplayLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Contribution hooks
// ──────────────────────────────────────────────────

// OnFunded implements plugin.OnFunded.
func (m *MetricsExtension) OnFunded(_ context.Context, entry *journal.Entry) error {
	m.ContributionsAccepted.Inc()
	m.ContributionUSD.Observe(units(entry.USDValue, types.USDDecimals))
	return nil
}

// OnFundRejected implements plugin.OnFundRejected.
func (m *MetricsExtension) OnFundRejected(_ context.Context, _ types.Address, _ types.Amount, reason error) error {
	switch {
	case errors.Is(reason, fundme.ErrInsufficientContribution):
		m.RejectedBelowMinimum.Inc()
	case errors.Is(reason, fundme.ErrPriceUnavailable):
		m.RejectedPriceFeed.Inc()
	case errors.Is(reason, fundme.ErrTransferFailed):
		m.RejectedTransfer.Inc()
	default:
		m.RejectedOther.Inc()
	}
	m.countStoreError(reason)
	return nil
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnWithdrawn implements plugin.OnWithdrawn.
func (m *MetricsExtension) OnWithdrawn(_ context.Context, entry *journal.Entry) error {
	m.Withdrawals.Inc()
	m.WithdrawnAmount.Observe(units(entry.Amount, types.NativeDecimals))
	m.FundersCleared.Observe(float64(len(entry.Funders)))
	return nil
}

// OnWithdrawFailed implements plugin.OnWithdrawFailed.
func (m *MetricsExtension) OnWithdrawFailed(_ context.Context, _ types.Address, reason error) error {
	switch {
	case fundme.IsAuthorizationError(reason):
		m.WithdrawUnauthorized.Inc()
	case errors.Is(reason, fundme.ErrTransferFailed):
		m.WithdrawTransferFails.Inc()
	}
	m.countStoreError(reason)
	return nil
}

func (m *MetricsExtension) countStoreError(err error) {
	if errors.Is(err, fundme.ErrStoreNotReady) ||
		errors.Is(err, fundme.ErrStoreClosed) ||
		errors.Is(err, fundme.ErrDuplicateEntry) ||
		errors.Is(err, fundme.ErrJournalCorrupt) {
		m.StoreErrors.Inc()
	}
}

// units converts a fixed-point amount to whole units for histograms.
func units(a types.Amount, decimals int) float64 {
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(a.Big()),
		new(big.Float).SetInt(types.Pow10(decimals)),
	).Float64()
	return f
}
