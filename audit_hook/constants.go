package audithook

// Action constants for audit events.
const (
	// Lifecycle actions
	ActionLedgerStarted  = "ledger.started"
	ActionLedgerReplayed = "ledger.replayed"
	ActionLedgerStopped  = "ledger.stopped"

	// Contribution actions
	ActionContributionAccepted = "contribution.accepted"
	ActionContributionRejected = "contribution.rejected"

	// Withdrawal actions
	ActionWithdrawalCompleted = "withdrawal.completed"
	ActionWithdrawalDenied    = "withdrawal.denied"
	ActionWithdrawalFailed    = "withdrawal.failed"
)

// Resource constants for audit events.
const (
	ResourceLedger       = "ledger"
	ResourceContribution = "contribution"
	ResourceWithdrawal   = "withdrawal"
)

// Category constants for audit events.
const (
	CategoryLifecycle = "lifecycle"
	CategoryFunding   = "funding"
	CategoryAccess    = "access"
	CategoryPayment   = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
