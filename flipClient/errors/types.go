package errors

import (
	"fmt"
)

// ErrorCode represents different categories of errors
type ErrorCode string

const (
	// ErrCodeValidation indicates input validation errors
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeNetwork indicates network-related errors
	ErrCodeNetwork ErrorCode = "NETWORK"

	// ErrCodeDatabase indicates database operation errors
	ErrCodeDatabase ErrorCode = "DATABASE"

	// ErrCodeConfig indicates configuration errors
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeRPC indicates RPC-related errors
	ErrCodeRPC ErrorCode = "RPC"

	// ErrCodeTimeout indicates timeout errors
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeInternal indicates internal system errors
	ErrCodeInternal ErrorCode = "INTERNAL"

	// ErrCodeSubmission indicates a node or contract rejected a broadcast transaction
	ErrCodeSubmission ErrorCode = "SUBMISSION"

	// ErrCodeRead indicates a chain read that kept failing after its retries
	ErrCodeRead ErrorCode = "READ"

	// ErrCodeUnsupportedRoute indicates an asset/chain pair that is not wired
	ErrCodeUnsupportedRoute ErrorCode = "UNSUPPORTED_ROUTE"

	// ErrCodeConfirmationTimeout indicates a confirmation wait that ran past its bound
	ErrCodeConfirmationTimeout ErrorCode = "CONFIRMATION_TIMEOUT"

	// ErrCodeLedgerCall indicates a reverted or rejected call on the ledger contract
	ErrCodeLedgerCall ErrorCode = "LEDGER_CALL"
)

// Severity represents the severity level of an error
type Severity string

const (
	// SeverityCritical indicates critical errors that require immediate attention
	SeverityCritical Severity = "CRITICAL"

	// SeverityHigh indicates high priority errors
	SeverityHigh Severity = "HIGH"

	// SeverityMedium indicates medium priority errors
	SeverityMedium Severity = "MEDIUM"

	// SeverityLow indicates low priority errors
	SeverityLow Severity = "LOW"

	// SeverityInfo indicates informational errors
	SeverityInfo Severity = "INFO"
)

// ChainError represents an error specific to a blockchain chain
type ChainError struct {
	Code     ErrorCode              `json:"code"`
	Message  string                 `json:"message"`
	Chain    string                 `json:"chain,omitempty"`
	Severity Severity               `json:"severity"`
	Cause    error                  `json:"-"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// NewChainError creates a new ChainError
func NewChainError(code ErrorCode, chain, message string, cause error) *ChainError {
	return &ChainError{
		Code:     code,
		Message:  message,
		Chain:    chain,
		Severity: determineSeverity(code),
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *ChainError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.Chain != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Chain, e.Code, e.Severity, msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, msg)
}

// Unwrap returns the underlying cause
func (e *ChainError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *ChainError) WithContext(key string, value interface{}) *ChainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity overrides the default severity
func (e *ChainError) WithSeverity(severity Severity) *ChainError {
	e.Severity = severity
	return e
}

// IsRetryable returns true if the error is retryable
func (e *ChainError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeNetwork, ErrCodeRPC, ErrCodeTimeout, ErrCodeSubmission, ErrCodeConfirmationTimeout:
		return true
	case ErrCodeDatabase:
		// Database errors might be retryable depending on the specific error
		return e.Severity != SeverityCritical
	default:
		return false
	}
}

// determineSeverity determines the default severity based on error code
func determineSeverity(code ErrorCode) Severity {
	switch code {
	case ErrCodeInternal, ErrCodeUnsupportedRoute:
		return SeverityCritical
	case ErrCodeDatabase, ErrCodeLedgerCall:
		return SeverityHigh
	case ErrCodeSubmission, ErrCodeConfirmationTimeout:
		return SeverityMedium
	case ErrCodeNetwork, ErrCodeRPC, ErrCodeTimeout, ErrCodeRead:
		return SeverityMedium
	case ErrCodeValidation, ErrCodeConfig:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Common error constructors

// NewValidationError creates a validation error
func NewValidationError(chain, message string) *ChainError {
	return NewChainError(ErrCodeValidation, chain, message, nil)
}

// NewRPCError creates an RPC error
func NewRPCError(chain, message string, cause error) *ChainError {
	return NewChainError(ErrCodeRPC, chain, message, cause)
}

// NewInternalError creates an internal error
func NewInternalError(chain, message string, cause error) *ChainError {
	return NewChainError(ErrCodeInternal, chain, message, cause)
}

// NewSubmissionError creates an error for a broadcast the node or contract rejected
func NewSubmissionError(chain, message string, cause error) *ChainError {
	return NewChainError(ErrCodeSubmission, chain, message, cause)
}

// NewReadError creates an error for a read that exhausted its retries
func NewReadError(chain, message string, cause error) *ChainError {
	return NewChainError(ErrCodeRead, chain, message, cause)
}

// NewUnsupportedRouteError creates an error for an asset/route pair that is not wired
func NewUnsupportedRouteError(asset, from, to string) *ChainError {
	return NewChainError(ErrCodeUnsupportedRoute, "", fmt.Sprintf("no route for %s from %s to %s", asset, from, to), nil).
		WithContext("asset", asset).
		WithContext("from", from).
		WithContext("to", to)
}

// NewConfirmationTimeoutError creates an error for a confirmation wait past its bound
func NewConfirmationTimeoutError(chain, txHash string, confirmations, required uint64) *ChainError {
	return NewChainError(ErrCodeConfirmationTimeout, chain,
		fmt.Sprintf("tx %s reached %d of %d confirmations before timeout", txHash, confirmations, required), nil).
		WithContext("tx_hash", txHash)
}

// NewLedgerCallError creates an error for a ledger contract call. reason is the decoded
// revert string and may be empty.
func NewLedgerCallError(method, reason string, cause error) *ChainError {
	msg := fmt.Sprintf("ledger call %s reverted", method)
	if reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, reason)
	}
	return NewChainError(ErrCodeLedgerCall, "", msg, cause).
		WithContext("method", method).
		WithContext("reason", reason)
}
