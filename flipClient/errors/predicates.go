package errors

import (
	"errors"
	"strings"
)

// IsChainError checks if an error is a ChainError with specific code
func IsChainError(err error, code ErrorCode) bool {
	var chainErr *ChainError
	if errors.As(err, &chainErr) {
		return chainErr.Code == code
	}
	return false
}

// IsSubmissionError reports whether err is a SubmissionError
func IsSubmissionError(err error) bool { return IsChainError(err, ErrCodeSubmission) }

// IsReadError reports whether err is a ReadError
func IsReadError(err error) bool { return IsChainError(err, ErrCodeRead) }

// IsUnsupportedRouteError reports whether err is an UnsupportedRouteError
func IsUnsupportedRouteError(err error) bool { return IsChainError(err, ErrCodeUnsupportedRoute) }

// IsConfirmationTimeoutError reports whether err is a ConfirmationTimeoutError
func IsConfirmationTimeoutError(err error) bool {
	return IsChainError(err, ErrCodeConfirmationTimeout)
}

// IsLedgerCallError reports whether err is a LedgerCallError
func IsLedgerCallError(err error) bool { return IsChainError(err, ErrCodeLedgerCall) }

// RevertReason returns the revert reason carried by a LedgerCallError, or "".
func RevertReason(err error) string {
	var chainErr *ChainError
	if errors.As(err, &chainErr) && chainErr.Code == ErrCodeLedgerCall {
		if reason, ok := chainErr.Context["reason"].(string); ok {
			return reason
		}
	}
	return ""
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var chainErr *ChainError
	if errors.As(err, &chainErr) {
		return chainErr.IsRetryable()
	}

	// Check for common retryable error patterns
	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"too many requests",
		"rate limit",
		"eof",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

