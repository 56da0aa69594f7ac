package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable numeric protocol error code.
type ErrorCode uint32

// Error is a protocol failure. Values are compared by identity, so wrap them
// with %w and match with errors.Is.
type Error struct {
	Code    ErrorCode
	Name    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

const errorCodeOffset ErrorCode = 6000

var registry []*Error

func newError(name, message string) *Error {
	e := &Error{Code: errorCodeOffset + ErrorCode(len(registry)), Name: name, Message: message}
	registry = append(registry, e)
	return e
}

// Protocol errors. Declaration order fixes the numeric codes.
var (
	ErrAlreadyRevealed      = newError("AlreadyRevealed", "Intent already revealed")
	ErrIntentExpired        = newError("IntentExpired", "Trade intent expired")
	ErrNonceMismatch        = newError("NonceMismatch", "Nonce does not match")
	ErrInvalidSignature     = newError("InvalidSignature", "Signature verification failed")
	ErrHashMismatch         = newError("HashMismatch", "Hash mismatch between reveal and commit")
	ErrInsufficientBalance  = newError("InsufficientBalance", "Insufficient token balance")
	ErrMathOverflow         = newError("MathOverflow", "Mathematical overflow occurred")
	ErrSlippageExceeded     = newError("SlippageExceeded", "Slippage tolerance exceeded")
	ErrInvalidTokenMint     = newError("InvalidTokenMint", "Invalid token mint")
	ErrRelayerFeeTooHigh    = newError("RelayerFeeTooHigh", "Relayer fee too high")
	ErrProtocolFeeError     = newError("ProtocolFeeError", "Protocol fee calculation failed")
	ErrFeeDistributionError = newError("FeeDistributionError", "Fee distribution failed")
	ErrSwapExecutionFailed  = newError("SwapExecutionFailed", "Swap execution failed")
	ErrInvalidRelayer       = newError("InvalidRelayer", "Invalid relayer")
	ErrAmountTooSmall       = newError("AmountTooSmall", "Trade amount too small")
	ErrAmountTooLarge       = newError("AmountTooLarge", "Trade amount too large")
	ErrDuplicateIntent      = newError("DuplicateIntent", "Intent already committed for this nonce")
)

// AsError extracts the protocol error from err's chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ErrorByCode looks up a protocol error by its numeric code.
func ErrorByCode(code ErrorCode) (*Error, bool) {
	idx := int(code) - int(errorCodeOffset)
	if idx < 0 || idx >= len(registry) {
		return nil, false
	}
	return registry[idx], true
}
