package core

import "errors"

// Sentinel errors for every way an operation can be refused. Callers match
// them with errors.Is; wrapped causes ride along via %w.
var (
	// Configuration: invalid parameters, nothing written.
	ErrInvalidOracle           = errors.New("invalid oracle reference")
	ErrInvalidStopPrice        = errors.New("invalid stop price")
	ErrInvalidTrailingDistance = errors.New("invalid trailing distance")
	ErrInvalidAmount           = errors.New("invalid amount")

	// State: the operation is not allowed for the record right now.
	ErrNotConfigured     = errors.New("trailing stop not configured")
	ErrUpdateTooFrequent = errors.New("update too frequent")
	ErrStopNotReached    = errors.New("stop price not reached")

	// Execution: the settlement handshake failed and was rolled back.
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSlippageExceeded  = errors.New("slippage exceeded")
	ErrSwapFailed        = errors.New("swap failed")
	ErrExecutionTimeout  = errors.New("execution timed out")

	// Availability: a dependency or the whole engine is unavailable.
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrPaused            = errors.New("engine paused")
)

// ErrorClass groups the sentinel errors for transport mapping and reporting
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassConfiguration
	ClassState
	ClassExecution
	ClassAvailability
)

func (c ErrorClass) String() string {
	switch c {
	case ClassConfiguration:
		return "configuration"
	case ClassState:
		return "state"
	case ClassExecution:
		return "execution"
	case ClassAvailability:
		return "availability"
	default:
		return "unknown"
	}
}

// Classify walks the wrap chain of err and returns the class of the first
// sentinel it finds.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, ErrInvalidOracle),
		errors.Is(err, ErrInvalidStopPrice),
		errors.Is(err, ErrInvalidTrailingDistance),
		errors.Is(err, ErrInvalidAmount):
		return ClassConfiguration
	case errors.Is(err, ErrNotConfigured),
		errors.Is(err, ErrUpdateTooFrequent),
		errors.Is(err, ErrStopNotReached):
		return ClassState
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrSlippageExceeded),
		errors.Is(err, ErrSwapFailed),
		errors.Is(err, ErrExecutionTimeout):
		return ClassExecution
	case errors.Is(err, ErrOracleUnavailable),
		errors.Is(err, ErrPaused):
		return ClassAvailability
	default:
		return ClassUnknown
	}
}
