package ledger

import (
	"errors"

	"github.com/Mohsinsiddi/curvesim/internal/curve"
)

// Errors returned by ledger operations. Callers match them with errors.Is.
var (
	ErrInvalidAmount       = curve.ErrInvalidAmount
	ErrOverflow            = curve.ErrOverflow
	ErrZeroAmount          = wrap(ErrInvalidAmount, "zero amount")
	ErrInvalidFee          = wrap(ErrInvalidAmount, "invalid fee")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientReserve = errors.New("insufficient reserve")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrTransferRestricted  = errors.New("transfer restricted")
	ErrReentrancyBlocked   = errors.New("reentrancy blocked")
	ErrInvalidAddress      = errors.New("invalid address")
)

// chainedError is a sentinel that also matches a parent sentinel.
type chainedError struct {
	msg    string
	parent error
}

func (e *chainedError) Error() string { return e.msg }
func (e *chainedError) Unwrap() error { return e.parent }

func wrap(parent error, msg string) error {
	return &chainedError{msg: msg, parent: parent}
}

// reasons maps sentinels to the revert strings the deployed contract uses.
var reasons = []struct {
	err    error
	reason string
}{
	{ErrZeroAmount, "Must send ETH to buy tokens"},
	{ErrInvalidFee, "Fees exceed 100%"},
	{ErrUnauthorized, "Ownable: caller is not the owner"},
	{ErrTransferRestricted, "Transfers are restricted"},
	{ErrInsufficientBalance, "ERC20: burn amount exceeds balance"},
	{ErrInsufficientReserve, "Insufficient ETH reserve"},
	{ErrReentrancyBlocked, "ReentrancyGuard: reentrant call"},
	{ErrInvalidAddress, "Ownable: new owner is the zero address"},
	{ErrOverflow, "Arithmetic operation overflowed"},
	{ErrInvalidAmount, "Invalid amount"},
}

// Reason returns the revert string for err, or err.Error() when err is not a
// ledger error. Reason(nil) is "".
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return err.Error()
}
