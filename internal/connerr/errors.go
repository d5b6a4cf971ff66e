// Package connerr defines the error taxonomy shared by the connection core.
//
// Callers match on the sentinels with errors.Is. Errors carrying structured
// context (BadDelayError) unwrap to their sentinel.
package connerr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig reports malformed or unread configuration map entries.
	ErrConfig = errors.New("configuration error")

	// ErrMissingRuleKey reports a connection spec without a rule entry.
	ErrMissingRuleKey = errors.New("connectivity spec must contain a connectivity rule")

	ErrBadDelay           = errors.New("bad delay")
	ErrUnknownRule        = errors.New("unknown connectivity rule")
	ErrUnknownSynapseType = errors.New("unknown synapse type")

	// Per-pair errors. Builders skip the offending pair and continue.
	ErrIllegalConnection   = errors.New("illegal connection")
	ErrUnknownReceptorType = errors.New("unknown receptor type")
	ErrTypeMismatch        = errors.New("type mismatch")
	ErrUnknownNode         = errors.New("unknown node")

	ErrInvalidState      = errors.New("invalid state")
	ErrBadProperty       = errors.New("bad property")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrNotImplemented    = errors.New("not implemented")
)

// BadDelayError carries the rejected delay and the window it was judged
// against. All values are in milliseconds.
type BadDelayError struct {
	DelayMS float64
	MinMS   float64
	MaxMS   float64
	Reason  string
}

func (e *BadDelayError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("bad delay %g ms: %s", e.DelayMS, e.Reason)
	}
	return fmt.Sprintf("bad delay %g ms: must be between min_delay %g and max_delay %g", e.DelayMS, e.MinMS, e.MaxMS)
}

func (e *BadDelayError) Unwrap() error { return ErrBadDelay }

// IsPairError reports whether err belongs to the family of per-pair
// failures that a batch builder logs and skips.
func IsPairError(err error) bool {
	return errors.Is(err, ErrIllegalConnection) ||
		errors.Is(err, ErrUnknownReceptorType) ||
		errors.Is(err, ErrTypeMismatch) ||
		errors.Is(err, ErrUnknownNode)
}

// Reason returns a short, stable label for err suitable for metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrIllegalConnection):
		return "illegal_connection"
	case errors.Is(err, ErrUnknownReceptorType):
		return "unknown_receptor_type"
	case errors.Is(err, ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, ErrUnknownNode):
		return "unknown_node"
	case errors.Is(err, ErrBadDelay):
		return "bad_delay"
	case errors.Is(err, ErrBadProperty):
		return "bad_property"
	default:
		return "other"
	}
}
