// Package errs defines the uniform error-kind taxonomy and recovery
// policy shared by the portal, clipboard, and capture subsystems.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure so callers can apply a uniform recovery
// policy instead of inspecting error strings.
type Kind int

const (
	KindUnknown Kind = iota
	KindPortal
	KindFormatConversion
	KindDataValidation
	KindTransfer
	KindState
	KindCommunication
	KindLoopDetected
	KindCredentialBackend
	KindCrypto
	KindCaptureStream
)

func (k Kind) String() string {
	switch k {
	case KindPortal:
		return "portal"
	case KindFormatConversion:
		return "format_conversion"
	case KindDataValidation:
		return "data_validation"
	case KindTransfer:
		return "transfer"
	case KindState:
		return "state"
	case KindCommunication:
		return "communication"
	case KindLoopDetected:
		return "loop_detected"
	case KindCredentialBackend:
		return "credential_backend"
	case KindCrypto:
		return "crypto"
	case KindCaptureStream:
		return "capture_stream"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a recovery-relevant Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind and op. Returns nil if err is nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err, defaulting to KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Decision is the outcome of consulting the recovery policy for one
// failed attempt.
type Decision struct {
	Retry     bool
	Backoff   time.Duration
	Terminal  bool // true when the caller should give up / escalate
}

// Recover applies §7's uniform recovery policy for kind, given the
// zero-based attempt number that just failed. Callers loop until
// Decision.Retry is false.
func Recover(kind Kind, attempt int) Decision {
	switch kind {
	case KindPortal:
		if attempt < 2 {
			wait := 100 * time.Millisecond
			for i := 0; i < attempt; i++ {
				wait *= 2
				if wait > 5*time.Second {
					wait = 5 * time.Second
					break
				}
			}
			return Decision{Retry: true, Backoff: wait}
		}
		return Decision{Terminal: true}
	case KindFormatConversion:
		return Decision{Retry: attempt < 1}
	case KindDataValidation:
		return Decision{Retry: attempt < 1}
	case KindTransfer:
		return Decision{Retry: attempt < 3}
	case KindState:
		return Decision{Terminal: false}
	case KindCommunication:
		if attempt < 2 {
			return Decision{Retry: true, Backoff: 50 * time.Millisecond}
		}
		return Decision{Terminal: true}
	case KindLoopDetected:
		return Decision{}
	case KindCredentialBackend:
		return Decision{Terminal: true}
	case KindCaptureStream:
		return Decision{}
	default:
		return Decision{}
	}
}
