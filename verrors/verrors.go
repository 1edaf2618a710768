// Package verrors defines the terminal verdict kinds a probe or resolution
// stage can produce. Each is a sum type over a fixed reason plus an
// optional opaque payload, replacing the ad hoc status strings the
// original prober kept in scattered switch statements.
package verrors

import "fmt"

// Reason enumerates the terminal classifications a probe can end in.
type Reason string

const (
	NoMXRecord        Reason = "NO_MX_RECORD"
	Timeout           Reason = "TIMEOUT"
	ConnectionError   Reason = "CONNECTION_ERROR"
	InvalidRecipient  Reason = "INVALID_RECIPIENT"
	FullMailbox       Reason = "FULL_MAILBOX"
	UnknownError      Reason = "UNKNOWN_ERROR"
	CatchAllDomain    Reason = "CATCH_ALL_DOMAIN"
	VerificationError Reason = "VERIFICATION_ERROR"
	DomainUnknown     Reason = "DOMAIN_UNKNOWN"
)

// ProbeError is the terminal error carried by a single probe or
// resolution step. Details is opaque server/transport text kept for
// diagnostics; it is never parsed by callers.
type ProbeError struct {
	Reason  Reason
	Details string
	Cause   error
}

func (e *ProbeError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Details)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}
	return string(e.Reason)
}

func (e *ProbeError) Unwrap() error { return e.Cause }

// New builds a ProbeError with no wrapped cause.
func New(reason Reason, details string) *ProbeError {
	return &ProbeError{Reason: reason, Details: details}
}

// Wrap builds a ProbeError carrying an underlying transport/DNS error.
func Wrap(reason Reason, cause error) *ProbeError {
	return &ProbeError{Reason: reason, Cause: cause}
}

// As reports whether err is a *ProbeError and returns it.
func As(err error) (*ProbeError, bool) {
	pe, ok := err.(*ProbeError)
	return pe, ok
}
