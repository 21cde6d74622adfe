package erc

import (
	"fmt"
	"strings"
)

// Severity ranks a violation. Undefined is reserved for diagnostics of the
// checker itself and of inconsistent input.
type Severity int

const (
	SeverityUndefined Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "undefined"
	}
}

// ParseSeverity converts a severity name.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "undefined":
		return SeverityUndefined, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	default:
		return SeverityUndefined, fmt.Errorf("erc: unknown severity %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ReviewState is the analyst's decision on a violation.
type ReviewState int

const (
	Pending ReviewState = iota
	Accepted
	Rejected
)

func (r ReviewState) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

// ParseReviewState converts a review state name.
func ParseReviewState(s string) (ReviewState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pending":
		return Pending, nil
	case "accepted":
		return Accepted, nil
	case "rejected":
		return Rejected, nil
	default:
		return Pending, fmt.Errorf("erc: unknown review state %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r ReviewState) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *ReviewState) UnmarshalText(b []byte) error {
	v, err := ParseReviewState(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
