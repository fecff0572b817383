package dedup

import "github.com/pkg/errors"

// Status is the handling status of a message key.
type Status string

const (
	// Incomplete is the status of keys which were never handled successfully, absent keys included.
	Incomplete Status = "INCOMPLETE"
	// Complete is the status of keys whose handler succeeded.
	Complete Status = "COMPLETE"
	// Failed is the status of keys whose handler failed MaxAttempts times.
	Failed Status = "FAILED"
)

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether messages with this status must not be handled again.
func (s Status) Terminal() bool {
	return s == Complete || s == Failed
}

// ParseStatus decodes a stored status.
func ParseStatus(v string) (Status, error) {
	switch s := Status(v); s {
	case Incomplete, Complete, Failed:
		return s, nil
	}
	return "", errors.Wrapf(ErrUnknownStatus, "%q", v)
}

func formatStatus(s Status) string {
	return string(s)
}
