// Package beetle provides the message model shared by deduplicating consumers and their transports.
package beetle

import "strconv"

const (
	// HdrMessageID carries the message identifier used as the deduplication key.
	HdrMessageID = "message-id"
	// HdrExpiresAt carries the unix time (seconds) after which the message must not be handled.
	HdrExpiresAt = "expires_at"
	// HdrFlags carries the message flags bit set, see FlagRedundant.
	HdrFlags     = "flags"
	HdrCreatedAt = "Created-At"
	// HdrCorrelationID is the unique identifier used to track and correlate messages as they flow through a system
	HdrCorrelationID = "Correlation-Id"
)

// FlagRedundant marks a message as one of several copies published to different brokers.
const FlagRedundant = 1

// Header represents a set of key-value pairs
type Header map[string]string

// Get retrieves the value associated with the provided key from the header.
// Returns an empty string if the key does not exist.
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[key]
}

// Set assigns the provided value to the provided key in the header.
func (h Header) Set(key, value string) {
	h[key] = value
}

// Lookup returns the value stored under key as an untyped header value,
// nil is returned when the key does not exist.
func (h Header) Lookup(key string) any {
	if h == nil {
		return nil
	}
	v, ok := h[key]
	if !ok {
		return nil
	}
	return v
}

// SetExpiresAt sets the expiration timestamp (unix time).
func (h Header) SetExpiresAt(timestamp int64) {
	h.Set(HdrExpiresAt, strconv.FormatInt(timestamp, 10))
}

// ExpiresAt returns the expiration timestamp, MaxExpiry is returned when the header is not set.
func (h Header) ExpiresAt() (int64, error) {
	return ExpiresAtValue(h.Lookup(HdrExpiresAt))
}

// SetRedundant marks the message as a redundant copy.
func (h Header) SetRedundant() {
	h.Set(HdrFlags, strconv.Itoa(FlagRedundant))
}

// Redundant reports whether the message is marked as a redundant copy.
func (h Header) Redundant() (bool, error) {
	return RedundantValue(h.Lookup(HdrFlags))
}

// SetCreatedAt sets the creation timestamp (unix time) in the header using a predefined key.
func (h Header) SetCreatedAt(timestamp int64) {
	h.Set(HdrCreatedAt, strconv.FormatInt(timestamp, 10))
}

// GetCreatedAt retrieves the creation timestamp from the header.
// Returns zero if the creation timestamp is not set.
func (h Header) GetCreatedAt() int64 {
	v := h.Get(HdrCreatedAt)
	if v == "" {
		return 0
	}
	timestamp, _ := strconv.ParseInt(v, 10, 64)
	return timestamp
}

// SetCorrelationID sets the correlation id in the header using a predefined key.
func (h Header) SetCorrelationID(id string) {
	h.Set(HdrCorrelationID, id)
}

// GetCorrelationID retrieves the correlation id value from the header.
// Returns an empty string if the correlation id is not set.
func (h Header) GetCorrelationID() string {
	return h.Get(HdrCorrelationID)
}
