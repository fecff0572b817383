package beetle

import (
	"fmt"
	"math"
	"strconv"
)

// MaxExpiry is the expiration timestamp of messages which never expire.
const MaxExpiry int64 = math.MaxInt64

// HeaderInt64 reads an integer from a header value as client libraries encode it.
// Native numbers are converted directly, strings and byte slices are parsed, and any
// other value is parsed from its textual form. present is false for a nil value.
func HeaderInt64(name string, v any) (value int64, present bool, err error) {
	switch n := v.(type) {
	case nil:
		return 0, false, nil
	case int:
		return int64(n), true, nil
	case int8:
		return int64(n), true, nil
	case int16:
		return int64(n), true, nil
	case int32:
		return int64(n), true, nil
	case int64:
		return n, true, nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, true, &HeaderValueError{Header: name, Type: fmt.Sprintf("%T", v)}
		}
		return int64(n), true, nil
	case uint8:
		return int64(n), true, nil
	case uint16:
		return int64(n), true, nil
	case uint32:
		return int64(n), true, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, true, &HeaderValueError{Header: name, Type: fmt.Sprintf("%T", v)}
		}
		return int64(n), true, nil
	case float32:
		return int64(n), true, nil
	case float64:
		return int64(n), true, nil
	case string:
		return parseHeaderInt(name, n, v)
	case []byte:
		return parseHeaderInt(name, string(n), v)
	case fmt.Stringer:
		return parseHeaderInt(name, n.String(), v)
	}
	return parseHeaderInt(name, fmt.Sprint(v), v)
}

func parseHeaderInt(name, text string, v any) (int64, bool, error) {
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, true, &HeaderValueError{Header: name, Type: fmt.Sprintf("%T", v)}
	}
	return i, true, nil
}

// ExpiresAtValue decodes an expires_at header value, MaxExpiry is returned when v is nil.
func ExpiresAtValue(v any) (int64, error) {
	ts, present, err := HeaderInt64(HdrExpiresAt, v)
	if err != nil {
		return 0, err
	}
	if !present {
		return MaxExpiry, nil
	}
	return ts, nil
}

// RedundantValue decodes a flags header value. Only a value equal to FlagRedundant marks
// the message as redundant.
func RedundantValue(v any) (bool, error) {
	flags, present, err := HeaderInt64(HdrFlags, v)
	if err != nil || !present {
		return false, err
	}
	return flags == FlagRedundant, nil
}
