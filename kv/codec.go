package kv

import "strconv"

// ParseInt64 decodes a decimal string, it is the decode half of the Int64 codec.
func ParseInt64(v string) (int64, error) {
	return strconv.ParseInt(v, 10, 64)
}

// FormatInt64 encodes an integer as a decimal string.
func FormatInt64(v int64) string {
	return strconv.FormatInt(v, 10)
}

// Int64 returns a view of s holding integers under the given suffix.
func Int64(s Store[string], name string) *SuffixedStore[string, int64] {
	return Suffixed(s, name, ParseInt64, FormatInt64)
}
