package beetle_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velmie/beetle"
)

type textValue string

func (v textValue) String() string { return string(v) }

type opaque struct{ n int }

func TestExpiresAtValue(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    int64
		wantErr string
	}{
		{name: "absent", value: nil, want: math.MaxInt64},
		{name: "int64", value: int64(1700000000), want: 1700000000},
		{name: "int32", value: int32(12), want: 12},
		{name: "uint8", value: uint8(7), want: 7},
		{name: "float64", value: float64(1700000000.9), want: 1700000000},
		{name: "string", value: "1700000000", want: 1700000000},
		{name: "bytes", value: []byte("1700000000"), want: 1700000000},
		{name: "stringer", value: textValue("1700000000"), want: 1700000000},
		{name: "uint64_max_int64", value: uint64(math.MaxInt64), want: math.MaxInt64},
		{name: "uint64_overflow", value: uint64(math.MaxInt64) + 1, wantErr: "unexpected expires_at header value uint64"},
		{name: "non_numeric_string", value: "never", wantErr: "unexpected expires_at header value string"},
		{name: "non_numeric_object", value: opaque{n: 1}, wantErr: "unexpected expires_at header value beetle_test.opaque"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := beetle.ExpiresAtValue(tt.value)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				var valueErr *beetle.HeaderValueError
				require.True(t, errors.As(err, &valueErr))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRedundantValue(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    bool
		wantErr bool
	}{
		{name: "absent", value: nil, want: false},
		{name: "int_flag", value: 1, want: true},
		{name: "int64_flag", value: int64(1), want: true},
		{name: "other_number", value: int32(3), want: false},
		{name: "zero", value: 0, want: false},
		{name: "string_flag", value: "1", want: true},
		{name: "string_other", value: "2", want: false},
		{name: "stringer_flag", value: textValue("1"), want: true},
		{name: "stringer_other", value: textValue("0"), want: false},
		{name: "garbage", value: opaque{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := beetle.RedundantValue(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
