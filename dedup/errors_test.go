package dedup_test

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/velmie/beetle"
	"github.com/velmie/beetle/dedup"
)

func TestMalformed(t *testing.T) {
	_, headerErr := beetle.ExpiresAtValue("tomorrow")

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "missing id", err: beetle.ErrMissingMessageID, want: true},
		{name: "wrapped missing id", err: pkgerrors.Wrap(beetle.ErrMissingMessageID, "broker"), want: true},
		{name: "header value", err: headerErr, want: true},
		{name: "store failure", err: errors.New("connection refused"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, dedup.Malformed(tt.err))
		})
	}
}
