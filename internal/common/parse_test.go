package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseUint64orHex(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{in: "0", want: 0},
		{in: "4712", want: 4712},
		{in: " 17 ", want: 17},
		{in: "0x1268", want: 4712},
		{in: "0XFF", want: 255},
		{in: "18446744073709551615", want: ^uint64(0)},
		{in: "18446744073709551616", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "0x", wantErr: true},
		{in: "contract", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUint64orHex(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestBytesToMB(t *testing.T) {
	require.Zero(t, BytesToMB(1<<20-1))
	require.Equal(t, uint64(3), BytesToMB(3<<20+512))
}

func TestToLowerWithTrim(t *testing.T) {
	require.Equal(t, "importer", ToLowerWithTrim("  Importer\n"))
}
