package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBigSizeRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 0xfc, 0xfd, 0xfe, 0xff, 0xffff, 0x10000,
		0xffffffff, 0x100000000, ^uint64(0),
	}
	for _, v := range values {
		var buf bytes.Buffer
		_, err := EncodeBigSize(&buf, v)
		require.NoError(t, err)
		require.Equal(t, BigSizeLen(v), buf.Len())

		got, n, err := DecodeBigSize(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
		require.Equal(t, v, got)
		require.Equal(t, buf.Len(), n)
	}
}

func TestBigSizeRejectsNonCanonical(t *testing.T) {
	// 0xfd followed by a value that fits in a single byte is not
	// canonical.
	nonCanonical := [][]byte{
		{0xfd, 0x00, 0xfc},
		{0xfe, 0x00, 0x00, 0xff, 0xff},
		{0xff, 0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff},
	}
	for _, b := range nonCanonical {
		_, _, err := DecodeBigSize(bytes.NewReader(b))
		require.Error(t, err)
	}
}
