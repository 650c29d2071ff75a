package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTLVStreamRoundTrip(t *testing.T) {
	records := []Record{
		{Type: 1, Value: []byte("a")},
		{Type: 3, Value: []byte("bcd")},
		{Type: 500, Value: nil},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeStream(&buf, records))

	got, err := DecodeStream(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, records, got)
}

func TestTLVStreamRejectsOutOfOrder(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeStream(&buf, []Record{
		{Type: 5, Value: []byte("x")},
		{Type: 2, Value: []byte("y")},
	})
	require.Error(t, err)
}

func TestTLVStreamRejectsDuplicateOrDecreasingOnDecode(t *testing.T) {
	// Hand-craft a stream with type 2 twice.
	var buf bytes.Buffer
	EncodeBigSize(&buf, 2)
	EncodeBigSize(&buf, 1)
	buf.WriteByte('a')
	EncodeBigSize(&buf, 2)
	EncodeBigSize(&buf, 1)
	buf.WriteByte('b')

	_, err := DecodeStream(buf.Bytes())
	require.Error(t, err)
}

func TestFeatureVectorUnknownEvenBits(t *testing.T) {
	fv := NewFeatureVector(StaticRemoteKeyRequired, AnchorsOptional)
	known := map[FeatureBit]struct{}{
		StaticRemoteKeyOptional: {}, StaticRemoteKeyRequired: {},
		AnchorsOptional: {}, AnchorsRequired: {},
	}
	require.Empty(t, fv.UnknownEvenBits(known))

	fv.Set(FeatureBit(44))
	require.Equal(t, []FeatureBit{44}, fv.UnknownEvenBits(known))
}

func TestFeatureVectorEncodeDecode(t *testing.T) {
	fv := NewFeatureVector(DataLossProtectOptional, AnchorsRequired)

	var buf bytes.Buffer
	require.NoError(t, fv.Encode(&buf))

	got, err := DecodeFeatureVector(&buf)
	require.NoError(t, err)
	require.True(t, got.IsSet(DataLossProtectOptional))
	require.True(t, got.IsSet(AnchorsRequired))
	require.False(t, got.IsSet(StaticRemoteKeyRequired))
}
