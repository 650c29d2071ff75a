package wire

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/stretchr/testify/require"
)

func randKey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func randSig(t *testing.T) *ecdsa.Signature {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	var msg [32]byte
	rand.Read(msg[:])
	return ecdsa.Sign(priv, msg[:])
}

func randChanID(t *testing.T) ChannelID {
	var id ChannelID
	_, err := rand.Read(id[:])
	require.NoError(t, err)
	return id
}

// roundTrip encodes msg, decodes it back via ReadMessage/WriteMessage (so
// the 2-byte type header is also exercised), and returns the decoded copy.
func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()
	var buf bytes.Buffer
	_, err := WriteMessage(&buf, msg)
	require.NoError(t, err)

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, msg.MsgType(), got.MsgType())
	return got
}

func TestInitRoundTrip(t *testing.T) {
	msg := &Init{
		GlobalFeatures: NewFeatureVector(),
		Features:       NewFeatureVector(StaticRemoteKeyOptional, AnchorsOptional),
	}
	got := roundTrip(t, msg).(*Init)
	require.True(t, got.Features.IsSet(StaticRemoteKeyOptional))
	require.True(t, got.Features.IsSet(AnchorsOptional))
}

func TestPingPongRoundTrip(t *testing.T) {
	ping := &Ping{PongLen: 10, NumPadding: 4}
	got := roundTrip(t, ping).(*Ping)
	require.Equal(t, ping.PongLen, got.PongLen)
	require.Equal(t, ping.NumPadding, got.NumPadding)

	pong := &Pong{PongBytes: []byte{1, 2, 3}}
	gotPong := roundTrip(t, pong).(*Pong)
	require.Equal(t, pong.PongBytes, gotPong.PongBytes)
}

func TestOpenChannelRoundTrip(t *testing.T) {
	msg := &OpenChannel{
		FundingSatoshis:      200_000,
		DustLimitSat:         354,
		ChannelReserveSat:    2000,
		HTLCMinimumMsat:      1,
		FeePerKW:             253,
		CSVDelay:             144,
		MaxAcceptedHTLCs:     483,
		FundingKey:           randKey(t),
		RevocationPoint:      randKey(t),
		PaymentPoint:         randKey(t),
		DelayedPaymentPoint:  randKey(t),
		HTLCPoint:            randKey(t),
		FirstCommitmentPoint: randKey(t),
		ChannelFlags:         1,
	}
	msg.TemporaryChanID = randChanID(t)

	got := roundTrip(t, msg).(*OpenChannel)
	require.Equal(t, msg.FundingSatoshis, got.FundingSatoshis)
	require.Equal(t, msg.CSVDelay, got.CSVDelay)
	require.True(t, got.ChannelFlags.AnnounceChannel())
	require.True(t, msg.FundingKey.IsEqual(got.FundingKey))
}

func TestUpdateAddHTLCRoundTrip(t *testing.T) {
	msg := &UpdateAddHTLC{
		ChanID:     randChanID(t),
		ID:         42,
		AmountMsat: 50_000,
		CLTVExpiry: 700_000,
	}
	rand.Read(msg.PaymentHash[:])
	rand.Read(msg.OnionBlob[:])

	got := roundTrip(t, msg).(*UpdateAddHTLC)
	require.Equal(t, msg.ID, got.ID)
	require.Equal(t, msg.PaymentHash, got.PaymentHash)
	require.Equal(t, msg.OnionBlob, got.OnionBlob)
}

func TestCommitmentSignedRoundTrip(t *testing.T) {
	msg := &CommitmentSigned{
		ChanID:    randChanID(t),
		CommitSig: randSig(t),
		HTLCSigs:  []*ecdsa.Signature{randSig(t), randSig(t)},
	}
	got := roundTrip(t, msg).(*CommitmentSigned)
	require.Len(t, got.HTLCSigs, 2)
}

func TestChannelReestablishRoundTrip(t *testing.T) {
	msg := &ChannelReestablish{
		ChanID:                      randChanID(t),
		NextCommitmentNumber:        7,
		NextRevocationNumber:        5,
		MyCurrentPerCommitmentPoint: randKey(t),
	}
	rand.Read(msg.YourLastPerCommitmentSecret[:])

	got := roundTrip(t, msg).(*ChannelReestablish)
	require.Equal(t, msg.NextCommitmentNumber, got.NextCommitmentNumber)
	require.Equal(t, msg.NextRevocationNumber, got.NextRevocationNumber)
	require.Equal(t, msg.YourLastPerCommitmentSecret, got.YourLastPerCommitmentSecret)
}

func TestNodeAnnouncementRoundTrip(t *testing.T) {
	alias, err := newAlias("bob")
	require.NoError(t, err)

	msg := &NodeAnnouncement{
		Signature: randSig(t),
		Features:  NewFeatureVector(GossipQueriesOptional),
		Timestamp: 1234,
		NodeID:    randKey(t),
		RGBColor:  RGB{1, 2, 3},
		Alias:     alias,
	}
	got := roundTrip(t, msg).(*NodeAnnouncement)
	require.Equal(t, msg.Timestamp, got.Timestamp)
	require.Equal(t, "bob", got.Alias.String())
	require.Equal(t, msg.RGBColor, got.RGBColor)
}

func newAlias(s string) (Alias, error) {
	var a Alias
	copy(a[:], s)
	return a, nil
}

func TestChannelUpdateRoundTrip(t *testing.T) {
	msg := &ChannelUpdate{
		Signature:                 randSig(t),
		ShortChannelID:            ShortChannelID{BlockHeight: 700000, TxIndex: 1, OutputIndex: 0},
		Timestamp:                 99,
		ChannelFlags:              1,
		CLTVExpiryDelta:           40,
		HTLCMinimumMsat:           1000,
		BaseFeeMsat:               1000,
		FeeProportionalMillionths: 1,
		HTLCMaximumMsat:           100_000_000,
	}
	got := roundTrip(t, msg).(*ChannelUpdate)
	require.Equal(t, msg.ShortChannelID, got.ShortChannelID)
	require.True(t, got.Disabled() == false)
	require.Equal(t, uint8(1), got.Direction())
}
