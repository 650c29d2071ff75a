package noise

import (
	"net"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func TestHandshakeAndFramedRoundTrip(t *testing.T) {
	initiatorKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	responderKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	clientConn, serverConn := net.Pipe()

	type result struct {
		conn *Conn
		err  error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)

	go func() {
		c, err := Dial(clientConn, initiatorKey, responderKey.PubKey())
		clientCh <- result{c, err}
	}()
	go func() {
		c, err := Accept(serverConn, responderKey)
		serverCh <- result{c, err}
	}()

	client := <-clientCh
	server := <-serverCh
	require.NoError(t, client.err)
	require.NoError(t, server.err)
	require.True(t, server.conn.RemoteStatic().IsEqual(initiatorKey.PubKey()))

	msg := []byte("lightning")
	errCh := make(chan error, 1)
	go func() { errCh <- client.conn.WriteMessage(msg) }()

	got, err := server.conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, msg, got)

	reply := []byte("network")
	go func() { errCh <- server.conn.WriteMessage(reply) }()
	got2, err := client.conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, reply, got2)
}

func TestCipherStateRotatesKeyAfterThousandMessages(t *testing.T) {
	var key, ck [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	cs := newCipherState(key, ck)

	keyBefore := cs.key
	for i := 0; i < rekeyThreshold; i++ {
		cs.Encrypt(nil, []byte("x"))
	}
	require.NotEqual(t, keyBefore, cs.key)
	require.Equal(t, uint64(0), cs.nonce)
}
