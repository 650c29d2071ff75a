package lnwallet

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ChainClient is the external collaborator this core asks to broadcast
// transactions, estimate feerates, and watch the chain for the
// confirmations and spends that drive the channel state machine forward.
// This core never talks to a full node, Electrum server, or block explorer
// directly; ChainClient is implemented outside this repo and mocked in
// tests, the same role the teacher's chainntfs.ChainNotifier plays for
// confirmation/spend/epoch notifications, generalized with broadcast and
// fee estimation folded in since this core owns the transactions it sends.
type ChainClient interface {
	// Broadcast submits tx to the network and returns its txid, or an
	// error if the chain backend rejected it outright.
	Broadcast(tx *wire.MsgTx) (*chainhash.Hash, error)

	// EstimateFeePerKw returns the current feerate, in satoshis per
	// kilo-weight-unit, that should confirm within confTarget blocks.
	EstimateFeePerKw(confTarget uint32) (btcutil.Amount, error)

	// SubscribeConfirmations registers for notification once txid
	// reaches numConfs confirmations. The returned channel receives the
	// confirming block height and transaction; it is closed if txid is
	// re-organized out before reaching that depth.
	SubscribeConfirmations(txid *chainhash.Hash, numConfs uint32) (<-chan *ConfirmationEvent, error)

	// SubscribeSpend registers for notification once the given outpoint
	// is spent by a confirmed transaction.
	SubscribeSpend(op wire.OutPoint) (<-chan *wire.MsgTx, error)

	// SubscribeTip streams each new block connected to the best chain.
	SubscribeTip() (<-chan *BlockEpoch, error)

	// ListUTXOs returns the unspent outputs paying to any of the given
	// scripts, for wallet funding and fee bumping.
	ListUTXOs(scripts [][]byte) ([]*Utxo, error)
}

// ConfirmationEvent carries the height and transaction once a
// SubscribeConfirmations request reaches its target depth.
type ConfirmationEvent struct {
	Height uint32
	Tx     *wire.MsgTx
}

// BlockEpoch describes one block connected to the best chain.
type BlockEpoch struct {
	Height uint32
	Hash   chainhash.Hash
}

// Utxo is a spendable output reported by ListUTXOs.
type Utxo struct {
	OutPoint wire.OutPoint
	Value    btcutil.Amount
	PkScript []byte
}
