package channeldb

import (
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	lnwire "github.com/lncore/lncore/wire"
)

// InvoiceCodec is the external collaborator that encodes and decodes
// BOLT11 payment requests. This core stores and matches invoices by
// payment hash (see invoiceBucket) but never builds the bech32 string
// itself; InvoiceCodec is implemented outside this repo and mocked in
// tests.
type InvoiceCodec interface {
	// Decode parses a bolt11 string into its payment fields.
	Decode(bolt11 string) (*DecodedInvoice, error)

	// Encode produces the bolt11 string for an invoice this node
	// issued.
	Encode(inv *DecodedInvoice) (string, error)
}

// DecodedInvoice holds the fields a BOLT11 payment request carries that
// this core needs to validate and route a payment.
type DecodedInvoice struct {
	AmountMSat     *lnwire.MilliSatoshi
	PaymentHash    [32]byte
	PaymentSecret  [32]byte
	Features       *lnwire.FeatureVector
	CltvDelta      uint16
	Payee          *btcec.PublicKey
	HopHints       []HopHint
	CreatedAt      time.Time
	Expiry         time.Duration
}

// HopHint is a single routing hint hop embedded in an invoice for a
// destination without a public channel.
type HopHint struct {
	NodeID                    *btcec.PublicKey
	ShortChannelID            uint64
	FeeBaseMSat               uint32
	FeeProportionalMillionths uint32
	CltvExpiryDelta           uint16
}
