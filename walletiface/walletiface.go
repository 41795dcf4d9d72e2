// Package walletiface declares the Bitcoin wallet contract the channel and
// swap protocols are built against, mirroring the shape of lnwallet's own
// wallet-facing interfaces (lnwallet/reservation.go, lnwallet/wallet.go):
// callers depend on this interface, never on a concrete wallet
// implementation, so protocol code can be tested against an in-memory fake.
package walletiface

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// BitcoinWallet is the Bitcoin-side wallet contract a channel or swap
// session drives: deriving addresses, funding a PSBT with its own inputs,
// signing it, broadcasting finished transactions, and observing chain
// state needed for timelock bookkeeping (median time) and transaction
// lookups (e.g. locating a punished commit transaction's parent).
type BitcoinWallet interface {
	// NewAddress returns a fresh address under this wallet's control,
	// e.g. for a party's final payout script at channel open or for a
	// swap's refund/punish/redeem address.
	NewAddress(ctx context.Context) (btcutil.Address, error)

	// BuildFundingPSBT builds a partially-signed transaction paying
	// amount to addr from this wallet's own UTXOs. Its inputs are signed
	// afterwards, by SignFundingPSBT.
	BuildFundingPSBT(ctx context.Context, addr btcutil.Address, amount int64) (*psbt.Packet, error)

	// SignFundingPSBT adds this wallet's signatures to a funding PSBT,
	// e.g. a channel's joint funding transaction or a swap's own tx_lock
	// PSBT built by BuildFundingPSBT.
	SignFundingPSBT(ctx context.Context, pkt *psbt.Packet) (*psbt.Packet, error)

	// BroadcastSignedTransaction submits a fully signed transaction to
	// the network. The library does not retry on failure; the error is
	// surfaced to the caller.
	BroadcastSignedTransaction(ctx context.Context, tx *wire.MsgTx) error

	// GetRawTransaction fetches a previously broadcast transaction by
	// txid, e.g. to inspect a published commit transaction's witness
	// during punishment.
	GetRawTransaction(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error)

	// MedianTime returns the current median-time-past, the clock a
	// relative timelock based on nSequence's time-based bit is measured
	// against.
	MedianTime(ctx context.Context) (uint32, error)
}
