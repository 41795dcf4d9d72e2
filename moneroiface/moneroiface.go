// Package moneroiface declares the Monero wallet contract the cross-chain
// swap protocol is built against, mirroring
// original_source/baldr/src/monero/wallet.rs's Transfer/CheckTransfer/
// ImportOutput traits.
package moneroiface

import (
	"context"

	"github.com/ptlc-labs/thor/keys"
)

// TransferProof is the evidence a transfer happened: the transaction hash
// and the private transaction key, which together let the recipient (or
// anyone else holding the corresponding view key) prove the transfer's
// destination and amount to a third party without a block explorer.
type TransferProof struct {
	TxHash []byte
	TxKey  []byte
}

// Wallet is the Monero-side wallet contract used only by the cross-chain
// swap, never by the PTLC-over-channel path.
type Wallet interface {
	// Transfer sends amount (in piconero) to the one-time address formed
	// from the swap's joint spend key S and joint public view key V, and
	// returns proof of the transfer.
	Transfer(ctx context.Context, spendKey, publicViewKey keys.MoneroPoint, amount uint64) (*TransferProof, error)

	// CheckTransfer verifies that proof attests to a transfer of exactly
	// amount to the address formed from spendKey and publicViewKey,
	// returning an error if the amount is short or the proof does not
	// check out.
	CheckTransfer(ctx context.Context, spendKey, publicViewKey keys.MoneroPoint, proof *TransferProof, amount uint64) error

	// ImportOutput makes the wallet aware of an output it can now spend,
	// once both the private spend key and private view key are known
	// (i.e. once the swap has completed and s_a or s_b has been
	// recovered from a broadcast Bitcoin transaction's witness).
	ImportOutput(ctx context.Context, privateSpendKey, privateViewKey keys.MoneroScalar) error
}
