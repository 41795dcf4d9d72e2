package swap

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

const maxWitnessItemSize = 10_000

// decodeWitness parses a PSBT FinalScriptWitness field: a compact-size item
// count followed by each item's compact-size length and bytes. Duplicated
// from channel.decodeWitness, which is unexported across package
// boundaries; both packages finalize a signed PSBT into a broadcastable
// wire.MsgTx the same way.
func decodeWitness(raw []byte) (wire.TxWitness, error) {
	r := bytes.NewReader(raw)
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	items := make(wire.TxWitness, count)
	for i := range items {
		item, err := wire.ReadVarBytes(r, 0, maxWitnessItemSize, "witness item")
		if err != nil {
			return nil, err
		}
		items[i] = item
	}
	return items, nil
}

// finalizeSignedPSBT turns a fully (single-signer) signed tx_lock PSBT into
// its broadcastable transaction, the swap's analogue of
// channel.finalizeFundingTransaction for the simpler case of a single
// funding party.
func finalizeSignedPSBT(pkt *psbt.Packet) (*wire.MsgTx, error) {
	tx := pkt.UnsignedTx.Copy()
	for i := range tx.TxIn {
		raw := pkt.Inputs[i].FinalScriptWitness
		if len(raw) == 0 {
			return nil, fmt.Errorf("swap: funding input %d never finalized", i)
		}
		witness, err := decodeWitness(raw)
		if err != nil {
			return nil, fmt.Errorf("swap: decode funding witness %d: %w", i, err)
		}
		tx.TxIn[i].Witness = witness
	}
	return tx, nil
}
