package chanmsg

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Close0 is the single round of a collaborative close: each party signs
// the close transaction (two balance outputs) and sends its signature;
// either party can then aggregate both into a fully signed transaction.
type Close0 struct {
	Sig *ecdsa.Signature
}

func (m *Close0) MsgType() MessageType     { return MsgClose0 }
func (m *Close0) MaxPayloadLength() uint32 { return 80 }

func (m *Close0) Encode(w io.Writer) error { return writeEcdsaSig(w, m.Sig) }
func (m *Close0) Decode(r io.Reader) error {
	sig, err := readEcdsaSig(r)
	if err != nil {
		return err
	}
	m.Sig = sig
	return nil
}
