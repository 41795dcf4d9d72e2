package chanmsg

import "io"

// SecretMsg reveals a PTLC secret to the counterparty, e.g. Alice
// revealing the swap secret to Bob once her half of the atomic swap has
// gone through.
type SecretMsg struct {
	Secret [32]byte
}

func (m *SecretMsg) MsgType() MessageType     { return MsgSecret }
func (m *SecretMsg) MaxPayloadLength() uint32 { return 32 }

func (m *SecretMsg) Encode(w io.Writer) error {
	_, err := w.Write(m.Secret[:])
	return err
}

func (m *SecretMsg) Decode(r io.Reader) error {
	_, err := io.ReadFull(r, m.Secret[:])
	return err
}
