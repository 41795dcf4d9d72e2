package chanmsg

import (
	"io"

	"github.com/ptlc-labs/thor/keys"
)

// SwapPtlcPropose is sent by the redeemer (the "Alice" role of a
// swap-conducted-over-a-channel) ahead of the Update call that embeds the
// PTLC, so both parties build byte-identical PtlcOutputs and split
// transactions: the funder can't choose the point, amount, or timelock
// itself, only accept or reject them.
type SwapPtlcPropose struct {
	Point          keys.PtlcPoint
	Amount         int64
	RefundTimeLock uint32
}

func (m *SwapPtlcPropose) MsgType() MessageType     { return MsgSwapPtlcPropose }
func (m *SwapPtlcPropose) MaxPayloadLength() uint32 { return 33 + 8 + 4 }

func (m *SwapPtlcPropose) Encode(w io.Writer) error {
	if err := writePtlcPoint(w, m.Point); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(m.Amount)); err != nil {
		return err
	}
	return writeUint32(w, m.RefundTimeLock)
}

func (m *SwapPtlcPropose) Decode(r io.Reader) error {
	point, err := readPtlcPoint(r)
	if err != nil {
		return err
	}
	amount, err := readUint64(r)
	if err != nil {
		return err
	}
	timeLock, err := readUint32(r)
	if err != nil {
		return err
	}
	m.Point, m.Amount, m.RefundTimeLock = point, int64(amount), timeLock
	return nil
}

// SwapPtlcAccept is the funder's reply to SwapPtlcPropose: a bare
// acknowledgement that it will proceed to negotiate the same PTLC via
// Update.
type SwapPtlcAccept struct{}

func (m *SwapPtlcAccept) MsgType() MessageType     { return MsgSwapPtlcAccept }
func (m *SwapPtlcAccept) MaxPayloadLength() uint32 { return 0 }
func (m *SwapPtlcAccept) Encode(w io.Writer) error { return nil }
func (m *SwapPtlcAccept) Decode(r io.Reader) error { return nil }
