package codec

import (
	"bytes"
	"fmt"
)

// EncodeUvarint writes n to out as an unsigned LEB128 varint: while n
// exceeds 0x7F it emits the low 7 bits with the continuation bit set, then
// shifts right 7; the final byte carries the continuation bit clear.
// Negative values are rejected — the wire format has no signed varint.
func EncodeUvarint(n int64, out *bytes.Buffer) error {
	if n < 0 {
		return newErr(KindInvalidInput, "EncodeUvarint", fmt.Errorf("negative varint: %d", n))
	}
	u := uint64(n)
	for u > 0x7F {
		out.WriteByte(byte(u&0x7F) | 0x80)
		u >>= 7
	}
	out.WriteByte(byte(u & 0x7F))
	return nil
}

// DecodeUvarint reads one LEB128 varint from buf starting at i, returning
// the decoded value and the index just past it. It fails with
// TruncatedVarint if the buffer ends before the continuation bit clears,
// and VarintOverflow past ten continuation bytes (shift > 70).
func DecodeUvarint(buf []byte, i int) (uint64, int, error) {
	var x uint64
	var shift uint
	for {
		if i >= len(buf) {
			return 0, i, newErr(KindTruncatedVarint, "DecodeUvarint", nil)
		}
		b := buf[i]
		i++
		x |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return x, i, nil
		}
		shift += 7
		if shift > 70 {
			return 0, i, newErr(KindVarintOverflow, "DecodeUvarint", nil)
		}
	}
}
