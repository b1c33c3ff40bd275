package codec

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeUvarintRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []int64{0, 1, 0x7F, 0x80, 0x3FFF, 0x4000, 1 << 20, 1 << 34, 1<<62 - 1}
	for _, n := range cases {
		var buf bytes.Buffer
		if err := EncodeUvarint(n, &buf); err != nil {
			t.Fatalf("encode(%d): %v", n, err)
		}
		got, i, err := DecodeUvarint(buf.Bytes(), 0)
		if err != nil {
			t.Fatalf("decode(%d): %v", n, err)
		}
		if got != uint64(n) {
			t.Errorf("n=%d: got %d", n, got)
		}
		if i != buf.Len() {
			t.Errorf("n=%d: consumed %d of %d bytes", n, i, buf.Len())
		}
	}
}

func TestEncodeUvarintNegativeRejected(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := EncodeUvarint(-1, &buf)
	if !IsKind(err, KindInvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestDecodeUvarintTruncated(t *testing.T) {
	t.Parallel()

	_, _, err := DecodeUvarint([]byte{0x80}, 0)
	if !IsKind(err, KindTruncatedVarint) {
		t.Fatalf("expected TruncatedVarint, got %v", err)
	}
}

func TestDecodeUvarintOverflow(t *testing.T) {
	t.Parallel()

	buf := bytes.Repeat([]byte{0x80}, 11)
	_, _, err := DecodeUvarint(buf, 0)
	if !IsKind(err, KindVarintOverflow) {
		t.Fatalf("expected VarintOverflow, got %v", err)
	}
}

func TestEncodeUvarintSingleByteBoundary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := EncodeUvarint(0x7F, &buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 1 {
		t.Fatalf("expected 1 byte for 0x7F, got %d", buf.Len())
	}

	buf.Reset()
	if err := EncodeUvarint(0x80, &buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 2 {
		t.Fatalf("expected 2 bytes for 0x80, got %d", buf.Len())
	}
}
