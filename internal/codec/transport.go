package codec

import (
	"bytes"
	"encoding/base64"
	"io"

	"github.com/klauspost/compress/flate"
)

// deflateRawB64 compresses data as raw DEFLATE (no zlib header/trailer) at
// maximum compression and returns it as URL-safe base64 text.
func deflateRawB64(data []byte) (string, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", newErr(KindInvalidInput, "deflateRawB64", err)
	}
	if _, err := w.Write(data); err != nil {
		return "", newErr(KindInvalidInput, "deflateRawB64", err)
	}
	if err := w.Close(); err != nil {
		return "", newErr(KindInvalidInput, "deflateRawB64", err)
	}
	return base64.URLEncoding.EncodeToString(buf.Bytes()), nil
}

// inflateRawB64 is the inverse of deflateRawB64. Decoding is padding
// agnostic: it accepts both padded and unpadded URL-safe base64.
func inflateRawB64(token string) ([]byte, error) {
	data, err := decodeB64URLPaddingAgnostic(token)
	if err != nil {
		return nil, err
	}
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}

func decodeB64URLPaddingAgnostic(token string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(token); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(token)
}
