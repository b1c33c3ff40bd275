package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record kinds — the first byte of every uncompressed record.
const (
	recHeader = 0x48 // 'H'
	recFrame  = 0x46 // 'F'
	recRaw    = 0x58 // 'X'

	hSingleAsset = 1 << 0
	v3Version    = 3
)

// SessionCompressor is the stateful V3 producer. It emits a header lazily
// on the first call to Compress, delta-encodes timestamps, pools recurring
// strings across the session, and returns opaque base64url lines.
//
// A SessionCompressor is not safe for concurrent use; the caller (the
// websocket collaborator) must serialize calls to Compress.
type SessionCompressor struct {
	assetID     string
	pool        *stringPool
	baseTS      int64
	prevTS      *int64
	wroteHeader bool
}

// NewSessionCompressor creates a compressor for a single asset. The header
// is not emitted until the first frame is compressed.
func NewSessionCompressor(assetID string) *SessionCompressor {
	return &SessionCompressor{
		assetID: assetID,
		pool:    newStringPool(),
	}
}

// PoolSize returns the number of strings interned so far this session, for
// progress reporting and checkpointing.
func (sc *SessionCompressor) PoolSize() int {
	return sc.pool.next - 1
}

// Compress encodes one raw frame — a JSON object, a JSON array of events,
// a bare JSON scalar, or non-JSON text such as a heartbeat — into one or
// two opaque lines. The first call returns [header, frame]; later calls in
// the same session return a single frame line.
func (sc *SessionCompressor) Compress(rawFrame string) ([]string, error) {
	var obj any
	dec := json.NewDecoder(strings.NewReader(rawFrame))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil || dec.More() {
		return sc.compressRawText(rawFrame)
	}

	switch v := obj.(type) {
	case map[string]any:
		return sc.compressEvents([]any{v})
	case []any:
		return sc.compressEvents(v)
	default:
		b, err := json.Marshal(obj)
		if err != nil {
			return nil, newErr(KindInvalidInput, "Compress", err)
		}
		return sc.compressRawText(string(b))
	}
}

func (sc *SessionCompressor) compressEvents(events []any) ([]string, error) {
	var firstTS *int64
	for _, e := range events {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if ts, ok := getTS(m); ok {
			v := ts
			firstTS = &v
			break
		}
	}

	var lines []string
	header, err := sc.ensureHeader(firstTS)
	if err != nil {
		return nil, err
	}
	if header != "" {
		lines = append(lines, header)
	}

	cleaned := make([]map[string]any, 0, len(events))
	for _, e := range events {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, newErr(KindInvalidInput, "Compress", fmt.Errorf("event is not an object"))
		}
		delete(m, "market")
		delete(m, "hash")
		cleaned = append(cleaned, m)
	}

	var out bytes.Buffer
	out.WriteByte(recFrame)
	if err := EncodeUvarint(int64(len(cleaned)), &out); err != nil {
		return nil, err
	}
	for _, ev := range cleaned {
		if err := sc.encodeEvent(ev, &out); err != nil {
			return nil, err
		}
	}
	line, err := deflateRawB64(out.Bytes())
	if err != nil {
		return nil, err
	}
	lines = append(lines, line)
	return lines, nil
}

func (sc *SessionCompressor) compressRawText(text string) ([]string, error) {
	header, err := sc.ensureHeader(nil)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	out.WriteByte(recRaw)
	if err := sc.pool.encode(text, &out); err != nil {
		return nil, err
	}
	line, err := deflateRawB64(out.Bytes())
	if err != nil {
		return nil, err
	}
	if header != "" {
		return []string{header, line}, nil
	}
	return []string{line}, nil
}

// ensureHeader emits the session header the first time it is called and is
// a no-op thereafter. base_ts is the first numeric timestamp seen so far,
// or 0 if none; the pool is reset so the header boundary starts a fresh
// dictionary.
func (sc *SessionCompressor) ensureHeader(firstTS *int64) (string, error) {
	if sc.wroteHeader {
		return "", nil
	}
	if firstTS != nil {
		sc.baseTS = *firstTS
	} else {
		sc.baseTS = 0
	}
	v := sc.baseTS
	sc.prevTS = &v

	var out bytes.Buffer
	out.WriteByte(recHeader)
	if err := EncodeUvarint(v3Version, &out); err != nil {
		return "", err
	}
	if err := EncodeUvarint(hSingleAsset, &out); err != nil {
		return "", err
	}
	if err := EncodeUvarint(sc.baseTS, &out); err != nil {
		return "", err
	}
	if err := EncodeUvarint(1, &out); err != nil {
		return "", err
	}
	aid := []byte(sc.assetID)
	if err := EncodeUvarint(int64(len(aid)), &out); err != nil {
		return "", err
	}
	out.Write(aid)

	sc.wroteHeader = true
	sc.pool.reset()

	return deflateRawB64(out.Bytes())
}

// encodeEvent applies the timestamp delta law and writes the type byte,
// ts_delta, and per-type payload for one event.
func (sc *SessionCompressor) encodeEvent(ev map[string]any, out *bytes.Buffer) error {
	etStr := getString(ev, "event_type")
	etCode, ok := etCodeFromName(etStr)
	if !ok {
		return newErr(KindUnknownEventType, "encodeEvent", fmt.Errorf("unknown event_type %q", etStr))
	}

	ts, hasTS := getTS(ev)
	var tsVal int64
	tsAbs := false
	if sc.prevTS == nil || !hasTS {
		if hasTS {
			tsVal = ts
		}
		tsAbs = true
		if hasTS {
			v := ts
			sc.prevTS = &v
		}
	} else {
		if ts >= *sc.prevTS {
			tsVal = ts - *sc.prevTS
		} else {
			tsVal = ts
			tsAbs = true
		}
		v := ts
		sc.prevTS = &v
	}

	tb := byte(etCode) & tbTypeMask
	if tsAbs {
		tb |= tbTSAbs
	}
	if _, hasFee := ev["fee_rate_bps"]; hasFee && etCode == etLastTradePrice {
		tb |= tbOpt0
	}

	out.WriteByte(tb)
	if err := EncodeUvarint(tsVal, out); err != nil {
		return err
	}

	switch etCode {
	case etBook:
		return encodeBook(ev, sc.pool, out)
	case etPriceChange:
		return encodePriceChange(ev, sc.pool, out)
	case etTickSizeChange:
		return encodeTickSizeChange(ev, sc.pool, out)
	case etLastTradePrice:
		return encodeLastTradePrice(ev, tb, sc.pool, out)
	}
	return nil
}

// SessionDecompressor is the stateful V3 consumer. It mirrors
// SessionCompressor's state machine: a header establishes the asset id(s),
// base timestamp, and a fresh pool; subsequent frame/raw records are decoded
// against that state.
//
// A SessionDecompressor is not safe for concurrent use.
type SessionDecompressor struct {
	pool       *stringPool
	baseTS     int64
	prevTS     *int64
	assetIDs   []string
	flags      int64
	haveHeader bool
}

// NewSessionDecompressor creates a decompressor with no session established.
func NewSessionDecompressor() *SessionDecompressor {
	return &SessionDecompressor{pool: newStringPool()}
}

// Reset returns the decompressor to its pre-header state.
func (sd *SessionDecompressor) Reset() {
	sd.pool = newStringPool()
	sd.baseTS = 0
	sd.prevTS = nil
	sd.assetIDs = nil
	sd.flags = 0
	sd.haveHeader = false
}

// TryDecodeLine attempts to interpret token as a V3 line. A nil slice with
// a nil error means "not V3" — the line fails base64/DEFLATE decoding, is
// empty, or its first byte does not name a known record kind; callers
// (the tolerant reinflater) should try the next strategy. A non-nil slice
// (possibly empty, for a header record) is the set of JSON texts this line
// produced. A non-nil error is fatal for the line (or, for
// UnsupportedVersion, the session).
func (sd *SessionDecompressor) TryDecodeLine(token string) ([]string, error) {
	buf, err := inflateRawB64(token)
	if err != nil || len(buf) == 0 {
		return nil, nil
	}

	i := 0
	kind := buf[i]
	i++

	switch kind {
	case recHeader:
		if err := sd.decodeHeader(buf, i); err != nil {
			return nil, err
		}
		return []string{}, nil
	case recFrame:
		js, _, err := sd.decodeFrame(buf, i)
		if err != nil {
			return nil, err
		}
		return []string{js}, nil
	case recRaw:
		js, _, err := sd.decodeRaw(buf, i)
		if err != nil {
			return nil, err
		}
		return []string{js}, nil
	default:
		return nil, nil
	}
}

func (sd *SessionDecompressor) decodeHeader(buf []byte, i int) error {
	ver, i, err := DecodeUvarint(buf, i)
	if err != nil {
		return err
	}
	if ver != v3Version {
		return newErr(KindUnsupportedVersion, "decodeHeader", fmt.Errorf("version %d", ver))
	}
	flags, i, err := DecodeUvarint(buf, i)
	if err != nil {
		return err
	}
	baseTS, i, err := DecodeUvarint(buf, i)
	if err != nil {
		return err
	}
	sd.baseTS = int64(baseTS)
	v := sd.baseTS
	sd.prevTS = &v
	sd.flags = int64(flags)
	sd.pool.reset()

	assetCount, i, err := DecodeUvarint(buf, i)
	if err != nil {
		return err
	}
	ids := make([]string, 0, assetCount)
	for k := uint64(0); k < assetCount; k++ {
		ln, ni, err := DecodeUvarint(buf, i)
		if err != nil {
			return err
		}
		i = ni
		n := int(ln)
		if n < 0 || i+n > len(buf) {
			return newErr(KindLiteralOverflow, "decodeHeader", fmt.Errorf("asset id truncated"))
		}
		ids = append(ids, string(buf[i:i+n]))
		i += n
	}
	sd.assetIDs = ids
	sd.haveHeader = true
	return nil
}

func (sd *SessionDecompressor) decodeLevels(buf []byte, i int) ([]Level, int, error) {
	n, i, err := DecodeUvarint(buf, i)
	if err != nil {
		return nil, i, err
	}
	out := make([]Level, 0, n)
	for k := uint64(0); k < n; k++ {
		p, ni, err := sd.pool.decode(buf, i)
		if err != nil {
			return nil, i, err
		}
		i = ni
		s, ni2, err := sd.pool.decode(buf, i)
		if err != nil {
			return nil, i, err
		}
		i = ni2
		out = append(out, Level{Price: p, Size: s})
	}
	return out, i, nil
}

// decodeEvent decodes one event from buf at i, applying the timestamp
// delta/absolute law symmetrically with encodeEvent, and returns its
// compact JSON encoding.
func (sd *SessionDecompressor) decodeEvent(buf []byte, i int) (json.RawMessage, int, error) {
	if i >= len(buf) {
		return nil, i, newErr(KindTruncatedVarint, "decodeEvent", nil)
	}
	tb := buf[i]
	i++
	etCode := int(tb & tbTypeMask)
	tsAbs := tb&tbTSAbs != 0
	etName, ok := etNameFromCode(etCode)
	if !ok {
		return nil, i, newErr(KindUnknownEventType, "decodeEvent", fmt.Errorf("code %d", etCode))
	}

	tsv, i, err := DecodeUvarint(buf, i)
	if err != nil {
		return nil, i, err
	}
	var ts int64
	if tsAbs || sd.prevTS == nil {
		ts = int64(tsv)
	} else {
		ts = *sd.prevTS + int64(tsv)
	}
	v := ts
	sd.prevTS = &v

	assetID := ""
	if len(sd.assetIDs) > 0 {
		assetID = sd.assetIDs[0]
	}
	tsStr := strconv.FormatInt(ts, 10)

	switch etCode {
	case etBook:
		bids, ni, err := sd.decodeLevels(buf, i)
		if err != nil {
			return nil, i, err
		}
		i = ni
		asks, ni2, err := sd.decodeLevels(buf, i)
		if err != nil {
			return nil, i, err
		}
		i = ni2
		b, err := json.Marshal(BookEvent{
			EventType: etName, AssetID: assetID, Timestamp: tsStr, Bids: bids, Asks: asks,
		})
		return json.RawMessage(b), i, err

	case etPriceChange:
		n, ni, err := DecodeUvarint(buf, i)
		if err != nil {
			return nil, i, err
		}
		i = ni
		changes := make([]Change, 0, n)
		for k := uint64(0); k < n; k++ {
			if i >= len(buf) {
				return nil, i, newErr(KindTruncatedVarint, "decodeEvent", nil)
			}
			sideByte := buf[i]
			i++
			side := "BUY"
			if sideByte == 1 {
				side = "SELL"
			}
			price, ni2, err := sd.pool.decode(buf, i)
			if err != nil {
				return nil, i, err
			}
			i = ni2
			size, ni3, err := sd.pool.decode(buf, i)
			if err != nil {
				return nil, i, err
			}
			i = ni3
			changes = append(changes, Change{Side: side, Price: price, Size: size})
		}
		b, err := json.Marshal(PriceChangeEvent{
			EventType: etName, AssetID: assetID, Timestamp: tsStr, Changes: changes,
		})
		return json.RawMessage(b), i, err

	case etTickSizeChange:
		oldTick, ni, err := sd.pool.decode(buf, i)
		if err != nil {
			return nil, i, err
		}
		i = ni
		newTick, ni2, err := sd.pool.decode(buf, i)
		if err != nil {
			return nil, i, err
		}
		i = ni2
		b, err := json.Marshal(TickSizeChangeEvent{
			EventType: etName, AssetID: assetID, Timestamp: tsStr,
			OldTickSize: oldTick, NewTickSize: newTick,
		})
		return json.RawMessage(b), i, err

	case etLastTradePrice:
		price, ni, err := sd.pool.decode(buf, i)
		if err != nil {
			return nil, i, err
		}
		i = ni
		size, ni2, err := sd.pool.decode(buf, i)
		if err != nil {
			return nil, i, err
		}
		i = ni2
		if i >= len(buf) {
			return nil, i, newErr(KindTruncatedVarint, "decodeEvent", nil)
		}
		sideByte := buf[i]
		i++
		side := "BUY"
		if sideByte == 1 {
			side = "SELL"
		}
		ev := LastTradePriceEvent{
			EventType: etName, AssetID: assetID, Timestamp: tsStr,
			Price: price, Size: size, Side: side,
		}
		if tb&tbOpt0 != 0 {
			fee, ni3, err := sd.pool.decode(buf, i)
			if err != nil {
				return nil, i, err
			}
			i = ni3
			ev.FeeRateBps = &fee
		}
		b, err := json.Marshal(ev)
		return json.RawMessage(b), i, err
	}

	return nil, i, newErr(KindUnknownEventType, "decodeEvent", nil)
}

func (sd *SessionDecompressor) decodeFrame(buf []byte, i int) (string, int, error) {
	n, i, err := DecodeUvarint(buf, i)
	if err != nil {
		return "", i, err
	}
	parts := make([]string, 0, n)
	for k := uint64(0); k < n; k++ {
		raw, ni, err := sd.decodeEvent(buf, i)
		if err != nil {
			return "", i, err
		}
		i = ni
		parts = append(parts, string(raw))
	}
	return "[" + strings.Join(parts, ",") + "]", i, nil
}

func (sd *SessionDecompressor) decodeRaw(buf []byte, i int) (string, int, error) {
	s, i, err := sd.pool.decode(buf, i)
	if err != nil {
		return "", i, err
	}
	b, err := json.Marshal(s)
	return string(b), i, err
}
