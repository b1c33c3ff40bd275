package codec

import (
	"bytes"
	"encoding/json"
	"reflect"
	"testing"
)

const testAsset = "A"

// feedLine pushes a line through the decompressor and returns the JSON
// texts it produced, failing the test on any decode error.
func feedLine(t *testing.T, sd *SessionDecompressor, line string) []string {
	t.Helper()
	out, err := sd.TryDecodeLine(line)
	if err != nil {
		t.Fatalf("TryDecodeLine(%q): %v", line, err)
	}
	if out == nil {
		t.Fatalf("TryDecodeLine(%q): unexpectedly reported not-V3", line)
	}
	return out
}

func mustCompress(t *testing.T, sc *SessionCompressor, frame string) []string {
	t.Helper()
	lines, err := sc.Compress(frame)
	if err != nil {
		t.Fatalf("Compress(%q): %v", frame, err)
	}
	return lines
}

// assertJSONEqual compares two JSON texts structurally (field order in the
// *encoded* bytes is normative per the scenario tests below, but comparing
// decoded values keeps the test robust to incidental whitespace).
func assertJSONEqual(t *testing.T, want, got string) {
	t.Helper()
	var wv, gv any
	if err := json.Unmarshal([]byte(want), &wv); err != nil {
		t.Fatalf("invalid want JSON %q: %v", want, err)
	}
	if err := json.Unmarshal([]byte(got), &gv); err != nil {
		t.Fatalf("invalid got JSON %q: %v", got, err)
	}
	if !reflect.DeepEqual(wv, gv) {
		t.Errorf("want %s, got %s", want, got)
	}
}

// TestScenarios_EndToEnd runs the six concrete scenarios from spec.md §8 in
// sequence against one session, asset A.
func TestScenarios_EndToEnd(t *testing.T) {
	sc := NewSessionCompressor(testAsset)
	sd := NewSessionDecompressor()

	// 1. Book snapshot.
	in1 := `[{"event_type":"book","asset_id":"A","market":"m","hash":"h","timestamp":"1000","bids":[{"price":"0.5","size":"10"}],"asks":[{"price":"0.6","size":"5"}]}]`
	lines := mustCompress(t, sc, in1)
	if len(lines) != 2 {
		t.Fatalf("scenario 1: want [header, frame], got %d lines", len(lines))
	}
	if out := feedLine(t, sd, lines[0]); len(out) != 0 {
		t.Fatalf("header line produced output: %v", out)
	}
	out := feedLine(t, sd, lines[1])
	if len(out) != 1 {
		t.Fatalf("scenario 1: want 1 frame output, got %d", len(out))
	}
	assertJSONEqual(t, `[{"event_type":"book","asset_id":"A","timestamp":"1000","bids":[{"price":"0.5","size":"10"}],"asks":[{"price":"0.6","size":"5"}]}]`, out[0])

	// 2. Price change with delta; "0.5" is already interned from scenario 1.
	in2 := `[{"event_type":"price_change","asset_id":"A","timestamp":"1050","changes":[{"side":"sell","price":"0.5","size":"0"}]}]`
	lines = mustCompress(t, sc, in2)
	if len(lines) != 1 {
		t.Fatalf("scenario 2: expected a single frame line (no header), got %d", len(lines))
	}
	out = feedLine(t, sd, lines[0])
	assertJSONEqual(t, `[{"event_type":"price_change","asset_id":"A","timestamp":"1050","changes":[{"side":"SELL","price":"0.5","size":"0"}]}]`, out[0])

	// 3. Backwards timestamp forces an absolute encoding.
	in3 := `[{"event_type":"last_trade_price","asset_id":"A","timestamp":"900","price":"0.55","size":"2","side":"BUY"}]`
	lines = mustCompress(t, sc, in3)
	out = feedLine(t, sd, lines[0])
	assertJSONEqual(t, `[{"event_type":"last_trade_price","asset_id":"A","timestamp":"900","price":"0.55","size":"2","side":"BUY"}]`, out[0])

	// 4. LTP with fee_rate_bps.
	in4 := `[{"event_type":"last_trade_price","asset_id":"A","timestamp":"1100","price":"0.55","size":"2","side":"BUY","fee_rate_bps":"25"}]`
	lines = mustCompress(t, sc, in4)
	out = feedLine(t, sd, lines[0])
	assertJSONEqual(t, `[{"event_type":"last_trade_price","asset_id":"A","timestamp":"1100","price":"0.55","size":"2","side":"BUY","fee_rate_bps":"25"}]`, out[0])

	// 5. Tick-size change round trips exactly.
	in5 := `[{"event_type":"tick_size_change","asset_id":"A","timestamp":"1200","old_tick_size":"0.01","new_tick_size":"0.001"}]`
	lines = mustCompress(t, sc, in5)
	out = feedLine(t, sd, lines[0])
	assertJSONEqual(t, `[{"event_type":"tick_size_change","asset_id":"A","timestamp":"1200","old_tick_size":"0.01","new_tick_size":"0.001"}]`, out[0])

	// 6. Heartbeat text (not JSON) becomes a RAW record.
	lines = mustCompress(t, sc, "PONG")
	if len(lines) != 1 {
		t.Fatalf("scenario 6: expected a single RAW line (header already written), got %d", len(lines))
	}
	out = feedLine(t, sd, lines[0])
	if len(out) != 1 || out[0] != `"PONG"` {
		t.Fatalf(`scenario 6: want ["PONG"], got %v`, out)
	}
}

func TestCompressFirstCallEmitsHeader(t *testing.T) {
	t.Parallel()

	sc := NewSessionCompressor(testAsset)
	lines, err := sc.Compress(`{"event_type":"tick_size_change","asset_id":"A","timestamp":"1","old_tick_size":"0.01","new_tick_size":"0.001"}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("want 2 lines (header+frame), got %d", len(lines))
	}

	lines2, err := sc.Compress(`{"event_type":"tick_size_change","asset_id":"A","timestamp":"2","old_tick_size":"0.01","new_tick_size":"0.001"}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines2) != 1 {
		t.Fatalf("header idempotence violated: want 1 line on second call, got %d", len(lines2))
	}
}

func TestEmptyLevelsRoundTrip(t *testing.T) {
	t.Parallel()

	sc := NewSessionCompressor(testAsset)
	sd := NewSessionDecompressor()

	lines := mustCompress(t, sc, `[{"event_type":"book","asset_id":"A","timestamp":"1","bids":[],"asks":[]}]`)
	for _, l := range lines[:len(lines)-1] {
		feedLine(t, sd, l)
	}
	out := feedLine(t, sd, lines[len(lines)-1])
	assertJSONEqual(t, `[{"event_type":"book","asset_id":"A","timestamp":"1","bids":[],"asks":[]}]`, out[0])
}

func TestDuplicateLevelsInternOnce(t *testing.T) {
	t.Parallel()

	sc := NewSessionCompressor(testAsset)
	sd := NewSessionDecompressor()

	lines := mustCompress(t, sc, `[{"event_type":"book","asset_id":"A","timestamp":"1","bids":[{"price":"0.5","size":"10"},{"price":"0.5","size":"10"}],"asks":[]}]`)
	var frameLine string
	for _, l := range lines {
		out, err := sd.TryDecodeLine(l)
		if err != nil {
			t.Fatal(err)
		}
		if len(out) == 1 {
			frameLine = out[0]
		}
	}
	assertJSONEqual(t, `[{"event_type":"book","asset_id":"A","timestamp":"1","bids":[{"price":"0.5","size":"10"},{"price":"0.5","size":"10"}],"asks":[]}]`, frameLine)
}

func TestPriceChangeMixedSidesAndZeroSize(t *testing.T) {
	t.Parallel()

	sc := NewSessionCompressor(testAsset)
	sd := NewSessionDecompressor()

	lines := mustCompress(t, sc, `[{"event_type":"price_change","asset_id":"A","timestamp":"5","changes":[{"side":"buy","price":"0.1","size":"0"},{"side":"SELL","price":"0.2","size":"3"}]}]`)
	var frame string
	for _, l := range lines {
		out := feedLine(t, sd, l)
		if len(out) == 1 {
			frame = out[0]
		}
	}
	assertJSONEqual(t, `[{"event_type":"price_change","asset_id":"A","timestamp":"5","changes":[{"side":"BUY","price":"0.1","size":"0"},{"side":"SELL","price":"0.2","size":"3"}]}]`, frame)
}

func TestPriceChangeMissingChangesIsEmptyArray(t *testing.T) {
	t.Parallel()

	sc := NewSessionCompressor(testAsset)
	sd := NewSessionDecompressor()

	lines := mustCompress(t, sc, `[{"event_type":"price_change","asset_id":"A","timestamp":"5"}]`)
	var frame string
	for _, l := range lines {
		out := feedLine(t, sd, l)
		if len(out) == 1 {
			frame = out[0]
		}
	}
	assertJSONEqual(t, `[{"event_type":"price_change","asset_id":"A","timestamp":"5","changes":[]}]`, frame)
}

func TestBookAliasesBuysSells(t *testing.T) {
	t.Parallel()

	sc := NewSessionCompressor(testAsset)
	sd := NewSessionDecompressor()

	lines := mustCompress(t, sc, `[{"event_type":"book","asset_id":"A","timestamp":"1","buys":[{"price":"0.4","size":"1"}],"sells":[{"price":"0.6","size":"2"}]}]`)
	var frame string
	for _, l := range lines {
		out := feedLine(t, sd, l)
		if len(out) == 1 {
			frame = out[0]
		}
	}
	assertJSONEqual(t, `[{"event_type":"book","asset_id":"A","timestamp":"1","bids":[{"price":"0.4","size":"1"}],"asks":[{"price":"0.6","size":"2"}]}]`, frame)
}

func TestMarketAndHashAreStripped(t *testing.T) {
	t.Parallel()

	sc := NewSessionCompressor(testAsset)
	sd := NewSessionDecompressor()

	lines := mustCompress(t, sc, `[{"event_type":"book","asset_id":"A","market":"should-vanish","hash":"also-vanish","timestamp":"1","bids":[],"asks":[]}]`)
	var frame string
	for _, l := range lines {
		out := feedLine(t, sd, l)
		if len(out) == 1 {
			frame = out[0]
		}
	}
	var decoded []map[string]any
	if err := json.Unmarshal([]byte(frame), &decoded); err != nil {
		t.Fatal(err)
	}
	for _, ev := range decoded {
		if _, ok := ev["market"]; ok {
			t.Error("market key leaked through")
		}
		if _, ok := ev["hash"]; ok {
			t.Error("hash key leaked through")
		}
	}
}

func TestUnknownEventTypeFailsEncode(t *testing.T) {
	t.Parallel()

	sc := NewSessionCompressor(testAsset)
	_, err := sc.Compress(`[{"event_type":"unknown_thing","asset_id":"A","timestamp":"1"}]`)
	if !IsKind(err, KindUnknownEventType) {
		t.Fatalf("want UnknownEventType, got %v", err)
	}
}

func TestUnknownRecordKindIsNotV3(t *testing.T) {
	t.Parallel()

	sd := NewSessionDecompressor()
	line, err := deflateRawB64([]byte{0x99, 1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	out, err := sd.TryDecodeLine(line)
	if err != nil {
		t.Fatalf("expected nil error (not-V3), got %v", err)
	}
	if out != nil {
		t.Fatalf("expected not-V3 (nil), got %v", out)
	}
}

func TestUnsupportedVersionIsFatal(t *testing.T) {
	t.Parallel()

	sd := NewSessionDecompressor()
	var out bytes.Buffer
	out.WriteByte(recHeader)
	_ = EncodeUvarint(4, &out) // unsupported version
	_ = EncodeUvarint(0, &out)
	_ = EncodeUvarint(0, &out)
	_ = EncodeUvarint(0, &out)
	line, err := deflateRawB64(out.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	_, err = sd.TryDecodeLine(line)
	if !IsKind(err, KindUnsupportedVersion) {
		t.Fatalf("want UnsupportedVersion, got %v", err)
	}
}

func TestDecompressorResetReturnsToPreHeaderState(t *testing.T) {
	t.Parallel()

	sc := NewSessionCompressor(testAsset)
	sd := NewSessionDecompressor()

	lines := mustCompress(t, sc, `{"event_type":"tick_size_change","asset_id":"A","timestamp":"1","old_tick_size":"0.01","new_tick_size":"0.001"}`)
	for _, l := range lines {
		feedLine(t, sd, l)
	}
	if !sd.haveHeader {
		t.Fatal("expected header to be established")
	}
	sd.Reset()
	if sd.haveHeader {
		t.Fatal("expected Reset to clear haveHeader")
	}
	if sd.prevTS != nil {
		t.Fatal("expected Reset to clear prevTS")
	}
}
