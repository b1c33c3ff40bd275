package codec

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Event type codes occupy bits 0..2 of the type byte.
const (
	etBook            = 0
	etPriceChange     = 1
	etTickSizeChange  = 2
	etLastTradePrice  = 3
	tbTypeMask   byte = 0x07
	tbOpt0       byte = 1 << 3 // last_trade_price carries fee_rate_bps
	tbTSAbs      byte = 1 << 5 // ts_delta field is absolute, not delta
)

// Event type names, as they appear in the event_type field of the JSON.
const (
	eventTypeBook           = "book"
	eventTypePriceChange    = "price_change"
	eventTypeTickSizeChange = "tick_size_change"
	eventTypeLastTradePrice = "last_trade_price"
)

func etCodeFromName(name string) (int, bool) {
	switch name {
	case eventTypeBook:
		return etBook, true
	case eventTypePriceChange:
		return etPriceChange, true
	case eventTypeTickSizeChange:
		return etTickSizeChange, true
	case eventTypeLastTradePrice:
		return etLastTradePrice, true
	}
	return 0, false
}

func etNameFromCode(code int) (string, bool) {
	switch code {
	case etBook:
		return eventTypeBook, true
	case etPriceChange:
		return eventTypePriceChange, true
	case etTickSizeChange:
		return eventTypeTickSizeChange, true
	case etLastTradePrice:
		return eventTypeLastTradePrice, true
	}
	return "", false
}

// Level is a single (price, size) pair in an order book or price_change.
type Level struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// Change is one entry of a price_change event's changes list.
type Change struct {
	Side  string `json:"side"`
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BookEvent is a decoded order-book snapshot.
type BookEvent struct {
	EventType string  `json:"event_type"`
	AssetID   string  `json:"asset_id"`
	Timestamp string  `json:"timestamp"`
	Bids      []Level `json:"bids"`
	Asks      []Level `json:"asks"`
}

// PriceChangeEvent is a decoded incremental book update.
type PriceChangeEvent struct {
	EventType string   `json:"event_type"`
	AssetID   string   `json:"asset_id"`
	Timestamp string   `json:"timestamp"`
	Changes   []Change `json:"changes"`
}

// TickSizeChangeEvent is a decoded tick-size change.
type TickSizeChangeEvent struct {
	EventType   string `json:"event_type"`
	AssetID     string `json:"asset_id"`
	Timestamp   string `json:"timestamp"`
	OldTickSize string `json:"old_tick_size"`
	NewTickSize string `json:"new_tick_size"`
}

// LastTradePriceEvent is a decoded trade tape entry. FeeRateBps is present
// only when the source frame carried it (OPT0 bit set on the wire).
type LastTradePriceEvent struct {
	EventType   string  `json:"event_type"`
	AssetID     string  `json:"asset_id"`
	Timestamp   string  `json:"timestamp"`
	Price       string  `json:"price"`
	Size        string  `json:"size"`
	Side        string  `json:"side"`
	FeeRateBps  *string `json:"fee_rate_bps,omitempty"`
}

// asString renders a generic JSON-decoded value as the opaque string the
// wire format stores. Strings pass through unchanged; json.Number keeps its
// original decimal text; anything else falls back to its compact JSON form.
func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return string(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func getString(ev map[string]any, key string) string {
	if ev == nil {
		return ""
	}
	v, ok := ev[key]
	if !ok || v == nil {
		return ""
	}
	return asString(v)
}

// getTS extracts and parses an event's timestamp field. Per spec.md §3,
// timestamps are numeric-in-string; a missing or non-numeric value means
// "no timestamp known" rather than a hard error.
func getTS(ev map[string]any) (int64, bool) {
	v, ok := ev["timestamp"]
	if !ok || v == nil {
		return 0, false
	}
	s := asString(v)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// getLevels reads a levels array under primary, falling back to alias
// (book events accept bids/asks or the buys/sells aliasing seen on input).
func getLevels(ev map[string]any, primary, alias string) []any {
	if v, ok := ev[primary]; ok {
		if s, ok := v.([]any); ok {
			return s
		}
		return nil
	}
	if v, ok := ev[alias]; ok {
		if s, ok := v.([]any); ok {
			return s
		}
	}
	return nil
}

func encodeLevels(levels []any, pool *stringPool, out *bytes.Buffer) error {
	if err := EncodeUvarint(int64(len(levels)), out); err != nil {
		return err
	}
	for _, lv := range levels {
		m, _ := lv.(map[string]any)
		if err := pool.encode(getString(m, "price"), out); err != nil {
			return err
		}
		if err := pool.encode(getString(m, "size"), out); err != nil {
			return err
		}
	}
	return nil
}

func encodeBook(ev map[string]any, pool *stringPool, out *bytes.Buffer) error {
	bids := getLevels(ev, "bids", "buys")
	asks := getLevels(ev, "asks", "sells")
	if err := encodeLevels(bids, pool, out); err != nil {
		return err
	}
	return encodeLevels(asks, pool, out)
}

func encodePriceChange(ev map[string]any, pool *stringPool, out *bytes.Buffer) error {
	changes, _ := ev["changes"].([]any)
	if err := EncodeUvarint(int64(len(changes)), out); err != nil {
		return err
	}
	for _, c := range changes {
		m, _ := c.(map[string]any)
		side := strings.ToUpper(getString(m, "side"))
		if side == "SELL" {
			out.WriteByte(1)
		} else {
			out.WriteByte(0)
		}
		if err := pool.encode(getString(m, "price"), out); err != nil {
			return err
		}
		if err := pool.encode(getString(m, "size"), out); err != nil {
			return err
		}
	}
	return nil
}

func encodeTickSizeChange(ev map[string]any, pool *stringPool, out *bytes.Buffer) error {
	if err := pool.encode(getString(ev, "old_tick_size"), out); err != nil {
		return err
	}
	return pool.encode(getString(ev, "new_tick_size"), out)
}

func encodeLastTradePrice(ev map[string]any, tb byte, pool *stringPool, out *bytes.Buffer) error {
	if err := pool.encode(getString(ev, "price"), out); err != nil {
		return err
	}
	if err := pool.encode(getString(ev, "size"), out); err != nil {
		return err
	}
	side := strings.ToUpper(getString(ev, "side"))
	if side == "SELL" {
		out.WriteByte(1)
	} else {
		out.WriteByte(0)
	}
	if tb&tbOpt0 != 0 {
		return pool.encode(getString(ev, "fee_rate_bps"), out)
	}
	return nil
}
