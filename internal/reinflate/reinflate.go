// Package reinflate implements the tolerant reinflater: it reads a file of
// mixed V3 and legacy Polymarket market-log records and reconstructs a
// stream of per-frame JSON texts, trying several record shapes in turn.
package reinflate

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"polymarket-v3-logger/internal/codec"
)

// ReinflateFile reads inputPath (a JSON array, or NDJSON/raw lines — mixed
// V3 lines, legacy zlib+base64 JSON, or JSON-wrapped records) and writes
// the reconstructed per-frame JSON texts to outputPath, one per line
// unless array is set, in which case a single JSON array is written.
func ReinflateFile(inputPath, outputPath string, array bool) error {
	entries, err := readEntries(inputPath)
	if err != nil {
		return fmt.Errorf("reinflate: read input: %w", err)
	}

	sd := codec.NewSessionDecompressor()
	values := make([]string, 0, len(entries))
	for _, entry := range entries {
		outs, err := reinflateEntry(entry, sd)
		if err != nil {
			return fmt.Errorf("reinflate: %w", err)
		}
		values = append(values, outs...)
	}

	return writeValues(outputPath, values, array)
}

// reinflateEntry dispatches one record — an already-decoded JSON value (from
// a top-level array) or a raw line of text (from NDJSON) — per spec.md §4.7.
// A non-nil error here is session-fatal (UnsupportedVersion); anything else
// the codec rejects mid-record is treated as "try the next strategy" so one
// bad line does not abort the whole file.
func reinflateEntry(entry any, sd *codec.SessionDecompressor) ([]string, error) {
	switch v := entry.(type) {
	case map[string]any:
		return reinflateObject(v, sd)
	case string:
		return reinflateString(v, sd)
	default:
		b, err := json.Marshal(stripKeys(entry))
		if err != nil {
			return nil, err
		}
		return []string{string(b)}, nil
	}
}

func reinflateObject(entry map[string]any, sd *codec.SessionDecompressor) ([]string, error) {
	if cRaw, ok := entry["c"]; ok {
		if s, ok := cRaw.(string); ok {
			outs, err := tryV3Line(sd, s)
			if err != nil {
				return nil, err
			}
			if outs != nil {
				return outs, nil
			}
		}
		if s, ok := cRaw.(string); ok {
			if txt, ok := legacyZlibJSON(s); ok {
				return []string{txt}, nil
			}
		}
	}
	if compRaw, ok := entry["compressed"]; ok {
		if s, ok := compRaw.(string); ok {
			outs, err := tryV3Line(sd, s)
			if err != nil {
				return nil, err
			}
			if outs != nil {
				return outs, nil
			}
			if txt, ok := legacyZlibJSON(s); ok {
				return []string{txt}, nil
			}
		}
	}
	if mRaw, ok := entry["m"]; ok {
		if mm, ok := mRaw.(map[string]any); ok {
			if raw, ok := mm["_raw"].(string); ok {
				b, err := json.Marshal(raw)
				if err != nil {
					return nil, err
				}
				return []string{string(b)}, nil
			}
		}
		b, err := json.Marshal(stripKeys(mRaw))
		if err != nil {
			return nil, err
		}
		return []string{string(b)}, nil
	}
	// Unknown wrapper shape: pass the stripped object through unchanged.
	b, err := json.Marshal(stripKeys(entry))
	if err != nil {
		return nil, err
	}
	return []string{string(b)}, nil
}

func reinflateString(s string, sd *codec.SessionDecompressor) ([]string, error) {
	outs, err := tryV3Line(sd, s)
	if err != nil {
		return nil, err
	}
	if outs != nil {
		return outs, nil
	}
	if txt, ok := legacyZlibJSON(s); ok {
		return []string{txt}, nil
	}
	if mjs, ok := maybeJSONValue(s); ok {
		return []string{mjs}, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return []string{string(b)}, nil
}

// tryV3Line attempts a V3 decode of token. A nil, nil result means "not V3,
// try the next strategy" — covering both the codec's own not-V3 signal and
// any mid-record decode failure (TruncatedVarint, BadStringRef, ...), which
// per spec.md §7 is fatal for the record, not the file. UnsupportedVersion
// is the one kind that aborts the whole reinflate: a new header claiming a
// version this package cannot read invalidates every line after it.
func tryV3Line(sd *codec.SessionDecompressor, token string) ([]string, error) {
	out, err := sd.TryDecodeLine(token)
	if err != nil {
		if codec.IsKind(err, codec.KindUnsupportedVersion) {
			return nil, err
		}
		return nil, nil
	}
	return out, nil
}

// legacyZlibJSON decodes the previous generation's compact format: base64
// (URL-safe) wrapping a zlib-framed (not raw-DEFLATE) JSON document.
func legacyZlibJSON(token string) (string, bool) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(token)
		if err != nil {
			return "", false
		}
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", false
	}
	defer zr.Close()
	txt, err := io.ReadAll(zr)
	if err != nil {
		return "", false
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(txt))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	b, err := json.Marshal(stripKeys(v))
	if err != nil {
		return "", false
	}
	return string(b), true
}

// maybeJSONValue interprets a bare string as JSON directly: an object/array
// prefix is parsed and stripped; a quoted string prefix is unwrapped once,
// and if the inner string itself looks like JSON, parsed and stripped again.
func maybeJSONValue(line string) (string, bool) {
	s := strings.TrimSpace(line)
	if s == "" {
		return "", false
	}
	switch s[0] {
	case '{', '[':
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return "", false
		}
		b, err := json.Marshal(stripKeys(v))
		if err != nil {
			return "", false
		}
		return string(b), true
	case '"':
		var inner any
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			return "", false
		}
		if innerStr, ok := inner.(string); ok && innerStr != "" && (innerStr[0] == '[' || innerStr[0] == '{') {
			var v2 any
			if err := json.Unmarshal([]byte(innerStr), &v2); err == nil {
				b, err := json.Marshal(stripKeys(v2))
				if err == nil {
					return string(b), true
				}
			}
			b, err := json.Marshal(innerStr)
			if err != nil {
				return "", false
			}
			return string(b), true
		}
		b, err := json.Marshal(inner)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
	return "", false
}

// stripKeys recursively removes "market" and "hash" keys from every object
// in v.
func stripKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if k == "market" || k == "hash" {
				continue
			}
			out[k] = stripKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = stripKeys(e)
		}
		return out
	default:
		return t
	}
}

// readEntries reads inputPath as a single JSON array if possible; otherwise
// as NDJSON/raw lines, one entry per line.
func readEntries(path string) ([]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var arr []any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&arr); err == nil {
		return arr, nil
	}

	var entries []any
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		entries = append(entries, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func writeValues(outputPath string, values []string, array bool) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("reinflate: create output: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if array {
		w.WriteByte('[')
		for i, v := range values {
			if i > 0 {
				w.WriteByte(',')
			}
			w.WriteString(v)
		}
		w.WriteByte(']')
	} else {
		for _, v := range values {
			w.WriteString(v)
			w.WriteByte('\n')
		}
	}
	return w.Flush()
}
