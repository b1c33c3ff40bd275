// writer.go implements an append-only, durably-flushed writer for V3
// session output, grounded on the original logger's DurableJsonlWriter: each
// record is flushed and fsynced as it's written, so a crash drops at most
// the record in flight.
package feed

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Writer durably appends session lines to a single output file. It supports
// two modes, selected by Config.Output.JSONLWrapped:
//
//   - compact (default): each line is the bare compressed token produced by
//     the codec (a header line, then one line per frame).
//   - JSONL-wrapped: each line is {"t":<epoch_ms>,"a":<asset_id>,"c":"<token>"},
//     matching the original logger's debug/testing output shape.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	wrapped bool
	assetID string
}

// NewWriter opens (or creates) path for append and returns a Writer.
func NewWriter(path, assetID string, wrapped bool) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	return &Writer{file: f, wrapped: wrapped, assetID: assetID}, nil
}

// WriteLine durably appends a single bare token line (a header or frame
// record produced by the codec).
func (w *Writer) WriteLine(epochMs int64, line string) error {
	if w.wrapped {
		return w.writeJSON(epochMs, line)
	}
	return w.writeRaw(line)
}

// WriteLines durably appends each token in order (used when a single server
// frame compresses to multiple lines, e.g. header + frame on first message).
func (w *Writer) WriteLines(epochMs int64, lines []string) error {
	for _, line := range lines {
		if err := w.WriteLine(epochMs, line); err != nil {
			return err
		}
	}
	return nil
}

// WriteFallback durably appends a record when compression itself failed,
// so a malformed or unexpected frame never silently vanishes. payload is
// either the parsed JSON value of the raw message or, if it wasn't valid
// JSON, {"_raw": message}.
func (w *Writer) WriteFallback(epochMs int64, payload any) error {
	rec := map[string]any{"t": epochMs, "a": w.assetID, "m": payload}
	return w.writeRecord(rec)
}

func (w *Writer) writeJSON(epochMs int64, token string) error {
	rec := map[string]any{"t": epochMs, "a": w.assetID, "c": token}
	return w.writeRecord(rec)
}

func (w *Writer) writeRecord(rec map[string]any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return w.appendLine(string(data))
}

func (w *Writer) writeRaw(line string) error {
	if strings.Contains(line, "\n") {
		line = strings.ReplaceAll(line, "\n", "\\n")
	}
	return w.appendLine(line)
}

func (w *Writer) appendLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		return err
	}
	return w.file.Close()
}
