package link

/*------------------------------------------------------------------
 *
 * Purpose: The on-wire Frame and its JSON encoding.
 *
 * Description: A frame is a compact JSON object with reserved keys
 *	id/ci/cc/ct plus, on chunk 0 only, fn/st and any number of
 *	application-defined keys. Unknown keys round-trip through Meta so
 *	the transport never silently drops fields it doesn't understand.
 *
 *------------------------------------------------------------------*/

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// reservedKeys have dedicated Frame fields and are skipped when Meta is
// written out. The one reserved key kept in Meta is a retx frame's ci
// array, which MarshalJSON writes separately.
var reservedKeys = map[string]bool{
	"id": true,
	"ci": true,
	"cc": true,
	"ct": true,
}

// Frame is the on-wire unit exchanged over the acoustic link.
type Frame struct {
	ID string `json:"id"`
	CI int    `json:"ci"`
	CC int    `json:"cc"`
	CT string `json:"ct"`

	// Meta carries fn, st, and any other application-defined keys.
	// Only meaningful on CI == 0 (or a single-frame message, CC == 0).
	Meta map[string]any `json:"-"`
}

// Fn returns the "fn" metadata key as a string, or "" if absent.
func (f Frame) Fn() string {
	v, _ := f.Meta["fn"].(string)
	return v
}

// St returns the "st" metadata key as a string, or "" if absent.
func (f Frame) St() string {
	v, _ := f.Meta["st"].(string)
	return v
}

// IsRetx reports whether this frame is the reserved retx control frame.
func (f Frame) IsRetx() bool {
	return f.Fn() == "retx"
}

// RetxIndices extracts the missing-chunk index list from a retx frame's
// "ci" metadata key. Present only because retx overloads "ci" to carry
// an array instead of an integer; regular frames never populate this.
func (f Frame) RetxIndices() []int {
	raw, ok := f.Meta["ci"]
	if !ok {
		return nil
	}

	items, ok := raw.([]any)
	if !ok {
		return nil
	}

	out := make([]int, 0, len(items))

	for _, it := range items {
		switch v := it.(type) {
		case float64:
			out = append(out, int(v))
		case int:
			out = append(out, v)
		}
	}

	return out
}

// MarshalJSON serialises the frame with compact separators. Meta keys
// are written in sorted order so output is deterministic for tests and
// for the last-sent cache's byte-for-byte retransmission guarantee.
func (f Frame) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')
	fmt.Fprintf(&buf, "%q:%q", "id", f.ID)

	if f.IsRetx() {
		// ci is overloaded on a retx frame: an array of missing indices
		// lives in Meta, not the int field, and cc/ct are meaningless
		// for a control frame so they're dropped entirely.
		ciBytes, err := json.Marshal(f.Meta["ci"])
		if err != nil {
			return nil, err
		}

		buf.WriteString(`,"ci":`)
		buf.Write(ciBytes)
	} else {
		fmt.Fprintf(&buf, `,%q:%d,%q:%d`, "ci", f.CI, "cc", f.CC)
	}

	keys := make([]string, 0, len(f.Meta))
	for k := range f.Meta {
		if reservedKeys[k] {
			continue
		}

		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		buf.WriteByte(',')

		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}

		vb, err := json.Marshal(f.Meta[k])
		if err != nil {
			return nil, err
		}

		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}

	// ct goes last; retx frames omit it entirely.
	if !f.IsRetx() {
		buf.WriteByte(',')
		fmt.Fprintf(&buf, "%q:%q", "ct", f.CT)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// newRetxFrame builds the control frame for a negative-ACK of the given
// missing chunk indices.
func newRetxFrame(id string, missing []int) Frame {
	idxAny := make([]any, len(missing))
	for i, m := range missing {
		idxAny[i] = m
	}

	return Frame{
		ID: id,
		Meta: map[string]any{
			"fn": "retx",
			"ci": idxAny,
		},
	}
}

// parseRawFrame unmarshals a raw JSON object into a Frame, splitting the
// reserved keys from the application-defined ones.
func parseRawFrame(data []byte) (Frame, error) {
	var raw map[string]any

	if err := json.Unmarshal(data, &raw); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}

	f := Frame{Meta: map[string]any{}}

	if id, ok := raw["id"].(string); ok {
		f.ID = id
	}

	if ci, ok := raw["ci"].(float64); ok {
		f.CI = int(ci)
	}

	if cc, ok := raw["cc"].(float64); ok {
		f.CC = int(cc)
	}

	if ct, ok := raw["ct"].(string); ok {
		f.CT = ct
	}

	for k, v := range raw {
		switch k {
		case "ct":
			// handled above; never copied into Meta.
		default:
			if k == "id" {
				continue
			}

			if k == "ci" {
				// retx overloads ci as an array; preserve it in Meta
				// so RetxIndices can read it back. Integer ci values
				// are already captured in f.CI above and don't need
				// to live in Meta too.
				if _, isArray := v.([]any); isArray {
					f.Meta[k] = v
				}

				continue
			}

			if k == "cc" {
				continue
			}

			f.Meta[k] = v
		}
	}

	return f, nil
}
