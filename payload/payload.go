// Package payload implements the typed-opaque value container used for
// EventEnvelope.Payload (spec.md §9, "dynamic dict payloads"). The
// Gateway's routing logic never needs to know an event's payload shape —
// only agents and channel dispatchers interpret it — so Value defers all
// parsing to gjson/sjson rather than forcing a Go struct on every caller.
package payload

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Value wraps a JSON object without requiring callers to agree on a
// concrete Go type for it up front.
type Value struct {
	raw []byte
}

// Empty returns an empty payload ("{}").
func Empty() Value {
	return Value{raw: []byte("{}")}
}

// FromMap builds a Value from a map[string]any, the shape agents and
// ingress handlers most often start from.
func FromMap(m map[string]any) Value {
	if m == nil {
		return Empty()
	}
	b, err := json.Marshal(m)
	if err != nil {
		return Empty()
	}
	return Value{raw: b}
}

// FromJSON wraps a raw JSON document. If b is empty or not a JSON object,
// an empty object is substituted.
func FromJSON(b []byte) Value {
	if len(b) == 0 || !gjson.ValidBytes(b) || !gjson.ParseBytes(b).IsObject() {
		return Empty()
	}
	return Value{raw: b}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if len(v.raw) == 0 {
		return []byte("{}"), nil
	}
	return v.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(b []byte) error {
	cp := make([]byte, len(b))
	copy(cp, b)
	v.raw = cp
	return nil
}

// Get reads a dotted-path field (gjson syntax), e.g. "text" or
// "attachments.0".
func (v Value) Get(path string) gjson.Result {
	return gjson.GetBytes(v.raw, path)
}

// String is a convenience accessor equivalent to Get(path).String().
func (v Value) String(path string) string {
	return v.Get(path).String()
}

// Int is a convenience accessor equivalent to Get(path).Int().
func (v Value) Int(path string) int64 {
	return v.Get(path).Int()
}

// Set returns a new Value with path set to value (gjson/sjson syntax).
// Value is immutable by convention — Set never mutates the receiver.
func (v Value) Set(path string, value any) Value {
	out, err := sjson.SetBytes(v.clone(), path, value)
	if err != nil {
		return v
	}
	return Value{raw: out}
}

// Map decodes the payload into a map[string]any for callers (mostly
// legacy agent code) that want the whole document at once.
func (v Value) Map() map[string]any {
	m := map[string]any{}
	if len(v.raw) == 0 {
		return m
	}
	_ = json.Unmarshal(v.raw, &m)
	return m
}

// Raw returns the underlying JSON bytes. Callers must not mutate them.
func (v Value) Raw() []byte {
	return v.raw
}

func (v Value) clone() []byte {
	if len(v.raw) == 0 {
		return []byte("{}")
	}
	cp := make([]byte, len(v.raw))
	copy(cp, v.raw)
	return cp
}
