/*
Package generic provides the shared building blocks of the club portal.

PURPOSE:
  Domain-agnostic value types, the fiscal calendar, the error taxonomy and
  the document-store contract. Domain packages (rewards, worklog, members,
  importer, sheets) build on these and never talk to a database directly.

KEY CONCEPTS IN THIS FILE (types.go):
  - Hours: A non-negative decimal quantity of volunteer work
  - Fields: The untyped document shape written to the store

DESIGN PRINCIPLES:
  1. Precision: Hours use decimal.Decimal so 0.1 + 0.2 sums exactly
  2. Tolerance at the boundary: malformed hours degrade to zero, never panic
  3. Explicit types: decoding happens once, where data enters the system

USAGE:
  h := generic.ParseHours("2.5")
  total := h.Add(generic.NewHours(3))

SEE ALSO:
  - time.go: Calendar dates and clocks
  - period.go: Fiscal year calculation
  - store.go: Document store interface
*/
package generic

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HOURS - Quantity of volunteer work
// =============================================================================

// Hours is a decimal number of hours. The zero value is 0 hours.
type Hours struct {
	Value decimal.Decimal
}

func NewHours(value float64) Hours { return Hours{Value: decimal.NewFromFloat(value)} }
func HoursFromInt(value int) Hours { return Hours{Value: decimal.NewFromInt(int64(value))} }

// ParseHours parses a textual hour count. Anything that is not a finite,
// non-negative number yields zero.
func ParseHours(s string) Hours {
	s = strings.TrimSpace(s)
	if s == "" {
		return Hours{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return Hours{}
	}
	return Hours{Value: d}
}

func (h Hours) Add(o Hours) Hours           { return Hours{Value: h.Value.Add(o.Value)} }
func (h Hours) IsZero() bool                { return h.Value.IsZero() }
func (h Hours) IsPositive() bool            { return h.Value.IsPositive() }
func (h Hours) GreaterThan(o Hours) bool    { return h.Value.GreaterThan(o.Value) }
func (h Hours) GreaterOrEqual(o Hours) bool { return h.Value.GreaterThanOrEqual(o.Value) }
func (h Hours) Equal(o Hours) bool          { return h.Value.Equal(o.Value) }
func (h Hours) Float64() float64            { f, _ := h.Value.Float64(); return f }

func (h Hours) String() string { return h.Value.String() }

// MarshalJSON writes hours as a JSON number.
func (h Hours) MarshalJSON() ([]byte, error) {
	return []byte(h.Value.String()), nil
}

// UnmarshalJSON accepts a number or a numeric string. Null, garbage and
// negative values decode to zero instead of failing the whole document.
func (h *Hours) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*h = Hours{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*h = Hours{}
			return nil
		}
		*h = ParseHours(s)
		return nil
	}
	*h = ParseHours(string(data))
	return nil
}

// =============================================================================
// FIELDS - Untyped document data
// =============================================================================

// Fields is the JSON-object shape of a stored document.
type Fields map[string]any

// ToFields converts a struct (or map) into Fields using its JSON encoding.
func ToFields(v any) (Fields, error) {
	if f, ok := v.(Fields); ok {
		return f, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var f Fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, &ValidationError{Field: "data", Reason: "document must be a JSON object"}
	}
	return f, nil
}

// DecodeFields decodes Fields into a typed value.
func DecodeFields(f Fields, v any) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// DeepMerge merges src into dst in place. Nested objects merge recursively,
// every other value replaces the destination value.
func DeepMerge(dst, src Fields) Fields {
	if dst == nil {
		dst = Fields{}
	}
	for k, v := range src {
		if sub, ok := asObject(v); ok {
			if existing, ok := asObject(dst[k]); ok {
				dst[k] = map[string]any(DeepMerge(cloneFields(existing), sub))
				continue
			}
		}
		dst[k] = v
	}
	return dst
}

func asObject(v any) (Fields, bool) {
	switch m := v.(type) {
	case map[string]any:
		return Fields(m), true
	case Fields:
		return m, true
	}
	return nil, false
}

func cloneFields(f Fields) Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
