package filter

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Wire shapes of the engine filter grammar.
type wireFilter struct {
	Must    []json.RawMessage `json:"must,omitempty"`
	Should  []json.RawMessage `json:"should,omitempty"`
	MustNot []json.RawMessage `json:"must_not,omitempty"`
}

type wireMatch struct {
	Value  *Value  `json:"value,omitempty"`
	Any    []Value `json:"any,omitempty"`
	Except []Value `json:"except,omitempty"`
	Text   *string `json:"text,omitempty"`
}

type wireRange struct {
	Gt  *Value `json:"gt,omitempty"`
	Gte *Value `json:"gte,omitempty"`
	Lt  *Value `json:"lt,omitempty"`
	Lte *Value `json:"lte,omitempty"`
}

type wireCondition struct {
	Key   string     `json:"key"`
	Match *wireMatch `json:"match,omitempty"`
	Range *wireRange `json:"range,omitempty"`
}

// ErrInvalidFilter is returned for filters that have no grammar representation.
var ErrInvalidFilter = errors.New("invalid filter")

// MarshalJSON encodes f in the engine filter grammar.
func (f Filter) MarshalJSON() ([]byte, error) {
	var w wireFilter
	var err error
	if w.Must, err = encodeClauses(f.Must); err != nil {
		return nil, err
	}
	if w.Should, err = encodeClauses(f.Should); err != nil {
		return nil, err
	}
	if w.MustNot, err = encodeClauses(f.MustNot); err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func encodeClauses(conds []Condition) ([]json.RawMessage, error) {
	if len(conds) == 0 {
		return nil, nil
	}
	out := make([]json.RawMessage, 0, len(conds))
	for i := range conds {
		b, err := encodeCondition(&conds[i])
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func encodeCondition(c *Condition) ([]byte, error) {
	if c.Nested != nil {
		return json.Marshal(c.Nested)
	}
	if c.Key == "" {
		return nil, fmt.Errorf("%w: condition without key", ErrInvalidFilter)
	}

	wc := wireCondition{Key: c.Key}
	v := c.Value
	switch c.Operator {
	case OpEqual:
		wc.Match = &wireMatch{Value: &v}
	case OpNotEqual:
		if v.Kind == KindArray {
			wc.Match = &wireMatch{Except: nonNil(v.A)}
		} else {
			wc.Match = &wireMatch{Except: []Value{v}}
		}
	case OpIn:
		if v.Kind != KindArray {
			return nil, fmt.Errorf("%w: %q requires an array operand", ErrInvalidFilter, c.Operator)
		}
		wc.Match = &wireMatch{Any: nonNil(v.A)}
	case OpContains:
		if v.Kind != KindString {
			return nil, fmt.Errorf("%w: %q requires a string operand", ErrInvalidFilter, c.Operator)
		}
		wc.Match = &wireMatch{Text: &v.S}
	case OpGreaterThan:
		wc.Range = &wireRange{Gt: &v}
	case OpGreaterEqual:
		wc.Range = &wireRange{Gte: &v}
	case OpLessThan:
		wc.Range = &wireRange{Lt: &v}
	case OpLessEqual:
		wc.Range = &wireRange{Lte: &v}
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, c.Operator)
	}
	if wc.Range != nil && v.Kind != KindInt && v.Kind != KindFloat {
		return nil, fmt.Errorf("%w: %q requires a numeric operand", ErrInvalidFilter, c.Operator)
	}
	return json.Marshal(wc)
}

// Empty any/except lists must stay present on the wire.
func nonNil(vs []Value) []Value {
	if vs == nil {
		return []Value{}
	}
	return vs
}

// UnmarshalJSON decodes the engine filter grammar.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var w wireFilter
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var out Filter
	var err error
	if out.Must, err = decodeClauses(w.Must); err != nil {
		return err
	}
	if out.Should, err = decodeClauses(w.Should); err != nil {
		return err
	}
	if out.MustNot, err = decodeClauses(w.MustNot); err != nil {
		return err
	}
	*f = out
	return nil
}

func decodeClauses(raw []json.RawMessage) ([]Condition, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]Condition, 0, len(raw))
	for _, r := range raw {
		c, err := decodeCondition(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeCondition(raw json.RawMessage) (Condition, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Condition{}, err
	}
	if _, ok := probe["key"]; !ok {
		nested := &Filter{}
		if err := json.Unmarshal(raw, nested); err != nil {
			return Condition{}, err
		}
		return Group(nested), nil
	}

	var wc wireCondition
	if err := json.Unmarshal(raw, &wc); err != nil {
		return Condition{}, err
	}

	switch {
	case wc.Match != nil:
		return decodeMatch(wc.Key, wc.Match)
	case wc.Range != nil:
		return decodeRange(wc.Key, wc.Range)
	default:
		return Condition{}, fmt.Errorf("%w: condition on %q has neither match nor range", ErrInvalidFilter, wc.Key)
	}
}

func decodeMatch(key string, m *wireMatch) (Condition, error) {
	switch {
	case m.Value != nil:
		return Condition{Key: key, Operator: OpEqual, Value: *m.Value}, nil
	case m.Any != nil:
		return Condition{Key: key, Operator: OpIn, Value: Array(m.Any)}, nil
	case m.Except != nil:
		if len(m.Except) == 1 {
			return Condition{Key: key, Operator: OpNotEqual, Value: m.Except[0]}, nil
		}
		return Condition{Key: key, Operator: OpNotEqual, Value: Array(m.Except)}, nil
	case m.Text != nil:
		return Condition{Key: key, Operator: OpContains, Value: String(*m.Text)}, nil
	default:
		return Condition{}, fmt.Errorf("%w: empty match on %q", ErrInvalidFilter, key)
	}
}

func decodeRange(key string, r *wireRange) (Condition, error) {
	var conds []Condition
	if r.Gt != nil {
		conds = append(conds, Condition{Key: key, Operator: OpGreaterThan, Value: *r.Gt})
	}
	if r.Gte != nil {
		conds = append(conds, Condition{Key: key, Operator: OpGreaterEqual, Value: *r.Gte})
	}
	if r.Lt != nil {
		conds = append(conds, Condition{Key: key, Operator: OpLessThan, Value: *r.Lt})
	}
	if r.Lte != nil {
		conds = append(conds, Condition{Key: key, Operator: OpLessEqual, Value: *r.Lte})
	}

	switch len(conds) {
	case 0:
		return Condition{}, fmt.Errorf("%w: empty range on %q", ErrInvalidFilter, key)
	case 1:
		return conds[0], nil
	default:
		// A multi-bound range is the conjunction of its bounds.
		return Group(&Filter{Must: conds}), nil
	}
}
