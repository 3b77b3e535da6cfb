package filter

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Matches evaluates f against a JSON payload document.
//
// A nil or empty filter matches every payload. Keys are dotted paths into
// the document; when a key resolves to an array, a condition matches if any
// element matches it (OpNotEqual then requires that no element is equal).
func (f *Filter) Matches(payload []byte) bool {
	if f.IsEmpty() {
		return true
	}
	return f.matchesDoc(gjson.ParseBytes(payload))
}

func (f *Filter) matchesDoc(doc gjson.Result) bool {
	for i := range f.Must {
		if !f.Must[i].matches(doc) {
			return false
		}
	}
	for i := range f.MustNot {
		if f.MustNot[i].matches(doc) {
			return false
		}
	}
	if len(f.Should) == 0 {
		return true
	}
	for i := range f.Should {
		if f.Should[i].matches(doc) {
			return true
		}
	}
	return false
}

func (c *Condition) matches(doc gjson.Result) bool {
	if c.Nested != nil {
		return c.Nested.IsEmpty() || c.Nested.matchesDoc(doc)
	}

	res := doc.Get(escapePath(c.Key))
	if !res.Exists() {
		return false
	}

	if res.IsArray() && c.Value.Kind != KindArray {
		elems := res.Array()
		if c.Operator == OpNotEqual {
			for _, e := range elems {
				if compareEqualAny(valueOf(e), c.Value) {
					return false
				}
			}
			return true
		}
		for _, e := range elems {
			if c.matchValue(valueOf(e)) {
				return true
			}
		}
		return false
	}
	return c.matchValue(valueOf(res))
}

func (c *Condition) matchValue(value Value) bool {
	switch c.Operator {
	case OpEqual:
		return compareEqual(value, c.Value)
	case OpNotEqual:
		return !compareEqualAny(value, c.Value)
	case OpGreaterThan:
		return compareGreater(value, c.Value)
	case OpGreaterEqual:
		return compareGreater(value, c.Value) || compareEqual(value, c.Value)
	case OpLessThan:
		return compareLess(value, c.Value)
	case OpLessEqual:
		return compareLess(value, c.Value) || compareEqual(value, c.Value)
	case OpIn:
		return compareIn(value, c.Value)
	case OpContains:
		return compareContains(value, c.Value)
	default:
		return false
	}
}

// escapePath keeps dots as separators but escapes gjson's wildcard and
// modifier characters so keys are taken literally.
func escapePath(key string) string {
	if !strings.ContainsAny(key, "*?|#@!") {
		return key
	}
	var b strings.Builder
	b.Grow(len(key) + 4)
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '*', '?', '|', '#', '@', '!':
			b.WriteByte('\\')
		}
		b.WriteByte(key[i])
	}
	return b.String()
}

func valueOf(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return Null()
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.Number:
		if v, err := numberValue(r.Raw); err == nil {
			return v
		}
		return Float(r.Num)
	case gjson.String:
		return String(r.Str)
	default:
		if r.IsArray() {
			elems := r.Array()
			arr := make([]Value, len(elems))
			for i := range elems {
				arr[i] = valueOf(elems[i])
			}
			return Array(arr)
		}
		return Value{}
	}
}

// compareEqualAny treats an array operand as a set (the except-list form).
func compareEqualAny(a, b Value) bool {
	if b.Kind == KindArray && a.Kind != KindArray {
		return compareIn(a, b)
	}
	return compareEqual(a, b)
}

func compareEqual(a, b Value) bool {
	if a.Kind == KindNull && b.Kind == KindNull {
		return true
	}
	if a.Kind == KindNull || b.Kind == KindNull {
		return false
	}

	if isNumber(a) && isNumber(b) {
		if a.Kind == KindInt && b.Kind == KindInt {
			return a.I64 == b.I64
		}
		return asFloat64(a) == asFloat64(b)
	}

	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case KindString:
		return a.S == b.S
	case KindBool:
		return a.B == b.B
	case KindArray:
		if len(a.A) != len(b.A) {
			return false
		}
		for i := range a.A {
			if !compareEqual(a.A[i], b.A[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func compareGreater(a, b Value) bool {
	if !isNumber(a) || !isNumber(b) {
		return false
	}
	return asFloat64(a) > asFloat64(b)
}

func compareLess(a, b Value) bool {
	if !isNumber(a) || !isNumber(b) {
		return false
	}
	return asFloat64(a) < asFloat64(b)
}

func compareIn(a, b Value) bool {
	if b.Kind != KindArray {
		return false
	}
	for _, item := range b.A {
		if compareEqual(a, item) {
			return true
		}
	}
	return false
}

func compareContains(a, b Value) bool {
	if a.Kind != KindString || b.Kind != KindString {
		return false
	}
	return strings.Contains(a.S, b.S)
}

func isNumber(v Value) bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

func asFloat64(v Value) float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.I64)
	case KindFloat:
		return v.F64
	default:
		return 0
	}
}
