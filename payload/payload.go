package payload

// Payload is a JSON object document.
type Payload map[string]any

// Clone returns a deep copy of p.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Payload(t).Clone())
	case Payload:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Merge writes other into p. Objects present on both sides are merged
// recursively; any other value from other replaces the value in p, so
// arrays are replaced, never merged element-wise.
func (p Payload) Merge(other Payload) {
	for k, v := range other {
		src, ok := asObject(v)
		if ok {
			if dst, ok := asObject(p[k]); ok {
				Payload(dst).Merge(src)
				p[k] = dst
				continue
			}
		}
		p[k] = cloneValue(v)
	}
}

func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Payload:
		return t, true
	default:
		return nil, false
	}
}

// IsEmpty reports whether p has no keys.
func (p Payload) IsEmpty() bool { return len(p) == 0 }
