package filter

// Operator represents a comparison operator for filtering.
type Operator string

const (
	// OpEqual represents the equality operator.
	OpEqual Operator = "eq"
	// OpNotEqual represents the inequality operator.
	OpNotEqual Operator = "ne"
	// OpGreaterThan represents the greater than operator.
	OpGreaterThan Operator = "gt"
	// OpGreaterEqual represents the greater than or equal operator.
	OpGreaterEqual Operator = "gte"
	// OpLessThan represents the less than operator.
	OpLessThan Operator = "lt"
	// OpLessEqual represents the less than or equal operator.
	OpLessEqual Operator = "lte"
	// OpIn represents the in list operator.
	OpIn Operator = "in"
	// OpContains represents the full-text contains operator.
	OpContains Operator = "contains"
)

// IsRange reports whether op is a numeric range operator.
func (op Operator) IsRange() bool {
	switch op {
	case OpGreaterThan, OpGreaterEqual, OpLessThan, OpLessEqual:
		return true
	default:
		return false
	}
}

// Condition is a single clause: a key condition, or a nested filter when
// Nested is set.
type Condition struct {
	Key      string
	Operator Operator
	Value    Value

	Nested *Filter
}

// Filter is a boolean combination of conditions.
type Filter struct {
	Must    []Condition
	Should  []Condition
	MustNot []Condition
}

// Option adds clauses to a Filter.
type Option func(*Filter)

// New builds a Filter from clause options.
func New(opts ...Option) *Filter {
	f := &Filter{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Must appends conditions that all have to match.
func Must(conds ...Condition) Option {
	return func(f *Filter) { f.Must = append(f.Must, conds...) }
}

// Should appends conditions of which at least one has to match.
func Should(conds ...Condition) Option {
	return func(f *Filter) { f.Should = append(f.Should, conds...) }
}

// MustNot appends conditions none of which may match.
func MustNot(conds ...Condition) Option {
	return func(f *Filter) { f.MustNot = append(f.MustNot, conds...) }
}

// IsEmpty reports whether f has no clauses.
func (f *Filter) IsEmpty() bool {
	return f == nil || len(f.Must)+len(f.Should)+len(f.MustNot) == 0
}

// Eq matches key == v.
func Eq(key string, v any) Condition {
	return Condition{Key: key, Operator: OpEqual, Value: mustValue(v)}
}

// Ne matches key != v.
func Ne(key string, v any) Condition {
	return Condition{Key: key, Operator: OpNotEqual, Value: mustValue(v)}
}

// Gt matches key > v.
func Gt(key string, v any) Condition {
	return Condition{Key: key, Operator: OpGreaterThan, Value: mustValue(v)}
}

// Gte matches key >= v.
func Gte(key string, v any) Condition {
	return Condition{Key: key, Operator: OpGreaterEqual, Value: mustValue(v)}
}

// Lt matches key < v.
func Lt(key string, v any) Condition {
	return Condition{Key: key, Operator: OpLessThan, Value: mustValue(v)}
}

// Lte matches key <= v.
func Lte(key string, v any) Condition {
	return Condition{Key: key, Operator: OpLessEqual, Value: mustValue(v)}
}

// In matches when key equals any of vs.
func In(key string, vs ...any) Condition {
	arr := make([]Value, len(vs))
	for i := range vs {
		arr[i] = mustValue(vs[i])
	}
	return Condition{Key: key, Operator: OpIn, Value: Array(arr)}
}

// Contains matches when the string at key contains text.
func Contains(key, text string) Condition {
	return Condition{Key: key, Operator: OpContains, Value: String(text)}
}

// Group wraps a nested filter as a clause.
func Group(f *Filter) Condition {
	return Condition{Nested: f}
}
