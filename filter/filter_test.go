package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionMatches(t *testing.T) {
	doc := []byte(`{"category":"tech","count":10,"score":7.5,"active":true,"tags":["a","b"],"meta":{"lang":"en"},"title":"vector search engines"}`)

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"OpEqual string match", Eq("category", "tech"), true},
		{"OpEqual string no match", Eq("category", "sports"), false},
		{"OpEqual int match", Eq("count", 10), true},
		{"OpEqual int vs float", Eq("count", 10.0), true},
		{"OpEqual bool", Eq("active", true), true},
		{"OpEqual nested key", Eq("meta.lang", "en"), true},
		{"OpEqual missing key", Eq("missing", "x"), false},
		{"OpNotEqual", Ne("category", "sports"), true},
		{"OpNotEqual same", Ne("category", "tech"), false},
		{"OpGreaterThan", Gt("count", 5), true},
		{"OpGreaterThan false", Gt("count", 10), false},
		{"OpGreaterEqual equal", Gte("count", 10), true},
		{"OpLessThan float", Lt("score", 8), true},
		{"OpLessEqual", Lte("score", 7.5), true},
		{"OpGreaterThan on string", Gt("category", 1), false},
		{"OpIn", In("category", "news", "tech"), true},
		{"OpIn no match", In("category", "news", "sports"), false},
		{"OpContains", Contains("title", "search"), true},
		{"OpContains no match", Contains("title", "graph"), false},
		{"array any element", Eq("tags", "b"), true},
		{"array no element", Eq("tags", "z"), false},
		{"array not equal", Ne("tags", "z"), true},
		{"array not equal present", Ne("tags", "a"), false},
		{"array whole equality", Eq("tags", []string{"a", "b"}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(Must(tt.cond))
			assert.Equal(t, tt.want, f.Matches(doc))
		})
	}
}

func TestFilterClauses(t *testing.T) {
	doc := []byte(`{"color":"red","size":3}`)

	assert.True(t, (*Filter)(nil).Matches(doc))
	assert.True(t, New().Matches(doc))

	assert.True(t, New(Should(Eq("color", "blue"), Eq("color", "red"))).Matches(doc))
	assert.False(t, New(Should(Eq("color", "blue"), Eq("color", "green"))).Matches(doc))
	assert.False(t, New(MustNot(Eq("color", "red"))).Matches(doc))
	assert.True(t, New(MustNot(Eq("color", "blue"))).Matches(doc))

	nested := New(
		Must(Gte("size", 1)),
		Must(Group(New(Should(Eq("color", "blue"), Lt("size", 5))))),
	)
	assert.True(t, nested.Matches(doc))
}

func TestFilterMarshalJSON(t *testing.T) {
	f := New(
		Must(Eq("city", "London"), Gte("price", 10)),
		Should(In("color", "red", "blue")),
		MustNot(Ne("status", "draft"), Contains("title", "beta")),
	)

	got, err := json.Marshal(f)
	require.NoError(t, err)

	want := `{
		"must":[{"key":"city","match":{"value":"London"}},{"key":"price","range":{"gte":10}}],
		"should":[{"key":"color","match":{"any":["red","blue"]}}],
		"must_not":[{"key":"status","match":{"except":["draft"]}},{"key":"title","match":{"text":"beta"}}]
	}`
	assert.JSONEq(t, want, string(got))
}

func TestFilterMarshalJSONNested(t *testing.T) {
	f := New(Must(Group(New(Should(Eq("a", 1))))))

	got, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"must":[{"should":[{"key":"a","match":{"value":1}}]}]}`, string(got))
}

func TestFilterMarshalJSONInvalid(t *testing.T) {
	tests := []struct {
		name string
		cond Condition
	}{
		{"missing key", Condition{Operator: OpEqual, Value: Int(1)}},
		{"range on string", Gt("name", "x")},
		{"unknown operator", Condition{Key: "a", Operator: "near", Value: Int(1)}},
		{"in without array", Condition{Key: "a", Operator: OpIn, Value: Int(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := json.Marshal(New(Must(tt.cond)))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidFilter)
		})
	}
}

func TestFilterUnmarshalJSON(t *testing.T) {
	raw := `{
		"must":[
			{"key":"city","match":{"value":"London"}},
			{"key":"price","range":{"gte":10,"lt":20.5}}
		],
		"should":[{"key":"color","match":{"any":["red","blue"]}}],
		"must_not":[
			{"key":"status","match":{"except":["draft"]}},
			{"must":[{"key":"title","match":{"text":"beta"}}]}
		]
	}`

	var f Filter
	require.NoError(t, json.Unmarshal([]byte(raw), &f))

	require.Len(t, f.Must, 2)
	assert.Equal(t, Eq("city", "London"), f.Must[0])
	require.NotNil(t, f.Must[1].Nested)
	assert.Equal(t, []Condition{Gte("price", 10), Lt("price", 20.5)}, f.Must[1].Nested.Must)

	require.Len(t, f.Should, 1)
	assert.Equal(t, In("color", "red", "blue"), f.Should[0])

	require.Len(t, f.MustNot, 2)
	assert.Equal(t, Ne("status", "draft"), f.MustNot[0])
	require.NotNil(t, f.MustNot[1].Nested)
	assert.Equal(t, Contains("title", "beta"), f.MustNot[1].Nested.Must[0])

	assert.True(t, f.Matches([]byte(`{"city":"London","price":12,"color":"red","status":"live","title":"final"}`)))
	assert.False(t, f.Matches([]byte(`{"city":"London","price":25,"color":"red","status":"live","title":"final"}`)))
}

func TestFilterUnmarshalJSONInvalid(t *testing.T) {
	for _, raw := range []string{
		`{"must":[{"key":"a"}]}`,
		`{"must":[{"key":"a","match":{}}]}`,
		`{"must":[{"key":"a","range":{}}]}`,
	} {
		var f Filter
		err := json.Unmarshal([]byte(raw), &f)
		assert.ErrorIs(t, err, ErrInvalidFilter, raw)
	}
}

func TestValueFromAny(t *testing.T) {
	v, err := FromAny([]any{1, "x", 2.5, true, nil})
	require.NoError(t, err)
	assert.Equal(t, Array([]Value{Int(1), String("x"), Float(2.5), Bool(true), Null()}), v)

	_, err = FromAny(struct{}{})
	require.Error(t, err)

	_, err = FromAny(uint64(1) << 63)
	require.Error(t, err)

	n, err := FromAny(json.Number("42"))
	require.NoError(t, err)
	assert.Equal(t, Int(42), n)

	n, err = FromAny(json.Number("4.2e1"))
	require.NoError(t, err)
	assert.Equal(t, Float(42), n)
}

func TestValueJSON(t *testing.T) {
	b, err := json.Marshal(Array(nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))

	var v Value
	require.NoError(t, json.Unmarshal([]byte(`[1, "a", 1.5]`), &v))
	assert.Equal(t, Array([]Value{Int(1), String("a"), Float(1.5)}), v)
	assert.Equal(t, `[1,"a",1.5]`, v.String())
	assert.Equal(t, []any{int64(1), "a", 1.5}, v.Any())
}

func TestMatchesEscapedKey(t *testing.T) {
	f := New(Must(Eq("a*b", 1)))
	assert.True(t, f.Matches([]byte(`{"a*b":1}`)))
	assert.False(t, f.Matches([]byte(`{"axb":1}`)))
}
