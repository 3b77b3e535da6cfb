// Package filter models search filters and serializes them into the engine's
// JSON filter grammar.
//
// A Filter has three clause lists: Must (all match), Should (at least one
// matches, when non-empty) and MustNot (none match). Each clause is either a
// key condition or a nested Filter.
//
//	f := filter.New(
//	    filter.Must(filter.Eq("city", "Berlin"), filter.Gte("price", 10)),
//	    filter.MustNot(filter.In("tag", "draft", "spam")),
//	)
//	data, _ := json.Marshal(f)
//	// {"must":[{"key":"city","match":{"value":"Berlin"}},{"key":"price","range":{"gte":10}}],
//	//  "must_not":[{"key":"tag","match":{"any":["draft","spam"]}}]}
//
// The query-planning meaning of a filter belongs to the engine. Matches
// implements the same semantics for the embedded reference engine.
package filter
