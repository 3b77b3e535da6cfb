// Package payload stores the JSON documents attached to points of a VDE
// collection.
//
// Documents travel to the engine as whole JSON strings: partial updates are
// read-modify-write on the host, serialized per Storage by a writer mutex.
// Reads go through a bounded LRU cache filled on every write and on read
// misses.
//
// The engine cannot enumerate documents, so Storage keeps the set of offsets
// it has written in a roaring bitmap persisted as <name>_payload.keys. Iter
// walks that set, which makes iteration complete across restarts and cache
// evictions.
//
// Paths address values inside a document:
//
//	city              top-level key
//	address.city      nested key
//	tags[0]           array element
//	items[].price     price of every element of items
//	"a.b".c           quoted key containing a dot
package payload
