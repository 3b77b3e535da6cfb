// Package vectorstore adapts the raw vector storage of a VDE collection.
//
// The engine does not report deletions, so the store tracks them itself in
// a bitset indexed by point offset. The tracker is authoritative for
// IsDeleted, DeletedCount and DeletedBitSlice; deletes are still sent to the
// engine so deleted points drop out of search. The tracker is persisted next
// to the engine files as <name>_deleted.bits.
package vectorstore
