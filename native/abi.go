package native

// EngineHandle is an opaque engine instance rooted at a working directory.
type EngineHandle uintptr

// CollectionHandle is an opaque handle to a named collection of one engine.
type CollectionHandle uintptr

// StatusOK is the only success code of the ABI.
const StatusOK int32 = 0

// CollectionConfig mirrors VDECollectionConfig.
type CollectionConfig struct {
	IndexType      string
	StorageType    string
	Dimension      uint32
	DistanceMetric string
	// ConfigJSON is passed as NULL when empty.
	ConfigJSON string
}

// SearchResult mirrors VDESearchResult.
type SearchResult struct {
	Offset uint64
	Score  float32
}

// Library is the VDE C ABI.
//
// Slices passed as inputs are only read during the call. Output slices are
// written in place; their length is the capacity handed to the engine.
type Library interface {
	// EngineCreate creates an engine rooted at workDir. Returns 0 on failure.
	EngineCreate(workDir string) EngineHandle
	// EngineDestroy releases the engine and every collection handle bound to it.
	EngineDestroy(engine EngineHandle)

	// CollectionCreate creates a collection. Returns 0 on failure.
	CollectionCreate(engine EngineHandle, name string, cfg *CollectionConfig) CollectionHandle
	// CollectionOpen opens an existing collection. Returns 0 if it does not exist.
	CollectionOpen(engine EngineHandle, name string) CollectionHandle

	// UpsertVector inserts or replaces the vector and/or payload of id.
	// A nil vector or nil payload leaves that part untouched.
	UpsertVector(coll CollectionHandle, id uint64, vector []float32, payload []byte) int32
	// DeleteVector removes id.
	DeleteVector(coll CollectionHandle, id uint64) int32
	// GetVector copies the vector of id into vector (if non-nil) and its payload
	// JSON into payload (if non-nil). payloadLen is the length the engine reports
	// for the document, which may exceed len(payload).
	GetVector(coll CollectionHandle, id uint64, vector []float32, payload []byte) (payloadLen uint32, status int32)

	// Search fills out with at most topK results and returns the count.
	Search(coll CollectionHandle, query []float32, topK uint32, out []SearchResult) (count uint32, status int32)
	// SearchFiltered is Search restricted by a JSON filter expression.
	SearchFiltered(coll CollectionHandle, query []float32, topK uint32, filter string, out []SearchResult) (count uint32, status int32)

	// SaveSnapshot persists the index state.
	SaveSnapshot(coll CollectionHandle) int32
	// Flush persists buffered storage writes.
	Flush(coll CollectionHandle)
	// VectorCount returns the number of live vectors.
	VectorCount(coll CollectionHandle) uint64
}
