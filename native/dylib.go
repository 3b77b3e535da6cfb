//go:build darwin || freebsd || linux

package native

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// LibraryEnv names the environment variable that overrides library discovery.
const LibraryEnv = "VDE_LIBRARY"

// C layouts. Field order and widths must match vde.h.
type cCollectionConfig struct {
	indexType      *byte
	storageType    *byte
	dimension      uint32
	distanceMetric *byte
	configJSON     *byte
}

type cVector struct {
	data *float32
	dim  uint32
}

type cPayload struct {
	json   *byte
	length uint32
}

type cSearchResult struct {
	offset uint64
	score  float32
}

// Dylib is a Library backed by the shared libvde, loaded without cgo.
type Dylib struct {
	handle uintptr
	path   string

	mu     sync.Mutex
	closed bool

	engineCreate     func(string) uintptr
	engineDestroy    func(uintptr)
	collectionCreate func(uintptr, string, *cCollectionConfig) uintptr
	collectionOpen   func(uintptr, string) uintptr
	upsertVector     func(uintptr, uint64, *cVector, *cPayload) int32
	deleteVector     func(uintptr, uint64) int32
	getVector        func(uintptr, uint64, *cVector, *cPayload) int32
	search           func(uintptr, *cVector, uint32, *cSearchResult, *uint32) int32
	searchFiltered   func(uintptr, *cVector, uint32, string, *cSearchResult, *uint32) int32
	saveSnapshot     func(uintptr) int32
	flush            func(uintptr)
	vectorCount      func(uintptr) uint64
}

var _ Library = (*Dylib)(nil)

// Load opens the VDE library at path. An empty path searches the default
// locations (see FindLibrary).
func Load(path string) (*Dylib, error) {
	if path == "" {
		path = FindLibrary()
		if path == "" {
			return nil, fmt.Errorf("%s not found; set %s", libraryName(), LibraryEnv)
		}
	}

	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	d := &Dylib{handle: handle, path: path}
	if err := d.register(); err != nil {
		_ = purego.Dlclose(handle)
		return nil, err
	}
	return d, nil
}

func (d *Dylib) register() (err error) {
	// RegisterLibFunc panics on a missing symbol.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("incompatible %s: %v", d.path, r)
		}
	}()

	purego.RegisterLibFunc(&d.engineCreate, d.handle, "vde_engine_create")
	purego.RegisterLibFunc(&d.engineDestroy, d.handle, "vde_engine_destroy")
	purego.RegisterLibFunc(&d.collectionCreate, d.handle, "vde_collection_create")
	purego.RegisterLibFunc(&d.collectionOpen, d.handle, "vde_collection_open")
	purego.RegisterLibFunc(&d.upsertVector, d.handle, "vde_upsert_vector")
	purego.RegisterLibFunc(&d.deleteVector, d.handle, "vde_delete_vector")
	purego.RegisterLibFunc(&d.getVector, d.handle, "vde_get_vector")
	purego.RegisterLibFunc(&d.search, d.handle, "vde_search")
	purego.RegisterLibFunc(&d.searchFiltered, d.handle, "vde_search_filtered")
	purego.RegisterLibFunc(&d.saveSnapshot, d.handle, "vde_save_snapshot")
	purego.RegisterLibFunc(&d.flush, d.handle, "vde_flush")
	purego.RegisterLibFunc(&d.vectorCount, d.handle, "vde_get_vector_count")
	return nil
}

// Path returns the file the library was loaded from.
func (d *Dylib) Path() string { return d.path }

// Close unloads the library. Handles obtained from it must not be used afterwards.
func (d *Dylib) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if err := purego.Dlclose(d.handle); err != nil {
		return fmt.Errorf("failed to close %s: %w", d.path, err)
	}
	return nil
}

func (d *Dylib) EngineCreate(workDir string) EngineHandle {
	return EngineHandle(d.engineCreate(workDir))
}

func (d *Dylib) EngineDestroy(engine EngineHandle) {
	d.engineDestroy(uintptr(engine))
}

func (d *Dylib) CollectionCreate(engine EngineHandle, name string, cfg *CollectionConfig) CollectionHandle {
	indexType := cString(cfg.IndexType)
	storageType := cString(cfg.StorageType)
	metric := cString(cfg.DistanceMetric)

	cc := cCollectionConfig{
		indexType:      indexType,
		storageType:    storageType,
		dimension:      cfg.Dimension,
		distanceMetric: metric,
	}
	var configJSON *byte
	if cfg.ConfigJSON != "" {
		configJSON = cString(cfg.ConfigJSON)
		cc.configJSON = configJSON
	}

	h := d.collectionCreate(uintptr(engine), name, &cc)
	runtime.KeepAlive(indexType)
	runtime.KeepAlive(storageType)
	runtime.KeepAlive(metric)
	runtime.KeepAlive(configJSON)
	return CollectionHandle(h)
}

func (d *Dylib) CollectionOpen(engine EngineHandle, name string) CollectionHandle {
	return CollectionHandle(d.collectionOpen(uintptr(engine), name))
}

func (d *Dylib) UpsertVector(coll CollectionHandle, id uint64, vector []float32, payload []byte) int32 {
	var vp *cVector
	if vector != nil {
		vp = &cVector{data: firstFloat(vector), dim: uint32(len(vector))}
	}

	var pp *cPayload
	var buf []byte
	if payload != nil {
		// The engine treats json as a C string; terminate it.
		buf = make([]byte, len(payload)+1)
		copy(buf, payload)
		pp = &cPayload{json: &buf[0], length: uint32(len(payload))}
	}

	rc := d.upsertVector(uintptr(coll), id, vp, pp)
	runtime.KeepAlive(vector)
	runtime.KeepAlive(buf)
	return rc
}

func (d *Dylib) DeleteVector(coll CollectionHandle, id uint64) int32 {
	return d.deleteVector(uintptr(coll), id)
}

func (d *Dylib) GetVector(coll CollectionHandle, id uint64, vector []float32, payload []byte) (uint32, int32) {
	var vp *cVector
	if vector != nil {
		vp = &cVector{data: firstFloat(vector), dim: uint32(len(vector))}
	}

	var pp *cPayload
	if payload != nil {
		pp = &cPayload{json: firstByte(payload), length: uint32(len(payload))}
	}

	rc := d.getVector(uintptr(coll), id, vp, pp)
	runtime.KeepAlive(vector)
	runtime.KeepAlive(payload)

	if pp == nil {
		return 0, rc
	}
	return pp.length, rc
}

func (d *Dylib) Search(coll CollectionHandle, query []float32, topK uint32, out []SearchResult) (uint32, int32) {
	return d.doSearch(coll, query, topK, "", false, out)
}

func (d *Dylib) SearchFiltered(coll CollectionHandle, query []float32, topK uint32, filter string, out []SearchResult) (uint32, int32) {
	return d.doSearch(coll, query, topK, filter, true, out)
}

func (d *Dylib) doSearch(coll CollectionHandle, query []float32, topK uint32, filter string, filtered bool, out []SearchResult) (uint32, int32) {
	if int(topK) > len(out) {
		topK = uint32(len(out))
	}

	q := cVector{data: firstFloat(query), dim: uint32(len(query))}
	results := make([]cSearchResult, topK)
	var resultsPtr *cSearchResult
	if len(results) > 0 {
		resultsPtr = &results[0]
	}

	var count uint32
	var rc int32
	if filtered {
		rc = d.searchFiltered(uintptr(coll), &q, topK, filter, resultsPtr, &count)
	} else {
		rc = d.search(uintptr(coll), &q, topK, resultsPtr, &count)
	}
	runtime.KeepAlive(query)

	if count > topK {
		count = topK
	}
	for i := uint32(0); i < count; i++ {
		out[i] = SearchResult{Offset: results[i].offset, Score: results[i].score}
	}
	return count, rc
}

func (d *Dylib) SaveSnapshot(coll CollectionHandle) int32 {
	return d.saveSnapshot(uintptr(coll))
}

func (d *Dylib) Flush(coll CollectionHandle) {
	d.flush(uintptr(coll))
}

func (d *Dylib) VectorCount(coll CollectionHandle) uint64 {
	return d.vectorCount(uintptr(coll))
}

func cString(s string) *byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return &b[0]
}

func firstFloat(v []float32) *float32 {
	if len(v) == 0 {
		return nil
	}
	return unsafe.SliceData(v)
}

func firstByte(b []byte) *byte {
	if len(b) == 0 {
		return nil
	}
	return unsafe.SliceData(b)
}

// FindLibrary returns the first existing libvde in the search path, or "".
func FindLibrary() string {
	for _, path := range searchPaths() {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func searchPaths() []string {
	var paths []string
	if env := os.Getenv(LibraryEnv); env != "" {
		paths = append(paths, env)
	}
	if dataDir := dataDir(); dataDir != "" {
		paths = append(paths, filepath.Join(dataDir, "lib", libraryName()))
	}
	paths = append(paths,
		"/usr/local/lib/"+libraryName(),
		"/usr/lib/"+libraryName(),
	)

	if runtime.GOOS == "darwin" {
		paths = append(paths, "/opt/homebrew/lib/"+libraryName())
	}
	if runtime.GOOS == "linux" {
		paths = append(paths,
			"/usr/lib/x86_64-linux-gnu/"+libraryName(),
			"/usr/lib/aarch64-linux-gnu/"+libraryName(),
		)
	}
	return paths
}

func libraryName() string {
	if runtime.GOOS == "darwin" {
		return "libvde.dylib"
	}
	return "libvde.so"
}

func dataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "vde")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "vde")
	}
	return filepath.Join(home, ".local", "share", "vde")
}
