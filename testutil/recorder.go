package testutil

import (
	"sync"

	"github.com/hupe1980/vdego/native"
)

// Recorder wraps a native.Library and counts calls per ABI function name
// (for example "vde_upsert_vector"). Fail, when set, can inject a status
// code for a function; Before runs a hook ahead of it.
type Recorder struct {
	native.Library

	mu    sync.Mutex
	calls []string
	fail  map[string]int32
	hooks map[string]func()
}

var _ native.Library = (*Recorder)(nil)

// NewRecorder wraps lib.
func NewRecorder(lib native.Library) *Recorder {
	return &Recorder{Library: lib, fail: make(map[string]int32), hooks: make(map[string]func())}
}

func (r *Recorder) record(name string) int32 {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	code := r.fail[name]
	hook := r.hooks[name]
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return code
}

// Before runs hook on every later call of fn, before the call reaches the
// engine. The hook runs on the calling goroutine, inside the native gate,
// so it can stall a call to force an interleaving. A nil hook removes it.
func (r *Recorder) Before(fn string, hook func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hook == nil {
		delete(r.hooks, fn)
		return
	}
	r.hooks[fn] = hook
}

// Fail makes every later call of fn return code without reaching the engine.
// A zero code removes the injection.
func (r *Recorder) Fail(fn string, code int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if code == 0 {
		delete(r.fail, fn)
		return
	}
	r.fail[fn] = code
}

// Calls returns the recorded function names in call order.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Count returns how often fn was called.
func (r *Recorder) Count(fn string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == fn {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls. Injected failures are kept.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *Recorder) EngineCreate(workDir string) native.EngineHandle {
	if r.record("vde_engine_create") != 0 {
		return 0
	}
	return r.Library.EngineCreate(workDir)
}

func (r *Recorder) EngineDestroy(engine native.EngineHandle) {
	r.record("vde_engine_destroy")
	r.Library.EngineDestroy(engine)
}

func (r *Recorder) CollectionCreate(engine native.EngineHandle, name string, cfg *native.CollectionConfig) native.CollectionHandle {
	if r.record("vde_collection_create") != 0 {
		return 0
	}
	return r.Library.CollectionCreate(engine, name, cfg)
}

func (r *Recorder) CollectionOpen(engine native.EngineHandle, name string) native.CollectionHandle {
	if r.record("vde_collection_open") != 0 {
		return 0
	}
	return r.Library.CollectionOpen(engine, name)
}

func (r *Recorder) UpsertVector(coll native.CollectionHandle, id uint64, vector []float32, payload []byte) int32 {
	if code := r.record("vde_upsert_vector"); code != 0 {
		return code
	}
	return r.Library.UpsertVector(coll, id, vector, payload)
}

func (r *Recorder) DeleteVector(coll native.CollectionHandle, id uint64) int32 {
	if code := r.record("vde_delete_vector"); code != 0 {
		return code
	}
	return r.Library.DeleteVector(coll, id)
}

func (r *Recorder) GetVector(coll native.CollectionHandle, id uint64, vector []float32, payload []byte) (uint32, int32) {
	if code := r.record("vde_get_vector"); code != 0 {
		return 0, code
	}
	return r.Library.GetVector(coll, id, vector, payload)
}

func (r *Recorder) Search(coll native.CollectionHandle, query []float32, topK uint32, out []native.SearchResult) (uint32, int32) {
	if code := r.record("vde_search"); code != 0 {
		return 0, code
	}
	return r.Library.Search(coll, query, topK, out)
}

func (r *Recorder) SearchFiltered(coll native.CollectionHandle, query []float32, topK uint32, filter string, out []native.SearchResult) (uint32, int32) {
	if code := r.record("vde_search_filtered"); code != 0 {
		return 0, code
	}
	return r.Library.SearchFiltered(coll, query, topK, filter, out)
}

func (r *Recorder) SaveSnapshot(coll native.CollectionHandle) int32 {
	if code := r.record("vde_save_snapshot"); code != 0 {
		return code
	}
	return r.Library.SaveSnapshot(coll)
}

func (r *Recorder) Flush(coll native.CollectionHandle) {
	r.record("vde_flush")
	r.Library.Flush(coll)
}

func (r *Recorder) VectorCount(coll native.CollectionHandle) uint64 {
	r.record("vde_get_vector_count")
	return r.Library.VectorCount(coll)
}
