package native

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/vdego/distance"
	"github.com/hupe1980/vdego/filter"
	"github.com/hupe1980/vdego/internal/queue"
)

// Status codes reported by Memory.
const (
	MemoryStatusNotFound int32 = 1
	MemoryStatusInvalid  int32 = 2
	MemoryStatusIO       int32 = 3
)

// Memory is an embedded reference engine implementing Library.
//
// Search is exhaustive. State lives in memory; SaveSnapshot and Flush write
// it to the engine's working directory using the same file names as libvde,
// and CollectionOpen loads it back.
type Memory struct {
	mu      sync.Mutex
	next    uintptr
	engines map[EngineHandle]*memEngine
	colls   map[CollectionHandle]*memCollection
}

type memEngine struct {
	dir   string
	colls map[string]CollectionHandle
}

type memCollection struct {
	engine EngineHandle
	dir    string
	name   string
	cfg    CollectionConfig
	metric distance.Metric
	points map[uint64]*memPoint
}

type memPoint struct {
	Vector  []float32       `json:"vector,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var _ Library = (*Memory)(nil)

// NewMemory returns an empty reference engine.
func NewMemory() *Memory {
	return &Memory{
		engines: make(map[EngineHandle]*memEngine),
		colls:   make(map[CollectionHandle]*memCollection),
	}
}

func (m *Memory) handle() uintptr {
	m.next++
	return m.next
}

func (m *Memory) EngineCreate(workDir string) EngineHandle {
	if workDir == "" {
		return 0
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	h := EngineHandle(m.handle())
	m.engines[h] = &memEngine{dir: workDir, colls: make(map[string]CollectionHandle)}
	return h
}

func (m *Memory) EngineDestroy(engine EngineHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.engines[engine]
	if !ok {
		return
	}
	for _, ch := range e.colls {
		delete(m.colls, ch)
	}
	delete(m.engines, engine)
}

func (m *Memory) CollectionCreate(engine EngineHandle, name string, cfg *CollectionConfig) CollectionHandle {
	if cfg == nil || name == "" || cfg.Dimension == 0 {
		return 0
	}
	metric, err := distance.Parse(cfg.DistanceMetric)
	if err != nil {
		return 0
	}
	if cfg.ConfigJSON != "" && !gjson.Valid(cfg.ConfigJSON) {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.engines[engine]
	if !ok {
		return 0
	}
	if _, exists := e.colls[name]; exists {
		return 0
	}
	if fileExists(filepath.Join(e.dir, name+".vde")) {
		return 0
	}

	c := &memCollection{
		engine: engine,
		dir:    e.dir,
		name:   name,
		cfg:    *cfg,
		metric: metric,
		points: make(map[uint64]*memPoint),
	}
	if err := c.saveSnapshot(); err != nil {
		return 0
	}
	h := CollectionHandle(m.handle())
	e.colls[name] = h
	m.colls[h] = c
	return h
}

func (m *Memory) CollectionOpen(engine EngineHandle, name string) CollectionHandle {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.engines[engine]
	if !ok || name == "" {
		return 0
	}
	if h, ok := e.colls[name]; ok {
		return h
	}

	c, err := loadCollection(e.dir, name)
	if err != nil {
		return 0
	}
	c.engine = engine
	h := CollectionHandle(m.handle())
	e.colls[name] = h
	m.colls[h] = c
	return h
}

func (m *Memory) UpsertVector(coll CollectionHandle, id uint64, vector []float32, payload []byte) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.colls[coll]
	if !ok {
		return MemoryStatusInvalid
	}
	if vector != nil && len(vector) != int(c.cfg.Dimension) {
		return MemoryStatusInvalid
	}
	if payload != nil && !gjson.ValidBytes(payload) {
		return MemoryStatusInvalid
	}

	p, ok := c.points[id]
	if !ok {
		p = &memPoint{}
		c.points[id] = p
	}
	if vector != nil {
		p.Vector = slices.Clone(vector)
	}
	if payload != nil {
		p.Payload = slices.Clone(payload)
	}
	return StatusOK
}

func (m *Memory) DeleteVector(coll CollectionHandle, id uint64) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.colls[coll]
	if !ok {
		return MemoryStatusInvalid
	}
	delete(c.points, id)
	return StatusOK
}

func (m *Memory) GetVector(coll CollectionHandle, id uint64, vector []float32, payload []byte) (uint32, int32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.colls[coll]
	if !ok {
		return 0, MemoryStatusInvalid
	}
	p, ok := c.points[id]
	if !ok {
		return 0, MemoryStatusNotFound
	}
	if vector != nil {
		if p.Vector == nil {
			return 0, MemoryStatusNotFound
		}
		if len(vector) < len(p.Vector) {
			return 0, MemoryStatusInvalid
		}
		copy(vector, p.Vector)
	}
	if payload != nil {
		copy(payload, p.Payload)
	}
	return uint32(len(p.Payload)), StatusOK
}

func (m *Memory) Search(coll CollectionHandle, query []float32, topK uint32, out []SearchResult) (uint32, int32) {
	return m.search(coll, query, topK, nil, out)
}

func (m *Memory) SearchFiltered(coll CollectionHandle, query []float32, topK uint32, filterJSON string, out []SearchResult) (uint32, int32) {
	f := &filter.Filter{}
	if err := json.Unmarshal([]byte(filterJSON), f); err != nil {
		return 0, MemoryStatusInvalid
	}
	return m.search(coll, query, topK, f, out)
}

func (m *Memory) search(coll CollectionHandle, query []float32, topK uint32, f *filter.Filter, out []SearchResult) (uint32, int32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.colls[coll]
	if !ok {
		return 0, MemoryStatusInvalid
	}
	if len(query) != int(c.cfg.Dimension) {
		return 0, MemoryStatusInvalid
	}

	k := min(int(topK), len(out))
	top := queue.NewTopK(k, c.metric.Better)
	for id, p := range c.points {
		if p.Vector == nil {
			continue
		}
		if f != nil && !f.Matches(payloadOrEmpty(p.Payload)) {
			continue
		}
		top.Push(queue.Item{Offset: id, Score: c.metric.Score(query, p.Vector)})
	}

	hits := top.Sorted()
	for i, h := range hits {
		out[i] = SearchResult{Offset: h.Offset, Score: h.Score}
	}
	n := len(hits)
	return uint32(n), StatusOK
}

func (m *Memory) SaveSnapshot(coll CollectionHandle) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.colls[coll]
	if !ok {
		return MemoryStatusInvalid
	}
	if err := c.saveSnapshot(); err != nil {
		return MemoryStatusIO
	}
	return StatusOK
}

func (m *Memory) Flush(coll CollectionHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.colls[coll]; ok {
		_ = c.flush()
	}
}

func (m *Memory) VectorCount(coll CollectionHandle) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.colls[coll]
	if !ok {
		return 0
	}
	var n uint64
	for _, p := range c.points {
		if p.Vector != nil {
			n++
		}
	}
	return n
}

func payloadOrEmpty(b []byte) []byte {
	if len(b) == 0 {
		return []byte("{}")
	}
	return b
}

// On-disk layout, one JSON document per file:
//
//	<name>.vde             collection config
//	<name>_index.snapshot  sorted ids of searchable points
//	<name>_vectors.btr     id -> vector
//	<name>_metadata.btr    id -> payload
type snapshotHeader struct {
	IndexType      string `json:"index_type"`
	StorageType    string `json:"storage_type"`
	Dimension      uint32 `json:"dimension"`
	DistanceMetric string `json:"distance_metric"`
	ConfigJSON     string `json:"config_json,omitempty"`
}

func (c *memCollection) path(suffix string) string {
	return filepath.Join(c.dir, c.name+suffix)
}

func (c *memCollection) saveSnapshot() error {
	header := snapshotHeader{
		IndexType:      c.cfg.IndexType,
		StorageType:    c.cfg.StorageType,
		Dimension:      c.cfg.Dimension,
		DistanceMetric: c.cfg.DistanceMetric,
		ConfigJSON:     c.cfg.ConfigJSON,
	}
	if err := writeJSON(c.path(".vde"), header); err != nil {
		return err
	}

	ids := make([]uint64, 0, len(c.points))
	for id, p := range c.points {
		if p.Vector != nil {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return writeJSON(c.path("_index.snapshot"), ids)
}

func (c *memCollection) flush() error {
	vectors := make(map[uint64][]float32, len(c.points))
	payloads := make(map[uint64]json.RawMessage, len(c.points))
	for id, p := range c.points {
		if p.Vector != nil {
			vectors[id] = p.Vector
		}
		if p.Payload != nil {
			payloads[id] = p.Payload
		}
	}
	return errors.Join(
		writeJSON(c.path("_vectors.btr"), vectors),
		writeJSON(c.path("_metadata.btr"), payloads),
	)
}

func loadCollection(dir, name string) (*memCollection, error) {
	c := &memCollection{dir: dir, name: name, points: make(map[uint64]*memPoint)}

	var header snapshotHeader
	if err := readJSON(c.path(".vde"), &header); err != nil {
		return nil, err
	}
	metric, err := distance.Parse(header.DistanceMetric)
	if err != nil {
		return nil, err
	}
	c.metric = metric
	c.cfg = CollectionConfig{
		IndexType:      header.IndexType,
		StorageType:    header.StorageType,
		Dimension:      header.Dimension,
		DistanceMetric: header.DistanceMetric,
		ConfigJSON:     header.ConfigJSON,
	}

	var vectors map[uint64][]float32
	if err := readJSON(c.path("_vectors.btr"), &vectors); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	for id, v := range vectors {
		c.points[id] = &memPoint{Vector: v}
	}

	var payloads map[uint64]json.RawMessage
	if err := readJSON(c.path("_metadata.btr"), &payloads); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	for id, p := range payloads {
		if pt, ok := c.points[id]; ok {
			pt.Payload = p
		} else {
			c.points[id] = &memPoint{Payload: p}
		}
	}
	return c, nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
