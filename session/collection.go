package session

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/hupe1980/vdego/distance"
	"github.com/hupe1980/vdego/model"
	"github.com/hupe1980/vdego/native"
)

// initialPayloadBuffer is the first size tried when fetching a payload.
const initialPayloadBuffer = 64 << 10

// Collection is a named collection bound to the engine of a Session.
// It is safe for concurrent use; native calls are gated by the session.
type Collection struct {
	s      *Session
	name   string
	handle native.CollectionHandle
	cfg    CollectionConfig
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Dimension returns the configured vector dimension.
func (c *Collection) Dimension() int { return c.cfg.Dimension }

// Metric returns the configured distance metric.
func (c *Collection) Metric() distance.Metric { return c.cfg.Metric }

// Config returns the effective collection config.
func (c *Collection) Config() CollectionConfig { return c.cfg }

// Session returns the owning session.
func (c *Collection) Session() *Session { return c.s }

// Path joins the working directory with the collection name plus suffix,
// which is how the engine names its files.
func (c *Collection) Path(suffix string) string {
	return filepath.Join(c.s.dir, c.name+suffix)
}

// call runs fn while holding a native slot.
func (c *Collection) call(ctx context.Context, fn func()) error {
	if c.s.closed() {
		return ErrClosed
	}
	if err := c.s.gate.AcquireNative(ctx); err != nil {
		return err
	}
	defer c.s.gate.ReleaseNative()
	// The session may have been torn down while we waited for the gate.
	if c.s.closed() {
		return ErrClosed
	}
	fn()
	return nil
}

// Upsert writes the vector and/or payload of offset. A nil argument leaves
// that part of the point untouched.
func (c *Collection) Upsert(ctx context.Context, offset model.PointOffset, vec []float32, payload []byte) error {
	var code int32
	if err := c.call(ctx, func() {
		code = c.s.lib.UpsertVector(c.handle, uint64(offset), vec, payload)
	}); err != nil {
		return err
	}
	return statusError("upsert_vector", code)
}

// Delete removes offset from the engine.
func (c *Collection) Delete(ctx context.Context, offset model.PointOffset) error {
	var code int32
	if err := c.call(ctx, func() {
		code = c.s.lib.DeleteVector(c.handle, uint64(offset))
	}); err != nil {
		return err
	}
	return statusError("delete_vector", code)
}

// GetVector fetches the stored vector of offset.
func (c *Collection) GetVector(ctx context.Context, offset model.PointOffset) (model.DenseVector, error) {
	vec := make([]float32, c.cfg.Dimension)
	var code int32
	if err := c.call(ctx, func() {
		_, code = c.s.lib.GetVector(c.handle, uint64(offset), vec, nil)
	}); err != nil {
		return nil, err
	}
	if err := statusError("get_vector", code); err != nil {
		return nil, err
	}
	return vec, nil
}

// GetPayload fetches the payload document of offset.
//
// The buffer starts at 64 KiB and doubles until the length reported by the
// engine fits. A document larger than the configured maximum is an error,
// never a truncated read.
func (c *Collection) GetPayload(ctx context.Context, offset model.PointOffset) ([]byte, error) {
	limit := c.s.maxPayload
	size := min(initialPayloadBuffer, limit)

	for {
		if err := c.s.gate.AcquireBuffer(ctx, int64(size)); err != nil {
			return nil, err
		}
		buf := make([]byte, size)

		var (
			n    uint32
			code int32
		)
		err := c.call(ctx, func() {
			n, code = c.s.lib.GetVector(c.handle, uint64(offset), nil, buf)
		})
		c.s.gate.ReleaseBuffer(int64(size))
		if err != nil {
			return nil, err
		}
		if err := statusError("get_vector", code); err != nil {
			return nil, err
		}

		if int(n) <= size {
			return bytes.TrimRight(buf[:n], "\x00"), nil
		}
		if int(n) > limit {
			return nil, &ServiceError{
				Op:      "get_vector",
				Message: fmt.Sprintf("payload of %d bytes exceeds limit of %d bytes", n, limit),
			}
		}
		for size < int(n) {
			size *= 2
		}
		size = min(size, limit)
	}
}

// Search returns at most topK nearest neighbours of query.
func (c *Collection) Search(ctx context.Context, query []float32, topK int) ([]native.SearchResult, error) {
	return c.search(ctx, query, topK, "", false)
}

// SearchFiltered is Search restricted by a filter in the engine JSON grammar.
func (c *Collection) SearchFiltered(ctx context.Context, query []float32, topK int, filterJSON string) ([]native.SearchResult, error) {
	return c.search(ctx, query, topK, filterJSON, true)
}

func (c *Collection) search(ctx context.Context, query []float32, topK int, filterJSON string, filtered bool) ([]native.SearchResult, error) {
	if topK < 1 {
		return nil, ErrInvalidK
	}

	out := make([]native.SearchResult, topK)
	var (
		count uint32
		code  int32
	)
	op := "search"
	if filtered {
		op = "search_filtered"
	}
	if err := c.call(ctx, func() {
		if filtered {
			count, code = c.s.lib.SearchFiltered(c.handle, query, uint32(topK), filterJSON, out)
		} else {
			count, code = c.s.lib.Search(c.handle, query, uint32(topK), out)
		}
	}); err != nil {
		return nil, err
	}
	if err := statusError(op, code); err != nil {
		return nil, err
	}
	return out[:min(int(count), topK)], nil
}

// SaveSnapshot persists the index state.
func (c *Collection) SaveSnapshot(ctx context.Context) error {
	var code int32
	if err := c.call(ctx, func() {
		code = c.s.lib.SaveSnapshot(c.handle)
	}); err != nil {
		return err
	}
	return statusError("save_snapshot", code)
}

// Flush persists buffered storage writes.
func (c *Collection) Flush(ctx context.Context) error {
	return c.call(ctx, func() {
		c.s.lib.Flush(c.handle)
	})
}

// VectorCount returns the number of live vectors reported by the engine.
func (c *Collection) VectorCount(ctx context.Context) (uint64, error) {
	var n uint64
	if err := c.call(ctx, func() {
		n = c.s.lib.VectorCount(c.handle)
	}); err != nil {
		return 0, err
	}
	return n, nil
}
