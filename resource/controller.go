package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// NativeConcurrency is the number of native engine calls allowed in flight.
	// If 0, defaults to 1 (fully serialized).
	NativeConcurrency int64

	// MaxTransfers is the maximum number of concurrent backup transfers.
	// If 0, defaults to 4.
	MaxTransfers int64

	// BufferLimitBytes bounds the memory held by native fetch buffers.
	// If 0, no hard limit is enforced (only tracking).
	BufferLimitBytes int64

	// IOLimitBytesPerSec is the maximum throughput for backup and restore.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller gates native calls and meters transfer resources.
type Controller struct {
	cfg Config

	nativeSem *semaphore.Weighted
	inFlight  atomic.Int64

	transferSem *semaphore.Weighted

	bufSem  *semaphore.Weighted // nil if unlimited
	bufUsed atomic.Int64

	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.NativeConcurrency <= 0 {
		cfg.NativeConcurrency = 1
	}
	if cfg.MaxTransfers <= 0 {
		cfg.MaxTransfers = 4
	}

	c := &Controller{
		cfg:         cfg,
		nativeSem:   semaphore.NewWeighted(cfg.NativeConcurrency),
		transferSem: semaphore.NewWeighted(cfg.MaxTransfers),
	}

	if cfg.BufferLimitBytes > 0 {
		c.bufSem = semaphore.NewWeighted(cfg.BufferLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// Config returns the effective limits.
func (c *Controller) Config() Config {
	return c.cfg
}

// AcquireNative blocks until a native call slot is free or ctx is done.
func (c *Controller) AcquireNative(ctx context.Context) error {
	if err := c.nativeSem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.inFlight.Add(1)
	return nil
}

// TryAcquireNative reserves a native call slot without blocking.
func (c *Controller) TryAcquireNative() bool {
	if !c.nativeSem.TryAcquire(1) {
		return false
	}
	c.inFlight.Add(1)
	return true
}

// ReleaseNative frees a slot taken by AcquireNative.
func (c *Controller) ReleaseNative() {
	c.inFlight.Add(-1)
	c.nativeSem.Release(1)
}

// AcquireNativeExclusive takes every native call slot, waiting for calls in
// flight to finish.
func (c *Controller) AcquireNativeExclusive(ctx context.Context) error {
	return c.nativeSem.Acquire(ctx, c.cfg.NativeConcurrency)
}

// ReleaseNativeExclusive frees the slots taken by AcquireNativeExclusive.
func (c *Controller) ReleaseNativeExclusive() {
	c.nativeSem.Release(c.cfg.NativeConcurrency)
}

// NativeInFlight returns the number of native calls currently holding a slot.
func (c *Controller) NativeInFlight() int64 {
	return c.inFlight.Load()
}

// AcquireBuffer reserves bytes for a fetch buffer.
// If a hard limit is configured and usage would exceed it,
// this blocks until memory is available or ctx is canceled.
func (c *Controller) AcquireBuffer(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.bufSem != nil {
		if err := c.bufSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.bufUsed.Add(bytes)
	return nil
}

// TryAcquireBuffer attempts to reserve bytes without blocking.
func (c *Controller) TryAcquireBuffer(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.bufSem != nil {
		if !c.bufSem.TryAcquire(bytes) {
			return false
		}
	}

	c.bufUsed.Add(bytes)
	return true
}

// ReleaseBuffer releases bytes reserved by AcquireBuffer.
func (c *Controller) ReleaseBuffer(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.bufSem != nil {
		c.bufSem.Release(bytes)
	}
	c.bufUsed.Add(-bytes)
}

// BufferUsage returns the bytes currently reserved for fetch buffers.
func (c *Controller) BufferUsage() int64 {
	return c.bufUsed.Load()
}

// AcquireTransfer reserves a backup transfer slot.
func (c *Controller) AcquireTransfer(ctx context.Context) error {
	return c.transferSem.Acquire(ctx, 1)
}

// ReleaseTransfer releases a backup transfer slot.
func (c *Controller) ReleaseTransfer() {
	c.transferSem.Release(1)
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
// Requests larger than the limiter burst are split.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c.ioLimiter == nil {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
