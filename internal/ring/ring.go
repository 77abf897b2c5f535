// Package ring implements the bounded circular part buffer that
// decouples sample production/consumption from DMA transfers and
// kernel runs. A single Buffer type is parameterized by a Policy that
// supplies the concurrency behavior (non-blocking or blocking), per
// the "parameterize the ring on a concurrency policy" design note:
// both variants expose the identical operation set.
package ring

import (
	"context"
	"sync"
	"time"

	"github.com/finnhost/qxdriver/internal/qerrs"
)

// pollInterval bounds how often a blocking wait rechecks its
// cancellation context, per the driver's cooperative-cancellation
// contract.
const pollInterval = 2 * time.Second

// Sizes reports the ring's static and dynamic dimensions, matching
// the size(spec) contract of the original driver's RingBuffer.
type Sizes struct {
	TotalBytes    int
	CapacityParts int
	PartSize      int
	PartCount     int
}

// Policy selects blocking or non-blocking behavior for Store/ReadOne.
type Policy int

const (
	// Trivial never blocks: Store/ReadOne return false immediately
	// when capacity/occupancy is insufficient.
	Trivial Policy = iota
	// Blocking waits on a condition variable until the required
	// capacity/occupancy is available, honoring context cancellation
	// on a bounded poll interval.
	Blocking
)

// Buffer is a bounded circular container of fixed-size parts.
type Buffer struct {
	partSize int
	capacity int // parts

	mu     sync.Mutex
	cond   *sync.Cond
	data   []byte // capacity*partSize bytes, treated as a ring
	head   int    // index of oldest valid byte, in bytes
	occBytes int  // valid bytes currently stored

	policy Policy
}

// New constructs a ring buffer of the given part size (bytes) and
// capacity (parts), using the given concurrency policy. It is never
// resized after construction.
func New(partSize, capacityParts int, policy Policy) *Buffer {
	if partSize <= 0 {
		panic("ring: partSize must be positive")
	}
	if capacityParts <= 0 {
		panic("ring: capacityParts must be positive")
	}
	b := &Buffer{
		partSize: partSize,
		capacity: capacityParts,
		data:     make([]byte, partSize*capacityParts),
		policy:   policy,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// PartSize returns the configured part size in bytes.
func (b *Buffer) PartSize() int { return b.partSize }

// CapacityParts returns the configured capacity in parts.
func (b *Buffer) CapacityParts() int { return b.capacity }

// Store appends len(src) bytes, which must be a multiple of PartSize
// and no larger than the total capacity in bytes. In Trivial mode it
// returns (false, nil) if there is not enough free space. In Blocking
// mode it waits until space frees up.
func (b *Buffer) Store(src []byte) (bool, error) {
	return b.StoreContext(context.Background(), src)
}

// StoreContext is Store with a cancellable wait in Blocking mode.
func (b *Buffer) StoreContext(ctx context.Context, src []byte) (bool, error) {
	if len(src)%b.partSize != 0 {
		return false, qerrs.ErrLength
	}
	if len(src) > b.capacity*b.partSize {
		return false, qerrs.ErrCapacity
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.policy == Blocking {
		if ok, err := b.waitLocked(ctx, func() bool {
			return b.capacity*b.partSize-b.occBytes >= len(src)
		}); !ok {
			return false, err
		}
	} else if b.capacity*b.partSize-b.occBytes < len(src) {
		return false, nil
	}

	tail := (b.head + b.occBytes) % len(b.data)
	writeRing(b.data, tail, src)
	b.occBytes += len(src)
	b.cond.Broadcast()
	return true, nil
}

// ReadOne consumes exactly one part into dst, which must have length
// PartSize. In Trivial mode it returns (false, nil) if occupancy is
// below one part. In Blocking mode it waits until a part is available.
func (b *Buffer) ReadOne(dst []byte) (bool, error) {
	return b.ReadOneContext(context.Background(), dst)
}

// ReadOneContext is ReadOne with a cancellable, pollInterval-bounded
// wait in Blocking mode; it returns (false, nil) on cancellation
// without consuming data.
func (b *Buffer) ReadOneContext(ctx context.Context, dst []byte) (bool, error) {
	if len(dst) != b.partSize {
		return false, qerrs.ErrLength
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.policy == Blocking {
		if ok, err := b.waitLocked(ctx, func() bool { return b.occBytes >= b.partSize }); !ok {
			return false, err
		}
	} else if b.occBytes < b.partSize {
		return false, nil
	}

	readRing(b.data, b.head, dst)
	b.head = (b.head + b.partSize) % len(b.data)
	b.occBytes -= b.partSize
	b.cond.Broadcast()
	return true, nil
}

// DrainAll consumes all currently buffered bytes into dst, which must
// be at least Sizes().PartCount*PartSize bytes, and returns the number
// of bytes copied.
func (b *Buffer) DrainAll(dst []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.occBytes
	if n > len(dst) {
		n = len(dst) - len(dst)%b.partSize
	}
	readRing(b.data, b.head, dst[:n])
	b.head = (b.head + n) % len(b.data)
	b.occBytes -= n
	b.cond.Broadcast()
	return n
}

// Peek performs a non-destructive read of part i (0-indexed from the
// oldest currently buffered part) into dst.
func (b *Buffer) Peek(i int, dst []byte) (bool, error) {
	if len(dst) != b.partSize {
		return false, qerrs.ErrLength
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if (i+1)*b.partSize > b.occBytes {
		return false, nil
	}
	start := (b.head + i*b.partSize) % len(b.data)
	readRing(b.data, start, dst)
	return true, nil
}

// PeekAll performs a non-destructive read of the whole buffer into
// dst and returns the number of bytes copied.
func (b *Buffer) PeekAll(dst []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.occBytes
	if n > len(dst) {
		n = len(dst) - len(dst)%b.partSize
	}
	readRing(b.data, b.head, dst[:n])
	return n
}

// Sizes reports the ring's size(spec) fields.
func (b *Buffer) Sizes() Sizes {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Sizes{
		TotalBytes:    b.capacity * b.partSize,
		CapacityParts: b.capacity,
		PartSize:      b.partSize,
		PartCount:     b.occBytes / b.partSize,
	}
}

// Full reports whether the ring holds capacity parts.
func (b *Buffer) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.occBytes == b.capacity*b.partSize
}

// Empty reports whether the ring holds zero parts.
func (b *Buffer) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.occBytes == 0
}

// FreeSpace returns the number of free bytes: (capacity - occupancy) * partSize.
func (b *Buffer) FreeSpace() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity*b.partSize - b.occBytes
}

// waitLocked blocks (mu held) until cond() is true, ctx is cancelled,
// or the poll interval elapses and ctx.Err() is checked again. The
// mutex is unlocked while waiting on the condition variable, per
// sync.Cond's contract. Callers must hold b.mu on entry and exit.
func (b *Buffer) waitLocked(ctx context.Context, cond func() bool) (bool, error) {
	if cond() {
		return true, nil
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				b.mu.Lock()
				b.cond.Broadcast()
				b.mu.Unlock()
				return
			case <-ticker.C:
				b.mu.Lock()
				b.cond.Broadcast()
				b.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()

	for !cond() {
		if ctx.Err() != nil {
			return false, nil
		}
		b.cond.Wait()
	}
	return true, nil
}

func writeRing(data []byte, start int, src []byte) {
	n := copy(data[start:], src)
	if n < len(src) {
		copy(data, src[n:])
	}
}

func readRing(data []byte, start int, dst []byte) {
	n := copy(dst, data[start:])
	if n < len(dst) {
		copy(dst[n:], data)
	}
}
