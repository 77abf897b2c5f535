// Package devbuf implements the per-kernel device buffers: a ring of
// host-resident parts, a mapped DMA region, and a bound kernel handle,
// wired together by the load-map-sync-run pipeline (input buffers) or
// the run-sync-save pipeline plus a long-term archive (output
// buffers). Both buffer kinds serialize their pipeline behind an
// exclusive lock, per spec.md's ordering guarantees.
package devbuf

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/finnhost/qxdriver/internal/logger"
	"github.com/finnhost/qxdriver/internal/qerrs"
	"github.com/finnhost/qxdriver/internal/ring"
	"github.com/finnhost/qxdriver/internal/xrtiface"
)

// pagedSize rounds sizeBytes up to the host's page-aligned device
// allocation unit, matching a real XRT buffer's own allocation
// granularity.
func pagedSize(sizeBytes int) int {
	page := unix.Getpagesize()
	if page <= 0 {
		page = 4096
	}
	if sizeBytes <= 0 {
		return page
	}
	return ((sizeBytes + page - 1) / page) * page
}

// InputSizes reports an input buffer's size(spec) fields: the
// underlying ring's sizes plus ELEMENTS and ELEMENTS_PER_PART.
type InputSizes struct {
	ring.Sizes
	Elements        int
	ElementsPerPart int
}

// InputBuffer is a device input buffer (C4): at most one kernel-run in
// flight at a time, serialized by mu.
type InputBuffer struct {
	kernelName string
	partSize   int

	mapped xrtiface.BufferObject
	kernel xrtiface.Kernel
	r      *ring.Buffer
	log    logger.Logger

	mu sync.Mutex
}

// NewInputBuffer allocates the mapped region, sized to a page-aligned
// unit, and constructs the ring, per spec.md §3's device input buffer
// contract.
func NewInputBuffer(dev xrtiface.Device, kernel xrtiface.Kernel, kernelName string, partSize, capacityParts int, policy ring.Policy, log logger.Logger) (*InputBuffer, error) {
	mapped, err := dev.AllocateMappedBuffer(pagedSize(partSize), 0)
	if err != nil {
		return nil, fmt.Errorf("devbuf: allocate input buffer for kernel %q: %w", kernelName, err)
	}
	return &InputBuffer{
		kernelName: kernelName,
		partSize:   partSize,
		mapped:     mapped,
		kernel:     kernel,
		r:          ring.New(partSize, capacityParts, policy),
		log:        log,
	}, nil
}

// Store copies exactly one part of already-packed bytes into the ring.
func (b *InputBuffer) Store(data []byte) (bool, error) {
	return b.r.Store(data)
}

// Run drains one part from the ring into the mapped region, syncs to
// the device, submits a kernel run, and waits for its terminal state.
// It returns true iff a part was available and the terminal state was
// not an error. At most one Run is in flight per InputBuffer.
func (b *InputBuffer) Run(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dst := b.mapped.HostView()[:b.partSize]
	ok, err := b.r.ReadOneContext(ctx, dst)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if err := b.mapped.Sync(xrtiface.ToDevice); err != nil {
		return false, fmt.Errorf("devbuf: sync-to-device for kernel %q: %w", b.kernelName, err)
	}

	run, err := b.kernel.Submit(ctx, b.mapped, 1)
	if err != nil {
		return false, fmt.Errorf("devbuf: submit run for kernel %q: %w", b.kernelName, err)
	}
	state, err := run.Wait(ctx)
	if err != nil {
		return false, err
	}
	if !state.Successful() {
		return false, fmt.Errorf("devbuf: kernel %q run: %w: terminal state %s", b.kernelName, qerrs.ErrRuntime, state)
	}
	return true, nil
}

// Sizes forwards the ring's sizes plus ELEMENTS and ELEMENTS_PER_PART.
func (b *InputBuffer) Sizes() InputSizes {
	s := b.r.Sizes()
	return InputSizes{
		Sizes:           s,
		Elements:        s.CapacityParts * s.PartSize,
		ElementsPerPart: s.PartSize,
	}
}

// OutputSizes reports an output buffer's size(spec) fields.
type OutputSizes struct {
	ring.Sizes
	Elements        int
	ElementsPerPart int
}

// OutputBuffer is a device output buffer (C5): ring, mapped region,
// kernel handle, and a long-term archive of drained batches.
type OutputBuffer struct {
	kernelName string
	partSize   int

	mapped xrtiface.BufferObject
	kernel xrtiface.Kernel
	r      *ring.Buffer
	log    logger.Logger

	mu      sync.Mutex
	archive [][]byte
	pool    sync.Pool
}

// NewOutputBuffer mirrors NewInputBuffer's construction.
func NewOutputBuffer(dev xrtiface.Device, kernel xrtiface.Kernel, kernelName string, partSize, capacityParts int, policy ring.Policy, log logger.Logger) (*OutputBuffer, error) {
	mapped, err := dev.AllocateMappedBuffer(pagedSize(partSize), 0)
	if err != nil {
		return nil, fmt.Errorf("devbuf: allocate output buffer for kernel %q: %w", kernelName, err)
	}
	ob := &OutputBuffer{
		kernelName: kernelName,
		partSize:   partSize,
		mapped:     mapped,
		kernel:     kernel,
		r:          ring.New(partSize, capacityParts, policy),
		log:        log,
	}
	ob.pool.New = func() any { return make([]byte, partSize) }
	return ob, nil
}

// Read submits `samples` kernel runs, harvesting each result into the
// ring, draining the ring into the archive whenever it fills, and
// returns the terminal state of the last run.
func (b *OutputBuffer) Read(ctx context.Context, samples int) (xrtiface.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var last xrtiface.State = xrtiface.New
	for i := 0; i < samples; i++ {
		run, err := b.kernel.Submit(ctx, b.mapped, 1)
		if err != nil {
			return xrtiface.Error, fmt.Errorf("devbuf: submit run for kernel %q: %w", b.kernelName, err)
		}
		state, err := run.Wait(ctx)
		if err != nil {
			return xrtiface.Error, err
		}
		if !state.Successful() {
			return state, fmt.Errorf("devbuf: kernel %q run: %w: terminal state %s", b.kernelName, qerrs.ErrRuntime, state)
		}
		last = state

		if err := b.mapped.Sync(xrtiface.FromDevice); err != nil {
			return xrtiface.Error, fmt.Errorf("devbuf: sync-from-device for kernel %q: %w", b.kernelName, err)
		}

		src := b.mapped.HostView()[:b.partSize]
		if ok, err := b.r.Store(src); err != nil {
			return xrtiface.Error, err
		} else if !ok {
			return xrtiface.Error, fmt.Errorf("devbuf: kernel %q: %w: ring full during read", b.kernelName, qerrs.ErrCapacity)
		}

		if b.r.Full() {
			b.drainToArchiveLocked()
		}
	}
	return last, nil
}

// ArchiveValid drains any currently buffered parts into the archive.
func (b *OutputBuffer) ArchiveValid() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drainToArchiveLocked()
}

// drainToArchiveLocked must be called with mu held.
func (b *OutputBuffer) drainToArchiveLocked() {
	sizes := b.r.Sizes()
	if sizes.PartCount == 0 {
		return
	}
	buf := b.pool.Get().([]byte)
	if cap(buf) < sizes.PartCount*b.partSize {
		buf = make([]byte, sizes.PartCount*b.partSize)
	}
	buf = buf[:sizes.PartCount*b.partSize]
	n := b.r.DrainAll(buf)
	for off := 0; off < n; off += b.partSize {
		part := make([]byte, b.partSize)
		copy(part, buf[off:off+b.partSize])
		b.archive = append(b.archive, part)
	}
	b.pool.Put(buf)
}

// RetrieveArchiveParts returns the archive as one byte slice per
// completed batch.
func (b *OutputBuffer) RetrieveArchiveParts() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.archive))
	copy(out, b.archive)
	return out
}

// RetrieveArchiveFlat returns the archive flattened into one byte
// slice, in archive order.
func (b *OutputBuffer) RetrieveArchiveFlat() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, 0, len(b.archive)*b.partSize)
	for _, part := range b.archive {
		out = append(out, part...)
	}
	return out
}

// ClearArchive resets the archive to empty.
func (b *OutputBuffer) ClearArchive() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.archive = b.archive[:0]
}

// Sizes forwards the ring's sizes plus ELEMENTS and ELEMENTS_PER_PART.
func (b *OutputBuffer) Sizes() OutputSizes {
	s := b.r.Sizes()
	return OutputSizes{
		Sizes:           s,
		Elements:        s.CapacityParts * s.PartSize,
		ElementsPerPart: s.PartSize,
	}
}

// MappedBytes exposes the mapped region's current host-visible bytes,
// for tests that need to pre-load or inspect device-side state.
func (b *OutputBuffer) MappedBytes() []byte { return b.mapped.HostView() }

// MappedBytes exposes the input buffer's mapped region for tests.
func (b *InputBuffer) MappedBytes() []byte { return b.mapped.HostView() }
