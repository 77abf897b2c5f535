// Package driver implements the typed entry point (C8) that combines
// pack -> store -> run -> read -> unpack into a single call, alongside
// a byte-level escape hatch that bypasses the codec entirely.
package driver

import (
	"context"
	"fmt"

	"github.com/finnhost/qxdriver/internal/accelerator"
	"github.com/finnhost/qxdriver/internal/logger"
	"github.com/finnhost/qxdriver/internal/xrtiface"
	"github.com/finnhost/qxdriver/pkg/pack"
	"github.com/finnhost/qxdriver/pkg/qtype"
)

// Endpoint names a (device, kernel) pair.
type Endpoint struct {
	Device int
	Kernel string
}

// Option configures a Driver's defaults.
type Option func(*Driver)

// WithDefaultEndpoints sets the default input and output (device,
// kernel) pair used by the no-argument-batch overloads.
func WithDefaultEndpoints(in, out Endpoint) Option {
	return func(d *Driver) {
		d.defaultIn = in
		d.defaultOut = out
	}
}

// WithDefaultBatch sets the default sample count and force-archive
// flag used when the caller does not specify them explicitly.
func WithDefaultBatch(samples int, forceArchive bool) Option {
	return func(d *Driver) {
		d.defaultSamples = samples
		d.defaultForceArchive = forceArchive
	}
}

// WithLogger installs a logger; the default is logger.Default().
func WithLogger(log logger.Logger) Option {
	return func(d *Driver) { d.log = log }
}

// WithInnerDim sets the folded innermost dimension used to pack and
// unpack values; the default is 1 (no folding).
func WithInnerDim(inDim, outDim int) Option {
	return func(d *Driver) {
		d.inInnerDim = inDim
		d.outInnerDim = outDim
	}
}

// Driver is the typed entry point: it packs logical values of inType,
// drives the accelerator, and unpacks logical values of outType.
type Driver struct {
	acc     *accelerator.Accelerator
	inType  qtype.Type
	outType qtype.Type
	log     logger.Logger

	inInnerDim  int
	outInnerDim int

	defaultIn           Endpoint
	defaultOut          Endpoint
	defaultSamples      int
	defaultForceArchive bool
}

// New constructs a Driver bound to acc, packing input values as inType
// and unpacking output values as outType.
func New(acc *accelerator.Accelerator, inType, outType qtype.Type, opts ...Option) *Driver {
	d := &Driver{
		acc:            acc,
		inType:         inType,
		outType:        outType,
		log:            logger.Default(),
		inInnerDim:     1,
		outInnerDim:    1,
		defaultSamples: 1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// InferSynchronous packs values as inType, drives the default input
// and output endpoints for the default batch size and force-archive
// flag, and unpacks the result as outType.
func (d *Driver) InferSynchronous(ctx context.Context, values []float64) ([]float64, error) {
	packed, err := pack.Pack(d.inType, values, d.inInnerDim)
	if err != nil {
		return nil, fmt.Errorf("driver: pack: %w", err)
	}

	raw, err := d.InferRaw(ctx, packed, d.defaultIn.Device, d.defaultIn.Kernel, d.defaultOut.Device, d.defaultOut.Kernel, d.defaultSamples, d.defaultForceArchive)
	if err != nil {
		return nil, err
	}

	out, err := pack.Unpack(d.outType, raw, d.outInnerDim)
	if err != nil {
		return nil, fmt.Errorf("driver: unpack: %w", err)
	}
	return out, nil
}

// InferRaw bypasses the codec entirely: it stores already-packed data
// through the accelerator's ordinary name-lookup dispatch, runs the
// input kernel, drives `samples` reads through the output kernel, and
// returns the flattened archive bytes. It does not use StoreFactory's
// cached binding (nor does InferSynchronous, which delegates here); each
// call resolves the kernel by name fresh, mirroring the original
// driver's second, unmigrated infer entry point.
func (d *Driver) InferRaw(ctx context.Context, data []byte, inDevice int, inKernel string, outDevice int, outKernel string, samples int, forceArchive bool) ([]byte, error) {
	ok, err := d.acc.Store(inDevice, inKernel, data)
	if err != nil {
		return nil, fmt.Errorf("driver: store: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("driver: store: ring backpressure on input kernel %q", inKernel)
	}

	if ok, err := d.acc.Run(ctx, inDevice, inKernel); err != nil {
		return nil, fmt.Errorf("driver: run: %w", err)
	} else if !ok {
		return nil, fmt.Errorf("driver: run: no part available to submit on input kernel %q", inKernel)
	}

	state, err := d.acc.Read(ctx, outDevice, outKernel, samples)
	if err != nil {
		return nil, fmt.Errorf("driver: read: %w", err)
	}
	d.log.Debug("driver: read complete", "out_device", outDevice, "out_kernel", outKernel, "state", state.String())

	parts, err := d.acc.Retrieve(outDevice, outKernel, forceArchive)
	if err != nil {
		return nil, fmt.Errorf("driver: retrieve: %w", err)
	}

	out := make([]byte, 0)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

// State re-exports xrtiface.State so callers do not need to import
// the internal runtime interface package directly.
type State = xrtiface.State
