// Package config parses and validates the accelerator configuration
// record: for each device, the bitstream to load, its xrt-device
// index, and its named input/output kernel buffer descriptors. The
// text format is YAML, matching the teacher's own config file layout
// (cmd/mantle/config.go); the schema itself is otherwise out of scope
// per spec.md §6.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/finnhost/qxdriver/internal/qerrs"
)

// BufferDescriptor names one kernel buffer and the packed shape the
// accelerator side of that kernel expects.
type BufferDescriptor struct {
	KernelName  string `yaml:"kernel_name"`
	PackedShape []int  `yaml:"packed_shape"`
}

// DeviceRecord describes one FPGA device: its bitstream, xrt index,
// and input/output buffer descriptors.
type DeviceRecord struct {
	BitstreamPath     string             `yaml:"bitstream_path"`
	XRTDeviceIndex    int                `yaml:"xrt_device_index"`
	InputDescriptors  []BufferDescriptor `yaml:"input_descriptors"`
	OutputDescriptors []BufferDescriptor `yaml:"output_descriptors"`
}

// Record is the validated aggregate of device wrappers.
type Record struct {
	Devices []DeviceRecord `yaml:"devices"`
}

// Load reads and parses a configuration file, then validates it.
func Load(path string) (*Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	var rec Record
	if err := yaml.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Validate checks every device wrapper independently and joins every
// failure it finds (rather than stopping at the first) so a caller
// sees the full set of problems in one report, per the original
// driver's ConfigurationStructs validation intent.
func (r *Record) Validate() error {
	if len(r.Devices) == 0 {
		return fmt.Errorf("config: %w: no devices configured", qerrs.ErrConfig)
	}
	var errs []error
	seen := make(map[int]bool)
	for i, d := range r.Devices {
		if err := d.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("device[%d]: %w", i, err))
			continue
		}
		if seen[d.XRTDeviceIndex] {
			errs = append(errs, fmt.Errorf("device[%d]: %w: duplicate xrt_device_index %d", i, qerrs.ErrConfig, d.XRTDeviceIndex))
		}
		seen[d.XRTDeviceIndex] = true
	}
	return errors.Join(errs...)
}

// Validate checks one device wrapper: bitstream present and a regular
// non-empty file, non-negative index, non-empty descriptor lists with
// well-formed entries.
func (d *DeviceRecord) Validate() error {
	if d.BitstreamPath == "" {
		return fmt.Errorf("%w: empty bitstream_path", qerrs.ErrConfig)
	}
	info, err := os.Stat(d.BitstreamPath)
	if err != nil {
		return fmt.Errorf("%w: bitstream_path %q: %v", qerrs.ErrConfig, d.BitstreamPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: bitstream_path %q is a directory", qerrs.ErrConfig, d.BitstreamPath)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: bitstream_path %q is empty", qerrs.ErrConfig, d.BitstreamPath)
	}
	if d.XRTDeviceIndex < 0 {
		return fmt.Errorf("%w: negative xrt_device_index %d", qerrs.ErrConfig, d.XRTDeviceIndex)
	}
	if len(d.InputDescriptors) == 0 {
		return fmt.Errorf("%w: empty input_descriptors", qerrs.ErrConfig)
	}
	if len(d.OutputDescriptors) == 0 {
		return fmt.Errorf("%w: empty output_descriptors", qerrs.ErrConfig)
	}
	for _, list := range [][]BufferDescriptor{d.InputDescriptors, d.OutputDescriptors} {
		for _, desc := range list {
			if err := desc.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate checks that a descriptor has a non-empty kernel name and a
// non-empty shape of positive dimensions.
func (bd *BufferDescriptor) Validate() error {
	if bd.KernelName == "" {
		return fmt.Errorf("%w: empty kernel_name", qerrs.ErrConfig)
	}
	if len(bd.PackedShape) == 0 {
		return fmt.Errorf("%w: kernel %q has empty packed_shape", qerrs.ErrConfig, bd.KernelName)
	}
	for _, dim := range bd.PackedShape {
		if dim <= 0 {
			return fmt.Errorf("%w: kernel %q has non-positive shape dimension %d", qerrs.ErrConfig, bd.KernelName, dim)
		}
	}
	return nil
}

// PartSize returns the packed element count of the descriptor's shape:
// the product of all dimensions. This is the ring buffer's P.
func (bd *BufferDescriptor) PartSize() int {
	n := 1
	for _, dim := range bd.PackedShape {
		n *= dim
	}
	return n
}
