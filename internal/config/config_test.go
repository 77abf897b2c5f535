package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	bitstream := writeFile(t, dir, "bitstream.xclbin", "not-empty")
	yaml := `
devices:
  - bitstream_path: ` + bitstream + `
    xrt_device_index: 0
    input_descriptors:
      - kernel_name: idma
        packed_shape: [1, 4, 2]
    output_descriptors:
      - kernel_name: odma
        packed_shape: [1, 4, 2]
`
	path := writeFile(t, dir, "config.yaml", yaml)

	rec, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rec.Devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(rec.Devices))
	}
	if got := rec.Devices[0].InputDescriptors[0].PartSize(); got != 8 {
		t.Fatalf("part size = %d, want 8", got)
	}
}

func TestValidateNoDevices(t *testing.T) {
	rec := &Record{}
	if err := rec.Validate(); err == nil {
		t.Fatal("expected error for empty device list")
	}
}

func TestValidateDuplicateIndex(t *testing.T) {
	dir := t.TempDir()
	bitstream := writeFile(t, dir, "bitstream.xclbin", "x")
	desc := []BufferDescriptor{{KernelName: "k", PackedShape: []int{2}}}
	rec := &Record{Devices: []DeviceRecord{
		{BitstreamPath: bitstream, XRTDeviceIndex: 0, InputDescriptors: desc, OutputDescriptors: desc},
		{BitstreamPath: bitstream, XRTDeviceIndex: 0, InputDescriptors: desc, OutputDescriptors: desc},
	}}
	err := rec.Validate()
	if err == nil {
		t.Fatal("expected error for duplicate xrt_device_index")
	}
}

func TestValidateAggregatesMultipleErrors(t *testing.T) {
	rec := &Record{Devices: []DeviceRecord{
		{BitstreamPath: ""},
		{BitstreamPath: ""},
	}}
	err := rec.Validate()
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	// errors.Join concatenates each error's message on its own line, so
	// two independent device failures should both be represented.
	msg := err.Error()
	if countLines(msg) < 2 {
		t.Fatalf("expected at least 2 joined error lines, got: %q", msg)
	}
}

func countLines(s string) int {
	n := 1
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}

func TestDeviceRecordValidateMissingBitstream(t *testing.T) {
	desc := []BufferDescriptor{{KernelName: "k", PackedShape: []int{2}}}
	d := DeviceRecord{BitstreamPath: filepath.Join(t.TempDir(), "missing.xclbin"), InputDescriptors: desc, OutputDescriptors: desc}
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for missing bitstream file")
	}
}

func TestBufferDescriptorValidate(t *testing.T) {
	bad := BufferDescriptor{KernelName: "", PackedShape: []int{1}}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for empty kernel name")
	}
	bad = BufferDescriptor{KernelName: "k", PackedShape: []int{0}}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for non-positive dimension")
	}
}
