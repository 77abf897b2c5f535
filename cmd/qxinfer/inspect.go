package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/finnhost/qxdriver/internal/config"
)

// inspectCmd loads a device configuration and prints the validated
// record as indented JSON, useful for checking a hand-edited YAML file
// resolves to the shapes and part sizes the caller expects.
func inspectCmd() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:  "inspect",
		Usage: "Load and validate a device configuration, printing it as JSON",
		Flags: commonDeviceFlags(&configPath),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rec, err := config.Load(configPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load config: %v", err), 1)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(inspectView(rec)); err != nil {
				return cli.Exit(fmt.Sprintf("error: encode: %v", err), 1)
			}
			return nil
		},
	}
}

type inspectDevice struct {
	BitstreamPath  string          `json:"bitstream_path"`
	XRTDeviceIndex int             `json:"xrt_device_index"`
	Inputs         []inspectBuffer `json:"input_descriptors"`
	Outputs        []inspectBuffer `json:"output_descriptors"`
}

type inspectBuffer struct {
	KernelName  string `json:"kernel_name"`
	PackedShape []int  `json:"packed_shape"`
	PartSize    int    `json:"part_size_bytes"`
}

func inspectView(rec *config.Record) []inspectDevice {
	out := make([]inspectDevice, 0, len(rec.Devices))
	for _, d := range rec.Devices {
		out = append(out, inspectDevice{
			BitstreamPath:  d.BitstreamPath,
			XRTDeviceIndex: d.XRTDeviceIndex,
			Inputs:         inspectBuffers(d.InputDescriptors),
			Outputs:        inspectBuffers(d.OutputDescriptors),
		})
	}
	return out
}

func inspectBuffers(descs []config.BufferDescriptor) []inspectBuffer {
	out := make([]inspectBuffer, 0, len(descs))
	for _, d := range descs {
		out = append(out, inspectBuffer{
			KernelName:  d.KernelName,
			PackedShape: d.PackedShape,
			PartSize:    d.PartSize(),
		})
	}
	return out
}
