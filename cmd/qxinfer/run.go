package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/finnhost/qxdriver/internal/accelerator"
	"github.com/finnhost/qxdriver/internal/config"
	"github.com/finnhost/qxdriver/internal/device"
	"github.com/finnhost/qxdriver/internal/logger"
	"github.com/finnhost/qxdriver/internal/xrtsim"
	"github.com/finnhost/qxdriver/pkg/driver"
)

// runCmd drives one InferSynchronous call end to end: load config, open
// the accelerator, pack the given values, run the named kernels, and
// print the unpacked result.
func runCmd() *cli.Command {
	var (
		configPath  string
		logLevel    string
		logFormat   string
		deviceIn    int64
		deviceOut   int64
		kernelIn    string
		kernelOut   string
		inTypeSpec  string
		outTypeSpec string
		innerDimIn  int64
		innerDimOut int64
		samples     int64
		forceArch   bool
		values      string
	)

	flags := commonDeviceFlags(&configPath)
	flags = append(flags, loggingFlags(&logLevel, &logFormat)...)
	flags = append(flags,
		&cli.Int64Flag{Name: "device-in", Usage: "input device index", Destination: &deviceIn},
		&cli.Int64Flag{Name: "device-out", Usage: "output device index", Destination: &deviceOut},
		&cli.StringFlag{Name: "kernel-in", Usage: "input kernel name", Required: true, Destination: &kernelIn},
		&cli.StringFlag{Name: "kernel-out", Usage: "output kernel name", Required: true, Destination: &kernelOut},
		&cli.StringFlag{Name: "in-type", Usage: "input datatype descriptor (e.g. signed-int:4)", Required: true, Destination: &inTypeSpec},
		&cli.StringFlag{Name: "out-type", Usage: "output datatype descriptor", Required: true, Destination: &outTypeSpec},
		&cli.Int64Flag{Name: "inner-dim-in", Usage: "folded innermost dimension for packing", Value: 1, Destination: &innerDimIn},
		&cli.Int64Flag{Name: "inner-dim-out", Usage: "folded innermost dimension for unpacking", Value: 1, Destination: &innerDimOut},
		&cli.Int64Flag{Name: "samples", Usage: "number of output batches to read", Value: 1, Destination: &samples},
		&cli.BoolFlag{Name: "force-archive", Usage: "flush any partial ring contents before retrieving", Destination: &forceArch},
		&cli.StringFlag{Name: "values", Usage: "comma-separated logical input values", Required: true, Destination: &values},
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Pack values, run one inference, and print the unpacked result",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.Pretty(os.Stderr, logger.ParseLevel(logLevel))
			if logFormat == "json" {
				log = logger.JSON(os.Stderr, logger.ParseLevel(logLevel))
			}
			ctx = logger.WithContext(ctx, log)

			cfg, err := config.Load(configPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load config: %v", err), 1)
			}

			inType, err := parseType(inTypeSpec)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			outType, err := parseType(outTypeSpec)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			inputValues, err := parseFloatList(values)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			// No real XRT binding is vendored; the runtime interface is
			// assumed and injected, so the CLI drives it against the
			// in-memory simulator.
			acc, err := accelerator.New(xrtsim.New(), cfg, device.Options{}, log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open accelerator: %v", err), 1)
			}
			defer func() { _ = acc.Close() }()

			d := driver.New(acc, inType, outType,
				driver.WithLogger(log),
				driver.WithInnerDim(int(innerDimIn), int(innerDimOut)),
				driver.WithDefaultEndpoints(
					driver.Endpoint{Device: int(deviceIn), Kernel: kernelIn},
					driver.Endpoint{Device: int(deviceOut), Kernel: kernelOut},
				),
				driver.WithDefaultBatch(int(samples), forceArch),
			)

			out, err := d.InferSynchronous(ctx, inputValues)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: infer: %v", err), 1)
			}

			fmt.Println(formatFloats(out))
			return nil
		},
	}
}

func formatFloats(values []float64) string {
	s := ""
	for i, v := range values {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%g", v)
	}
	return "[" + s + "]"
}
