package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/finnhost/qxdriver/pkg/qtype"
)

func commonDeviceFlags(configPath *string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to the device configuration YAML file",
			Destination: configPath,
			Required:    true,
		},
	}
}

func loggingFlags(logLevel, logFormat *string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json)",
			Value:       "pretty",
			Destination: logFormat,
		},
	}
}

// parseType parses a datatype descriptor string in the form taken by
// the run flags and the serve request body: "signed-int:B",
// "unsigned-int:B", "fixed:B:I", "float32", "bipolar", or "ternary".
func parseType(spec string) (qtype.Type, error) {
	parts := strings.Split(spec, ":")
	switch parts[0] {
	case "signed-int":
		bits, err := requireOneIntArg(parts, "signed-int")
		if err != nil {
			return nil, err
		}
		return qtype.SignedInt(bits), nil
	case "unsigned-int":
		bits, err := requireOneIntArg(parts, "unsigned-int")
		if err != nil {
			return nil, err
		}
		return qtype.UnsignedInt(bits), nil
	case "fixed":
		if len(parts) != 3 {
			return nil, fmt.Errorf("qxinfer: fixed datatype needs bits and integer-bits, got %q", spec)
		}
		bits, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("qxinfer: fixed bit-width %q: %w", parts[1], err)
		}
		intBits, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("qxinfer: fixed integer-bits %q: %w", parts[2], err)
		}
		return qtype.Fixed(bits, intBits), nil
	case "float32":
		return qtype.Float32(), nil
	case "bipolar":
		return qtype.Bipolar(), nil
	case "ternary":
		return qtype.Ternary(), nil
	default:
		return nil, fmt.Errorf("qxinfer: unrecognized datatype %q (want signed-int:B, unsigned-int:B, fixed:B:I, float32, bipolar, or ternary)", spec)
	}
}

func requireOneIntArg(parts []string, name string) (int, error) {
	if len(parts) != 2 {
		return 0, fmt.Errorf("qxinfer: %s datatype needs a bit-width, got %q", name, strings.Join(parts, ":"))
	}
	bits, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("qxinfer: %s bit-width %q: %w", name, parts[1], err)
	}
	return bits, nil
}

func parseFloatList(csv string) ([]float64, error) {
	if strings.TrimSpace(csv) == "" {
		return nil, fmt.Errorf("qxinfer: empty value list")
	}
	fields := strings.Split(csv, ",")
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("qxinfer: parse value %q: %w", f, err)
		}
		values = append(values, v)
	}
	return values, nil
}
