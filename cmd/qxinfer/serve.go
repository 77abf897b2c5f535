package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/urfave/cli/v3"

	"github.com/finnhost/qxdriver/internal/accelerator"
	"github.com/finnhost/qxdriver/internal/config"
	"github.com/finnhost/qxdriver/internal/device"
	"github.com/finnhost/qxdriver/internal/logger"
	"github.com/finnhost/qxdriver/internal/xrtsim"
	"github.com/finnhost/qxdriver/pkg/driver"
)

// inferRequest is the wire shape POSTed to /infer: a datatype pair, the
// endpoints to drive, and the logical values to pack.
type inferRequest struct {
	InType       string    `json:"in_type"`
	OutType      string    `json:"out_type"`
	DeviceIn     int       `json:"device_in"`
	DeviceOut    int       `json:"device_out"`
	KernelIn     string    `json:"kernel_in"`
	KernelOut    string    `json:"kernel_out"`
	InnerDimIn   int       `json:"inner_dim_in"`
	InnerDimOut  int       `json:"inner_dim_out"`
	Samples      int       `json:"samples"`
	ForceArchive bool      `json:"force_archive"`
	Values       []float64 `json:"values"`
}

type inferResponse struct {
	Values []float64 `json:"values"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func serveCmd() *cli.Command {
	var (
		configPath  string
		logLevel    string
		logFormat   string
		addr        string
		readTimeout time.Duration
	)

	flags := commonDeviceFlags(&configPath)
	flags = append(flags, loggingFlags(&logLevel, &logFormat)...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8090",
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve a REST endpoint that drives InferSynchronous over HTTP",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.Pretty(os.Stderr, logger.ParseLevel(logLevel))
			if logFormat == "json" {
				log = logger.JSON(os.Stderr, logger.ParseLevel(logLevel))
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load config: %v", err), 1)
			}

			acc, err := accelerator.New(xrtsim.New(), cfg, device.Options{}, log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open accelerator: %v", err), 1)
			}
			defer func() { _ = acc.Close() }()

			e := echo.New()
			e.POST("/infer", handleInfer(acc, log))

			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}

func handleInfer(acc *accelerator.Accelerator, log logger.Logger) func(c *echo.Context) error {
	return func(c *echo.Context) error {
		var req inferRequest
		dec := json.NewDecoder(c.Request().Body)
		if err := dec.Decode(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("decode request: %v", err)})
		}

		inType, err := parseType(req.InType)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		outType, err := parseType(req.OutType)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}

		innerDimIn, innerDimOut := req.InnerDimIn, req.InnerDimOut
		if innerDimIn == 0 {
			innerDimIn = 1
		}
		if innerDimOut == 0 {
			innerDimOut = 1
		}
		samples := req.Samples
		if samples == 0 {
			samples = 1
		}

		d := driver.New(acc, inType, outType,
			driver.WithLogger(log),
			driver.WithInnerDim(innerDimIn, innerDimOut),
			driver.WithDefaultEndpoints(
				driver.Endpoint{Device: req.DeviceIn, Kernel: req.KernelIn},
				driver.Endpoint{Device: req.DeviceOut, Kernel: req.KernelOut},
			),
			driver.WithDefaultBatch(samples, req.ForceArchive),
		)

		out, err := d.InferSynchronous(c.Request().Context(), req.Values)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, inferResponse{Values: out})
	}
}
