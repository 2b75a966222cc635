// Command controller runs the UDP control service that answers sensor
// samples with actuation commands and records per-request timing to CSV.
//
// Passing -demo also starts an embedded plant (a cart-pole inverted
// pendulum) dialing the controller over loopback, so the whole control
// loop can be observed from a single process.
//
// Usage:
//
//	controller [flags]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/cleavelab/ncstestbed/examples/invpendulum"
	"github.com/cleavelab/ncstestbed/internal/commclient"
	"github.com/cleavelab/ncstestbed/pkg/ncstestbed/config"
	"github.com/cleavelab/ncstestbed/pkg/ncstestbed/controller"
	"github.com/cleavelab/ncstestbed/pkg/ncstestbed/plant"
	"github.com/cleavelab/ncstestbed/pkg/ncstestbed/record"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "controller: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs, flags := newControllerFlagSet()
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	logger, err := buildLogger(flags.logLevel, flags.logFmt)
	if err != nil {
		return err
	}

	overrides := map[string]any{}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			overrides["port"] = flags.port
		case "csv":
			overrides["csv_path"] = flags.csvPath
		case "kp":
			overrides["kp"] = flags.kp
		case "kd":
			overrides["kd"] = flags.kd
		}
	})

	cfg, err := config.Load(flags.configPath, overrides, map[string]any{
		"port":     flags.port,
		"csv_path": flags.csvPath,
		"kp":       flags.kp,
		"kd":       flags.kd,
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	port, err := cfg.GetInt("port")
	if err != nil {
		return err
	}
	csvPath, err := cfg.GetString("csv_path")
	if err != nil {
		return err
	}
	kp, err := cfg.GetFloat("kp")
	if err != nil {
		return err
	}
	kd, err := cfg.GetFloat("kd")
	if err != nil {
		return err
	}

	recordable := record.NewRecordable("controller", controller.RecordFields, nil)
	csvRecorder, err := record.NewCSVRecorder(recordable, csvPath, flags.chunkSize, logger)
	if err != nil {
		return fmt.Errorf("open csv recorder: %w", err)
	}
	if err := csvRecorder.Initialize(); err != nil {
		return fmt.Errorf("initialize csv recorder: %w", err)
	}

	svc := controller.New(controller.Config{
		Port:       port,
		Compute:    &pdCompute{kp: kp, kd: kd},
		Recordable: recordable,
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Serve(gctx) })

	if flags.demo {
		demoPlant, comm, err := newDemoPlant(port, flags.dtNS, logger)
		if err != nil {
			return fmt.Errorf("start demo plant: %w", err)
		}
		defer comm.Shutdown()

		demoPlant.Start(gctx)
		logger.Info("controller: demo plant started", "controller_port", port, "dt_ns", flags.dtNS)
		g.Go(func() error {
			<-gctx.Done()
			demoPlant.Shutdown()
			return nil
		})
	}

	logger.Info("controller: running — press Ctrl-C to stop", "port", port)
	err = g.Wait()
	csvRecorder.Shutdown()
	return err
}

// newDemoPlant builds an in-process cart-pole plant dialing the controller
// over loopback, for -demo's single-process walkthrough.
func newDemoPlant(controllerPort int, dtNS int, logger *slog.Logger) (*plant.Plant, *commclient.Client, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", controllerPort)
	comm, err := commclient.New(addr, logger)
	if err != nil {
		return nil, nil, err
	}

	state := invpendulum.New(1.0, 0.1, 0.5, 60.0, 0.05)
	p := plant.New(plant.Config{
		DTNS:      int64(dtNS),
		InitState: state,
		Sensor:    comm,
		Actuator:  comm,
		Logger:    logger,
	})
	return p, comm, nil
}

type controllerFlags struct {
	logLevel   string
	logFmt     string
	configPath string
	port       int
	csvPath    string
	chunkSize  int
	kp         float64
	kd         float64
	demo       bool
	dtNS       int
}

func newControllerFlagSet() (*flag.FlagSet, *controllerFlags) {
	flags := &controllerFlags{}
	fs := flag.NewFlagSet("controller", flag.ContinueOnError)
	fs.StringVar(&flags.logLevel, "log.level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&flags.logFmt, "log.fmt", "text", "Log format: json, text")
	fs.StringVar(&flags.configPath, "config", "", "Path to YAML config file (optional)")
	fs.IntVar(&flags.port, "port", 9999, "UDP port to listen on")
	fs.StringVar(&flags.csvPath, "csv", "controller_records.csv", "Output path for the per-request CSV record log")
	fs.IntVar(&flags.chunkSize, "chunk_size", record.DefaultChunkSize, "Row count per CSV flush chunk")
	fs.Float64Var(&flags.kp, "kp", 30.0, "Proportional gain for the demo PD stabilizer")
	fs.Float64Var(&flags.kd, "kd", 5.0, "Derivative gain for the demo PD stabilizer")
	fs.BoolVar(&flags.demo, "demo", false, "Also run an embedded cart-pole plant dialing this controller over loopback")
	fs.IntVar(&flags.dtNS, "dt_ns", 10_000_000, "Demo plant's nominal simulation step period in nanoseconds")
	return fs, flags
}
