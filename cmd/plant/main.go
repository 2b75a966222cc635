// Command plant runs a standalone plant simulation loop, driving a cart-pole
// inverted pendulum and exchanging sensor samples / actuation commands with
// a remote controller over UDP.
//
// Usage:
//
//	plant [flags]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cleavelab/ncstestbed/examples/invpendulum"
	"github.com/cleavelab/ncstestbed/internal/commclient"
	"github.com/cleavelab/ncstestbed/pkg/ncstestbed/config"
	"github.com/cleavelab/ncstestbed/pkg/ncstestbed/plant"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "plant: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs, flags := newPlantFlagSet()
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
		case "dt_ns":
			overrides["dt_ns"] = flags.dtNS
		case "controller":
			overrides["controller_addr"] = flags.controllerAddr
		}
	})

	cfg, err := config.Load(flags.configPath, overrides, map[string]any{
		"dt_ns":           flags.dtNS,
		"controller_addr": flags.controllerAddr,
		"cart_mass":       1.0,
		"pole_mass":       0.1,
		"pole_length":     0.5,
		"upd_freq_hz":     60.0,
		"init_theta_rad":  0.05,
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dtNS, err := cfg.GetInt("dt_ns")
	if err != nil {
		return err
	}
	controllerAddr, err := cfg.GetString("controller_addr")
	if err != nil {
		return err
	}
	cartMass, err := cfg.GetFloat("cart_mass")
	if err != nil {
		return err
	}
	poleMass, err := cfg.GetFloat("pole_mass")
	if err != nil {
		return err
	}
	poleLength, err := cfg.GetFloat("pole_length")
	if err != nil {
		return err
	}
	updFreqHz, err := cfg.GetFloat("upd_freq_hz")
	if err != nil {
		return err
	}
	initTheta, err := cfg.GetFloat("init_theta_rad")
	if err != nil {
		return err
	}

	state := invpendulum.New(cartMass, poleMass, poleLength, updFreqHz, initTheta)

	comm, err := commclient.New(controllerAddr, logger)
	if err != nil {
		return fmt.Errorf("dial controller %s: %w", controllerAddr, err)
	}

	p := plant.New(plant.Config{
		DTNS:      int64(dtNS),
		InitState: state,
		Sensor:    comm,
		Actuator:  comm,
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p.Start(ctx)
	logger.Info("plant: running — press Ctrl-C to stop", "controller", controllerAddr, "dt_ns", dtNS)

	<-ctx.Done()
	logger.Info("plant: received shutdown signal")
	p.Shutdown()
	return nil
}

type plantFlags struct {
	logLevel       string
	logFmt         string
	configPath     string
	controllerAddr string
	dtNS           int
}

func newPlantFlagSet() (*flag.FlagSet, *plantFlags) {
	flags := &plantFlags{}
	fs := flag.NewFlagSet("plant", flag.ContinueOnError)
	fs.StringVar(&flags.logLevel, "log.level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&flags.logFmt, "log.fmt", "text", "Log format: json, text")
	fs.StringVar(&flags.configPath, "config", "", "Path to YAML config file (optional)")
	fs.StringVar(&flags.controllerAddr, "controller", "127.0.0.1:9999", "Controller UDP address")
	fs.IntVar(&flags.dtNS, "dt_ns", 10_000_000, "Nominal simulation step period in nanoseconds")
	return fs, flags
}
