// Package plant implements the deterministic periodic simulation loop: a
// fixed-step driver that advances a user-supplied dynamical state, pulls
// actuation commands, publishes samples to a sensor, and fires hook points
// around each step without accumulating timing drift.
package plant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cleavelab/ncstestbed/pkg/ncstestbed/sched"
)

// PPM is the physical property mapping passed between state, sensor, and
// actuator: an unordered map of short names to scalar values.
type PPM map[string]float64

// State is the user-supplied dynamical model driven by the simulation loop.
// Advance computes the next sample given the elapsed time since the last
// call and the actuation command currently pending (nil or empty means no
// actuation is available this step — evolve freely).
type State interface {
	Advance(dtNS int64, actuation PPM) (PPM, error)
}

// Sensor receives each new sample as it is produced by the loop.
type Sensor interface {
	SetSample(sample PPM)
	Shutdown()
}

// Actuator supplies the next pending actuation command on demand. Commands
// are consumed at most once: GetNextActuation returns the most recently
// queued command and clears the pending slot.
type Actuator interface {
	GetNextActuation() PPM
	Shutdown()
}

// Plant composes a State, Sensor, and Actuator over a fixed-step scheduler,
// running the step algorithm in its own goroutine so simulation timing is
// independent of the caller's own control flow.
type Plant struct {
	dtNS   int64
	sensor Sensor
	actr   Actuator
	logger *slog.Logger

	stateMu    sync.Mutex
	state      State
	lastUpdate int64
	stepCount  int64

	startOfStep *HookCollection
	endOfStep   *HookCollection
	preSim      *ActuationHookCollection

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	doneCh   chan struct{}
}

// Config holds the construction parameters for a Plant.
type Config struct {
	DTNS      int64
	InitState State
	Sensor    Sensor
	Actuator  Actuator
	Logger    *slog.Logger
}

// New constructs a Plant. logger may be nil, in which case a discarding
// logger is used.
func New(cfg Config) *Plant {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Plant{
		dtNS:        cfg.DTNS,
		sensor:      cfg.Sensor,
		actr:        cfg.Actuator,
		logger:      logger,
		state:       cfg.InitState,
		lastUpdate:  time.Now().UnixNano(),
		startOfStep: NewHookCollection(logger),
		endOfStep:   NewHookCollection(logger),
		preSim:      NewActuationHookCollection(logger),
	}
}

// HookStartOfStep registers fn to run at the beginning of each step, before
// the actuation is pulled.
func (p *Plant) HookStartOfStep(fn func()) { p.startOfStep.Add(fn) }

// HookEndOfStep registers fn to run at the end of each step, after the
// sample has been published to the sensor.
func (p *Plant) HookEndOfStep(fn func()) { p.endOfStep.Add(fn) }

// HookPreSim registers fn to run immediately before state.Advance, receiving
// the actuation about to be applied.
func (p *Plant) HookPreSim(fn func(actuation PPM)) { p.preSim.Add(fn) }

// Start begins the simulation loop on a dedicated goroutine. Idempotent:
// calling Start while already running is a no-op.
func (p *Plant) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.doneCh = make(chan struct{})
	p.running = true

	p.logger.Debug("plant: starting simulation")
	go func() {
		defer close(p.doneCh)
		sched.Run(runCtx, p.stepRecovered, time.Duration(p.dtNS))
		p.logger.Debug("plant: finished simulation")
	}()
}

// stepRecovered runs step, recovering any panic escaping it (a bug in
// Advance, the actuator, or the sensor) the same way a returned error from
// those collaborators is treated: logged and fatal, triggering Shutdown.
// Hook panics are already recovered inside HookCollection/
// ActuationHookCollection and never reach here.
func (p *Plant) stepRecovered() {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("plant: step panicked, shutting down", "panic", r)
			go p.Shutdown()
		}
	}()
	p.step()
}

// Shutdown stops the simulation loop and shuts down the sensor and
// actuator. Safe to call multiple times.
func (p *Plant) Shutdown() {
	p.mu.Lock()
	running := p.running
	cancel := p.cancel
	done := p.doneCh
	p.mu.Unlock()

	p.logger.Warn("plant: shutting down")
	if running && cancel != nil {
		cancel()
		<-done
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}
	p.sensor.Shutdown()
	p.actr.Shutdown()
}

// SampleState returns the current state of the plant. Safe to call from any
// goroutine concurrently with the running simulation loop.
func (p *Plant) SampleState() State {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.state
}

// step executes one discrete simulation step: hooks, actuation pull,
// advance, sample publication, hooks, step count. A hook panic is logged
// and swallowed; an error from Advance, from the actuator, or from the
// sensor is fatal and triggers Shutdown from a fresh goroutine (the step
// itself runs from inside sched.Run and must not block on its own
// shutdown).
func (p *Plant) step() {
	p.startOfStep.Call()

	actuation := p.actr.GetNextActuation()

	p.preSim.Call(actuation)

	now := time.Now().UnixNano()
	p.stateMu.Lock()
	dtNS := now - p.lastUpdate
	state := p.state
	p.stateMu.Unlock()

	sample, err := state.Advance(dtNS, actuation)
	if err != nil {
		p.logger.Error("plant: state advance failed, shutting down", "error", errAdvance(err).Error())
		go p.Shutdown()
		return
	}

	p.stateMu.Lock()
	p.lastUpdate = now
	p.stateMu.Unlock()

	p.sensor.SetSample(sample)

	p.endOfStep.Call()
	p.stepCount++
}

// StepCount returns the number of steps completed so far. Safe to call
// concurrently with the running loop (reads are not atomic but stepCount is
// only ever written by the single loop goroutine; callers should treat this
// as an approximate monitoring value).
func (p *Plant) StepCount() int64 { return p.stepCount }

// errAdvance wraps a state.Advance failure for logging context.
func errAdvance(err error) error {
	return fmt.Errorf("plant: advance: %w", err)
}
