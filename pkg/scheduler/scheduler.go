// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package scheduler sequences device operations for a deposition run.
//
// Every operation is an Item with a due time in a single Queue. Each Tick
// either plans the next batch of items (when the queue is empty) or executes
// the items that are due, one at a time, in due order. A driver call blocks
// the tick for its whole retry loop.
//
// With a recipe loaded the scheduler moves through three phases per step:
// the step setpoints are written and the furnace ramps until its temperature
// is within tolerance of the setpoint, then every device is polled once per
// log period for the step duration. Without a recipe it polls every device
// once per log period.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Thermoquad/crucible/pkg/device"
	"github.com/Thermoquad/crucible/pkg/logger"
	"github.com/Thermoquad/crucible/pkg/recipe"
)

// Defaults for Config periods left zero. DefaultTolerance is the usual lab
// setting; a zero Tolerance is kept as an exact match.
const (
	DefaultTolerance      = 2.0
	DefaultLogPeriod      = time.Second
	DefaultRampPollPeriod = 3 * time.Second
	DefaultTickInterval   = 100 * time.Millisecond
)

var (
	// ErrStopped is returned by Run after Stop
	ErrStopped = errors.New("scheduler stopped")
	// ErrNoDevices is returned by New when Devices is empty
	ErrNoDevices = errors.New("no devices configured")
)

// Config holds the timing parameters
type Config struct {
	// Tolerance is how close (°C) the furnace must be to its setpoint
	// before a step starts logging. Zero requires an exact match.
	Tolerance float64
	// LogPeriod separates samples
	LogPeriod time.Duration
	// RampPollPeriod separates polls while ramping
	RampPollPeriod time.Duration
}

func (c *Config) applyDefaults() {
	if c.LogPeriod <= 0 {
		c.LogPeriod = DefaultLogPeriod
	}
	if c.RampPollPeriod <= 0 {
		c.RampPollPeriod = DefaultRampPollPeriod
	}
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithSink sets the destination for completed samples
func WithSink(sink Sink) Option {
	return func(s *Scheduler) {
		s.sink = sink
	}
}

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		s.log = l
	}
}

// WithStatusBoard shares a status board with other components
func WithStatusBoard(b *device.StatusBoard) Option {
	return func(s *Scheduler) {
		s.board = b
	}
}

// WithRunID overrides the generated run identifier
func WithRunID(id string) Option {
	return func(s *Scheduler) {
		s.runID = id
	}
}

// State is a snapshot of scheduler progress
type State struct {
	RunID     string
	Phase     Phase
	Step      int
	Steps     int
	Remaining int
	Ramping   bool
	Stopped   bool
	Pending   int
	StepStart time.Time
	// StepDuration is the logging time of the current step
	StepDuration time.Duration

	Temperature    float64
	HasTemperature bool
	Setpoint       float64
	HasSetpoint    bool

	// Latest holds the most recent value of every field
	Latest map[string]float64
}

// Scheduler drives a set of devices from a single time ordered queue
type Scheduler struct {
	devices Devices
	cfg     Config
	clock   Clock
	log     logger.Logger
	sink    Sink
	board   *device.StatusBoard
	runID   string

	tickMu sync.Mutex

	mu       sync.Mutex
	queue    *Queue
	phase    Phase
	stopped  bool
	onEvent  []func(Event)
	batches  map[uint64]*collector
	batchSeq uint64
	started  time.Time
	latest   map[string]float64

	// recipe progress
	steps       []recipe.Step
	gases       []string
	useTemp     bool
	next        int
	current     *recipe.Step
	previous    *recipe.Step
	stepStart   time.Time
	setpoint    float64
	hasSetpoint bool
	temperature float64
	hasTemp     bool
	freshTemp   bool
	lastRamp    time.Time
	lastPassive time.Time
}

// New creates a scheduler in passive monitoring mode
func New(devices Devices, cfg Config, opts ...Option) (*Scheduler, error) {
	if devices.Empty() {
		return nil, ErrNoDevices
	}
	if err := devices.validate(); err != nil {
		return nil, err
	}
	if cfg.Tolerance < 0 || math.IsNaN(cfg.Tolerance) {
		return nil, fmt.Errorf("tolerance %v must not be negative", cfg.Tolerance)
	}
	cfg.applyDefaults()

	s := &Scheduler{
		devices: devices,
		cfg:     cfg,
		queue:   NewQueue(),
		batches: make(map[uint64]*collector),
		latest:  make(map[string]float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = SystemClock()
	}
	if s.log == nil {
		s.log = logger.GetLogger()
	}
	if s.board == nil {
		s.board = device.NewStatusBoard()
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	s.log = s.log.With("run", s.runID)
	s.started = s.clock.Now()
	return s, nil
}

// SetSink replaces the sample destination
func (s *Scheduler) SetSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// OnEvent registers fn to receive events. fn runs on the ticking goroutine
// and must not call back into the scheduler's blocking methods.
func (s *Scheduler) OnEvent(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = append(s.onEvent, fn)
}

// Start loads r and begins its first step on the next tick. Gas columns must
// already use the configured gas names.
func (s *Scheduler) Start(r *recipe.Recipe) error {
	if r == nil {
		return errors.New("nil recipe")
	}
	return s.start(r.Steps, r.Gases(), r.HasTemperature())
}

// StartSteps loads a step sequence directly
func (s *Scheduler) StartSteps(steps []recipe.Step) error {
	seen := make(map[string]bool)
	var gases []string
	useTemp := false
	for _, st := range steps {
		useTemp = useTemp || st.HasTemperature
		for gas := range st.Flows {
			if !seen[gas] {
				seen[gas] = true
				gases = append(gases, gas)
			}
		}
	}
	// keep the configured polling order
	ordered := make([]string, 0, len(gases))
	for _, g := range s.devices.Gases {
		if seen[g] {
			ordered = append(ordered, g)
			delete(seen, g)
		}
	}
	for _, g := range gases {
		if seen[g] {
			ordered = append(ordered, g)
		}
	}
	return s.start(steps, ordered, useTemp)
}

func (s *Scheduler) start(steps []recipe.Step, gases []string, useTemp bool) error {
	if len(steps) == 0 {
		return errors.New("recipe has no steps")
	}
	for _, g := range gases {
		if s.devices.Flows[g] == nil {
			return fmt.Errorf("recipe gas %q has no configured flow controller", g)
		}
	}
	if useTemp && s.devices.Furnace == nil {
		return errors.New("recipe sets a temperature but no furnace is configured")
	}

	s.mu.Lock()
	s.queue.Reset()
	s.batches = make(map[uint64]*collector)
	s.steps = steps
	s.gases = gases
	s.useTemp = useTemp
	s.next = 0
	s.current = nil
	s.previous = nil
	s.hasSetpoint = false
	s.freshTemp = false
	s.lastRamp = time.Time{}
	s.phase = PhaseIdle
	s.stopped = false
	s.started = s.clock.Now()
	s.mu.Unlock()

	s.log.Info("recipe loaded", "steps", len(steps), "gases", gases, "temperature", useTemp)
	return nil
}

// Stop clears the queue and prevents any further item. An operation already
// in flight finishes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.queue.Reset()
	s.batches = make(map[uint64]*collector)
	ev := s.event(EventStopped)
	s.mu.Unlock()

	s.log.Info("scheduler stopped")
	s.emit(ev)
}

// Done reports whether the recipe has completed or the scheduler was stopped
func (s *Scheduler) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped || s.phase == PhaseComplete
}

// Tick plans when the queue is empty, then executes every due item
func (s *Scheduler) Tick(ctx context.Context) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mu.Lock()
	if s.stopped || s.phase == PhaseComplete {
		s.mu.Unlock()
		return nil
	}
	var events []Event
	if s.queue.IsEmpty() {
		events = s.plan(s.clock.Now())
	}
	s.mu.Unlock()
	s.emit(events...)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return nil
		}
		it, ok := s.queue.PopDue(s.clock.Now())
		s.mu.Unlock()
		if !ok {
			return nil
		}
		s.execute(ctx, it)
	}
}

// Run ticks every interval until the recipe completes, Stop is called or
// ctx is done. In passive mode it only returns on Stop or ctx.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil {
			return err
		}
		s.mu.Lock()
		phase, stopped := s.phase, s.stopped
		s.mu.Unlock()
		if phase == PhaseComplete {
			return nil
		}
		if stopped {
			return ErrStopped
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// State returns a snapshot of progress
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		RunID:          s.runID,
		Phase:          s.phase,
		Step:           s.next,
		Steps:          len(s.steps),
		Remaining:      len(s.steps) - s.next,
		Ramping:        s.phase == PhaseRamping,
		Stopped:        s.stopped,
		Pending:        s.queue.Len(),
		StepStart:      s.stepStart,
		Temperature:    s.temperature,
		HasTemperature: s.hasTemp,
		Setpoint:       s.setpoint,
		HasSetpoint:    s.hasSetpoint,
		Latest:         make(map[string]float64, len(s.latest)),
	}
	if s.current != nil {
		st.StepDuration = s.current.Duration
	}
	for k, v := range s.latest {
		st.Latest[k] = v
	}
	return st
}

// Fields returns the sample fields in column order
func (s *Scheduler) Fields() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields()
}

// Status returns the device status board
func (s *Scheduler) Status() *device.StatusBoard {
	return s.board
}

// Devices returns the configured devices
func (s *Scheduler) Devices() Devices {
	return s.devices
}

// CheckDevices asks every configured device for its status and records the
// result on the status board
func (s *Scheduler) CheckDevices(ctx context.Context) []device.Status {
	now := s.clock.Now()
	var items []Item
	if s.devices.Furnace != nil {
		items = append(items, Item{Op: OpReportStatus, Target: TargetFurnace, Due: now})
	}
	for _, g := range s.devices.Gases {
		items = append(items, Item{Op: OpQueryOpMode, Target: g, Due: now})
	}
	if s.devices.Pressure != nil {
		items = append(items, Item{Op: OpReportStatus, Target: TargetPressure, Due: now})
	}
	for _, it := range items {
		if ctx.Err() != nil {
			break
		}
		s.execute(ctx, it)
	}
	return s.board.Snapshot()
}

// fields lists the polled fields. Caller holds mu.
func (s *Scheduler) fields() []string {
	var out []string
	if s.devices.Furnace != nil {
		out = append(out, TagTemperature)
	}
	if s.steps == nil {
		out = append(out, s.devices.Gases...)
	} else {
		out = append(out, s.gases...)
	}
	if s.devices.Pressure != nil {
		out = append(out, TagPressure)
	}
	return out
}

// plan fills the empty queue. Caller holds mu.
func (s *Scheduler) plan(now time.Time) []Event {
	if s.steps == nil {
		due := now
		if !s.lastPassive.IsZero() {
			if next := s.lastPassive.Add(s.cfg.LogPeriod); next.After(now) {
				due = next
			}
		}
		s.lastPassive = due
		s.enqueuePoll(due)
		return nil
	}

	switch s.phase {
	case PhaseRamping:
		if !s.useTemp || s.withinTolerance() {
			return s.beginLogging(now)
		}
		due := now
		if !s.lastRamp.IsZero() {
			if next := s.lastRamp.Add(s.cfg.RampPollPeriod); next.After(now) {
				due = next
			}
		}
		s.lastRamp = due
		s.enqueuePoll(due)
		return nil
	default:
		return s.beginStep(now)
	}
}

// withinTolerance compares a temperature read during this ramp against the
// step target. Caller holds mu.
func (s *Scheduler) withinTolerance() bool {
	if !s.current.HasTemperature {
		return true
	}
	return s.freshTemp && math.Abs(s.temperature-s.current.Temperature) <= s.cfg.Tolerance
}

// beginStep pops the next step and queues its setpoints. Caller holds mu.
func (s *Scheduler) beginStep(now time.Time) []Event {
	if s.next >= len(s.steps) {
		s.phase = PhaseComplete
		s.log.Info("recipe complete", "steps", len(s.steps), "elapsed", now.Sub(s.started).Round(time.Second))
		return []Event{s.event(EventComplete)}
	}

	s.previous = s.current
	step := s.steps[s.next]
	s.current = &step
	s.next++

	if s.useTemp && step.HasTemperature {
		if s.previous == nil || !s.previous.HasTemperature || s.previous.Temperature != step.Temperature {
			s.queue.Push(Item{Op: OpSetTemp, Target: TargetFurnace, Tag: TagTemperature, Value: step.Temperature, Due: now})
		}
	}
	for _, g := range s.gases {
		v, ok := step.Flows[g]
		if !ok {
			continue
		}
		if s.previous != nil {
			if old, had := s.previous.Flows[g]; had && old == v {
				continue
			}
		}
		s.queue.Push(Item{Op: OpSetFlow, Target: g, Tag: g, Value: v, Due: now})
	}

	s.phase = PhaseRamping
	s.freshTemp = false
	s.lastRamp = time.Time{}
	s.log.Info("step started", "step", s.next, "of", len(s.steps), "duration", step.Duration)
	return []Event{s.event(EventStep), s.event(EventPhase)}
}

// beginLogging queues one poll per log period for the step duration.
// Caller holds mu.
func (s *Scheduler) beginLogging(now time.Time) []Event {
	s.phase = PhaseLogging
	s.stepStart = now

	d := s.current.Duration
	n := int(d / s.cfg.LogPeriod)
	if n == 0 {
		s.enqueuePoll(now.Add(d))
	}
	for k := 1; k <= n; k++ {
		s.enqueuePoll(now.Add(time.Duration(k) * s.cfg.LogPeriod))
	}
	s.log.Info("step logging", "step", s.next, "samples", max(n, 1))
	return []Event{s.event(EventPhase)}
}

// enqueuePoll queues one query per polled field, sharing a batch.
// Caller holds mu.
func (s *Scheduler) enqueuePoll(due time.Time) {
	fields := s.fields()
	if len(fields) == 0 {
		return
	}
	s.batchSeq++
	batch := s.batchSeq
	s.batches[batch] = newCollector(fields, s.phase, s.next)

	for _, f := range fields {
		it := Item{Tag: f, Target: f, Due: due, batch: batch}
		switch f {
		case TagTemperature:
			it.Op, it.Target = OpQueryTemp, TargetFurnace
		case TagPressure:
			it.Op, it.Target = OpQueryPressure, TargetPressure
		default:
			it.Op = OpQueryFlow
		}
		s.queue.Push(it)
	}
}

// execute performs one item without holding mu
func (s *Scheduler) execute(ctx context.Context, it Item) {
	v, err := s.dispatch(ctx, it)
	s.board.Mark(it.Target, err)

	var events []Event
	var sample *Sample

	s.mu.Lock()
	switch {
	case it.Op.IsSet():
		if err != nil {
			s.log.Error("set failed", "op", it.Op, "target", it.Target, "value", it.Value, "err", err)
			ev := s.event(EventSetFailed)
			ev.Op, ev.Target, ev.Value, ev.Err = it.Op, it.Target, it.Value, err
			events = append(events, ev)
		} else {
			if it.Op == OpSetTemp {
				s.setpoint = it.Value
				s.hasSetpoint = true
			}
			s.log.Info("setpoint written", "target", it.Target, "value", it.Value)
			ev := s.event(EventSet)
			ev.Op, ev.Target, ev.Value = it.Op, it.Target, it.Value
			events = append(events, ev)
		}
	case err != nil:
		s.log.Warn("query failed", "op", it.Op, "target", it.Target, "err", err)
		ev := s.event(EventQueryFailed)
		ev.Op, ev.Target, ev.Err = it.Op, it.Target, err
		events = append(events, ev)
	case it.Tag != "":
		s.latest[it.Tag] = v
		if it.Op == OpQueryTemp {
			s.temperature = v
			s.hasTemp = true
			s.freshTemp = true
		}
	}

	if c, ok := s.batches[it.batch]; ok && it.batch != 0 {
		if c.add(it.Tag, v, err) {
			delete(s.batches, it.batch)
			now := s.clock.Now()
			sample = &Sample{
				RunID:   s.runID,
				Time:    now,
				Elapsed: now.Sub(s.started),
				Phase:   c.phase,
				Step:    c.step,
				Values:  c.values,
				Missing: c.missing,
			}
		}
	}
	sink := s.sink
	s.mu.Unlock()

	s.emit(events...)
	if sample != nil && sink != nil {
		if err := sink.Record(*sample); err != nil {
			s.log.Error("failed to record sample", "err", err)
		}
	}
}

// dispatch calls the driver behind it
func (s *Scheduler) dispatch(ctx context.Context, it Item) (float64, error) {
	switch it.Op {
	case OpSetFlow, OpQueryFlow, OpQueryOpMode:
		fc := s.devices.Flows[it.Target]
		if fc == nil {
			return 0, fmt.Errorf("no flow controller for %q", it.Target)
		}
		switch it.Op {
		case OpSetFlow:
			return it.Value, fc.SetFlow(ctx, it.Value)
		case OpQueryFlow:
			return fc.QueryFlow(ctx)
		default:
			_, err := fc.QueryOperatingMode(ctx)
			return 0, err
		}
	case OpSetTemp, OpQueryTemp:
		if s.devices.Furnace == nil {
			return 0, errors.New("no furnace configured")
		}
		if it.Op == OpSetTemp {
			return it.Value, s.devices.Furnace.SetTemperature(ctx, it.Value)
		}
		return s.devices.Furnace.QueryTemperature(ctx)
	case OpQueryPressure:
		if s.devices.Pressure == nil {
			return 0, errors.New("no pressure gauge configured")
		}
		return s.devices.Pressure.QueryPressure(ctx)
	case OpReportStatus:
		switch it.Target {
		case TargetFurnace:
			if s.devices.Furnace == nil {
				return 0, errors.New("no furnace configured")
			}
			st, err := s.devices.Furnace.ReportStatus(ctx)
			return float64(st), err
		case TargetPressure:
			if s.devices.Pressure == nil {
				return 0, errors.New("no pressure gauge configured")
			}
			_, err := s.devices.Pressure.ReportStatus(ctx)
			return 0, err
		}
		return 0, fmt.Errorf("no status report for %q", it.Target)
	}
	return 0, fmt.Errorf("unknown operation %v", it.Op)
}

// event builds an event stamped with the current progress. Caller holds mu.
func (s *Scheduler) event(kind EventKind) Event {
	return Event{Kind: kind, Time: s.clock.Now(), Phase: s.phase, Step: s.next}
}

func (s *Scheduler) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	handlers := append([]func(Event){}, s.onEvent...)
	s.mu.Unlock()
	for _, ev := range events {
		for _, fn := range handlers {
			fn(ev)
		}
	}
}
