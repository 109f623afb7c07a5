package breaker

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/OlendLabs/olend-risk/core/events"
	"github.com/OlendLabs/olend-risk/native/common"
	"github.com/OlendLabs/olend-risk/native/oracle"
)

// Phase is the protective state of one keyed breaker.
type Phase string

const (
	PhaseClosed   Phase = "closed"
	PhaseOpen     Phase = "open"
	PhaseHalfOpen Phase = "half-open"
)

var (
	ErrInvalidThresholds = errors.New("breaker: invalid thresholds")
	// ErrCircuitOpen is a normal, non-aborting decision: callers may fall
	// back gracefully instead of crashing.
	ErrCircuitOpen = errors.New("breaker: circuit open")
)

// Thresholds configures when one keyed breaker trips and recovers.
type Thresholds struct {
	// FailureThreshold is the in-window failure count above which the
	// breaker opens.
	FailureThreshold uint32
	// TimeWindow is the rolling window failures and volume are counted in.
	TimeWindow time.Duration
	// RecoveryTimeout is how long an open breaker waits before probing.
	RecoveryTimeout time.Duration
	// VolumeThreshold caps the cumulative in-window operation volume; zero
	// disables the volume trip.
	VolumeThreshold uint64
}

// Normalise applies canonical defaults for unset fields.
func (t Thresholds) Normalise() Thresholds {
	cfg := t
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.TimeWindow <= 0 {
		cfg.TimeWindow = time.Minute
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 5 * time.Minute
	}
	return cfg
}

// Validate rejects threshold sets outside sane bounds before they are applied.
func (t Thresholds) Validate() error {
	if t.FailureThreshold == 0 {
		return fmt.Errorf("%w: failure threshold must be positive", ErrInvalidThresholds)
	}
	if t.TimeWindow <= 0 {
		return fmt.Errorf("%w: time window must be positive", ErrInvalidThresholds)
	}
	if t.RecoveryTimeout <= 0 {
		return fmt.Errorf("%w: recovery timeout must be positive", ErrInvalidThresholds)
	}
	return nil
}

// Transition records a single phase change for audit and operator tooling.
type Transition struct {
	From      Phase
	To        Phase
	Reason    string
	Timestamp time.Time
}

// State is a point-in-time copy of one keyed breaker.
type State struct {
	Key         string
	Phase       Phase
	Failures    uint32
	Volume      uint64
	LastFailure time.Time
	LastSuccess time.Time
	PhaseChange time.Time
	Transitions []Transition
}

type volumeSample struct {
	at     time.Time
	amount uint64
}

type breakerState struct {
	phase       Phase
	failures    []time.Time
	volume      []volumeSample
	lastFailure time.Time
	lastSuccess time.Time
	phaseChange time.Time
	transitions []Transition
}

// Registry is the keyed set of protective state machines, one per operation
// type (optionally crossed with asset). A registry-wide emergency flag forces
// every breaker to behave as open and never recovers automatically.
type Registry struct {
	mu        sync.Mutex
	breakers  map[string]*breakerState
	overrides map[string]Thresholds
	defaults  Thresholds
	emergency bool
	adminCap  common.Capability
	emitter   events.Emitter
	clock     func() time.Time
}

// NewRegistry constructs a registry guarded by the provided admin capability.
func NewRegistry(defaults Thresholds, adminCap common.Capability, emitter events.Emitter) *Registry {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Registry{
		breakers:  make(map[string]*breakerState),
		overrides: make(map[string]Thresholds),
		defaults:  defaults.Normalise(),
		adminCap:  adminCap,
		emitter:   emitter,
		clock:     time.Now,
	}
}

// SetClock overrides the time source for deterministic tests and host clocks.
func (r *Registry) SetClock(clock func() time.Time) {
	if r == nil || clock == nil {
		return
	}
	r.mu.Lock()
	r.clock = clock
	r.mu.Unlock()
}

// Key renders the canonical breaker key for an operation, optionally crossed
// with an asset.
func Key(operation, asset string) string {
	op := strings.ToLower(strings.TrimSpace(operation))
	symbol := oracle.NormaliseAsset(asset)
	if symbol == "" {
		return op
	}
	return op + ":" + symbol
}

// SetThresholds installs a per-key override. Requires the admin capability.
func (r *Registry) SetThresholds(cap common.Capability, key string, t Thresholds) error {
	if err := common.Guard(r.adminCap, cap); err != nil {
		return err
	}
	normalised := t.Normalise()
	if err := normalised.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.overrides[key] = normalised
	r.mu.Unlock()
	return nil
}

// SetGlobalEmergency toggles the registry-wide halt. Only the admin capability
// may set or clear it; there is no automatic recovery.
func (r *Registry) SetGlobalEmergency(cap common.Capability, enabled bool) error {
	if err := common.Guard(r.adminCap, cap); err != nil {
		return err
	}
	r.mu.Lock()
	changed := r.emergency != enabled
	r.emergency = enabled
	now := r.clock()
	r.mu.Unlock()
	if changed {
		r.emitter.Emit(events.GlobalEmergency{Enabled: enabled, Timestamp: now})
	}
	return nil
}

// GlobalEmergency reports whether the registry-wide halt is active.
func (r *Registry) GlobalEmergency() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emergency
}

// Allow reports whether the keyed operation may proceed. An open breaker past
// its recovery timeout moves to half-open and admits a single probe.
func (r *Registry) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emergency {
		return false
	}
	state := r.ensure(key)
	now := r.clock()
	switch state.phase {
	case PhaseOpen:
		if now.Sub(state.phaseChange) >= r.thresholds(key).RecoveryTimeout {
			r.transition(key, state, PhaseHalfOpen, "recovery timeout elapsed", now)
			return true
		}
		return false
	case PhaseHalfOpen:
		return true
	default:
		return true
	}
}

// RecordSuccess feeds the outcome of a permitted operation back into the
// breaker. A half-open probe succeeding closes the breaker; in-window volume
// still counts toward the volume threshold.
func (r *Registry) RecordSuccess(key string, volume uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.ensure(key)
	now := r.clock()
	state.lastSuccess = now
	if state.phase == PhaseHalfOpen {
		state.failures = state.failures[:0]
		state.volume = state.volume[:0]
		r.transition(key, state, PhaseClosed, "probe succeeded", now)
		return
	}
	r.recordVolume(key, state, volume, now)
}

// RecordFailure feeds a failed operation into the breaker. A half-open probe
// failing reopens it; in the closed phase failures accumulate within the
// rolling window until the threshold trips.
func (r *Registry) RecordFailure(key string, volume uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.ensure(key)
	now := r.clock()
	state.lastFailure = now
	if state.phase == PhaseHalfOpen {
		r.transition(key, state, PhaseOpen, "probe failed", now)
		return
	}
	if state.phase == PhaseOpen {
		return
	}
	t := r.thresholds(key)
	state.failures = append(state.failures, now)
	state.failures = pruneTimes(state.failures, now.Add(-t.TimeWindow))
	if uint32(len(state.failures)) > t.FailureThreshold {
		r.transition(key, state, PhaseOpen, "failure threshold exceeded", now)
		return
	}
	r.recordVolume(key, state, volume, now)
}

// TripManipulation forces the breaker open when the manipulation detector
// reports risk at or above the manipulation threshold.
func (r *Registry) TripManipulation(key string, riskLevel uint8) {
	if riskLevel < oracle.ManipulationThreshold {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.ensure(key)
	if state.phase == PhaseOpen {
		return
	}
	r.transition(key, state, PhaseOpen, "manipulation detected", r.clock())
}

// State returns a point-in-time copy of the keyed breaker. The reported phase
// accounts for the global emergency flag.
func (r *Registry) State(key string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.ensure(key)
	phase := state.phase
	if r.emergency {
		phase = PhaseOpen
	}
	var volume uint64
	for _, sample := range state.volume {
		volume += sample.amount
	}
	return State{
		Key:         key,
		Phase:       phase,
		Failures:    uint32(len(state.failures)),
		Volume:      volume,
		LastFailure: state.lastFailure,
		LastSuccess: state.lastSuccess,
		PhaseChange: state.phaseChange,
		Transitions: append([]Transition{}, state.transitions...),
	}
}

func (r *Registry) ensure(key string) *breakerState {
	state, ok := r.breakers[key]
	if !ok {
		state = &breakerState{phase: PhaseClosed, phaseChange: r.clock()}
		r.breakers[key] = state
	}
	return state
}

func (r *Registry) thresholds(key string) Thresholds {
	if t, ok := r.overrides[key]; ok {
		return t
	}
	return r.defaults
}

func (r *Registry) recordVolume(key string, state *breakerState, volume uint64, now time.Time) {
	t := r.thresholds(key)
	if volume > 0 {
		state.volume = append(state.volume, volumeSample{at: now, amount: volume})
	}
	state.volume = pruneVolume(state.volume, now.Add(-t.TimeWindow))
	if t.VolumeThreshold == 0 {
		return
	}
	var total uint64
	for _, sample := range state.volume {
		total += sample.amount
	}
	if total > t.VolumeThreshold {
		r.transition(key, state, PhaseOpen, "volume threshold exceeded", now)
	}
}

func (r *Registry) transition(key string, state *breakerState, to Phase, reason string, now time.Time) {
	from := state.phase
	if from == to {
		return
	}
	state.phase = to
	state.phaseChange = now
	record := Transition{From: from, To: to, Reason: reason, Timestamp: now}
	state.transitions = append(state.transitions, record)
	r.emitter.Emit(events.BreakerTransition{
		Key:       key,
		From:      string(from),
		To:        string(to),
		Reason:    reason,
		Timestamp: now,
	})
}

func pruneTimes(samples []time.Time, cutoff time.Time) []time.Time {
	filtered := samples[:0]
	for _, sample := range samples {
		if sample.Before(cutoff) {
			continue
		}
		filtered = append(filtered, sample)
	}
	return filtered
}

func pruneVolume(samples []volumeSample, cutoff time.Time) []volumeSample {
	filtered := samples[:0]
	for _, sample := range samples {
		if sample.at.Before(cutoff) {
			continue
		}
		filtered = append(filtered, sample)
	}
	return filtered
}
