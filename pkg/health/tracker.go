// Package health tracks per-provider availability from live traffic and
// active probes. State is in-memory only: a restart resets every provider
// to healthy and lets real traffic re-establish the picture.
package health

import (
	"log/slog"
	"sync"
	"time"
)

// State is a provider's health classification.
type State string

const (
	StateHealthy  State = "healthy"
	StateDegraded State = "degraded"
	StateError    State = "error"
)

const (
	// DefaultFailureThreshold is the consecutive-failure count that marks a
	// provider degraded; twice that marks it errored.
	DefaultFailureThreshold = 3

	// DefaultLatencyMultiplier marks a provider degraded when recent
	// latencies sit at this multiple of its baseline.
	DefaultLatencyMultiplier = 3.0

	// latencySamples is how many recent success latencies must all exceed
	// the threshold before latency alone degrades a provider.
	latencySamples = 3

	// baselineWindow bounds the running-baseline sample count so old
	// history decays.
	baselineWindow = 100

	// recoveryProbes is the probe-success streak that returns a degraded
	// or errored provider to healthy.
	recoveryProbes = 3
)

// Status is a point-in-time snapshot of one provider.
type Status struct {
	Provider            string        `json:"provider"`
	State               State         `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	BaselineLatency     time.Duration `json:"baseline_latency_ms"`
	LastLatency         time.Duration `json:"last_latency_ms"`
	LastChange          time.Time     `json:"last_change"`
	LastSeen            time.Time     `json:"last_seen"`
}

type entry struct {
	state               State
	consecutiveFailures int
	probeSuccesses      int

	// baseline is a running mean of success latencies, capped at
	// baselineWindow samples so it keeps adapting.
	baseline      time.Duration
	baselineCount int

	// recent holds the last latencySamples success latencies.
	recent []time.Duration

	lastChange time.Time
	lastSeen   time.Time
}

// Tracker is the shared health map. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*entry

	failureThreshold  int
	latencyMultiplier float64
	logger            *slog.Logger
	now               func() time.Time
}

// NewTracker creates a tracker. Zero thresholds take the defaults.
func NewTracker(failureThreshold int, latencyMultiplier float64, logger *slog.Logger) *Tracker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if latencyMultiplier <= 1 {
		latencyMultiplier = DefaultLatencyMultiplier
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		entries:           make(map[string]*entry),
		failureThreshold:  failureThreshold,
		latencyMultiplier: latencyMultiplier,
		logger:            logger,
		now:               time.Now,
	}
}

func (t *Tracker) get(provider string) *entry {
	e, ok := t.entries[provider]
	if !ok {
		e = &entry{state: StateHealthy, lastChange: t.now()}
		t.entries[provider] = e
	}
	return e
}

// RecordSuccess feeds one successful upstream call into the tracker.
// A success resets the failure streak but does not by itself clear a
// degraded or errored state: that recovery goes through probes.
func (t *Tracker) RecordSuccess(provider string, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.get(provider)
	e.lastSeen = t.now()
	e.consecutiveFailures = 0

	e.recent = append(e.recent, latency)
	if len(e.recent) > latencySamples {
		e.recent = e.recent[1:]
	}

	// Update the baseline after the spike check so a sustained spike
	// cannot drag its own threshold up before being noticed.
	if e.state == StateHealthy && e.latencySustained(t.latencyMultiplier) {
		t.transition(provider, e, StateDegraded, "latency")
	}

	if e.baselineCount < baselineWindow {
		e.baselineCount++
	}
	n := time.Duration(e.baselineCount)
	e.baseline += (latency - e.baseline) / n
}

// RecordFailure feeds one failed upstream call into the tracker.
func (t *Tracker) RecordFailure(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.get(provider)
	e.lastSeen = t.now()
	e.consecutiveFailures++
	e.recent = nil

	switch {
	case e.consecutiveFailures >= 2*t.failureThreshold && e.state != StateError:
		t.transition(provider, e, StateError, "consecutive failures")
	case e.consecutiveFailures >= t.failureThreshold && e.state == StateHealthy:
		t.transition(provider, e, StateDegraded, "consecutive failures")
	}
}

// RecordProbe feeds one active probe result into the tracker. Three
// consecutive probe successes return an unhealthy provider to healthy.
func (t *Tracker) RecordProbe(provider string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.get(provider)
	e.lastSeen = t.now()

	if !ok {
		e.probeSuccesses = 0
		return
	}
	e.probeSuccesses++
	if e.state != StateHealthy && e.probeSuccesses >= recoveryProbes {
		e.consecutiveFailures = 0
		e.recent = nil
		t.transition(provider, e, StateHealthy, "probe recovery")
	}
}

// StateOf returns the current state of a provider. Unknown providers are
// healthy.
func (t *Tracker) StateOf(provider string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[provider]; ok {
		return e.state
	}
	return StateHealthy
}

// Unhealthy lists providers currently degraded or errored. These are the
// only ones the probe loop actively checks.
func (t *Tracker) Unhealthy() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []string
	for name, e := range t.entries {
		if e.state != StateHealthy {
			out = append(out, name)
		}
	}
	return out
}

// Snapshot returns the status of every tracked provider.
func (t *Tracker) Snapshot() map[string]Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]Status, len(t.entries))
	for name, e := range t.entries {
		var last time.Duration
		if len(e.recent) > 0 {
			last = e.recent[len(e.recent)-1]
		}
		out[name] = Status{
			Provider:            name,
			State:               e.state,
			ConsecutiveFailures: e.consecutiveFailures,
			BaselineLatency:     e.baseline,
			LastLatency:         last,
			LastChange:          e.lastChange,
			LastSeen:            e.lastSeen,
		}
	}
	return out
}

// transition must be called with the lock held.
func (t *Tracker) transition(provider string, e *entry, to State, reason string) {
	from := e.state
	e.state = to
	e.probeSuccesses = 0
	e.lastChange = t.now()
	t.logger.Info("Provider health changed",
		"provider", provider,
		"from", from,
		"to", to,
		"reason", reason,
	)
}

// latencySustained reports whether the last latencySamples successes all
// exceed multiplier × baseline.
func (e *entry) latencySustained(multiplier float64) bool {
	if e.baselineCount == 0 || len(e.recent) < latencySamples {
		return false
	}
	threshold := time.Duration(float64(e.baseline) * multiplier)
	for _, l := range e.recent {
		if l < threshold {
			return false
		}
	}
	return true
}
