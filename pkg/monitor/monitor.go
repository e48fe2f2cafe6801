// Package monitor runs the background loops: active health probes for
// unhealthy providers and the periodic alert condition sweep.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"openclaw/hub/pkg/alerts"
	"openclaw/hub/pkg/budget"
	"openclaw/hub/pkg/health"
	"openclaw/hub/pkg/storage"
)

// outcomeWindow bounds how far back the consecutive-errors condition
// looks: stale failures from before a quiet period never fire it.
const outcomeWindow = 10 * time.Minute

// Latency spike comparison: the mean of the newest spikeRecentCount
// successes against the mean of the spikeBaselineCount before them.
const (
	spikeRecentCount   = 10
	spikeBaselineCount = 100
)

// ProbeFunc actively checks one provider family. The monitor supplies a
// context already bounded by the probe timeout.
type ProbeFunc func(ctx context.Context, service string) error

// Config carries the loop periods and alert thresholds.
type Config struct {
	ProbePeriod  time.Duration
	ProbeTimeout time.Duration

	CheckPeriod               time.Duration
	ConsecutiveErrorThreshold int
	LatencyMultiplier         float64
	BudgetThresholdPercent    float64
}

// Monitor owns the cron scheduler for both loops.
type Monitor struct {
	cfg      Config
	store    *storage.Store
	tracker  *health.Tracker
	enforcer *budget.Enforcer
	alerts   *alerts.Manager
	probe    ProbeFunc

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
	logger  *slog.Logger
}

// New creates a monitor. Probe may be nil to disable active probing.
func New(cfg Config, store *storage.Store, tracker *health.Tracker, enforcer *budget.Enforcer, alertMgr *alerts.Manager, probe ProbeFunc, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:      cfg,
		store:    store,
		tracker:  tracker,
		enforcer: enforcer,
		alerts:   alertMgr,
		probe:    probe,
		cron:     cron.New(),
		logger:   logger.With("component", "monitor"),
	}
}

// Start schedules both loops. Jobs inherit ctx so shutdown cancels any
// in-flight sweep.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	if m.probe != nil {
		spec := fmt.Sprintf("@every %s", m.cfg.ProbePeriod)
		if _, err := m.cron.AddFunc(spec, func() { m.runProbes(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule probe loop: %w", err)
		}
	}

	spec := fmt.Sprintf("@every %s", m.cfg.CheckPeriod)
	if _, err := m.cron.AddFunc(spec, func() { m.runChecks(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule alert checks: %w", err)
	}

	m.cron.Start()
	m.running = true
	m.logger.Info("Monitor started",
		"probe_period", m.cfg.ProbePeriod,
		"check_period", m.cfg.CheckPeriod,
	)
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	<-m.cron.Stop().Done()
	m.running = false
	m.logger.Info("Monitor stopped")
}

// runProbes actively probes only the providers currently marked degraded
// or errored. Healthy providers are judged by live traffic alone.
func (m *Monitor) runProbes(ctx context.Context) {
	for _, service := range m.tracker.Unhealthy() {
		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		start := time.Now()
		err := m.probe(probeCtx, service)
		cancel()

		m.tracker.RecordProbe(service, err == nil)
		m.recordProbeCall(ctx, service, start, err)
		if err != nil {
			m.logger.DebugContext(ctx, "Probe failed",
				"provider", service, "error", err)
		}
	}
}

// recordProbeCall writes the probe outcome to the api_calls log. A failed
// write never disturbs the probe loop.
func (m *Monitor) recordProbeCall(ctx context.Context, service string, start time.Time, probeErr error) {
	call := &storage.APICall{
		Service:   service,
		Operation: "probe",
		Method:    "GET",
		LatencyMS: time.Since(start).Milliseconds(),
		Success:   probeErr == nil,
	}
	if probeErr != nil {
		call.Error = probeErr.Error()
	}
	if err := m.store.InsertAPICall(ctx, call); err != nil {
		m.logger.WarnContext(ctx, "Failed to record probe outcome", "error", err)
	}
}

// runChecks evaluates every alert condition for every enabled connection,
// raising where a condition fires and resolving where it no longer does.
func (m *Monitor) runChecks(ctx context.Context) {
	conns, err := m.store.ListConnections(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "Alert sweep failed to list connections", "error", err)
		return
	}

	for _, conn := range conns {
		if !conn.Enabled {
			continue
		}
		m.checkConsecutiveErrors(ctx, conn)
		m.checkLatencySpike(ctx, conn)
		m.checkBudgetThreshold(ctx, conn)
	}
}

func (m *Monitor) checkConsecutiveErrors(ctx context.Context, conn *storage.Connection) {
	n := m.cfg.ConsecutiveErrorThreshold
	outcomes, err := m.store.RecentOutcomes(ctx, conn.Service, time.Now().Add(-outcomeWindow), n)
	if err != nil {
		m.logger.ErrorContext(ctx, "Consecutive-errors check failed",
			"connection_id", conn.ID, "error", err)
		return
	}

	firing := len(outcomes) == n
	for _, ok := range outcomes {
		if ok {
			firing = false
			break
		}
	}

	if !firing {
		m.resolve(ctx, conn.ID, storage.AlertConsecutiveErrors)
		return
	}
	m.raise(ctx, &storage.Alert{
		ConnectionID: conn.ID,
		Kind:         storage.AlertConsecutiveErrors,
		Severity:     "error",
		Message:      fmt.Sprintf("%s: last %d requests all failed", conn.Name, n),
	})
}

func (m *Monitor) checkLatencySpike(ctx context.Context, conn *storage.Connection) {
	recent, err := m.store.SuccessLatencies(ctx, conn.Service, spikeRecentCount, 0)
	if err == nil && len(recent) == spikeRecentCount {
		var baseline []int64
		baseline, err = m.store.SuccessLatencies(ctx, conn.Service, spikeBaselineCount, spikeRecentCount)
		if err == nil && len(baseline) > 0 {
			recentMean := mean(recent)
			baseMean := mean(baseline)
			if baseMean > 0 && recentMean >= m.cfg.LatencyMultiplier*baseMean {
				m.raise(ctx, &storage.Alert{
					ConnectionID: conn.ID,
					Kind:         storage.AlertLatencySpike,
					Severity:     "warning",
					Message: fmt.Sprintf("%s: mean latency %.0fms is %.1fx the %.0fms baseline",
						conn.Name, recentMean, recentMean/baseMean, baseMean),
				})
				return
			}
		}
	}
	if err != nil {
		m.logger.ErrorContext(ctx, "Latency-spike check failed",
			"connection_id", conn.ID, "error", err)
		return
	}
	m.resolve(ctx, conn.ID, storage.AlertLatencySpike)
}

func (m *Monitor) checkBudgetThreshold(ctx context.Context, conn *storage.Connection) {
	statuses, err := m.enforcer.Report(ctx, conn)
	if err != nil {
		m.logger.ErrorContext(ctx, "Budget check failed",
			"connection_id", conn.ID, "error", err)
		return
	}

	for _, st := range statuses {
		if st.Percent >= m.cfg.BudgetThresholdPercent {
			m.raise(ctx, &storage.Alert{
				ConnectionID: conn.ID,
				Kind:         storage.AlertBudgetThreshold,
				Severity:     "warning",
				Message: fmt.Sprintf("%s: %s budget at %.0f%% ($%.2f of $%.2f)",
					conn.Name, st.Window, st.Percent, st.Spent, st.Limit),
			})
			return
		}
	}
	m.resolve(ctx, conn.ID, storage.AlertBudgetThreshold)
}

func (m *Monitor) raise(ctx context.Context, alert *storage.Alert) {
	if err := m.alerts.Raise(ctx, alert); err != nil {
		m.logger.ErrorContext(ctx, "Failed to raise alert",
			"connection_id", alert.ConnectionID, "kind", alert.Kind, "error", err)
	}
}

func (m *Monitor) resolve(ctx context.Context, connectionID int64, kind storage.AlertKind) {
	if err := m.alerts.Resolve(ctx, connectionID, kind); err != nil {
		m.logger.ErrorContext(ctx, "Failed to resolve alert",
			"connection_id", connectionID, "kind", kind, "error", err)
	}
}

func mean(values []int64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum int64
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}
