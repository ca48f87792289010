// Package thermal samples platform temperature zones and runs the
// hysteretic throttle state machine for the orchestrator.
package thermal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blackboxlabs/blackbox/internal/adapters/metrics"
	"github.com/blackboxlabs/blackbox/internal/domain"
)

const (
	maxHistory   = 100
	maxZoneScan  = 10
	stopWaitTime = 5 * time.Second
)

// Callback receives the entered state and a snapshot of zone temperatures.
type Callback func(domain.ThermalState, map[string]float64)

// Options configure the monitor thresholds and sampling.
type Options struct {
	WarningTemp  float64
	CriticalTemp float64
	CooldownTemp float64
	PollInterval time.Duration
	BasePath     string
}

// Monitor samples thermal zones on a background goroutine and exposes the
// current state. State is only mutated by the sampler (or TriggerCooldown);
// readers take the same mutex for a consistent snapshot.
type Monitor struct {
	opts  Options
	zones map[string]string // zone label -> temp file path
	log   *slog.Logger

	mu        sync.Mutex
	state     domain.ThermalState
	readings  []domain.ThermalReading
	callbacks map[domain.ThermalState][]Callback
	running   bool
	stop      chan struct{}
	done      chan struct{}
}

// New discovers thermal zones under opts.BasePath and builds a monitor.
// A platform without zones is fine: the monitor runs and stays Normal.
func New(opts Options) *Monitor {
	log := slog.With("component", "thermal")

	m := &Monitor{
		opts:      opts,
		zones:     discoverZones(opts.BasePath, log),
		log:       log,
		state:     domain.ThermalNormal,
		callbacks: make(map[domain.ThermalState][]Callback),
	}

	labels := make([]string, 0, len(m.zones))
	for label := range m.zones {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	log.Info("thermal monitor initialized",
		"warning", opts.WarningTemp, "critical", opts.CriticalTemp,
		"cooldown", opts.CooldownTemp, "zones", labels)
	return m
}

// discoverZones scans thermal_zone0..9 and maps each zone's type label to
// its temp file.
func discoverZones(basePath string, log *slog.Logger) map[string]string {
	zones := make(map[string]string)

	if _, err := os.Stat(basePath); err != nil {
		log.Warn("thermal directory not found", "path", basePath)
		return zones
	}

	for i := 0; i < maxZoneScan; i++ {
		zoneDir := filepath.Join(basePath, fmt.Sprintf("thermal_zone%d", i))
		tempPath := filepath.Join(zoneDir, "temp")
		if _, err := os.Stat(tempPath); err != nil {
			continue
		}

		label := fmt.Sprintf("zone%d", i)
		if raw, err := os.ReadFile(filepath.Join(zoneDir, "type")); err == nil {
			if t := strings.TrimSpace(string(raw)); t != "" {
				label = t
			}
		}
		zones[label] = tempPath
	}
	return zones
}

// readTemperature reads one zone. The platform reports millidegrees.
func readTemperature(path string) (float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return float64(milli) / 1000.0, nil
}

// CurrentTemperatures reads every zone that answers.
func (m *Monitor) CurrentTemperatures() map[string]float64 {
	temps := make(map[string]float64, len(m.zones))
	for label, path := range m.zones {
		if t, err := readTemperature(path); err == nil {
			temps[label] = t
		} else {
			m.log.Debug("failed to read zone", "zone", label, "error", err)
		}
	}
	return temps
}

// MaxTemperature returns the hottest zone, or nil when no zone answers.
func (m *Monitor) MaxTemperature() *float64 {
	temps := m.CurrentTemperatures()
	if len(temps) == 0 {
		return nil
	}
	max := hottest(temps)
	return &max
}

func hottest(temps map[string]float64) float64 {
	var max float64
	first := true
	for _, t := range temps {
		if first || t > max {
			max = t
			first = false
		}
	}
	return max
}

// sample reads all zones once, records one reading per zone, and advances
// the state machine. Called from the background loop; exercised directly
// in tests.
func (m *Monitor) sample() {
	temps := m.CurrentTemperatures()
	if len(temps) == 0 {
		m.log.Warn("no thermal readings available")
		return
	}

	max := hottest(temps)
	metrics.ThermalMaxTemperature.Set(max)

	now := time.Now().UTC()
	m.mu.Lock()
	for zone, celsius := range temps {
		m.readings = append(m.readings, domain.ThermalReading{
			Zone:      zone,
			Celsius:   celsius,
			Timestamp: now,
		})
	}
	if len(m.readings) > maxHistory {
		m.readings = m.readings[len(m.readings)-maxHistory:]
	}
	m.mu.Unlock()

	m.updateState(max, temps)

	if state := m.State(); state != domain.ThermalNormal {
		m.log.Warn("elevated thermal state", "max_celsius", max, "state", state)
	}
}

// updateState runs one step of the hysteretic state machine. Critical is
// sticky: only TriggerCooldown followed by cooling below the cooldown
// threshold returns the system to Normal.
func (m *Monitor) updateState(max float64, temps map[string]float64) {
	m.mu.Lock()
	old := m.state

	switch old {
	case domain.ThermalCooldown:
		if max < m.opts.CooldownTemp {
			m.state = domain.ThermalNormal
			m.log.Info("thermal cooldown complete", "max_celsius", max, "threshold", m.opts.CooldownTemp)
		}
	case domain.ThermalCritical:
		// sticky until TriggerCooldown
	default:
		switch {
		case max >= m.opts.CriticalTemp:
			m.state = domain.ThermalCritical
		case max >= m.opts.WarningTemp:
			m.state = domain.ThermalWarning
		default:
			m.state = domain.ThermalNormal
		}
	}

	newState := m.state
	m.mu.Unlock()

	if old != newState {
		m.log.Warn("thermal state changed", "from", old, "to", newState, "max_celsius", max)
		metrics.ThermalStateTransitions.WithLabelValues(string(newState)).Inc()
		m.fireCallbacks(newState, temps)
	}
}

// RegisterCallback registers fn to run on every transition into state.
func (m *Monitor) RegisterCallback(state domain.ThermalState, fn func(domain.ThermalState, map[string]float64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks[state] = append(m.callbacks[state], fn)
}

// fireCallbacks invokes every callback registered for state. A panicking
// callback never takes down the sampler loop.
func (m *Monitor) fireCallbacks(state domain.ThermalState, temps map[string]float64) {
	m.mu.Lock()
	cbs := make([]Callback, len(m.callbacks[state]))
	copy(cbs, m.callbacks[state])
	m.mu.Unlock()

	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("thermal callback panicked", "state", state, "panic", r)
				}
			}()
			cb(state, temps)
		}()
	}
}

// Start launches the sampler. Idempotent; a second call is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.log.Warn("thermal monitor already running")
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	stop, done := m.stop, m.done
	m.mu.Unlock()

	go m.loop(stop, done)
	m.log.Info("thermal monitoring started", "poll_interval", m.opts.PollInterval)
}

func (m *Monitor) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

// Stop requests termination and waits for the sampler with a bounded join.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	select {
	case <-done:
	case <-time.After(stopWaitTime):
		m.log.Warn("thermal monitor did not stop in time")
	}
	m.log.Info("thermal monitoring stopped")
}

// TriggerCooldown forces the Cooldown state. This is the only way out of
// Critical.
func (m *Monitor) TriggerCooldown() {
	m.mu.Lock()
	old := m.state
	m.state = domain.ThermalCooldown
	m.mu.Unlock()

	m.log.Warn("cooldown triggered", "previous_state", old)
	if old != domain.ThermalCooldown {
		metrics.ThermalStateTransitions.WithLabelValues(string(domain.ThermalCooldown)).Inc()
		m.fireCallbacks(domain.ThermalCooldown, m.CurrentTemperatures())
	}
}

// State returns the current thermal state.
func (m *Monitor) State() domain.ThermalState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ShouldThrottle reports whether the pipeline should flag requests as
// thermally throttled.
func (m *Monitor) ShouldThrottle() bool {
	state := m.State()
	return state == domain.ThermalCritical || state == domain.ThermalCooldown
}

// Running reports whether the sampler loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Readings returns a copy of the reading history (most recent last).
func (m *Monitor) Readings() []domain.ThermalReading {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ThermalReading, len(m.readings))
	copy(out, m.readings)
	return out
}

// Status returns a consistent snapshot for health and metrics endpoints.
func (m *Monitor) Status() domain.ThermalStatus {
	temps := m.CurrentTemperatures()

	var maxTemp *float64
	if len(temps) > 0 {
		max := hottest(temps)
		maxTemp = &max
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.ThermalStatus{
		State:        m.state,
		Temperatures: temps,
		MaxTemp:      maxTemp,
		Thresholds: domain.ThermalThresholds{
			Warning:  m.opts.WarningTemp,
			Critical: m.opts.CriticalTemp,
			Cooldown: m.opts.CooldownTemp,
		},
		Throttling: m.state == domain.ThermalCritical || m.state == domain.ThermalCooldown,
		Running:    m.running,
	}
}
