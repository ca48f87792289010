package thermal

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackboxlabs/blackbox/internal/domain"
)

func newTestMonitor(t *testing.T) (*Monitor, string) {
	t.Helper()
	base := t.TempDir()

	zoneDir := filepath.Join(base, "thermal_zone0")
	require.NoError(t, os.MkdirAll(zoneDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(zoneDir, "type"), []byte("cpu-thermal\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(zoneDir, "temp"), []byte("45000\n"), 0o644))

	m := New(Options{
		WarningTemp:  75.0,
		CriticalTemp: 85.0,
		CooldownTemp: 70.0,
		PollInterval: time.Hour, // tests drive sample() directly
		BasePath:     base,
	})
	return m, base
}

func setTemp(t *testing.T, base string, celsius float64) {
	t.Helper()
	milli := fmt.Sprintf("%d\n", int(celsius*1000))
	require.NoError(t, os.WriteFile(filepath.Join(base, "thermal_zone0", "temp"), []byte(milli), 0o644))
}

func TestZoneDiscovery(t *testing.T) {
	m, _ := newTestMonitor(t)

	temps := m.CurrentTemperatures()
	require.Len(t, temps, 1)
	assert.InDelta(t, 45.0, temps["cpu-thermal"], 0.001)
}

func TestMissingBasePath(t *testing.T) {
	m := New(Options{
		WarningTemp:  75,
		CriticalTemp: 85,
		CooldownTemp: 70,
		PollInterval: time.Hour,
		BasePath:     filepath.Join(t.TempDir(), "nope"),
	})

	m.sample() // no zones: must not advance the state machine
	assert.Equal(t, domain.ThermalNormal, m.State())
	assert.Nil(t, m.MaxTemperature())
}

func TestHysteresisWalk(t *testing.T) {
	m, base := newTestMonitor(t)

	setTemp(t, base, 60)
	m.sample()
	assert.Equal(t, domain.ThermalNormal, m.State())
	assert.False(t, m.ShouldThrottle())

	setTemp(t, base, 76)
	m.sample()
	assert.Equal(t, domain.ThermalWarning, m.State())
	assert.False(t, m.ShouldThrottle(), "warning must not throttle")

	// warning clears on its own once the temperature drops
	setTemp(t, base, 60)
	m.sample()
	assert.Equal(t, domain.ThermalNormal, m.State())

	setTemp(t, base, 86)
	m.sample()
	assert.Equal(t, domain.ThermalCritical, m.State())
	assert.True(t, m.ShouldThrottle())

	// critical is sticky regardless of cooling
	setTemp(t, base, 50)
	m.sample()
	assert.Equal(t, domain.ThermalCritical, m.State())
	assert.True(t, m.ShouldThrottle())

	m.TriggerCooldown()
	assert.Equal(t, domain.ThermalCooldown, m.State())
	assert.True(t, m.ShouldThrottle(), "cooldown still throttles")

	// cooldown holds until the temperature drops below the cooldown threshold
	setTemp(t, base, 72)
	m.sample()
	assert.Equal(t, domain.ThermalCooldown, m.State())

	setTemp(t, base, 69)
	m.sample()
	assert.Equal(t, domain.ThermalNormal, m.State())
	assert.False(t, m.ShouldThrottle())
}

func TestCallbacksFireOnTransition(t *testing.T) {
	m, base := newTestMonitor(t)

	var got []domain.ThermalState
	m.RegisterCallback(domain.ThermalWarning, func(s domain.ThermalState, temps map[string]float64) {
		got = append(got, s)
		assert.InDelta(t, 76.0, temps["cpu-thermal"], 0.001)
	})

	setTemp(t, base, 76)
	m.sample()
	m.sample() // staying in warning fires nothing

	require.Len(t, got, 1)
	assert.Equal(t, domain.ThermalWarning, got[0])
}

func TestCallbackPanicIsolated(t *testing.T) {
	m, base := newTestMonitor(t)

	var fired bool
	m.RegisterCallback(domain.ThermalCritical, func(domain.ThermalState, map[string]float64) {
		panic("boom")
	})
	m.RegisterCallback(domain.ThermalCritical, func(domain.ThermalState, map[string]float64) {
		fired = true
	})

	setTemp(t, base, 90)
	m.sample()

	assert.True(t, fired, "callbacks after the panicking one must still run")
	assert.Equal(t, domain.ThermalCritical, m.State())
}

func TestReadingPerZone(t *testing.T) {
	m, base := newTestMonitor(t)

	zoneDir := filepath.Join(base, "thermal_zone1")
	require.NoError(t, os.MkdirAll(zoneDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(zoneDir, "type"), []byte("gpu-thermal\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(zoneDir, "temp"), []byte("52000\n"), 0o644))

	// rediscover with both zones present
	m = New(m.opts)

	m.sample()

	readings := m.Readings()
	require.Len(t, readings, 2, "one reading per zone per sample")
	byZone := map[string]float64{}
	for _, r := range readings {
		byZone[r.Zone] = r.Celsius
	}
	assert.InDelta(t, 45.0, byZone["cpu-thermal"], 0.001)
	assert.InDelta(t, 52.0, byZone["gpu-thermal"], 0.001)
}

func TestReadingHistoryBounded(t *testing.T) {
	m, base := newTestMonitor(t)

	setTemp(t, base, 50)
	for i := 0; i < 150; i++ {
		m.sample()
	}

	assert.Len(t, m.Readings(), 100)
}

func TestStartStopIdempotent(t *testing.T) {
	m, _ := newTestMonitor(t)

	m.Start()
	m.Start() // warns, no second goroutine
	assert.True(t, m.Running())

	m.Stop()
	assert.False(t, m.Running())
	m.Stop() // no-op
}

func TestStatusSnapshot(t *testing.T) {
	m, base := newTestMonitor(t)

	setTemp(t, base, 86)
	m.sample()

	status := m.Status()
	assert.Equal(t, domain.ThermalCritical, status.State)
	assert.True(t, status.Throttling)
	require.NotNil(t, status.MaxTemp)
	assert.InDelta(t, 86.0, *status.MaxTemp, 0.001)
	assert.Equal(t, 75.0, status.Thresholds.Warning)
	assert.Equal(t, 85.0, status.Thresholds.Critical)
	assert.Equal(t, 70.0, status.Thresholds.Cooldown)
	assert.False(t, status.Running)
}
