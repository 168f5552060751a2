package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	conf, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, "SIM001", conf.ChargePoint.Id)
	assert.Equal(t, 1, conf.ChargePoint.ConnectorId)
	assert.Equal(t, "ocpp1.6", conf.CentralSystem.SubProtocol)
	assert.Equal(t, 60*time.Second, conf.Timing.HeartbeatInterval)
	assert.Equal(t, 2*time.Second, conf.Timing.SettleDelay)
	assert.Equal(t, 6*time.Second, conf.Timing.CorrelationTimeout)
	assert.Equal(t, 5*time.Second, conf.Simulation.MeterInterval)
	assert.Equal(t, 12.0, conf.Simulation.AccelerationFactor)
	assert.Equal(t, 20.0, conf.Simulation.InitialSoc)
	assert.Equal(t, "SIM-SIM001", conf.SerialNumber())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := `
charge_point:
  id: CP42
  serial_number: SN-1
central_system:
  url: ws://cs.example:9000/ocpp
timing:
  heartbeat_interval: 30s
simulation:
  acceleration_factor: 60
  battery_capacity_wh: 75000
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	conf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "CP42", conf.ChargePoint.Id)
	assert.Equal(t, "SN-1", conf.SerialNumber())
	assert.Equal(t, "ws://cs.example:9000/ocpp", conf.CentralSystem.Url)
	assert.Equal(t, 30*time.Second, conf.Timing.HeartbeatInterval)
	assert.Equal(t, 60.0, conf.Simulation.AccelerationFactor)
	assert.Equal(t, 75000.0, conf.Simulation.BatteryCapacityWh)
	assert.Equal(t, 230.0, conf.Simulation.Voltage)
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("simulation:\n  initial_soc: 120\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_PendingCallTTL(t *testing.T) {
	tests := map[string]string{
		"below correlation timeout": "timing:\n  pending_call_ttl: 3s\n",
		"below boot timeout":        "timing:\n  pending_call_ttl: 8s\n",
		"equal to boot timeout":     "timing:\n  pending_call_ttl: 10s\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yml")
			require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
			_, err := Load(path)
			assert.ErrorContains(t, err, "pending call ttl")
		})
	}

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("timing:\n  pending_call_ttl: 11s\n"), 0o600))
	conf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 11*time.Second, conf.Timing.PendingCallTTL)
}
