// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps the developer's own whorl.yaml and environment out of a test.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("WHORL_CONFIG", "")
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whorl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 57600, cfg.Serial.Baud)
	assert.Equal(t, uint32(0xFFFFFFFF), cfg.Device.Address)
	assert.Equal(t, uint32(0), cfg.Device.Password)
	assert.Equal(t, 2*time.Second, cfg.Device.Timeout)
	assert.Equal(t, 0, cfg.Device.PacketSize)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, 5.0, cfg.Capture.PollRate)
	assert.Equal(t, 15*time.Second, cfg.Capture.Timeout)
}

func TestLoad_FromFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
serial:
  port: /dev/ttyUSB1
  baud: 115200
device:
  address: 0x12345678
  password: 42
  timeout: 750ms
  packetSize: 256
logging:
  level: debug
  format: json
capture:
  pollRate: 2.5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.Equal(t, uint32(0x12345678), cfg.Device.Address)
	assert.Equal(t, uint32(42), cfg.Device.Password)
	assert.Equal(t, 750*time.Millisecond, cfg.Device.Timeout)
	assert.Equal(t, 256, cfg.Device.PacketSize)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 2.5, cfg.Capture.PollRate)
}

func TestLoad_SearchPath(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile("whorl.yaml", []byte("serial:\n  port: /dev/ttyAMA0\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyAMA0", cfg.Serial.Port)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "serial:\n  port: /dev/ttyUSB0\n")
	t.Setenv("WHORL_SERIAL_PORT", "/dev/ttyS9")
	t.Setenv("WHORL_DEVICE_TIMEOUT", "500ms")
	t.Setenv("WHORL_BRIDGE_URL", "ws://bridge.local/serial")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyS9", cfg.Serial.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Device.Timeout)
	assert.Equal(t, "ws://bridge.local/serial", cfg.Bridge.URL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"odd baud", "serial:\n  baud: 12345\n"},
		{"bad packet size", "device:\n  packetSize: 100\n"},
		{"zero timeout", "device:\n  timeout: 0s\n"},
		{"malformed yaml", "serial: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
