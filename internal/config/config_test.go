// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sasecore/internal/logging"
)

func TestDefaultPassesValidation(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	require.False(t, errs.HasErrors(), errs.Error())

	require.Equal(t, 1<<20, cfg.FlowTable.Capacity)
	require.True(t, *cfg.Mitigation.AutoRTBH)
	require.True(t, *cfg.Mitigation.AutoFlowspec)
	require.Equal(t, "/run/vpp/cli.sock", cfg.Mitigation.VPPSocket)
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.hcl")
	hcl := `
flow_table {
  capacity = 4096
}

mitigation {
  auto_rtbh = false
  server_secret = "correct-horse-battery-staple"
}
`
	require.NoError(t, os.WriteFile(path, []byte(hcl), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4096, cfg.FlowTable.Capacity)
	require.Equal(t, "60s", cfg.FlowTable.SoftTimeout)
	require.False(t, *cfg.Mitigation.AutoRTBH)
	require.True(t, *cfg.Mitigation.AutoFlowspec)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.hcl")
	hcl := `
detector {
  anomaly_threshold = 5.0
}
`
	require.NoError(t, os.WriteFile(path, []byte(hcl), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestSecureStringMasksValue(t *testing.T) {
	s := SecureString("top-secret")
	require.Equal(t, "(hidden)", s.String())

	data, err := s.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `"(hidden)"`, string(data))
}

func TestSecretKeyDerivesSixteenBytesDeterministically(t *testing.T) {
	a := secretKey(SecureString("passphrase"))
	b := secretKey(SecureString("passphrase"))
	c := secretKey(SecureString("different"))

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)

	var zero [16]byte
	require.Equal(t, zero, secretKey(SecureString("")))
}

func TestToLoggingConfigMapsLevel(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "debug"
	require.Equal(t, logging.LevelDebug, cfg.ToLoggingConfig().Level)

	cfg.Logging.Level = "bogus"
	require.Equal(t, logging.LevelInfo, cfg.ToLoggingConfig().Level)
}

func TestToEngineConfigConvertsDurations(t *testing.T) {
	cfg := Default()
	engineCfg := cfg.ToEngineConfig()

	require.Equal(t, cfg.FlowTable.Capacity, engineCfg.FlowTable.Capacity)
	require.Equal(t, cfg.Detector.AnomalyThreshold, engineCfg.Detector.AnomalyThreshold)
	require.Equal(t, cfg.Mitigation.VPPSocket, engineCfg.Mitigation.VPPSocket)
}
