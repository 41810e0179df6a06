// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"crypto/sha256"
	"time"

	"sasecore/internal/behavior"
	"sasecore/internal/engine"
	"sasecore/internal/flowtable"
	"sasecore/internal/logging"
	"sasecore/internal/mitigation"
)

// ToEngineConfig assembles the pipeline's own Config from the parsed
// engine configuration's flow-table, detector, and mitigation sections.
func (c *EngineConfig) ToEngineConfig() engine.Config {
	return engine.Config{
		FlowTable:  c.ToFlowTableConfig(),
		Detector:   c.ToDetectorConfig(),
		Mitigation: c.ToMitigationConfig(),
	}
}

// ToFlowTableConfig converts the parsed duration strings into the flow
// table's native Config. Called only after Validate has confirmed every
// duration parses, so parse errors here are unreachable.
func (c *EngineConfig) ToFlowTableConfig() flowtable.Config {
	hard, soft, aging, _ := c.FlowTable.parseDurations()
	return flowtable.Config{
		Capacity:      c.FlowTable.Capacity,
		HardTimeout:   hard,
		SoftTimeout:   soft,
		AgingInterval: aging,
	}
}

// ToDetectorConfig converts to the behavioral detector's native Config.
func (c *EngineConfig) ToDetectorConfig() behavior.Config {
	window, _ := time.ParseDuration(c.Detector.Window)
	return behavior.Config{
		AnomalyThreshold: c.Detector.AnomalyThreshold,
		MinSamples:       c.Detector.MinSamples,
		Window:           window,
		LearningRate:     c.Detector.LearningRate,
	}
}

// ToMitigationConfig converts to the mitigation engine's native Config.
// The HCL server secret is an arbitrary-length string; it is reduced to a
// 16-byte key via SHA-256 so operators can configure a passphrase rather
// than a precomputed hex key.
func (c *EngineConfig) ToMitigationConfig() mitigation.Config {
	return mitigation.Config{
		VPPSocket:    c.Mitigation.VPPSocket,
		BIRDSocket:   c.Mitigation.BIRDSocket,
		AutoRTBH:     c.Mitigation.AutoRTBH == nil || *c.Mitigation.AutoRTBH,
		AutoFlowspec: c.Mitigation.AutoFlowspec == nil || *c.Mitigation.AutoFlowspec,
		MaxACLRules:  c.Mitigation.MaxACLRules,
		ServerSecret: secretKey(c.Mitigation.ServerSecret),
	}
}

// ToLoggingConfig converts to the structured logger's native Config.
// "info" has no case of its own: it, like any unrecognized name, falls
// through to the default case and maps to LevelInfo.
func (c *EngineConfig) ToLoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Format = c.Logging.Format
	switch c.Logging.Level {
	case "debug":
		cfg.Level = logging.LevelDebug
	case "warn":
		cfg.Level = logging.LevelWarn
	case "error":
		cfg.Level = logging.LevelError
	default:
		cfg.Level = logging.LevelInfo
	}
	return cfg
}

// secretKey derives a fixed 16-byte key from an operator-supplied secret.
// An empty secret yields a zero key, matching mitigation.Config's
// zero-value default for a deployment that hasn't set one yet.
func secretKey(secret SecureString) [16]byte {
	var key [16]byte
	if secret == "" {
		return key
	}
	sum := sha256.Sum256([]byte(secret))
	copy(key[:], sum[:16])
	return key
}
