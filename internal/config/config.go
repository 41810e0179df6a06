// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads the HCL configuration that sizes and wires the data
// plane: flow-table capacity and timeouts, the signature rule source, the
// behavioral detector's window/threshold, and the mitigation engine's
// control-plane endpoints.
package config

import (
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"sasecore/internal/errors"
)

// CurrentSchemaVersion is bumped whenever a required field is added or an
// existing field's meaning changes.
const CurrentSchemaVersion = "1.0"

// EngineConfig is the top-level HCL schema for the data-plane engine.
type EngineConfig struct {
	// @default: "1.0"
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	FlowTable  *FlowTableConfig  `hcl:"flow_table,block" json:"flow_table,omitempty"`
	Rules      *RulesConfig      `hcl:"rules,block" json:"rules,omitempty"`
	Detector   *DetectorConfig   `hcl:"detector,block" json:"detector,omitempty"`
	Mitigation *MitigationConfig `hcl:"mitigation,block" json:"mitigation,omitempty"`

	Metrics *MetricsConfig `hcl:"metrics,block" json:"metrics,omitempty"`
	Logging *LoggingConfig `hcl:"logging,block" json:"logging,omitempty"`
}

// FlowTableConfig sizes the lockless flow table (component B).
type FlowTableConfig struct {
	// Number of flow slots; rounded up to the next power of two.
	// @default: 1048576
	Capacity int `hcl:"capacity,optional" json:"capacity,omitempty"`
	// @default: "5m"
	HardTimeout string `hcl:"hard_timeout,optional" json:"hard_timeout,omitempty"`
	// @default: "60s"
	SoftTimeout string `hcl:"soft_timeout,optional" json:"soft_timeout,omitempty"`
	// @default: "1s"
	AgingInterval string `hcl:"aging_interval,optional" json:"aging_interval,omitempty"`
}

// RulesConfig locates the signature source compiled by the signature
// compiler (component C).
type RulesConfig struct {
	// Path to a directory of rule files, or a single rule file.
	SourcePath string `hcl:"source_path,optional" json:"source_path,omitempty"`
	// How often the source path is re-scanned for changes.
	// @default: "30s"
	ReloadInterval string `hcl:"reload_interval,optional" json:"reload_interval,omitempty"`
}

// DetectorConfig tunes the behavioral attack detector (component E).
type DetectorConfig struct {
	// @default: 0.8
	AnomalyThreshold float64 `hcl:"anomaly_threshold,optional" json:"anomaly_threshold,omitempty"`
	// @default: 100
	MinSamples uint64 `hcl:"min_samples,optional" json:"min_samples,omitempty"`
	// @default: "100ms"
	Window string `hcl:"window,optional" json:"window,omitempty"`
	// @default: 0.1
	LearningRate float64 `hcl:"learning_rate,optional" json:"learning_rate,omitempty"`
}

// MitigationConfig points the mitigation engine (component G) at the
// control-plane sockets it installs countermeasures through.
type MitigationConfig struct {
	// @default: "/run/vpp/cli.sock"
	VPPSocket string `hcl:"vpp_socket,optional" json:"vpp_socket,omitempty"`
	// @default: "/run/bird/bird.ctl"
	BIRDSocket string `hcl:"bird_socket,optional" json:"bird_socket,omitempty"`
	// @default: true
	AutoRTBH *bool `hcl:"auto_rtbh,optional" json:"auto_rtbh,omitempty"`
	// @default: true
	AutoFlowspec *bool `hcl:"auto_flowspec,optional" json:"auto_flowspec,omitempty"`
	// @default: 10000
	MaxACLRules int `hcl:"max_acl_rules,optional" json:"max_acl_rules,omitempty"`
	// ServerSecret keys the SYN-cookie hash shared between the local fast
	// path and whatever VPP is told to validate. Never logged.
	ServerSecret SecureString `hcl:"server_secret,optional" json:"server_secret,omitempty"`
}

// MetricsConfig configures the Prometheus exposition endpoint. Exposition
// itself sits outside this engine's scope; this block only controls
// whether the in-process collector runs.
type MetricsConfig struct {
	// @default: true
	Enabled bool `hcl:"enabled,optional" json:"enabled,omitempty"`
	// @default: "1s"
	Interval string `hcl:"interval,optional" json:"interval,omitempty"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// @enum: debug, info, warn, error
	// @default: "info"
	Level string `hcl:"level,optional" json:"level,omitempty"`
	// @enum: text, json
	// @default: "text"
	Format string `hcl:"format,optional" json:"format,omitempty"`
}

// Load reads and decodes an HCL engine configuration file, applies
// defaults for unset fields, and validates the result.
func Load(path string) (*EngineConfig, error) {
	var cfg EngineConfig
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "failed to decode engine config")
	}
	cfg.applyDefaults()

	if errs := cfg.Validate(); errs.HasErrors() {
		return nil, errors.Errorf(errors.KindValidation, "invalid config: %s", errs.Error())
	}
	return &cfg, nil
}

// Default returns an EngineConfig populated with every component default,
// the configuration an engine runs with absent an HCL file.
func Default() *EngineConfig {
	cfg := &EngineConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *EngineConfig) applyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentSchemaVersion
	}

	if c.FlowTable == nil {
		c.FlowTable = &FlowTableConfig{}
	}
	if c.FlowTable.Capacity == 0 {
		c.FlowTable.Capacity = 1 << 20
	}
	if c.FlowTable.HardTimeout == "" {
		c.FlowTable.HardTimeout = "5m"
	}
	if c.FlowTable.SoftTimeout == "" {
		c.FlowTable.SoftTimeout = "60s"
	}
	if c.FlowTable.AgingInterval == "" {
		c.FlowTable.AgingInterval = "1s"
	}

	if c.Rules == nil {
		c.Rules = &RulesConfig{}
	}
	if c.Rules.ReloadInterval == "" {
		c.Rules.ReloadInterval = "30s"
	}

	if c.Detector == nil {
		c.Detector = &DetectorConfig{}
	}
	if c.Detector.AnomalyThreshold == 0 {
		c.Detector.AnomalyThreshold = 0.8
	}
	if c.Detector.MinSamples == 0 {
		c.Detector.MinSamples = 100
	}
	if c.Detector.Window == "" {
		c.Detector.Window = "100ms"
	}
	if c.Detector.LearningRate == 0 {
		c.Detector.LearningRate = 0.1
	}

	if c.Mitigation == nil {
		c.Mitigation = &MitigationConfig{}
	}
	if c.Mitigation.VPPSocket == "" {
		c.Mitigation.VPPSocket = "/run/vpp/cli.sock"
	}
	if c.Mitigation.BIRDSocket == "" {
		c.Mitigation.BIRDSocket = "/run/bird/bird.ctl"
	}
	if c.Mitigation.MaxACLRules == 0 {
		c.Mitigation.MaxACLRules = 10000
	}
	if c.Mitigation.AutoRTBH == nil {
		c.Mitigation.AutoRTBH = boolPtr(true)
	}
	if c.Mitigation.AutoFlowspec == nil {
		c.Mitigation.AutoFlowspec = boolPtr(true)
	}

	if c.Metrics == nil {
		c.Metrics = &MetricsConfig{Enabled: true, Interval: "1s"}
	}
	if c.Logging == nil {
		c.Logging = &LoggingConfig{Level: "info", Format: "text"}
	}
}

func boolPtr(b bool) *bool { return &b }

// parseDurations parses the flow table's duration strings, returning an
// error naming whichever field failed to parse.
func (c *FlowTableConfig) parseDurations() (hard, soft, aging time.Duration, err error) {
	hard, err = time.ParseDuration(c.HardTimeout)
	if err != nil {
		return 0, 0, 0, errors.Wrapf(err, errors.KindValidation, "flow_table.hard_timeout")
	}
	soft, err = time.ParseDuration(c.SoftTimeout)
	if err != nil {
		return 0, 0, 0, errors.Wrapf(err, errors.KindValidation, "flow_table.soft_timeout")
	}
	aging, err = time.ParseDuration(c.AgingInterval)
	if err != nil {
		return 0, 0, 0, errors.Wrapf(err, errors.KindValidation, "flow_table.aging_interval")
	}
	return hard, soft, aging, nil
}
