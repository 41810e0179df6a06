// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError names the offending field and what is wrong with it.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every ValidationError found by a single
// Validate pass, rather than failing at the first one.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// HasErrors reports whether any validation errors were found.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate checks every field against the ranges the data plane actually
// accepts. Call after applyDefaults so zero-valued optional fields have
// already been filled in.
func (c *EngineConfig) Validate() ValidationErrors {
	var errs ValidationErrors

	errs = append(errs, c.validateFlowTable()...)
	errs = append(errs, c.validateRules()...)
	errs = append(errs, c.validateDetector()...)
	errs = append(errs, c.validateMitigation()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *EngineConfig) validateFlowTable() ValidationErrors {
	var errs ValidationErrors
	ft := c.FlowTable

	if ft.Capacity <= 0 {
		errs = append(errs, ValidationError{"flow_table.capacity", "must be positive"})
	}

	hard, soft, aging, err := ft.parseDurations()
	if err != nil {
		errs = append(errs, ValidationError{"flow_table", err.Error()})
		return errs
	}
	if hard <= 0 {
		errs = append(errs, ValidationError{"flow_table.hard_timeout", "must be positive"})
	}
	if soft <= 0 {
		errs = append(errs, ValidationError{"flow_table.soft_timeout", "must be positive"})
	}
	if soft > hard {
		errs = append(errs, ValidationError{"flow_table.soft_timeout", "must not exceed hard_timeout"})
	}
	if aging <= 0 {
		errs = append(errs, ValidationError{"flow_table.aging_interval", "must be positive"})
	}

	return errs
}

func (c *EngineConfig) validateRules() ValidationErrors {
	var errs ValidationErrors

	if _, err := time.ParseDuration(c.Rules.ReloadInterval); err != nil {
		errs = append(errs, ValidationError{"rules.reload_interval", err.Error()})
	}

	return errs
}

func (c *EngineConfig) validateDetector() ValidationErrors {
	var errs ValidationErrors
	d := c.Detector

	if d.AnomalyThreshold <= 0 || d.AnomalyThreshold > 1 {
		errs = append(errs, ValidationError{"detector.anomaly_threshold", "must be in (0, 1]"})
	}
	if d.MinSamples == 0 {
		errs = append(errs, ValidationError{"detector.min_samples", "must be positive"})
	}
	if _, err := time.ParseDuration(d.Window); err != nil {
		errs = append(errs, ValidationError{"detector.window", err.Error()})
	}
	if d.LearningRate <= 0 || d.LearningRate > 1 {
		errs = append(errs, ValidationError{"detector.learning_rate", "must be in (0, 1]"})
	}

	return errs
}

func (c *EngineConfig) validateMitigation() ValidationErrors {
	var errs ValidationErrors
	m := c.Mitigation

	if m.VPPSocket == "" {
		errs = append(errs, ValidationError{"mitigation.vpp_socket", "must not be empty"})
	}
	if m.BIRDSocket == "" {
		errs = append(errs, ValidationError{"mitigation.bird_socket", "must not be empty"})
	}
	if m.MaxACLRules <= 0 {
		errs = append(errs, ValidationError{"mitigation.max_acl_rules", "must be positive"})
	}

	return errs
}

func (c *EngineConfig) validateLogging() ValidationErrors {
	var errs ValidationErrors

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{"logging.level", "must be one of debug, info, warn, error"})
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{"logging.format", "must be one of text, json"})
	}

	return errs
}
