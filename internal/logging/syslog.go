// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"fmt"
	"log/slog"
	"log/syslog"
	"sync"

	"sasecore/internal/errors"
)

// SyslogConfig configures the optional syslog forwarder.
type SyslogConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Protocol string
	Tag      string
	Facility int
}

// DefaultSyslogConfig returns the forwarder disabled with flywall's
// historical defaults (UDP/514, tag "flywall", facility user=1).
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Enabled:  false,
		Port:     514,
		Protocol: "udp",
		Tag:      "flywall",
		Facility: 1,
	}
}

// SyslogWriter forwards log records to a remote syslog collector.
type SyslogWriter struct {
	mu     sync.Mutex
	writer *syslog.Writer
	cfg    SyslogConfig
}

// NewSyslogWriter dials the configured syslog destination, applying
// defaults for any zero-valued field. Returns an error if Host is empty.
func NewSyslogWriter(cfg SyslogConfig) (*SyslogWriter, error) {
	if cfg.Host == "" {
		return nil, errors.New(errors.KindValidation, "syslog host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 514
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "udp"
	}
	if cfg.Tag == "" {
		cfg.Tag = "flywall"
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	w, err := syslog.Dial(cfg.Protocol, addr, syslog.Priority(cfg.Facility)<<3|syslog.LOG_INFO, cfg.Tag)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "dial syslog collector")
	}

	return &SyslogWriter{writer: w, cfg: cfg}, nil
}

// Forward sends one log line to the syslog collector at the appropriate
// severity. Write errors are discarded here, so a failed delivery never
// surfaces to the logging caller.
func (s *SyslogWriter) Forward(level slog.Level, msg string, kv ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := fmt.Sprintf("%s %v", msg, kv)
	switch {
	case level >= slog.LevelError:
		_ = s.writer.Err(line)
	case level >= slog.LevelWarn:
		_ = s.writer.Warning(line)
	case level >= slog.LevelInfo:
		_ = s.writer.Info(line)
	default:
		_ = s.writer.Debug(line)
	}
}

// Close releases the underlying syslog connection.
func (s *SyslogWriter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Close()
}
