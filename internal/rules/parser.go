// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package rules parses Suricata/Snort-style signatures and compiles them
// into a pattern database the matcher can scan against, published via an
// RCU-style atomic swap so reloads never block in-flight scans.
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"sasecore/internal/errors"
)

// Action is the rule's disposition when one of its patterns matches.
type Action uint8

const (
	ActionAlert Action = iota
	ActionDrop
	ActionReject
	ActionPass
	ActionLog
)

func actionFromString(s string) (Action, bool) {
	switch strings.ToLower(s) {
	case "alert":
		return ActionAlert, true
	case "drop":
		return ActionDrop, true
	case "reject":
		return ActionReject, true
	case "pass":
		return ActionPass, true
	case "log":
		return ActionLog, true
	default:
		return 0, false
	}
}

// Protocol is the rule header's protocol selector.
type Protocol uint8

const (
	ProtoAny Protocol = iota
	ProtoTCP
	ProtoUDP
	ProtoICMP
	ProtoIP
	ProtoHTTP
	ProtoTLS
	ProtoDNS
	ProtoSMTP
	ProtoFTP
	ProtoSSH
)

func protocolFromString(s string) Protocol {
	switch strings.ToLower(s) {
	case "tcp":
		return ProtoTCP
	case "udp":
		return ProtoUDP
	case "icmp":
		return ProtoICMP
	case "ip":
		return ProtoIP
	case "http":
		return ProtoHTTP
	case "tls", "ssl":
		return ProtoTLS
	case "dns":
		return ProtoDNS
	case "smtp":
		return ProtoSMTP
	case "ftp":
		return ProtoFTP
	case "ssh":
		return ProtoSSH
	default:
		return ProtoAny
	}
}

// ContentOptions are the sticky-buffer modifiers that apply to the most
// recently seen content pattern.
type ContentOptions struct {
	Nocase      bool
	Depth       int
	Offset      int
	Distance    int
	Within      int
	FastPattern bool
	Negated     bool
}

// ContentPattern is one `content:"..."` match buffer, optionally hex-encoded.
type ContentPattern struct {
	Pattern string
	IsHex   bool
	Options ContentOptions
}

// PcrePattern is one `pcre:"/.../modifiers"` match buffer.
type PcrePattern struct {
	Pattern   string
	Modifiers string
	Negated   bool
}

// HTTPOptions records which HTTP selector modifiers a rule specified; the
// matcher uses these to decide which parsed HTTP field to scan instead of
// the raw payload.
type HTTPOptions struct {
	Method       bool
	URI          bool
	RawURI       bool
	Header       bool
	RawHeader    bool
	Cookie       bool
	UserAgent    bool
	Host         bool
	RequestBody  bool
	ResponseBody bool
	StatCode     bool
	StatMsg      bool
}

// Metadata is the rule's descriptive and bookkeeping fields.
type Metadata struct {
	Msg        string
	SID        uint32
	Rev        uint32
	Classtype  string
	Priority   uint32
	Severity   uint8
	Category   string
	References []string
	Extra      map[string]string
}

// Rule is one parsed Suricata-grammar signature.
type Rule struct {
	Action   Action
	Protocol Protocol
	SrcAddr  string
	SrcPort  string
	Direction string
	DstAddr  string
	DstPort  string

	ContentPatterns []ContentPattern
	PcrePatterns    []PcrePattern
	HTTP            HTTPOptions
	Meta            Metadata
	Flow            string
	Raw             string
}

// ParseResult holds every rule that parsed successfully plus a per-line
// record of anything that didn't, so a bad rule never blocks the good ones.
type ParseResult struct {
	Rules  []Rule
	Errors []LineError
}

// LineError names the source line of a rule that failed to parse.
type LineError struct {
	Line int
	Err  error
}

// ParseContent parses newline-delimited rules, honoring `#` comments, blank
// lines, and trailing-backslash line continuation.
func ParseContent(content string) ParseResult {
	var result ParseResult
	var buffer strings.Builder
	lineNum := 0
	startLine := 0

	flush := func(text string) {
		rule, err := ParseSingleRule(text)
		if err != nil {
			result.Errors = append(result.Errors, LineError{Line: startLine, Err: err})
			return
		}
		result.Rules = append(result.Rules, rule)
	}

	for _, line := range strings.Split(content, "\n") {
		lineNum++
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if strings.HasSuffix(trimmed, "\\") {
			if buffer.Len() == 0 {
				startLine = lineNum
			}
			buffer.WriteString(strings.TrimSuffix(trimmed, "\\"))
			continue
		}

		if buffer.Len() == 0 {
			startLine = lineNum
			flush(trimmed)
		} else {
			buffer.WriteString(trimmed)
			full := buffer.String()
			buffer.Reset()
			flush(full)
		}
	}

	return result
}

// ParseSingleRule parses one complete rule line:
// `<action> <proto> <src> <sport> <dir> <dst> <dport> ( <opts> )`.
func ParseSingleRule(line string) (Rule, error) {
	rule := Rule{Raw: line}

	optionsStart := strings.Index(line, "(")
	if optionsStart < 0 {
		return Rule{}, errors.New(errors.KindParse, "missing options section")
	}
	optionsEnd := strings.LastIndex(line, ")")
	if optionsEnd < 0 {
		return Rule{}, errors.New(errors.KindParse, "missing closing parenthesis")
	}

	header := strings.TrimSpace(line[:optionsStart])
	parts := strings.Fields(header)
	if len(parts) < 7 {
		return Rule{}, errors.Errorf(errors.KindParse, "invalid header, expected 7 parts, got %d: %s", len(parts), header)
	}

	action, ok := actionFromString(parts[0])
	if !ok {
		return Rule{}, errors.Errorf(errors.KindParse, "unknown action: %s", parts[0])
	}

	rule.Action = action
	rule.Protocol = protocolFromString(parts[1])
	rule.SrcAddr = parts[2]
	rule.SrcPort = parts[3]
	rule.Direction = parts[4]
	rule.DstAddr = parts[5]
	rule.DstPort = parts[6]
	rule.Meta.Extra = map[string]string{}

	if err := parseOptions(&rule, line[optionsStart+1:optionsEnd]); err != nil {
		return Rule{}, err
	}

	return rule, nil
}

func parseOptions(rule *Rule, options string) error {
	var current *ContentPattern

	for _, opt := range splitOptions(options) {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}

		var key, value string
		var hasValue bool
		if idx := strings.Index(opt, ":"); idx >= 0 {
			key = strings.TrimSpace(opt[:idx])
			value = strings.Trim(strings.TrimSpace(opt[idx+1:]), `"`)
			hasValue = true
		} else {
			key = opt
		}

		switch key {
		case "msg":
			if hasValue {
				rule.Meta.Msg = value
			}
		case "sid":
			if hasValue {
				if n, err := strconv.ParseUint(value, 10, 32); err == nil {
					rule.Meta.SID = uint32(n)
				}
			}
		case "rev":
			if hasValue {
				if n, err := strconv.ParseUint(value, 10, 32); err == nil {
					rule.Meta.Rev = uint32(n)
				}
			}
		case "classtype":
			if hasValue {
				rule.Meta.Classtype = value
			}
		case "priority":
			if hasValue {
				if n, err := strconv.ParseUint(value, 10, 32); err == nil {
					rule.Meta.Priority = uint32(n)
				}
			}
		case "reference":
			if hasValue {
				rule.Meta.References = append(rule.Meta.References, value)
			}
		case "content":
			if current != nil {
				rule.ContentPatterns = append(rule.ContentPatterns, *current)
			}
			if hasValue {
				pattern, isHex, negated := parseContentValue(value)
				current = &ContentPattern{
					Pattern: pattern,
					IsHex:   isHex,
					Options: ContentOptions{Negated: negated},
				}
			} else {
				current = nil
			}
		case "nocase":
			if current != nil {
				current.Options.Nocase = true
			}
		case "depth":
			if current != nil && hasValue {
				if n, err := strconv.Atoi(value); err == nil {
					current.Options.Depth = n
				}
			}
		case "offset":
			if current != nil && hasValue {
				if n, err := strconv.Atoi(value); err == nil {
					current.Options.Offset = n
				}
			}
		case "distance":
			if current != nil && hasValue {
				if n, err := strconv.Atoi(value); err == nil {
					current.Options.Distance = n
				}
			}
		case "within":
			if current != nil && hasValue {
				if n, err := strconv.Atoi(value); err == nil {
					current.Options.Within = n
				}
			}
		case "fast_pattern":
			if current != nil {
				current.Options.FastPattern = true
			}
		case "pcre":
			if hasValue {
				if p, ok := parsePcre(value); ok {
					rule.PcrePatterns = append(rule.PcrePatterns, p)
				}
			}
		case "flow":
			if hasValue {
				rule.Flow = value
			}
		case "http_method":
			rule.HTTP.Method = true
		case "http_uri":
			rule.HTTP.URI = true
		case "http_raw_uri":
			rule.HTTP.RawURI = true
		case "http_header":
			rule.HTTP.Header = true
		case "http_raw_header":
			rule.HTTP.RawHeader = true
		case "http_cookie":
			rule.HTTP.Cookie = true
		case "http_user_agent":
			rule.HTTP.UserAgent = true
		case "http_host":
			rule.HTTP.Host = true
		case "http_request_body", "http_client_body":
			rule.HTTP.RequestBody = true
		case "http_response_body", "http_server_body", "file_data":
			rule.HTTP.ResponseBody = true
		case "http_stat_code":
			rule.HTTP.StatCode = true
		case "http_stat_msg":
			rule.HTTP.StatMsg = true
		default:
			if hasValue {
				rule.Meta.Extra[key] = value
			}
		}
	}

	if current != nil {
		rule.ContentPatterns = append(rule.ContentPatterns, *current)
	}

	return nil
}

// splitOptions splits a semicolon-delimited option list, treating
// backslash-escaped characters and quoted spans as opaque to the splitter.
func splitOptions(options string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	escapeNext := false

	for _, ch := range options {
		if escapeNext {
			current.WriteRune(ch)
			escapeNext = false
			continue
		}
		switch ch {
		case '\\':
			escapeNext = true
			current.WriteRune(ch)
		case '"':
			inQuotes = !inQuotes
			current.WriteRune(ch)
		case ';':
			if !inQuotes {
				if s := strings.TrimSpace(current.String()); s != "" {
					parts = append(parts, s)
				}
				current.Reset()
				continue
			}
			current.WriteRune(ch)
		default:
			current.WriteRune(ch)
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		parts = append(parts, s)
	}
	return parts
}

// parseContentValue strips negation/quoting and, for hex-literal content
// (`|xx xx|`), lowers it straight to an escaped-byte regex fragment.
func parseContentValue(value string) (pattern string, isHex bool, negated bool) {
	s := value
	if strings.HasPrefix(s, "!") {
		negated = true
		s = s[1:]
	}
	s = strings.Trim(s, `"`)

	if strings.HasPrefix(s, "|") && strings.HasSuffix(s, "|") && len(s) >= 2 {
		hex := s[1 : len(s)-1]
		return hexToPattern(hex), true, negated
	}

	return unescapeContent(s), false, negated
}

func hexToPattern(hex string) string {
	var b strings.Builder
	for _, tok := range strings.Fields(hex) {
		n, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "\\x%02x", n)
	}
	return b.String()
}

func unescapeContent(s string) string {
	r := strings.NewReplacer(`\;`, ";", `\:`, ":", `\"`, `"`, `\\`, `\`)
	return r.Replace(s)
}

// parsePcre parses a `/pattern/modifiers` PCRE buffer, splitting on the
// *last* slash so patterns containing unescaped `/` still parse correctly.
func parsePcre(value string) (PcrePattern, bool) {
	s := strings.Trim(value, `"`)

	negated := false
	if strings.HasPrefix(s, "!") {
		negated = true
		s = s[1:]
	}

	if !strings.HasPrefix(s, "/") {
		return PcrePattern{}, false
	}

	lastSlash := strings.LastIndex(s, "/")
	if lastSlash <= 0 {
		return PcrePattern{}, false
	}

	return PcrePattern{
		Pattern:   s[1:lastSlash],
		Modifiers: s[lastSlash+1:],
		Negated:   negated,
	}, true
}
