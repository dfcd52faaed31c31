package proxy

import (
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidRule is returned when a textual rule (from a CLI flag or a config
// file entry) fails to parse: a missing required key, an unknown protocol, or
// a malformed key=value segment.
type ErrInvalidRule struct {
	Raw    string
	Reason string
}

func (e *ErrInvalidRule) Error() string {
	return fmt.Sprintf("invalid rule %q: %s", e.Raw, e.Reason)
}

// ParseRule parses a rule string of the form:
//
//	protocol=http|https,host=example.com[,path=/api/*][,port=443],
//	target_host=127.0.0.1[,target_port=8080][,target_protocol=http|https]
//	[,path_transform=preserve|prepend|replace][,target_path=/new]
//
// and returns the corresponding match predicate and target.
func ParseRule(raw string) (AddressPattern, Address, error) {
	fields, err := splitRuleFields(raw)
	if err != nil {
		return AddressPattern{}, Address{}, err
	}

	protocolStr, ok := fields["protocol"]
	if !ok {
		return AddressPattern{}, Address{}, &ErrInvalidRule{Raw: raw, Reason: "missing required key: protocol"}
	}
	if protocolStr != "http" && protocolStr != "https" {
		return AddressPattern{}, Address{}, &ErrInvalidRule{Raw: raw, Reason: "protocol must be http or https"}
	}
	protocol, _ := ParseProtocol(protocolStr)

	host, ok := fields["host"]
	if !ok {
		return AddressPattern{}, Address{}, &ErrInvalidRule{Raw: raw, Reason: "missing required key: host"}
	}

	targetHost, ok := fields["target_host"]
	if !ok {
		return AddressPattern{}, Address{}, &ErrInvalidRule{Raw: raw, Reason: "missing required key: target_host"}
	}

	var port *int
	if v, ok := fields["port"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return AddressPattern{}, Address{}, &ErrInvalidRule{Raw: raw, Reason: fmt.Sprintf("invalid port %q", v)}
		}
		port = &n
	}

	pattern, err := NewAddressPattern(protocol, host, port, fields["path"])
	if err != nil {
		return AddressPattern{}, Address{}, &ErrInvalidRule{Raw: raw, Reason: err.Error()}
	}

	targetProtocol := protocol
	if v, ok := fields["target_protocol"]; ok {
		targetProtocol, err = ParseProtocol(v)
		if err != nil {
			return AddressPattern{}, Address{}, &ErrInvalidRule{Raw: raw, Reason: err.Error()}
		}
	}

	var targetPort *int
	if v, ok := fields["target_port"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return AddressPattern{}, Address{}, &ErrInvalidRule{Raw: raw, Reason: fmt.Sprintf("invalid target_port %q", v)}
		}
		targetPort = &n
	}

	pathTransform := PathPreserve
	if v, ok := fields["path_transform"]; ok {
		pathTransform, err = ParsePathTransformMode(v)
		if err != nil {
			return AddressPattern{}, Address{}, &ErrInvalidRule{Raw: raw, Reason: err.Error()}
		}
	}

	var targetPath *string
	if v, ok := fields["target_path"]; ok {
		targetPath = &v
	}

	target := Address{
		Protocol:          targetProtocol,
		Host:              targetHost,
		Port:              targetPort,
		Path:              targetPath,
		PathTransformMode: pathTransform,
	}

	return pattern, target, nil
}

func splitRuleFields(raw string) (map[string]string, error) {
	fields := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, &ErrInvalidRule{Raw: raw, Reason: fmt.Sprintf("invalid segment: %s", part)}
		}
		fields[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return fields, nil
}
