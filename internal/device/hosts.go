// SPDX-License-Identifier: MIT

package device

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// NormalizeHost validates and normalizes a device host for comparison.
// IPs are canonicalized, names go through IDNA lookup mapping.
func NormalizeHost(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if strings.Contains(host, "://") {
		return "", fmt.Errorf("host must not include scheme: %s", raw)
	}
	if strings.Contains(host, "/") {
		return "", fmt.Errorf("host must not include path: %s", raw)
	}
	if strings.Contains(host, "@") {
		return "", fmt.Errorf("host must not include userinfo: %s", raw)
	}
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	}
	if strings.Contains(host, ":") && net.ParseIP(host) == nil {
		return "", fmt.Errorf("host must not include port: %s", raw)
	}
	if strings.Contains(host, "%") {
		return "", fmt.Errorf("host must not include zone: %s", raw)
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if ip := net.ParseIP(host); ip != nil {
		return strings.ToLower(ip.String()), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", raw, err)
	}
	return strings.ToLower(ascii), nil
}

// HostPolicy restricts which device endpoints the client may dial.
// An empty allowlist permits any host.
type HostPolicy struct {
	allowed map[string]struct{}
}

// NewHostPolicy normalizes the allowlist entries up front so a bad entry
// fails configuration, not the first dial.
func NewHostPolicy(hosts []string) (*HostPolicy, error) {
	p := &HostPolicy{}
	if len(hosts) == 0 {
		return p, nil
	}
	p.allowed = make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		normalized, err := NormalizeHost(h)
		if err != nil {
			return nil, fmt.Errorf("device: allowlist entry: %w", err)
		}
		p.allowed[normalized] = struct{}{}
	}
	return p, nil
}

// Check validates a host:port device address against the policy and returns
// the address with its host normalized.
func (p *HostPolicy) Check(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("device: address %q: %w", addr, err)
	}
	normalized, err := NormalizeHost(host)
	if err != nil {
		return "", fmt.Errorf("device: address %q: %w", addr, err)
	}
	if p.allowed != nil {
		if _, ok := p.allowed[normalized]; !ok {
			return "", fmt.Errorf("%w: %s", ErrHostNotAllowed, normalized)
		}
	}
	return net.JoinHostPort(normalized, port), nil
}
