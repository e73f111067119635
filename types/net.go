package types

import (
	"fmt"
	"net/netip"
)

// Scope classifies an address the way the port mapper reports it: peers
// on link-local addresses need a zone to be reachable and private peers
// are usually behind some kind of translation.
type Scope int

const (
	ScopeUnspecified Scope = iota
	ScopeLoopback
	ScopeLinkLocal
	ScopePrivate
	ScopeGlobal
)

var scopeNames = map[Scope]string{
	ScopeUnspecified: "unspecified",
	ScopeLoopback:    "loopback",
	ScopeLinkLocal:   "link-local",
	ScopePrivate:     "private",
	ScopeGlobal:      "global",
}

func (s Scope) String() string {
	return scopeNames[s]
}

func parseCidr(network string, comment string) netip.Prefix {
	prefix, err := netip.ParsePrefix(network)
	if err != nil {
		panic(fmt.Sprintf("error parsing %s (%s): %v", network, comment, err))
	}
	return prefix
}

var (
	linkLocalNets = []netip.Prefix{
		parseCidr("169.254.0.0/16", "RFC 3927: Link Local"),
		parseCidr("fe80::/10", "RFC 4291: Link-Local Unicast"),
	}

	privateNetworks = []netip.Prefix{
		parseCidr("10.0.0.0/8", "RFC 1918: Private-Use"),
		parseCidr("100.64.0.0/10", "RFC 6598: Shared Address Space"),
		parseCidr("172.16.0.0/12", "RFC 1918: Private-Use"),
		parseCidr("192.168.0.0/16", "RFC 1918: Private-Use"),
		parseCidr("fc00::/7", "RFC 4193 & RFC 8190: Unique-Local"),
	}
)

func IsIPLinkLocal(ip netip.Addr) bool {
	ip = ip.Unmap()
	for _, ipnet := range linkLocalNets {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

func IsIPPrivate(ip netip.Addr) bool {
	ip = ip.Unmap()
	for _, ipnet := range privateNetworks {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

func AddrScope(ip netip.Addr) Scope {
	switch {
	case !ip.IsValid() || ip.IsUnspecified():
		return ScopeUnspecified
	case ip.IsLoopback():
		return ScopeLoopback
	case IsIPLinkLocal(ip):
		return ScopeLinkLocal
	case IsIPPrivate(ip):
		return ScopePrivate
	}
	return ScopeGlobal
}
