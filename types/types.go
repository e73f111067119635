package types

import (
	"strings"

	"golang.org/x/sys/unix"
)

type Family int

const (
	IPv4 Family = unix.AF_INET
	IPv6 Family = unix.AF_INET6

	// IPv4Len and IPv6Len are the number of meaningful bytes in an address
	// of each family.
	IPv4Len = 4
	IPv6Len = 16
)

var (
	familyMap = map[string]Family{
		"IPV4": IPv4,
		"IPV6": IPv6,
	}

	ylimafMap = map[Family]string{
		IPv4: "ipv4",
		IPv6: "ipv6",
	}
)

func (f Family) String() string {
	repr, ok := ylimafMap[f]
	if !ok {
		return "unknown"
	}
	return repr
}

// AddrLen returns the length of an address of the family or 0 if the
// family is not an IP family.
func (f Family) AddrLen() int {
	switch f {
	case IPv4:
		return IPv4Len
	case IPv6:
		return IPv6Len
	}
	return 0
}

// IPVersion returns the value carried in the ip_ver field of wire messages.
func (f Family) IPVersion() uint8 {
	switch f {
	case IPv4:
		return 4
	case IPv6:
		return 6
	}
	return 0
}

func ParseFamily(family string) (Family, bool) {
	f, ok := familyMap[strings.ToUpper(family)]
	return f, ok
}

// FamilyFromIPVersion maps the ip_ver field of a wire message back to an
// address family.
func FamilyFromIPVersion(ipVer uint8) (Family, bool) {
	switch ipVer {
	case 4:
		return IPv4, true
	case 6:
		return IPv6, true
	}
	return 0, false
}
