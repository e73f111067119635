package addr

import (
	"encoding/binary"
	"fmt"

	"github.com/josharian/native"
	"golang.org/x/sys/unix"
)

// The kernel hands addresses to the port mapper as a struct
// sockaddr_storage (see include/uapi/linux/socket.h) embedded in netlink
// attributes. The family is in host byte order whilst the port (and
// flowinfo) are in network byte order.
const (
	SockaddrStorageLen = 128

	sizeofSockaddrInet4 = 16
	sizeofSockaddrInet6 = 28
)

func MarshalSockaddrStorage(sa unix.Sockaddr) ([]byte, error) {
	b := make([]byte, SockaddrStorageLen)

	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		native.Endian.PutUint16(b[0:2], unix.AF_INET)
		binary.BigEndian.PutUint16(b[2:4], uint16(sa.Port))
		copy(b[4:8], sa.Addr[:])
	case *unix.SockaddrInet6:
		native.Endian.PutUint16(b[0:2], unix.AF_INET6)
		binary.BigEndian.PutUint16(b[2:4], uint16(sa.Port))
		// b[4:8] is the flow information which we always leave as 0
		copy(b[8:24], sa.Addr[:])
		native.Endian.PutUint32(b[24:28], sa.ZoneId)
	default:
		return nil, fmt.Errorf("%w: can't marshal %T", ErrInvalidAddressFamily, sa)
	}

	return b, nil
}

func UnmarshalSockaddrStorage(b []byte) (unix.Sockaddr, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("sockaddr short read (%d); want at least 2", len(b))
	}

	switch family := native.Endian.Uint16(b[0:2]); family {
	case unix.AF_INET:
		if len(b) < sizeofSockaddrInet4 {
			return nil, fmt.Errorf("sockaddr_in short read (%d); want %d", len(b), sizeofSockaddrInet4)
		}
		sa := &unix.SockaddrInet4{Port: int(binary.BigEndian.Uint16(b[2:4]))}
		copy(sa.Addr[:], b[4:8])
		return sa, nil
	case unix.AF_INET6:
		if len(b) < sizeofSockaddrInet6 {
			return nil, fmt.Errorf("sockaddr_in6 short read (%d); want %d", len(b), sizeofSockaddrInet6)
		}
		sa := &unix.SockaddrInet6{
			Port:   int(binary.BigEndian.Uint16(b[2:4])),
			ZoneId: native.Endian.Uint32(b[24:28]),
		}
		copy(sa.Addr[:], b[8:24])
		return sa, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidAddressFamily, family)
	}
}
