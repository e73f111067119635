//go:build !linux

package sockets

func OpenIPv4(port uint16) (*Socket, error) {
	return nil, ErrUnsupported
}

func OpenIPv6(port uint16) (*Socket, error) {
	return nil, ErrUnsupported
}

func OpenNetlink() (*Socket, error) {
	return nil, ErrUnsupported
}

func (s *Socket) WriteToPID(b []byte, pid uint32) (int, error) {
	return 0, ErrUnsupported
}

func (s *Socket) ReadFromPID(b []byte) (int, uint32, error) {
	return 0, 0, ErrUnsupported
}
