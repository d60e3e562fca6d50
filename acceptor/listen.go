// File: acceptor/listen.go
// Author: momentics <momentics@gmail.com>
//
// Raw listening-socket construction for IPv4, IPv6 and Unix-domain
// addresses, used by the server façade to build the fd an Acceptor wraps.
package acceptor

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// ListenIPv4 opens a non-blocking, listening IPv4 TCP socket on host:port.
func ListenIPv4(host string, port int, backlog int) (int, error) {
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return -1, fmt.Errorf("acceptor: %q is not a dotted-quad IPv4 address", host)
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("acceptor: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("acceptor: setsockopt: %w", err)
	}
	var addr [4]byte
	copy(addr[:], ip.To4())
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port, Addr: addr}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("acceptor: bind: %w", err)
	}
	return finishListen(fd, backlog)
}

// ListenIPv6 opens a non-blocking, listening IPv6 TCP socket on host:port.
func ListenIPv6(host string, port int, backlog int) (int, error) {
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() != nil {
		return -1, fmt.Errorf("acceptor: %q is not an RFC 4291 IPv6 address", host)
	}
	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("acceptor: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("acceptor: setsockopt: %w", err)
	}
	var addr [16]byte
	copy(addr[:], ip.To16())
	if err := unix.Bind(fd, &unix.SockaddrInet6{Port: port, Addr: addr}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("acceptor: bind: %w", err)
	}
	return finishListen(fd, backlog)
}

// ListenUnixDomain opens a non-blocking, listening Unix-domain stream socket
// at path. Any pre-existing socket file at path is removed first.
func ListenUnixDomain(path string, backlog int) (int, error) {
	if len(path) >= 104 {
		return -1, fmt.Errorf("acceptor: unix socket path %q exceeds sun_path limits", path)
	}
	os.Remove(path)
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("acceptor: socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("acceptor: bind: %w", err)
	}
	return finishListen(fd, backlog)
}

func finishListen(fd int, backlog int) (int, error) {
	if backlog <= 0 {
		backlog = 1024
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("acceptor: listen: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("acceptor: set non-blocking: %w", err)
	}
	return fd, nil
}
