//go:build linux

package tcpserver

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// listenTCP opens a non-blocking listening socket on addr with SO_REUSEADDR
// set, so the server can rebind a port left in TIME_WAIT by a previous run.
//
// Returns:
//   - The listening descriptor
//   - The bound address in host:port form (useful when addr asks for port 0)
func listenTCP(addr string, backlog int) (int, string, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, "", fmt.Errorf("resolve %s: %w", addr, err)
	}

	family := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := tcpAddr.IP.To4(); ip4 != nil || tcpAddr.IP == nil {
		in4 := &unix.SockaddrInet4{Port: tcpAddr.Port}
		if ip4 != nil {
			copy(in4.Addr[:], ip4)
		}
		sa = in4
	} else {
		family = unix.AF_INET6
		in6 := &unix.SockaddrInet6{Port: tcpAddr.Port}
		copy(in6.Addr[:], tcpAddr.IP.To16())
		sa = in6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, "", fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, "", fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, "", fmt.Errorf("bind %s: %w", addr, err)
	}

	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return -1, "", fmt.Errorf("listen %s: %w", addr, err)
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return -1, "", fmt.Errorf("getsockname: %w", err)
	}

	return fd, sockaddrString(bound), nil
}

// acceptConn accepts one pending connection as a non-blocking, close-on-exec
// descriptor.
func acceptConn(lfd int) (int, string, error) {
	fd, sa, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, "", err
	}

	return fd, sockaddrString(sa), nil
}

func sysRead(fd int, p []byte) (int, error) {
	return unix.Read(fd, p)
}

func sysWrite(fd int, p []byte) (int, error) {
	return unix.Write(fd, p)
}

func sysClose(fd int) error {
	return unix.Close(fd)
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

func isInterrupted(err error) bool {
	return errors.Is(err, unix.EINTR)
}

// isRetryableAccept reports accept errors after which the accept loop should
// simply try the next pending connection.
func isRetryableAccept(err error) bool {
	return errors.Is(err, unix.ECONNABORTED) || errors.Is(err, unix.EINTR)
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrUnix:
		return a.Name
	default:
		return "unknown"
	}
}
