//go:build !linux

package tcpserver

import "github.com/cyberinferno/snowcast/poller"

func listenTCP(addr string, backlog int) (int, string, error) {
	return -1, "", poller.ErrUnsupported
}

func acceptConn(lfd int) (int, string, error) {
	return -1, "", poller.ErrUnsupported
}

func sysRead(fd int, p []byte) (int, error) {
	return 0, poller.ErrUnsupported
}

func sysWrite(fd int, p []byte) (int, error) {
	return 0, poller.ErrUnsupported
}

func sysClose(fd int) error {
	return poller.ErrUnsupported
}

func isWouldBlock(err error) bool { return false }

func isInterrupted(err error) bool { return false }

func isRetryableAccept(err error) bool { return false }
