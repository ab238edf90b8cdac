//go:build !linux

package poller

// Poller is unavailable on this platform.
type Poller struct{}

// New always fails with ErrUnsupported.
func New() (*Poller, error) {
	return nil, ErrUnsupported
}

func (p *Poller) Register(fd int, token Token, interest Interest, mode Mode) error {
	return ErrUnsupported
}

func (p *Poller) Reregister(fd int, token Token, interest Interest, mode Mode) error {
	return ErrUnsupported
}

func (p *Poller) Deregister(fd int) error {
	return ErrUnsupported
}

func (p *Poller) Wait(events []Event, timeoutMs int) (int, error) {
	return 0, ErrUnsupported
}

func (p *Poller) Close() error {
	return nil
}

// Waker is unavailable on this platform.
type Waker struct{}

// NewWaker always fails with ErrUnsupported.
func NewWaker(p *Poller, token Token) (*Waker, error) {
	return nil, ErrUnsupported
}

func (w *Waker) Wake() error {
	return ErrUnsupported
}

func (w *Waker) Drain() {}

func (w *Waker) Close() error {
	return nil
}
