package escpos

import (
	"context"
	"io"
	"net"
	"time"
)

// DefaultPort is the raw printing port used when an address has none
const DefaultPort = "9100"

// Printer is the byte transport to a device: a TCP socket or a serial port
type Printer interface {
	io.ReadWriteCloser
}

// timeouts hold the per operation deadlines of a network printer.
// read and write fall back to all when unset.
type timeouts struct {
	all     time.Duration
	connect time.Duration
	read    time.Duration
	write   time.Duration
}

func (t timeouts) deadline(specific time.Duration) time.Time {
	d := specific
	if d <= 0 {
		d = t.all
	}
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}

type tcpPrinter struct {
	conn net.Conn
	t    timeouts
}

// PrinterOption configures a network printer
type PrinterOption func(*timeouts) error

// WithTimeout bounds every Read and Write
func WithTimeout(d time.Duration) PrinterOption {
	return func(t *timeouts) error {
		t.all = d
		return nil
	}
}

// WithConnectTimeout bounds the dial
func WithConnectTimeout(d time.Duration) PrinterOption {
	return func(t *timeouts) error {
		t.connect = d
		return nil
	}
}

// WithReadTimeout bounds Read, overriding WithTimeout
func WithReadTimeout(d time.Duration) PrinterOption {
	return func(t *timeouts) error {
		t.read = d
		return nil
	}
}

// WithWriteTimeout bounds Write, overriding WithTimeout
func WithWriteTimeout(d time.Duration) PrinterOption {
	return func(t *timeouts) error {
		t.write = d
		return nil
	}
}

// NetworkAddress appends DefaultPort to address when it carries no port
func NetworkAddress(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, DefaultPort)
}

// NewNetworkPrinter connects to a printer listening for raw ESC/POS data over TCP
func NewNetworkPrinter(address string, opts ...PrinterOption) (Printer, error) {
	return DialNetworkPrinter(context.Background(), address, opts...)
}

// DialNetworkPrinter is like NewNetworkPrinter but aborts the dial when ctx is done
func DialNetworkPrinter(ctx context.Context, address string, opts ...PrinterOption) (Printer, error) {
	var t timeouts
	for _, opt := range opts {
		if err := opt(&t); err != nil {
			return nil, err
		}
	}

	d := net.Dialer{Timeout: t.connect}
	conn, err := d.DialContext(ctx, "tcp", NetworkAddress(address))
	if err != nil {
		return nil, err
	}
	return &tcpPrinter{conn: conn, t: t}, nil
}

func (p *tcpPrinter) Read(b []byte) (int, error) {
	if err := p.conn.SetReadDeadline(p.t.deadline(p.t.read)); err != nil {
		return 0, err
	}
	return p.conn.Read(b)
}

func (p *tcpPrinter) Write(b []byte) (int, error) {
	if err := p.conn.SetWriteDeadline(p.t.deadline(p.t.write)); err != nil {
		return 0, err
	}
	return p.conn.Write(b)
}

func (p *tcpPrinter) Close() error {
	return p.conn.Close()
}
