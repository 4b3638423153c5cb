package escpos

import (
	"errors"
	"fmt"
	"os"
)

// Real-time status requests (DLE EOT n)
const (
	StatusPrinter uint8 = 1
	StatusOffline uint8 = 2
	StatusError   uint8 = 3
	StatusPaper   uint8 = 4
)

// Bit masks applied to status responses
const (
	maskOffline  byte = 0x08 // printer status: offline
	maskPaper    byte = 0x12 // paper status: fixed bits, always set in a valid response
	maskLowPaper byte = 0x1E // paper status: near end
	maskNoPaper  byte = 0x72 // paper status: end
)

// PaperLevel is the paper supply reported by the printer
type PaperLevel int

const (
	PaperNone PaperLevel = 0
	PaperLow  PaperLevel = 1
	PaperOK   PaperLevel = 2
)

func (l PaperLevel) String() string {
	switch l {
	case PaperNone:
		return "no paper"
	case PaperLow:
		return "paper low"
	case PaperOK:
		return "paper ok"
	}
	return fmt.Sprintf("PaperLevel(%d)", int(l))
}

var (
	// ErrNoStatus is reported when the printer does not answer a status request in time
	ErrNoStatus = errors.New("no status response from printer")
	// ErrMalformedStatus is reported when a status byte has its fixed bits wrong
	ErrMalformedStatus = errors.New("malformed status response")
	// ErrNotReadable is reported when the printer connection cannot be read from
	ErrNotReadable = errors.New("printer connection is write-only")
)

// Error is a protocol level failure: the printer was reachable but its
// answer could not be used.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "escpos: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// QueryStatus flushes pending data, sends a real-time status request and returns
// the raw answer. An empty answer means the printer did not respond before the
// connection's read timeout.
func (e *Escpos) QueryStatus(kind uint8) ([]byte, error) {
	if e.reader == nil {
		return nil, &Error{Op: "query status", Err: ErrNotReadable}
	}

	if _, err := e.WriteRaw([]byte{dle, eot, kind}); err != nil {
		return nil, err
	}
	if err := e.Print(); err != nil {
		return nil, err
	}

	buf := make([]byte, 16)
	n, err := e.reader.Read(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return buf[:0], nil
		}
		return nil, fmt.Errorf("failed to read status: %w", err)
	}
	return buf[:n], nil
}

// IsOnline reports whether the printer is online
func (e *Escpos) IsOnline() (bool, error) {
	status, err := e.QueryStatus(StatusPrinter)
	if err != nil {
		return false, err
	}
	if len(status) == 0 {
		return false, &Error{Op: "online status", Err: ErrNoStatus}
	}
	return status[0]&maskOffline == 0, nil
}

// PaperStatus reports the paper roll sensor state
func (e *Escpos) PaperStatus() (PaperLevel, error) {
	status, err := e.QueryStatus(StatusPaper)
	if err != nil {
		return PaperNone, err
	}
	if len(status) == 0 {
		return PaperNone, &Error{Op: "paper status", Err: ErrNoStatus}
	}

	b := status[0]
	switch {
	case b&maskNoPaper == maskNoPaper:
		return PaperNone, nil
	case b&maskLowPaper == maskLowPaper:
		return PaperLow, nil
	case b&maskPaper == maskPaper:
		return PaperOK, nil
	}
	return PaperNone, &Error{Op: "paper status", Err: fmt.Errorf("%w: 0x%02x", ErrMalformedStatus, b)}
}
