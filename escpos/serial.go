package escpos

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is used by NewSerialPrinter when baudRate is not positive
const DefaultBaudRate = 19200

// NewSerialPrinter opens a printer attached to a serial port (8N1).
// readTimeout bounds status reads; a read that times out returns no data.
func NewSerialPrinter(portName string, baudRate int, readTimeout time.Duration) (Printer, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", portName, err)
	}

	if readTimeout > 0 {
		if err := port.SetReadTimeout(readTimeout); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
		}
	}

	return port, nil
}
