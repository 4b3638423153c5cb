package printer

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/schawnndev/receiptprinter/escpos"
)

// Device is the subset of the ESC/POS driver the client drives.
// *escpos.Escpos implements it.
type Device interface {
	SetStyle(s escpos.Style) error
	Text(s string) (int, error)
	BlockText(s string, columns int) (int, error)
	Image(img image.Image, center bool) (int, error)
	QR(content string, size uint8, center bool) (int, error)
	Cut() (int, error)
	OpenDrawer(pin uint8, pulse uint8) (int, error)
	IsOnline() (bool, error)
	PaperStatus() (escpos.PaperLevel, error)
	Print() error
	Close() error
}

// Opener establishes a device connection for a configuration
type Opener func(ctx context.Context, cfg Config) (Device, error)

// SerialPrefix marks a host that is a serial port, e.g. "serial:/dev/ttyUSB0@19200"
const SerialPrefix = "serial:"

// OpenDevice connects to cfg.Host over TCP, or over a serial port when the
// host carries SerialPrefix, and selects the configured code page.
func OpenDevice(ctx context.Context, cfg Config) (Device, error) {
	var (
		conn escpos.Printer
		err  error
	)

	if port, ok := strings.CutPrefix(cfg.Host, SerialPrefix); ok {
		name, baud, perr := parseSerialHost(port)
		if perr != nil {
			return nil, perr
		}
		conn, err = escpos.NewSerialPrinter(name, baud, cfg.StatusTimeout)
	} else {
		conn, err = escpos.DialNetworkPrinter(ctx, cfg.Host,
			escpos.WithConnectTimeout(cfg.Timeout),
			escpos.WithTimeout(cfg.Timeout),
			escpos.WithReadTimeout(cfg.StatusTimeout),
		)
	}
	if err != nil {
		return nil, err
	}

	dev := escpos.New(conn)
	if cfg.CodePage != "" {
		if _, err := dev.SetCodePage(cfg.CodePage); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return dev, nil
}

func parseSerialHost(s string) (string, int, error) {
	name, baudText, hasBaud := strings.Cut(s, "@")
	if name == "" {
		return "", 0, fmt.Errorf("serial host has no port name")
	}
	if !hasBaud {
		return name, escpos.DefaultBaudRate, nil
	}
	baud, err := strconv.Atoi(baudText)
	if err != nil || baud <= 0 {
		return "", 0, fmt.Errorf("invalid baud rate %q", baudText)
	}
	return name, baud, nil
}
