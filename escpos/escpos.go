package escpos

import (
	"bufio"
	"fmt"
	"io"

	"golang.org/x/text/encoding"
)

// Style holds the text formatting currently applied on the printer
type Style struct {
	Bold          bool
	Width, Height uint8
	Reverse       bool
	Underline     uint8 // can be 0, 1 or 2
	UpsideDown    bool
	Rotate        bool
	Justify       uint8
	Font          uint8
}

// Justification constants
const (
	JustifyLeft   uint8 = 0
	JustifyCenter uint8 = 1
	JustifyRight  uint8 = 2
)

// Font constants
const (
	FontA uint8 = 0 // 12x24
	FontB uint8 = 1 // 9x17
)

// QR code models
const (
	QRCodeModel1 uint8 = 49
	QRCodeModel2 uint8 = 50
)

// QR code error correction levels
const (
	QRCodeErrorCorrectionLevelL uint8 = 48 // 7% recovery capacity
	QRCodeErrorCorrectionLevelM uint8 = 49 // 15% recovery capacity
	QRCodeErrorCorrectionLevelQ uint8 = 50 // 25% recovery capacity
	QRCodeErrorCorrectionLevelH uint8 = 51 // 30% recovery capacity
)

// Barcode types
const (
	BarcodeUPCA    uint8 = 0
	BarcodeUPCE    uint8 = 1
	BarcodeEAN13   uint8 = 2
	BarcodeEAN8    uint8 = 3
	BarcodeCode39  uint8 = 4
	BarcodeITF     uint8 = 5
	BarcodeCodabar uint8 = 6
)

// HRI position constants
const (
	HRIPositionNone  uint8 = 0
	HRIPositionAbove uint8 = 1
	HRIPositionBelow uint8 = 2
	HRIPositionBoth  uint8 = 3
)

// ESC/POS command bytes
const (
	dle byte = 0x10
	eot byte = 0x04
	esc byte = 0x1B
	gs  byte = 0x1D
	fs  byte = 0x1C
)

// PrinterConfig contains options to disable specific formatting features
type PrinterConfig struct {
	DisableUnderline  bool
	DisableBold       bool
	DisableReverse    bool
	DisableRotate     bool
	DisableUpsideDown bool
	DisableJustify    bool
}

// Escpos represents a ESC/POS printer connection
type Escpos struct {
	dst     *bufio.Writer
	reader  io.Reader
	closer  io.Closer
	Style   Style
	config  PrinterConfig
	encoder *encoding.Encoder
}

// New creates a new Escpos printer instance.
// If dst also implements io.Reader the printer can answer status queries,
// and if it implements io.Closer it is closed by Close.
func New(dst io.Writer) *Escpos {
	e := &Escpos{
		dst:   bufio.NewWriter(dst),
		Style: defaultStyle(),
	}
	if r, ok := dst.(io.Reader); ok {
		e.reader = r
	}
	if c, ok := dst.(io.Closer); ok {
		e.closer = c
	}
	return e
}

func defaultStyle() Style {
	return Style{
		Width:   1,
		Height:  1,
		Justify: JustifyLeft,
		Font:    FontA,
	}
}

// SetConfig sets the printer configuration options
func (e *Escpos) SetConfig(conf PrinterConfig) {
	e.config = conf
}

// Print sends the buffered data to the printer
func (e *Escpos) Print() error {
	if err := e.dst.Flush(); err != nil {
		return fmt.Errorf("failed to send data to printer: %w", err)
	}
	return nil
}

// PrintAndCut sends the buffered data to the printer and performs a cut
func (e *Escpos) PrintAndCut() error {
	_, err := e.Cut()
	if err != nil {
		return fmt.Errorf("failed to perform cut: %w", err)
	}

	if err := e.dst.Flush(); err != nil {
		return fmt.Errorf("failed to send data to printer: %w", err)
	}
	return nil
}

// Close flushes pending data and closes the underlying connection.
func (e *Escpos) Close() error {
	flushErr := e.dst.Flush()
	if e.closer == nil {
		return flushErr
	}
	if err := e.closer.Close(); err != nil {
		return err
	}
	return flushErr
}

// WriteRaw writes raw bytes directly to the printer
func (e *Escpos) WriteRaw(data []byte) (int, error) {
	if len(data) > 0 {
		return e.dst.Write(data)
	}
	return 0, nil
}

// Write prints a string, transcoded to the selected code page
func (e *Escpos) Write(data string) (int, error) {
	raw := []byte(data)
	if e.encoder != nil {
		encoded, err := e.encoder.Bytes(raw)
		if err != nil {
			return 0, fmt.Errorf("failed to encode text: %w", err)
		}
		raw = encoded
	}

	n, err := e.WriteRaw(raw)
	if err != nil {
		return n, fmt.Errorf("failed to write text data: %w", err)
	}
	return n, nil
}

// SetStyle applies every field of s, skipping the features disabled in the config
func (e *Escpos) SetStyle(s Style) error {
	if !e.config.DisableBold {
		if _, err := e.SetBold(s.Bold); err != nil {
			return err
		}
	}
	if !e.config.DisableUnderline {
		if _, err := e.SetUnderline(s.Underline); err != nil {
			return err
		}
	}
	if !e.config.DisableReverse {
		if _, err := e.SetReverse(s.Reverse); err != nil {
			return err
		}
	}
	if !e.config.DisableRotate {
		if _, err := e.SetRotate(s.Rotate); err != nil {
			return err
		}
	}
	if !e.config.DisableUpsideDown {
		if _, err := e.SetUpsideDown(s.UpsideDown); err != nil {
			return err
		}
	}
	if !e.config.DisableJustify {
		if _, err := e.SetJustify(s.Justify); err != nil {
			return err
		}
	}
	if _, err := e.SetFont(s.Font); err != nil {
		return err
	}
	if _, err := e.SetSize(s.Width, s.Height); err != nil {
		return err
	}
	return nil
}

// SetBold turns emphasized mode on or off
func (e *Escpos) SetBold(p bool) (int, error) {
	if e.config.DisableBold {
		return 0, fmt.Errorf("bold mode is disabled")
	}
	e.Style.Bold = p
	return e.WriteRaw([]byte{esc, 'E', boolToByte(p)})
}

// SetUnderline sets the underline thickness (0-2 dots), anything else turns it off
func (e *Escpos) SetUnderline(p uint8) (int, error) {
	if e.config.DisableUnderline {
		return 0, fmt.Errorf("underline mode is disabled")
	}
	if p > 2 {
		p = 0
	}
	e.Style.Underline = p
	return e.WriteRaw([]byte{esc, '-', p})
}

// SetReverse sets reverse printing (white text on black background)
func (e *Escpos) SetReverse(p bool) (int, error) {
	if e.config.DisableReverse {
		return 0, fmt.Errorf("reverse mode is disabled")
	}
	e.Style.Reverse = p
	return e.WriteRaw([]byte{gs, 'B', boolToByte(p)})
}

// SetRotate toggles 90° clockwise rotation
func (e *Escpos) SetRotate(p bool) (int, error) {
	if e.config.DisableRotate {
		return 0, fmt.Errorf("rotate mode is disabled")
	}
	e.Style.Rotate = p
	return e.WriteRaw([]byte{esc, 'V', boolToByte(p)})
}

// SetUpsideDown toggles upside-down printing
func (e *Escpos) SetUpsideDown(p bool) (int, error) {
	if e.config.DisableUpsideDown {
		return 0, fmt.Errorf("upside-down mode is disabled")
	}
	e.Style.UpsideDown = p
	return e.WriteRaw([]byte{esc, '{', boolToByte(p)})
}

// SetJustify sets text justification (alignment)
// Use JustifyLeft, JustifyCenter, or JustifyRight constants
func (e *Escpos) SetJustify(p uint8) (int, error) {
	if e.config.DisableJustify {
		return 0, fmt.Errorf("justification is disabled")
	}
	if p > JustifyRight {
		p = JustifyLeft
	}
	e.Style.Justify = p
	return e.WriteRaw([]byte{esc, 'a', p})
}

// SetFont selects character font A or B
func (e *Escpos) SetFont(p uint8) (int, error) {
	if p > FontB {
		p = FontA
	}
	e.Style.Font = p
	return e.WriteRaw([]byte{esc, 'M', p})
}

// SetSize sets the character magnification. Width and Height are clamped to 1-8.
func (e *Escpos) SetSize(width uint8, height uint8) (int, error) {
	width = clamp(width, 1, 8)
	height = clamp(height, 1, 8)

	e.Style.Width = width
	e.Style.Height = height
	return e.WriteRaw([]byte{gs, '!', ((width - 1) << 4) | (height - 1)})
}

// SetHRIPosition sets the position of the HRI (Human Readable Interpretation) characters
// Use the HRIPosition constants
func (e *Escpos) SetHRIPosition(p uint8) (int, error) {
	if p > HRIPositionBoth {
		return 0, fmt.Errorf("invalid HRI position: must be between 0-3")
	}
	return e.WriteRaw([]byte{gs, 'H', p})
}

// SetHRIFont sets the HRI font
// false: Font A (12x24)
// true: Font B (9x24)
func (e *Escpos) SetHRIFont(p bool) (int, error) {
	return e.WriteRaw([]byte{gs, 'f', boolToByte(p)})
}

// SetBarcodeHeight sets the height for barcodes in dots (default: 162)
func (e *Escpos) SetBarcodeHeight(p uint8) (int, error) {
	return e.WriteRaw([]byte{gs, 'h', p})
}

// SetBarcodeWidth sets the width for barcodes (2-6, default: 3)
func (e *Escpos) SetBarcodeWidth(p uint8) (int, error) {
	return e.WriteRaw([]byte{gs, 'w', clamp(p, 2, 6)})
}

// EAN13 prints an EAN-13 barcode
// code must be 12-13 digits
func (e *Escpos) EAN13(code string) (int, error) {
	return e.Barcode(BarcodeEAN13, code)
}

// Barcode is a generic function to print barcodes
// barcodeType: one of the Barcode* constants
// code: the data to encode
func (e *Escpos) Barcode(barcodeType uint8, code string) (int, error) {
	if barcodeType > BarcodeCodabar {
		return 0, fmt.Errorf("invalid barcode type: %d", barcodeType)
	}

	switch barcodeType {
	case BarcodeUPCA, BarcodeUPCE:
		if len(code) != 11 && len(code) != 12 {
			return 0, fmt.Errorf("UPC code should have 11 or 12 digits")
		}
		if !onlyDigits(code) {
			return 0, fmt.Errorf("UPC code can only contain digits")
		}
	case BarcodeEAN13:
		if len(code) != 12 && len(code) != 13 {
			return 0, fmt.Errorf("EAN-13 code should have 12 or 13 digits")
		}
		if !onlyDigits(code) {
			return 0, fmt.Errorf("EAN-13 code can only contain digits")
		}
	case BarcodeEAN8:
		if len(code) != 7 && len(code) != 8 {
			return 0, fmt.Errorf("EAN-8 code should have 7 or 8 digits")
		}
		if !onlyDigits(code) {
			return 0, fmt.Errorf("EAN-8 code can only contain digits")
		}
	case BarcodeITF:
		if len(code) < 2 || len(code)%2 != 0 {
			return 0, fmt.Errorf("ITF code must have an even number of digits (at least 2)")
		}
		if !onlyDigits(code) {
			return 0, fmt.Errorf("ITF code can only contain digits")
		}
	}

	byteCode := append([]byte(code), 0)
	return e.WriteRaw(append([]byte{gs, 'k', barcodeType}, byteCode...))
}

// QRCode prints a QR code
// code: the data to encode (max 7089 characters)
// model: QRCodeModel1 or QRCodeModel2, anything else selects model 2
// size: module size in dots (1-16)
// correctionLevel: error correction level (use QRCodeErrorCorrectionLevel* constants)
func (e *Escpos) QRCode(code string, model uint8, size uint8, correctionLevel uint8) (int, error) {
	if len(code) == 0 {
		return 0, fmt.Errorf("QR code data is empty")
	}
	if len(code) > 7089 {
		return 0, fmt.Errorf("QR code data too long (max 7089 characters)")
	}

	size = clamp(size, 1, 16)
	if model != QRCodeModel1 && model != QRCodeModel2 {
		model = QRCodeModel2
	}
	if correctionLevel < QRCodeErrorCorrectionLevelL || correctionLevel > QRCodeErrorCorrectionLevelH {
		correctionLevel = QRCodeErrorCorrectionLevelL
	}

	if _, err := e.WriteRaw([]byte{gs, '(', 'k', 4, 0, 49, 65, model, 0}); err != nil {
		return 0, fmt.Errorf("failed to set QR code model: %w", err)
	}

	if _, err := e.WriteRaw([]byte{gs, '(', 'k', 3, 0, 49, 67, size}); err != nil {
		return 0, fmt.Errorf("failed to set QR code size: %w", err)
	}

	if _, err := e.WriteRaw([]byte{gs, '(', 'k', 3, 0, 49, 69, correctionLevel}); err != nil {
		return 0, fmt.Errorf("failed to set QR code error correction level: %w", err)
	}

	// Store the data in the symbol storage area
	codeLength := len(code) + 3
	pL := byte(codeLength % 256)
	pH := byte(codeLength / 256)

	written, err := e.WriteRaw(append([]byte{gs, '(', 'k', pL, pH, 49, 80, 48}, []byte(code)...))
	if err != nil {
		return written, fmt.Errorf("failed to store QR code data: %w", err)
	}

	if _, err = e.WriteRaw([]byte{gs, '(', 'k', 3, 0, 49, 81, 48}); err != nil {
		return written, fmt.Errorf("failed to print QR code: %w", err)
	}

	return written, nil
}

// QR prints a model 2 QR code with medium error correction followed by a line feed,
// optionally centered. The previous justification is restored afterwards.
func (e *Escpos) QR(content string, size uint8, center bool) (int, error) {
	var written int
	err := e.withJustify(center, func() error {
		n, err := e.QRCode(content, QRCodeModel2, size, QRCodeErrorCorrectionLevelM)
		written = n
		if err != nil {
			return err
		}
		_, err = e.LineFeed()
		return err
	})
	return written, err
}

// withJustify runs fn with center justification when center is set
func (e *Escpos) withJustify(center bool, fn func() error) error {
	if !center || e.config.DisableJustify {
		return fn()
	}
	previous := e.Style.Justify
	if _, err := e.SetJustify(JustifyCenter); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	_, err := e.SetJustify(previous)
	return err
}

// PrintNVBitImage prints a pre-stored bit image with index p and mode
// p: image index (1-based)
// mode: print mode (0-3)
func (e *Escpos) PrintNVBitImage(p uint8, mode uint8) (int, error) {
	if p == 0 {
		return 0, fmt.Errorf("NV bit image index must be at least 1")
	}
	if mode > 3 {
		return 0, fmt.Errorf("NV bit image mode must be between 0-3")
	}

	return e.WriteRaw([]byte{fs, 'd', p, mode})
}

// LineFeed sends a newline to the printer
func (e *Escpos) LineFeed() (int, error) {
	return e.WriteRaw([]byte{'\n'})
}

// SetLineFeed is an alias of LineFeed
func (e *Escpos) SetLineFeed() (int, error) {
	return e.LineFeed()
}

// SetLineFeedN prints and feeds the paper p lines
func (e *Escpos) SetLineFeedN(p uint8) (int, error) {
	return e.WriteRaw([]byte{esc, 'd', p})
}

// SetDefaultLineSpacing sets the line spacing to the default (1/6 inch)
func (e *Escpos) SetDefaultLineSpacing() (int, error) {
	return e.WriteRaw([]byte{esc, '2'})
}

// SetLineSpacing sets the line spacing to p motion units
func (e *Escpos) SetLineSpacing(p uint8) (int, error) {
	return e.WriteRaw([]byte{esc, '3', p})
}

// Initialize resets the printer to its default settings
func (e *Escpos) Initialize() (int, error) {
	e.Style = defaultStyle()
	return e.WriteRaw([]byte{esc, '@'})
}

// SetMotionUnits sets the horizontal (x) and vertical (y) motion units
func (e *Escpos) SetMotionUnits(x, y uint8) (int, error) {
	return e.WriteRaw([]byte{gs, 'P', x, y})
}

// Cut feeds the paper to the cutting position and cuts it
func (e *Escpos) Cut() (int, error) {
	return e.WriteRaw([]byte{gs, 'V', 'A', 0x00})
}

// PartialCut performs a partial paper cut
func (e *Escpos) PartialCut() (int, error) {
	return e.WriteRaw([]byte{gs, 'V', 'B', 0x00})
}

// OpenDrawer opens the cash drawer connected to the printer
// pin: pin number (0 or 1)
// time: pulse duration (1-8) * 100ms
func (e *Escpos) OpenDrawer(pin uint8, time uint8) (int, error) {
	if pin > 1 {
		pin = 0
	}
	time = clamp(time, 1, 8)
	return e.WriteRaw([]byte{esc, 'p', pin, time, time})
}

// boolToByte converts a boolean to a byte (0x00 or 0x01)
func boolToByte(b bool) byte {
	if b {
		return 0x01
	}
	return 0x00
}

func clamp(v, lo, hi uint8) uint8 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// onlyDigits checks if a string is non-empty and contains only digits
func onlyDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
