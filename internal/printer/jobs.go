package printer

import (
	"fmt"
	"strings"

	"github.com/schawnndev/receiptprinter/escpos"
)

// Align is the horizontal justification of printed text
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

func (a Align) justify() uint8 {
	switch a {
	case AlignCenter:
		return escpos.JustifyCenter
	case AlignRight:
		return escpos.JustifyRight
	}
	return escpos.JustifyLeft
}

// Font selects one of the printer's two built-in fonts
type Font string

const (
	FontA Font = "a"
	FontB Font = "b"
)

func (f Font) code() uint8 {
	if f == FontB {
		return escpos.FontB
	}
	return escpos.FontA
}

// QR module size bounds
const (
	MinQRSize     = 1
	MaxQRSize     = 16
	DefaultQRSize = 3
)

// TextJob prints a block of text
type TextJob struct {
	Text         string `json:"text"`
	Align        Align  `json:"align"`
	Font         Font   `json:"font"`
	Bold         bool   `json:"bold"`
	DoubleHeight bool   `json:"double_height"`
	DoubleWidth  bool   `json:"double_width"`
	Cut          bool   `json:"cut"`
	Wrap         bool   `json:"wrap"`
}

// NewTextJob returns a left aligned, font A, wrapped job that cuts afterwards
func NewTextJob(text string) TextJob {
	return TextJob{
		Text:  text,
		Align: AlignLeft,
		Font:  FontA,
		Cut:   true,
		Wrap:  true,
	}
}

// Validate rejects unknown alignments and fonts
func (j TextJob) Validate() error {
	switch j.Align {
	case AlignLeft, AlignCenter, AlignRight:
	default:
		return &Error{Msg: fmt.Sprintf("invalid align %q: must be one of left, center, right", j.Align)}
	}
	switch j.Font {
	case FontA, FontB:
	default:
		return &Error{Msg: fmt.Sprintf("invalid font %q: must be a or b", j.Font)}
	}
	return nil
}

func (j TextJob) style() escpos.Style {
	s := escpos.Style{
		Bold:    j.Bold,
		Justify: j.Align.justify(),
		Font:    j.Font.code(),
		Width:   1,
		Height:  1,
	}
	if j.DoubleWidth {
		s.Width = 2
	}
	if j.DoubleHeight {
		s.Height = 2
	}
	return s
}

// ImageJob prints a local image file or an image downloaded over http(s)
type ImageJob struct {
	Source string `json:"image_path"`
	Center bool   `json:"center"`
	Cut    bool   `json:"cut"`
}

// NewImageJob returns an uncentered job that cuts afterwards
func NewImageJob(source string) ImageJob {
	return ImageJob{Source: source, Cut: true}
}

// Validate requires a source
func (j ImageJob) Validate() error {
	if strings.TrimSpace(j.Source) == "" {
		return &Error{Msg: "image path is required"}
	}
	return nil
}

// QRJob prints a QR code
type QRJob struct {
	Content string `json:"content"`
	Size    int    `json:"size"`
	Center  bool   `json:"center"`
	Cut     bool   `json:"cut"`
}

// NewQRJob returns an uncentered job of DefaultQRSize that cuts afterwards
func NewQRJob(content string) QRJob {
	return QRJob{Content: content, Size: DefaultQRSize, Cut: true}
}

// Validate requires content and a size between MinQRSize and MaxQRSize
func (j QRJob) Validate() error {
	if j.Content == "" {
		return &Error{Msg: "QR content is required"}
	}
	if j.Size < MinQRSize || j.Size > MaxQRSize {
		return &Error{Msg: fmt.Sprintf("invalid QR size %d: must be between %d and %d", j.Size, MinQRSize, MaxQRSize)}
	}
	return nil
}
