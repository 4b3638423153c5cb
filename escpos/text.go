package escpos

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

type codePage struct {
	table    uint8
	kanji    bool
	encoding encoding.Encoding
}

// Supported code pages, keyed by the name accepted by SetCodePage
var codePages = map[string]codePage{
	"cp437":  {table: 0, encoding: charmap.CodePage437},
	"cp850":  {table: 2, encoding: charmap.CodePage850},
	"cp858":  {table: 19, encoding: charmap.CodePage858},
	"cp1252": {table: 16, encoding: charmap.Windows1252},
	"gbk":    {kanji: true, encoding: simplifiedchinese.GBK},
}

// CodePages returns the names accepted by SetCodePage
func CodePages() []string {
	return []string{"cp437", "cp850", "cp858", "cp1252", "gbk"}
}

// SetCodePage selects the character code table on the printer and transcodes
// all following text to it. Characters the table cannot represent are sent as
// the substitute character (0x1A).
func (e *Escpos) SetCodePage(name string) (int, error) {
	cp, ok := codePages[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unsupported code page: %q", name)
	}

	e.encoder = encoding.ReplaceUnsupported(cp.encoding.NewEncoder())
	if cp.kanji {
		return e.WriteRaw([]byte{fs, '&'})
	}
	// Leave Kanji mode in case a previous selection enabled it
	if _, err := e.WriteRaw([]byte{fs, '.'}); err != nil {
		return 0, err
	}
	return e.WriteRaw([]byte{esc, 't', cp.table})
}

// Text prints s as-is with the current style
func (e *Escpos) Text(s string) (int, error) {
	return e.Write(s)
}

// BlockText prints s word-wrapped so no line is wider than columns.
// Every wrapped line is terminated with a line feed.
func (e *Escpos) BlockText(s string, columns int) (int, error) {
	written := 0
	for _, line := range WrapText(s, columns) {
		n, err := e.Write(line + "\n")
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// tabWidth is the tab stop interval used when expanding tabs
const tabWidth = 8

// WrapText breaks s into lines of at most columns display cells.
// Spacing inside a line and the indent of the first line are kept; only the
// whitespace at a line break is dropped. Words wider than the remaining
// space are split.
func WrapText(s string, columns int) []string {
	if columns < 1 {
		columns = 1
	}

	chunks := splitChunks(expandSpace(s))
	var lines []string

	for len(chunks) > 0 {
		if len(lines) > 0 && isBlank(chunks[0]) {
			chunks = chunks[1:]
			continue
		}

		var line []string
		width := 0
		for len(chunks) > 0 {
			w := runewidth.StringWidth(chunks[0])
			if width+w > columns {
				break
			}
			line = append(line, chunks[0])
			width += w
			chunks = chunks[1:]
		}

		if len(chunks) > 0 && runewidth.StringWidth(chunks[0]) > columns {
			head, rest := cutWidth(chunks[0], columns-width, width == 0)
			if head != "" {
				line = append(line, head)
			}
			if rest == "" {
				chunks = chunks[1:]
			} else {
				chunks[0] = rest
			}
		}

		if n := len(line); n > 0 && isBlank(line[n-1]) {
			line = line[:n-1]
		}
		if len(line) > 0 {
			lines = append(lines, strings.Join(line, ""))
		}
	}

	return lines
}

// expandSpace expands tabs and turns every other whitespace control into a space
func expandSpace(s string) string {
	var b strings.Builder
	col := 0
	for _, r := range s {
		switch r {
		case '\t':
			n := tabWidth - col%tabWidth
			b.WriteString(strings.Repeat(" ", n))
			col += n
		case '\n', '\r':
			b.WriteByte(' ')
			col = 0
		case '\v', '\f':
			b.WriteByte(' ')
			col++
		default:
			b.WriteRune(r)
			col++
		}
	}
	return b.String()
}

// splitChunks cuts s into alternating runs of spaces and non-spaces
func splitChunks(s string) []string {
	var chunks []string
	start := 0
	for i := 1; i <= len(s); i++ {
		if i == len(s) || (s[i] == ' ') != (s[start] == ' ') {
			chunks = append(chunks, s[start:i])
			start = i
		}
	}
	return chunks
}

func isBlank(chunk string) bool {
	return strings.Trim(chunk, " ") == ""
}

// cutWidth splits s after at most space cells. With force at least one rune is taken.
func cutWidth(s string, space int, force bool) (string, string) {
	width := 0
	for i, r := range s {
		rw := runewidth.RuneWidth(r)
		if width+rw > space {
			if i == 0 && force {
				_, size := utf8.DecodeRuneInString(s)
				return s[:size], s[size:]
			}
			return s[:i], s[i:]
		}
		width += rw
	}
	return s, ""
}
