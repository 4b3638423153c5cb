package printer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schawnndev/receiptprinter/escpos"
)

type fakeDevice struct {
	mu       sync.Mutex
	calls    []string
	styles   []escpos.Style
	images   []image.Image
	online   bool
	level    escpos.PaperLevel
	onlineFn func() (bool, error)
	paperErr error
	writeErr error
	closeErr error
	closed   int
}

func (d *fakeDevice) record(format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

func (d *fakeDevice) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDevice) SetStyle(s escpos.Style) error {
	d.styles = append(d.styles, s)
	d.record("style")
	return nil
}

func (d *fakeDevice) Text(s string) (int, error) {
	d.record("text %q", s)
	return len(s), d.writeErr
}

func (d *fakeDevice) BlockText(s string, columns int) (int, error) {
	d.record("block %q %d", s, columns)
	return len(s), d.writeErr
}

func (d *fakeDevice) Image(img image.Image, center bool) (int, error) {
	d.images = append(d.images, img)
	d.record("image %dx%d center=%t", img.Bounds().Dx(), img.Bounds().Dy(), center)
	return 0, d.writeErr
}

func (d *fakeDevice) QR(content string, size uint8, center bool) (int, error) {
	d.record("qr %q %d center=%t", content, size, center)
	return len(content), d.writeErr
}

func (d *fakeDevice) Cut() (int, error) {
	d.record("cut")
	return 4, d.writeErr
}

func (d *fakeDevice) OpenDrawer(pin uint8, pulse uint8) (int, error) {
	d.record("drawer %d %d", pin, pulse)
	return 5, d.writeErr
}

func (d *fakeDevice) IsOnline() (bool, error) {
	if d.onlineFn != nil {
		return d.onlineFn()
	}
	return d.online, nil
}

func (d *fakeDevice) PaperStatus() (escpos.PaperLevel, error) {
	return d.level, d.paperErr
}

func (d *fakeDevice) Print() error {
	d.record("print")
	return d.writeErr
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return d.closeErr
}

type fakeOpener struct {
	mu     sync.Mutex
	dev    *fakeDevice
	err    error
	opened int
}

func (o *fakeOpener) Open(_ context.Context, _ Config) (Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	o.opened++
	return o.dev, nil
}

func newTestClient(t *testing.T, dev *fakeDevice) (*Client, *fakeOpener) {
	t.Helper()
	opener := &fakeOpener{dev: dev}
	return New(DefaultConfig("192.0.2.10"), WithOpener(opener.Open)), opener
}

func TestPrintTextWrapsLines(t *testing.T) {
	dev := &fakeDevice{}
	c, _ := newTestClient(t, dev)

	job := NewTextJob("Hello\n\nWorld")
	require.NoError(t, c.PrintText(context.Background(), job))

	assert.Equal(t, []string{
		"style",
		`block "Hello" 42`,
		`text "\n"`,
		`block "World" 42`,
		"cut",
		"print",
	}, dev.Calls())
}

func TestPrintTextSingleLineIsOneBlock(t *testing.T) {
	dev := &fakeDevice{}
	c, _ := newTestClient(t, dev)

	job := NewTextJob("a fairly long line that the driver will wrap on its own")
	job.Cut = false
	require.NoError(t, c.PrintText(context.Background(), job))

	assert.Equal(t, []string{
		"style",
		`block "a fairly long line that the driver will wrap on its own" 42`,
		"print",
	}, dev.Calls())
}

func TestPrintTextColumns(t *testing.T) {
	tests := []struct {
		name        string
		font        Font
		doubleWidth bool
		want        string
	}{
		{name: "font a", font: FontA, want: `block "x" 42`},
		{name: "font b", font: FontB, want: `block "x" 56`},
		{name: "font a double width", font: FontA, doubleWidth: true, want: `block "x" 21`},
		{name: "font b double width", font: FontB, doubleWidth: true, want: `block "x" 28`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &fakeDevice{}
			c, _ := newTestClient(t, dev)

			job := NewTextJob("x")
			job.Font = tt.font
			job.DoubleWidth = tt.doubleWidth
			require.NoError(t, c.PrintText(context.Background(), job))

			assert.Contains(t, dev.Calls(), tt.want)
		})
	}
}

func TestPrintTextUnwrapped(t *testing.T) {
	dev := &fakeDevice{}
	c, _ := newTestClient(t, dev)

	job := NewTextJob("line one\nline two")
	job.Wrap = false
	job.Cut = false
	require.NoError(t, c.PrintText(context.Background(), job))

	assert.Equal(t, []string{"style", `text "line one\nline two\n"`, "print"}, dev.Calls())
}

func TestPrintTextStyle(t *testing.T) {
	dev := &fakeDevice{}
	c, _ := newTestClient(t, dev)

	job := NewTextJob("x")
	job.Align = AlignRight
	job.Font = FontB
	job.Bold = true
	job.DoubleHeight = true
	require.NoError(t, c.PrintText(context.Background(), job))

	require.Len(t, dev.styles, 1)
	assert.Equal(t, escpos.Style{
		Bold:    true,
		Justify: escpos.JustifyRight,
		Font:    escpos.FontB,
		Width:   1,
		Height:  2,
	}, dev.styles[0])
}

func TestPrintTextInvalidJob(t *testing.T) {
	dev := &fakeDevice{}
	c, opener := newTestClient(t, dev)

	job := NewTextJob("x")
	job.Align = "justify"
	err := c.PrintText(context.Background(), job)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, err.Error(), "invalid align")
	assert.Zero(t, opener.opened)
}

func TestConnectionIsReused(t *testing.T) {
	dev := &fakeDevice{online: true, level: escpos.PaperOK}
	c, opener := newTestClient(t, dev)
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.PrintQR(ctx, NewQRJob("abc")))
	_, err := c.GetStatus(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, opener.opened)
	assert.Zero(t, dev.closed)

	c.Disconnect(ctx)
	assert.Equal(t, 1, dev.closed)

	// A later call opens a new connection
	require.NoError(t, c.PrintQR(ctx, NewQRJob("abc")))
	assert.Equal(t, 2, opener.opened)
}

func TestConnectFailure(t *testing.T) {
	opener := &fakeOpener{err: errors.New("connection refused")}
	c := New(DefaultConfig("192.0.2.10"), WithOpener(opener.Open))

	err := c.Connect(context.Background())

	var cerr *CommunicationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "error connecting to printer - connection refused", err.Error())
}

func TestDisconnectSwallowsErrors(t *testing.T) {
	dev := &fakeDevice{closeErr: errors.New("broken pipe")}
	c, _ := newTestClient(t, dev)
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx))
	c.Disconnect(ctx)
	c.Disconnect(ctx)

	assert.Equal(t, 1, dev.closed)
}

func TestGetStatus(t *testing.T) {
	dev := &fakeDevice{online: true, level: escpos.PaperLow}
	c, _ := newTestClient(t, dev)

	st, err := c.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Status{Online: true, PaperLevel: escpos.PaperLow}, st)
}

func TestGetStatusProtocolErrorDegrades(t *testing.T) {
	perr := &escpos.Error{Op: "paper status", Err: escpos.ErrNoStatus}
	dev := &fakeDevice{online: true, level: escpos.PaperOK, paperErr: perr}
	c, opener := newTestClient(t, dev)

	st, err := c.GetStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Online)
	assert.Equal(t, escpos.PaperNone, st.PaperLevel)
	assert.Equal(t, perr.Error(), st.Error)

	// The connection is dropped and the next query reconnects
	assert.Equal(t, 1, dev.closed)
	_, _ = c.GetStatus(context.Background())
	assert.Equal(t, 2, opener.opened)
}

func TestGetStatusTransportError(t *testing.T) {
	dev := &fakeDevice{onlineFn: func() (bool, error) {
		return false, io.ErrUnexpectedEOF
	}}
	c, opener := newTestClient(t, dev)

	_, err := c.GetStatus(context.Background())

	var cerr *CommunicationError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, 1, dev.closed)

	_, _ = c.GetStatus(context.Background())
	assert.Equal(t, 2, opener.opened)
}

// statusServer emulates a network printer answering DLE EOT requests.
// The first online request on the first connection is answered after delay.
func statusServer(t *testing.T, delay time.Duration, paper byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	var conns atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			late := conns.Add(1) == 1
			go func() {
				defer conn.Close()
				r := bufio.NewReader(conn)
				for {
					b, err := r.ReadByte()
					if err != nil {
						return
					}
					if b != 0x10 {
						continue
					}
					if b, err = r.ReadByte(); err != nil {
						return
					} else if b != 0x04 {
						continue
					}
					kind, err := r.ReadByte()
					if err != nil {
						return
					}
					switch kind {
					case escpos.StatusPrinter:
						if late {
							late = false
							time.Sleep(delay)
						}
						conn.Write([]byte{0x16})
					case escpos.StatusPaper:
						conn.Write([]byte{paper})
					}
				}
			}()
		}
	}()
	return ln.Addr().String()
}

func TestGetStatusIgnoresLateAnswer(t *testing.T) {
	addr := statusServer(t, 300*time.Millisecond, 0x7E)

	cfg := DefaultConfig(addr)
	cfg.CodePage = ""
	cfg.StatusTimeout = 100 * time.Millisecond
	c := New(cfg)
	ctx := context.Background()
	defer c.Disconnect(ctx)

	st, err := c.GetStatus(ctx)
	require.NoError(t, err)
	assert.False(t, st.Online)
	assert.NotEmpty(t, st.Error)

	// let the late online byte arrive
	time.Sleep(300 * time.Millisecond)

	for i := 0; i < 3; i++ {
		st, err = c.GetStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, Status{Online: true, PaperLevel: escpos.PaperNone}, st, "poll %d", i+2)
	}
}

func TestTestConnectionAlwaysCloses(t *testing.T) {
	dev := &fakeDevice{online: true, level: escpos.PaperOK}
	c, _ := newTestClient(t, dev)

	st, err := c.TestConnection(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Online)
	assert.Equal(t, 1, dev.closed)

	dev.onlineFn = func() (bool, error) { return false, errors.New("reset by peer") }
	_, err = c.TestConnection(context.Background())

	var cerr *CommunicationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "testing printer connection", cerr.Op)
	assert.Equal(t, 2, dev.closed)
}

func TestTestConnectionUnreachable(t *testing.T) {
	opener := &fakeOpener{err: errors.New("no route to host")}
	c := New(DefaultConfig("192.0.2.10"), WithOpener(opener.Open))

	_, err := c.TestConnection(context.Background())

	var cerr *CommunicationError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, err.Error(), "no route to host")
}

func TestPrintQR(t *testing.T) {
	dev := &fakeDevice{}
	c, _ := newTestClient(t, dev)

	job := NewQRJob("https://example.com")
	job.Size = 8
	job.Center = true
	job.Cut = false
	require.NoError(t, c.PrintQR(context.Background(), job))

	assert.Equal(t, []string{`qr "https://example.com" 8 center=true`, "print"}, dev.Calls())

	job.Size = 17
	var perr *Error
	assert.ErrorAs(t, c.PrintQR(context.Background(), job), &perr)
}

func TestOpenDrawer(t *testing.T) {
	dev := &fakeDevice{}
	c, opener := newTestClient(t, dev)
	ctx := context.Background()

	require.NoError(t, c.OpenDrawer(ctx, 1))
	assert.Equal(t, []string{"drawer 1 2", "print"}, dev.Calls())

	err := c.OpenDrawer(ctx, 2)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, err.Error(), "invalid drawer pin")
	assert.Equal(t, 1, opener.opened)
}

func TestOpenDrawerWriteFailure(t *testing.T) {
	dev := &fakeDevice{writeErr: errors.New("broken pipe")}
	c, _ := newTestClient(t, dev)

	err := c.OpenDrawer(context.Background(), 0)

	var cerr *CommunicationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "error opening cash drawer - broken pipe", err.Error())
	assert.Equal(t, 1, dev.closed)
}

func TestPrintFailureIsCommunicationError(t *testing.T) {
	dev := &fakeDevice{writeErr: errors.New("broken pipe")}
	c, _ := newTestClient(t, dev)

	err := c.PrintQR(context.Background(), NewQRJob("abc"))

	var cerr *CommunicationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "error printing QR code - broken pipe", err.Error())
	assert.Equal(t, 1, dev.closed)
}

func writePNG(t *testing.T, w io.Writer, width, height int) {
	t.Helper()
	require.NoError(t, png.Encode(w, image.NewGray(image.Rect(0, 0, width, height))))
}

func TestPrintImageResizes(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		want          string
	}{
		{name: "wider than max", width: 1024, height: 300, want: "image 512x150 center=true"},
		{name: "rounds height", width: 600, height: 301, want: "image 512x257 center=true"},
		{name: "within limit", width: 320, height: 200, want: "image 320x200 center=true"},
		{name: "exactly max", width: 512, height: 10, want: "image 512x10 center=true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := filepath.Join(t.TempDir(), "logo.png")
			f, err := os.Create(file)
			require.NoError(t, err)
			writePNG(t, f, tt.width, tt.height)
			require.NoError(t, f.Close())

			dev := &fakeDevice{}
			c, _ := newTestClient(t, dev)

			job := NewImageJob(file)
			job.Center = true
			require.NoError(t, c.PrintImage(context.Background(), job))

			assert.Equal(t, []string{tt.want, "cut", "print"}, dev.Calls())
		})
	}
}

func TestPrintImageMissingFile(t *testing.T) {
	dev := &fakeDevice{}
	c, _ := newTestClient(t, dev)

	err := c.PrintImage(context.Background(), NewImageJob(filepath.Join(t.TempDir(), "nope.png")))

	var cerr *CommunicationError
	require.ErrorAs(t, err, &cerr)
	assert.Empty(t, dev.Calls())
}

func TestPrintImageFromURL(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/logo.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		writePNG(t, w, 800, 400)
	}))
	defer srv.Close()

	dev := &fakeDevice{}
	c, _ := newTestClient(t, dev)

	require.NoError(t, c.PrintImage(context.Background(), NewImageJob(srv.URL+"/logo.png")))
	assert.Equal(t, []string{"image 512x256 center=false", "cut", "print"}, dev.Calls())

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "downloaded image must be removed")

	err = c.PrintImage(context.Background(), NewImageJob(srv.URL+"/missing.png"))
	var cerr *CommunicationError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, err.Error(), "HTTP 404")

	entries, err = os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPrintImageFromURLRemovesFileOnFailure(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writePNG(t, w, 10, 10)
	}))
	defer srv.Close()

	dev := &fakeDevice{writeErr: errors.New("broken pipe")}
	c, _ := newTestClient(t, dev)

	err := c.PrintImage(context.Background(), NewImageJob(srv.URL+"/img"))
	require.Error(t, err)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCallsAreSerialized(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	dev := &fakeDevice{onlineFn: func() (bool, error) {
		close(started)
		<-release
		return true, nil
	}}
	c, _ := newTestClient(t, dev)

	go func() {
		_, _ = c.GetStatus(context.Background())
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.PrintQR(ctx, NewQRJob("abc"))

	var cerr *CommunicationError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, dev.Calls())

	close(release)
	require.NoError(t, c.PrintQR(context.Background(), NewQRJob("abc")))
}

func TestFitWidth(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 1000, 333))

	out := FitWidth(img, 500)
	assert.Equal(t, 500, out.Bounds().Dx())
	assert.Equal(t, 167, out.Bounds().Dy())

	assert.Same(t, img, FitWidth(img, 1000))
	assert.Same(t, img, FitWidth(img, 0))
}

func TestIsURL(t *testing.T) {
	assert.True(t, isURL("http://example.com/a.png"))
	assert.True(t, isURL("HTTPS://example.com/a.png"))
	assert.False(t, isURL("/config/www/logo.png"))
	assert.False(t, isURL("ftp://example.com/a.png"))
	assert.False(t, isURL("C:\\images\\a.png"))
}

func TestParseSerialHost(t *testing.T) {
	name, baud, err := parseSerialHost("/dev/ttyUSB0")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", name)
	assert.Equal(t, escpos.DefaultBaudRate, baud)

	name, baud, err = parseSerialHost("COM3@9600")
	require.NoError(t, err)
	assert.Equal(t, "COM3", name)
	assert.Equal(t, 9600, baud)

	_, _, err = parseSerialHost("COM3@fast")
	assert.Error(t, err)

	_, _, err = parseSerialHost("")
	assert.Error(t, err)
}
