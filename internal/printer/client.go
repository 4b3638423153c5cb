package printer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/kovidgoyal/imaging"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/schawnndev/receiptprinter/escpos"
)

// Defaults applied by DefaultConfig
const (
	DefaultColumnsFontA  = 42
	DefaultColumnsFontB  = 56
	DefaultImageMaxWidth = 512
	DefaultCodePage      = "cp437"
	DefaultTimeout       = 10 * time.Second
	DefaultStatusTimeout = 2 * time.Second
)

// Config describes one printer. It is not modified after New.
type Config struct {
	Host          string
	ColumnsFontA  int
	ColumnsFontB  int
	ImageMaxWidth int
	CodePage      string
	Timeout       time.Duration
	StatusTimeout time.Duration
}

// DefaultConfig returns the settings used for a printer at host unless an entry overrides them
func DefaultConfig(host string) Config {
	return Config{
		Host:          host,
		ColumnsFontA:  DefaultColumnsFontA,
		ColumnsFontB:  DefaultColumnsFontB,
		ImageMaxWidth: DefaultImageMaxWidth,
		CodePage:      DefaultCodePage,
		Timeout:       DefaultTimeout,
		StatusTimeout: DefaultStatusTimeout,
	}
}

// Status is a point-in-time reading of the printer state
type Status struct {
	Online     bool              `json:"online"`
	PaperLevel escpos.PaperLevel `json:"paper_status"`
	Error      string            `json:"error,omitempty"`
}

// Client drives a single printer. It owns at most one device connection,
// opened on first use and kept until Disconnect.
//
// Device work runs on a separate goroutine, one call at a time; callers
// wait for their turn and for the result, or give up when ctx is done.
// A call that has reached the device is finished even if its caller gave up.
type Client struct {
	cfg    Config
	open   Opener
	http   *http.Client
	log    *logrus.Entry
	worker *semaphore.Weighted

	device Device // guarded by worker
}

// Option configures a Client
type Option func(*Client)

// WithOpener replaces the function used to connect to the device
func WithOpener(open Opener) Option {
	return func(c *Client) {
		c.open = open
	}
}

// WithHTTPClient sets the client used to download images
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger; the host is added as a field
func WithLogger(log *logrus.Entry) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New returns a client for cfg. No connection is made until the first call.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		open:   OpenDevice,
		http:   &http.Client{Timeout: 30 * time.Second},
		log:    logrus.NewEntry(logrus.StandardLogger()),
		worker: semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("host", cfg.Host)
	return c
}

// Config returns the configuration the client was created with
func (c *Client) Config() Config {
	return c.cfg
}

// run executes fn on the worker and waits for it.
func (c *Client) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.worker.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer c.worker.Release(1)
		done <- fn(context.WithoutCancel(ctx))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ensureOpen must run on the worker
func (c *Client) ensureOpen(ctx context.Context) (Device, error) {
	if c.device != nil {
		return c.device, nil
	}
	dev, err := c.open(ctx, c.cfg)
	if err != nil {
		return nil, err
	}
	c.log.Debug("connected to printer")
	c.device = dev
	return dev, nil
}

// closeDevice must run on the worker
func (c *Client) closeDevice() {
	if c.device == nil {
		return
	}
	if err := c.device.Close(); err != nil {
		c.log.WithError(err).Debug("closing printer connection")
	}
	c.device = nil
}

// fail drops a connection that may be broken so the next call reconnects.
// It must run on the worker.
func (c *Client) fail(op string, err error) error {
	c.closeDevice()
	return &CommunicationError{Op: op, Err: err}
}

// Connect opens the device connection if it is not open yet.
func (c *Client) Connect(ctx context.Context) error {
	err := c.run(ctx, func(ctx context.Context) error {
		_, err := c.ensureOpen(ctx)
		return err
	})
	if err != nil {
		return &CommunicationError{Op: "connecting to printer", Err: err}
	}
	return nil
}

// Disconnect closes the device connection. Errors are logged, never returned.
func (c *Client) Disconnect(ctx context.Context) {
	err := c.run(ctx, func(context.Context) error {
		c.closeDevice()
		return nil
	})
	if err != nil {
		c.log.WithError(err).Debug("disconnect abandoned")
	}
}

// GetStatus queries the online flag and the paper level. When the printer
// answers badly or not at all the returned status is offline with Error set
// and err is nil; other failures are returned as *CommunicationError.
func (c *Client) GetStatus(ctx context.Context) (Status, error) {
	var st Status
	err := c.run(ctx, func(ctx context.Context) error {
		var err error
		st, err = c.queryStatus(ctx)
		return err
	})
	if err != nil {
		var cerr *CommunicationError
		if errors.As(err, &cerr) {
			return Status{}, err
		}
		return Status{}, &CommunicationError{Op: "getting printer status", Err: err}
	}
	return st, nil
}

// TestConnection is GetStatus on a connection that is always closed afterwards.
func (c *Client) TestConnection(ctx context.Context) (Status, error) {
	var st Status
	err := c.run(ctx, func(ctx context.Context) error {
		defer c.closeDevice()
		var err error
		st, err = c.queryStatus(ctx)
		return err
	})
	if err != nil {
		var cerr *CommunicationError
		if errors.As(err, &cerr) {
			return Status{}, &CommunicationError{Op: "testing printer connection", Err: cerr.Err}
		}
		return Status{}, &CommunicationError{Op: "testing printer connection", Err: err}
	}
	return st, nil
}

// queryStatus must run on the worker
func (c *Client) queryStatus(ctx context.Context) (Status, error) {
	dev, err := c.ensureOpen(ctx)
	if err != nil {
		return Status{}, &CommunicationError{Op: "getting printer status", Err: err}
	}

	online, err := dev.IsOnline()
	level := escpos.PaperNone
	if err == nil {
		level, err = dev.PaperStatus()
	}
	if err != nil {
		var perr *escpos.Error
		if errors.As(err, &perr) {
			c.log.WithError(err).Debug("printer status unavailable")
			// a late or garbled answer may still be in flight on this connection
			c.closeDevice()
			return Status{Online: false, PaperLevel: escpos.PaperNone, Error: err.Error()}, nil
		}
		return Status{}, c.fail("getting printer status", err)
	}

	return Status{Online: online, PaperLevel: level}, nil
}

// columns returns the line width for font, halved for double width text
func (c *Client) columns(font Font, doubleWidth bool) int {
	columns := c.cfg.ColumnsFontA
	if font == FontB {
		columns = c.cfg.ColumnsFontB
	}
	if doubleWidth {
		columns /= 2
	}
	return columns
}

// PrintText prints job.Text with the job's formatting. Wrapped text is
// printed line by line; blank lines are kept.
func (c *Client) PrintText(ctx context.Context, job TextJob) error {
	const op = "printing text"
	if err := job.Validate(); err != nil {
		return err
	}

	err := c.run(ctx, func(ctx context.Context) error {
		dev, err := c.ensureOpen(ctx)
		if err != nil {
			return c.fail(op, err)
		}
		if err := c.renderText(dev, job); err != nil {
			return c.fail(op, err)
		}
		return nil
	})
	return wrapErr(op, err)
}

func (c *Client) renderText(dev Device, job TextJob) error {
	if err := dev.SetStyle(job.style()); err != nil {
		return err
	}

	if job.Wrap {
		columns := c.columns(job.Font, job.DoubleWidth)
		for _, line := range strings.Split(job.Text, "\n") {
			var err error
			if line != "" {
				_, err = dev.BlockText(line, columns)
			} else {
				_, err = dev.Text("\n")
			}
			if err != nil {
				return err
			}
		}
	} else {
		if _, err := dev.Text(job.Text + "\n"); err != nil {
			return err
		}
	}

	return finish(dev, job.Cut)
}

// PrintImage prints a local image or one downloaded from an http(s) URL,
// scaled down to the configured maximum width.
func (c *Client) PrintImage(ctx context.Context, job ImageJob) error {
	const op = "printing image"
	if err := job.Validate(); err != nil {
		return err
	}

	source := job.Source
	if isURL(source) {
		tmp, err := c.download(ctx, source)
		if err != nil {
			return wrapErr(op, err)
		}
		defer func() {
			if err := os.Remove(tmp); err != nil {
				c.log.WithError(err).Debug("removing downloaded image")
			}
		}()
		source = tmp
	}

	err := c.run(ctx, func(ctx context.Context) error {
		img, err := imaging.Open(source)
		if err != nil {
			return &CommunicationError{Op: op, Err: err}
		}
		img = FitWidth(img, c.cfg.ImageMaxWidth)

		dev, err := c.ensureOpen(ctx)
		if err != nil {
			return c.fail(op, err)
		}
		if _, err := dev.Image(img, job.Center); err != nil {
			return c.fail(op, err)
		}
		if err := finish(dev, job.Cut); err != nil {
			return c.fail(op, err)
		}
		return nil
	})
	return wrapErr(op, err)
}

// PrintQR prints a QR code
func (c *Client) PrintQR(ctx context.Context, job QRJob) error {
	const op = "printing QR code"
	if err := job.Validate(); err != nil {
		return err
	}

	err := c.run(ctx, func(ctx context.Context) error {
		dev, err := c.ensureOpen(ctx)
		if err != nil {
			return c.fail(op, err)
		}
		if _, err := dev.QR(job.Content, uint8(job.Size), job.Center); err != nil {
			return c.fail(op, err)
		}
		if err := finish(dev, job.Cut); err != nil {
			return c.fail(op, err)
		}
		return nil
	})
	return wrapErr(op, err)
}

// DrawerPulse is the kick pulse length sent to the cash drawer, in the
// printer's drawer time units
const DrawerPulse = 2

// OpenDrawer kicks the cash drawer wired to connector pin 0 or 1
func (c *Client) OpenDrawer(ctx context.Context, pin int) error {
	const op = "opening cash drawer"
	if pin != 0 && pin != 1 {
		return &Error{Msg: fmt.Sprintf("invalid drawer pin %d: must be 0 or 1", pin)}
	}

	err := c.run(ctx, func(ctx context.Context) error {
		dev, err := c.ensureOpen(ctx)
		if err != nil {
			return c.fail(op, err)
		}
		if _, err := dev.OpenDrawer(uint8(pin), DrawerPulse); err != nil {
			return c.fail(op, err)
		}
		if err := dev.Print(); err != nil {
			return c.fail(op, err)
		}
		return nil
	})
	return wrapErr(op, err)
}

func finish(dev Device, cut bool) error {
	if cut {
		if _, err := dev.Cut(); err != nil {
			return err
		}
	}
	return dev.Print()
}

// wrapErr turns errors that are not already typed into a *CommunicationError
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var cerr *CommunicationError
	if errors.As(err, &cerr) {
		return err
	}
	return &CommunicationError{Op: op, Err: err}
}

// FitWidth scales img down to maxWidth keeping its aspect ratio.
// Images that already fit are returned unchanged.
func FitWidth(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	height := int(math.Round(float64(maxWidth) * float64(b.Dy()) / float64(b.Dx())))
	if height < 1 {
		height = 1
	}
	return imaging.Resize(img, maxWidth, height, imaging.Lanczos)
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// download stores the body of rawURL in a temporary file and returns its path.
func (c *Client) download(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &CommunicationError{Op: "downloading image", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &CommunicationError{
			Op:  "downloading image",
			Err: fmt.Errorf("failed to download image from %s: HTTP %d", rawURL, resp.StatusCode),
		}
	}

	suffix := path.Ext(req.URL.Path)
	if suffix == "" {
		suffix = ".jpg"
	}
	f, err := os.CreateTemp("", "receipt-printer-*"+suffix)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", &CommunicationError{Op: "downloading image", Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}

	c.log.WithField("url", rawURL).Debug("downloaded image")
	return f.Name(), nil
}
