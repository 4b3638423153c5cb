// Package setup implements the wizard that adds a printer and the form that
// edits its options afterwards.
package setup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/schawnndev/receiptprinter/internal/config"
	"github.com/schawnndev/receiptprinter/internal/printer"
)

// Input bounds and defaults
const (
	DefaultName   = "Receipt Printer"
	MinColumns    = 1
	MaxColumns    = 100
	MinImageWidth = 1
	MaxImageWidth = 1000
)

// Field names, also used as keys of Result.Errors
const (
	FieldName          = "name"
	FieldHost          = "host"
	FieldColumnsFontA  = "columns_font_a"
	FieldColumnsFontB  = "columns_font_b"
	FieldImageMaxWidth = "image_max_width"
	FieldBase          = "base"
)

// Error keys
const (
	ErrKeyConnection = "connection"
	ErrKeyUnknown    = "unknown"
	ErrKeyRequired   = "required"
	ErrKeyOutOfRange = "out_of_range"
)

const ReasonAlreadyConfigured = "already_configured"

var ErrFlowFinished = errors.New("setup flow already finished")

type State string

const (
	CollectingInput State = "collecting_input"
	Done            State = "done"
)

type ResultType string

const (
	ResultForm        ResultType = "form"
	ResultCreateEntry ResultType = "create_entry"
	ResultAbort       ResultType = "abort"
)

// Input is what the user fills in
type Input struct {
	Name          string `json:"name"`
	Host          string `json:"host"`
	ColumnsFontA  int    `json:"columns_font_a"`
	ColumnsFontB  int    `json:"columns_font_b"`
	ImageMaxWidth int    `json:"image_max_width"`
}

func DefaultInput() Input {
	return Input{
		Name:          DefaultName,
		ColumnsFontA:  printer.DefaultColumnsFontA,
		ColumnsFontB:  printer.DefaultColumnsFontB,
		ImageMaxWidth: printer.DefaultImageMaxWidth,
	}
}

// Result tells the front end what to show next
type Result struct {
	Type   ResultType        `json:"type"`
	StepID string            `json:"step_id,omitempty"`
	Input  Input             `json:"input"`
	Errors map[string]string `json:"errors,omitempty"`
	Reason string            `json:"reason,omitempty"`
	Entry  *config.Entry     `json:"entry,omitempty"`
}

// ConnectionTester checks that a printer answers at host
type ConnectionTester func(ctx context.Context, host string) error

// PrinterTester runs printer.Client.TestConnection against a fresh client for host
func PrinterTester(base printer.Config, opts ...printer.Option) ConnectionTester {
	return func(ctx context.Context, host string) error {
		cfg := base
		cfg.Host = host
		_, err := printer.New(cfg, opts...).TestConnection(ctx)
		return err
	}
}

// EntryStore is the part of config.Store the wizard needs
type EntryStore interface {
	FindByHost(host string) (config.Entry, bool)
	Add(e config.Entry) (config.Entry, error)
}

// Flow walks one user through adding a printer. Each Submit runs a single
// connection test; failures put the form back up with an error.
type Flow struct {
	store EntryStore
	test  ConnectionTester
	log   *logrus.Entry

	mu    sync.Mutex
	state State
}

func NewFlow(store EntryStore, test ConnectionTester, log *logrus.Entry) *Flow {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Flow{
		store: store,
		test:  test,
		log:   log.WithField("flow", "setup"),
		state: CollectingInput,
	}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Start returns the empty form
func (f *Flow) Start() Result {
	return form("user", DefaultInput(), nil)
}

// Submit validates in, tests the connection and creates the entry.
func (f *Flow) Submit(ctx context.Context, in Input) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == Done {
		return Result{}, ErrFlowFinished
	}

	in = in.normalized()
	if errs := in.validate(); len(errs) > 0 {
		return form("user", in, errs), nil
	}

	if err := f.test(ctx, in.Host); err != nil {
		var cerr *printer.CommunicationError
		if errors.As(err, &cerr) {
			f.log.WithError(err).WithField("host", in.Host).Error("printer connection test failed")
			return form("user", in, map[string]string{FieldBase: ErrKeyConnection}), nil
		}
		f.log.WithError(err).WithField("host", in.Host).Error("unexpected error testing printer connection")
		return form("user", in, map[string]string{FieldBase: ErrKeyUnknown}), nil
	}

	if _, ok := f.store.FindByHost(in.Host); ok {
		f.state = Done
		return abort(in), nil
	}

	entry, err := f.store.Add(config.Entry{
		Title: in.Name,
		Data: config.EntryData{
			Host:          in.Host,
			Name:          in.Name,
			ColumnsFontA:  in.ColumnsFontA,
			ColumnsFontB:  in.ColumnsFontB,
			ImageMaxWidth: in.ImageMaxWidth,
		},
	})
	if errors.Is(err, config.ErrDuplicateHost) {
		f.state = Done
		return abort(in), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("saving config entry: %w", err)
	}

	f.state = Done
	f.log.WithFields(logrus.Fields{"entry": entry.ID, "host": entry.Data.Host}).Info("printer added")
	return Result{Type: ResultCreateEntry, Input: in, Entry: &entry}, nil
}

func form(step string, in Input, errs map[string]string) Result {
	return Result{Type: ResultForm, StepID: step, Input: in, Errors: errs}
}

func abort(in Input) Result {
	return Result{Type: ResultAbort, Input: in, Reason: ReasonAlreadyConfigured}
}

// normalized trims text fields and fills unset numbers with their defaults
func (in Input) normalized() Input {
	def := DefaultInput()
	in.Name = strings.TrimSpace(in.Name)
	in.Host = strings.TrimSpace(in.Host)
	if in.ColumnsFontA == 0 {
		in.ColumnsFontA = def.ColumnsFontA
	}
	if in.ColumnsFontB == 0 {
		in.ColumnsFontB = def.ColumnsFontB
	}
	if in.ImageMaxWidth == 0 {
		in.ImageMaxWidth = def.ImageMaxWidth
	}
	return in
}

func (in Input) validate() map[string]string {
	errs := map[string]string{}
	if in.Name == "" {
		errs[FieldName] = ErrKeyRequired
	}
	if in.Host == "" {
		errs[FieldHost] = ErrKeyRequired
	}
	validateSettings(errs, in.ColumnsFontA, in.ColumnsFontB, in.ImageMaxWidth)
	return errs
}

func validateSettings(errs map[string]string, columnsA, columnsB, imageWidth int) {
	if columnsA < MinColumns || columnsA > MaxColumns {
		errs[FieldColumnsFontA] = ErrKeyOutOfRange
	}
	if columnsB < MinColumns || columnsB > MaxColumns {
		errs[FieldColumnsFontB] = ErrKeyOutOfRange
	}
	if imageWidth < MinImageWidth || imageWidth > MaxImageWidth {
		errs[FieldImageMaxWidth] = ErrKeyOutOfRange
	}
}
