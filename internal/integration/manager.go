// Package integration runs the configured printers: one client and one
// poller per config entry.
package integration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/schawnndev/receiptprinter/internal/config"
	"github.com/schawnndev/receiptprinter/internal/entity"
	"github.com/schawnndev/receiptprinter/internal/printer"
)

var (
	ErrNotLoaded     = errors.New("config entry is not loaded")
	ErrAlreadyLoaded = errors.New("config entry is already loaded")
)

// EntrySource is the part of config.Store the manager reads
type EntrySource interface {
	Get(id string) (config.Entry, bool)
	Entries() []config.Entry
}

type loaded struct {
	entry  config.Entry
	client *printer.Client
	poller *entity.Poller
}

type Manager struct {
	store       EntrySource
	base        printer.Config
	interval    time.Duration
	printerOpts []printer.Option
	bus         *entity.Bus
	log         *logrus.Entry

	mu      sync.RWMutex
	entries map[string]*loaded
}

type Option func(*Manager)

func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.interval = d
	}
}

// WithPrinterOptions adds options to every client the manager creates
func WithPrinterOptions(opts ...printer.Option) Option {
	return func(m *Manager) {
		m.printerOpts = append(m.printerOpts, opts...)
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// NewManager returns a manager that builds printer configs from base,
// overriding host and entry settings.
func NewManager(store EntrySource, base printer.Config, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		base:     base,
		interval: entity.DefaultPollInterval,
		bus:      entity.NewBus(),
		log:      logrus.NewEntry(logrus.StandardLogger()),
		entries:  map[string]*loaded{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) printerConfig(e config.Entry) printer.Config {
	cfg := m.base
	cfg.Host = e.Data.Host
	s := e.Settings()
	if s.ColumnsFontA > 0 {
		cfg.ColumnsFontA = s.ColumnsFontA
	}
	if s.ColumnsFontB > 0 {
		cfg.ColumnsFontB = s.ColumnsFontB
	}
	if s.ImageMaxWidth > 0 {
		cfg.ImageMaxWidth = s.ImageMaxWidth
	}
	return cfg
}

// SetupEntry creates the entry's client, connects it and starts polling.
// A printer that cannot be reached yet is still set up; it is reported
// offline until it answers.
func (m *Manager) SetupEntry(ctx context.Context, e config.Entry) error {
	if _, ok := m.get(e.ID); ok {
		return ErrAlreadyLoaded
	}

	log := m.log.WithFields(logrus.Fields{"entry": e.ID, "host": e.Data.Host})
	opts := append([]printer.Option{printer.WithLogger(log)}, m.printerOpts...)
	client := printer.New(m.printerConfig(e), opts...)

	if err := client.Connect(ctx); err != nil {
		log.WithError(err).Warn("printer not reachable, will retry on next poll")
	}

	m.mu.Lock()
	if _, ok := m.entries[e.ID]; ok {
		m.mu.Unlock()
		client.Disconnect(ctx)
		return ErrAlreadyLoaded
	}
	poller := entity.NewPoller(client, entity.NewSensors(e), m.interval, m.bus.Publish, log)
	m.entries[e.ID] = &loaded{entry: e, client: client, poller: poller}
	m.mu.Unlock()

	poller.Start(context.WithoutCancel(ctx))
	log.Info("printer set up")
	return nil
}

// SetupAll sets up every stored entry
func (m *Manager) SetupAll(ctx context.Context) error {
	var errs []error
	for _, e := range m.store.Entries() {
		if err := m.SetupEntry(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UnloadEntry stops polling and disconnects the printer
func (m *Manager) UnloadEntry(ctx context.Context, id string) error {
	m.mu.Lock()
	l, ok := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()

	if !ok {
		return ErrNotLoaded
	}

	l.poller.Stop()
	l.client.Disconnect(ctx)
	m.log.WithField("entry", id).Info("printer unloaded")
	return nil
}

// ReloadEntry unloads the entry if it is loaded and sets it up again from the store
func (m *Manager) ReloadEntry(ctx context.Context, id string) error {
	e, ok := m.store.Get(id)
	if !ok {
		return config.ErrEntryNotFound
	}
	if err := m.UnloadEntry(ctx, id); err != nil && !errors.Is(err, ErrNotLoaded) {
		return err
	}
	return m.SetupEntry(ctx, e)
}

// Shutdown unloads every entry
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.UnloadEntry(ctx, id)
	}
}

func (m *Manager) get(id string) (*loaded, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.entries[id]
	return l, ok
}

func (m *Manager) Client(id string) (*printer.Client, bool) {
	l, ok := m.get(id)
	if !ok {
		return nil, false
	}
	return l.client, true
}

// Entries returns the loaded entries
func (m *Manager) Entries() []config.Entry {
	var out []config.Entry
	for _, e := range m.store.Entries() {
		if _, ok := m.get(e.ID); ok {
			out = append(out, e)
		}
	}
	return out
}

// States returns the sensor states of a loaded entry
func (m *Manager) States(id string) ([]entity.State, error) {
	l, ok := m.get(id)
	if !ok {
		return nil, ErrNotLoaded
	}
	return l.poller.States(), nil
}

// Refresh polls the printer now and returns every sensor state
func (m *Manager) Refresh(ctx context.Context, id string) ([]entity.State, error) {
	l, ok := m.get(id)
	if !ok {
		return nil, ErrNotLoaded
	}
	l.poller.Refresh(ctx)
	return l.poller.States(), nil
}

// Subscribe streams state changes of every loaded entry
func (m *Manager) Subscribe(buffer int) (<-chan entity.State, func()) {
	return m.bus.Subscribe(buffer)
}
