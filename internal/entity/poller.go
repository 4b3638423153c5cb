package entity

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/schawnndev/receiptprinter/internal/printer"
)

const DefaultPollInterval = 30 * time.Second

// StatusSource is read once per poll cycle
type StatusSource interface {
	GetStatus(ctx context.Context) (printer.Status, error)
}

// Poller refreshes the sensors of one entry on a fixed interval and
// publishes the states that changed.
type Poller struct {
	source   StatusSource
	sensors  []Sensor
	interval time.Duration
	publish  func(State)
	log      *logrus.Entry

	mu      sync.Mutex
	last    map[string]State
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewPoller returns a stopped poller. A nil publish discards changes.
func NewPoller(source StatusSource, sensors []Sensor, interval time.Duration, publish func(State), log *logrus.Entry) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if publish == nil {
		publish = func(State) {}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Poller{
		source:   source,
		sensors:  sensors,
		interval: interval,
		publish:  publish,
		log:      log,
		last:     map[string]State{},
	}
}

// Start polls once right away, then every interval until Stop
func (p *Poller) Start(parent context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go p.loop(ctx, done)
}

// Stop ends polling and waits for an in-flight poll to return
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.running = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.Refresh(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Refresh runs one poll cycle and returns the states that changed
func (p *Poller) Refresh(ctx context.Context) []State {
	st, err := p.source.GetStatus(ctx)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		p.log.WithError(err).Warn("printer status update failed")
	}
	reading := Reading{Status: st, Err: err}

	p.mu.Lock()
	var changed []State
	for _, s := range p.sensors {
		s.Update(reading)
		cur := s.State()
		if prev, ok := p.last[cur.UniqueID]; ok && prev.equal(cur) {
			continue
		}
		p.last[cur.UniqueID] = cur
		changed = append(changed, cur)
	}
	p.mu.Unlock()

	for _, s := range changed {
		p.log.WithFields(logrus.Fields{"entity": s.UniqueID, "state": s.Value}).Debug("state changed")
		p.publish(s)
	}
	return changed
}

// States returns the current state of every sensor
func (p *Poller) States() []State {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]State, 0, len(p.sensors))
	for _, s := range p.sensors {
		out = append(out, s.State())
	}
	return out
}
