package entity

import "sync"

// Bus fans state changes out to subscribers. A subscriber that does not keep
// up loses states rather than blocking the poller.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan State
	next int
}

func NewBus() *Bus {
	return &Bus{subs: map[int]chan State{}}
}

// Publish delivers s to every subscriber with room in its buffer
func (b *Bus) Publish(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Subscribe returns a channel of states and a function that ends the
// subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan State, func()) {
	ch := make(chan State, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}
