package memory

import (
	"context"
	"sync"
)

// Broadcaster is an in-process implementation of app.Broadcaster for
// single-node deployments and tests.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]map[chan []byte]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[string]map[chan []byte]struct{})}
}

// Publish never blocks: a subscriber whose buffer is full loses its oldest
// message.
func (b *Broadcaster) Publish(_ context.Context, channel string, message []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers[channel] {
		select {
		case ch <- message:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- message
		}
	}
	return nil
}

func (b *Broadcaster) Subscribe(_ context.Context, channel string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 16)

	b.mu.Lock()
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[chan []byte]struct{})
	}
	b.subscribers[channel][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[channel]
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(b.subscribers, channel)
			}
		}
	}
	return ch, cancel, nil
}
