package redis

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Broadcaster fans messages out through Redis pub/sub so a participant can be
// connected to any instance.
type Broadcaster struct {
	client *redis.Client
}

func NewBroadcaster(client *redis.Client) *Broadcaster {
	return &Broadcaster{client: client}
}

func (b *Broadcaster) Publish(ctx context.Context, channel string, message []byte) error {
	return b.client.Publish(ctx, channel, message).Err()
}

// Subscribe returns once Redis confirmed the subscription, so nothing
// published afterwards is missed.
func (b *Broadcaster) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan []byte, 16)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(out)
		messages := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
			wg.Wait()
		})
	}
	return out, cancel, nil
}
