package app

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"quiz-game-service/internal/domain"
)

// ParticipantChannel is the private broadcast channel of one participant.
func ParticipantChannel(gameID, participantID string) string {
	return "game:" + gameID + ":participant:" + participantID
}

type outbound struct {
	channel string
	message []byte
}

// EventPublisher fans rendered events out to every participant. Rendering is
// synchronous; delivery runs on workers picked by game id, so one game's
// events stay in order while games never wait on each other. Delivery is at
// most once: failures are logged per recipient and a full worker queue drops.
type EventPublisher struct {
	broadcaster  Broadcaster
	orchestrator *EventOrchestrator
	now          func() time.Time

	mu      sync.RWMutex
	closed  bool
	workers []chan []outbound
	wg      sync.WaitGroup
}

func NewEventPublisher(broadcaster Broadcaster, orchestrator *EventOrchestrator, workers, buffer int) *EventPublisher {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 64
	}
	p := &EventPublisher{
		broadcaster:  broadcaster,
		orchestrator: orchestrator,
		now:          time.Now,
		workers:      make([]chan []outbound, workers),
	}
	for i := range p.workers {
		p.workers[i] = make(chan []outbound, buffer)
		p.wg.Add(1)
		go p.run(p.workers[i])
	}
	return p
}

// Publish renders the current state of game for each participant and queues
// delivery. answers are the current question's submissions, if any.
func (p *EventPublisher) Publish(game *domain.Game, answers []domain.Answer) {
	now := p.now()
	batch := make([]outbound, 0, len(game.Participants))
	for _, participant := range game.Participants {
		var (
			ev  Event
			err error
		)
		if participant.IsHost() {
			ev = p.orchestrator.HostEvent(game, answers, now)
		} else {
			ev, err = p.orchestrator.PlayerEvent(game, participant.ID, answers, now)
		}
		if err != nil {
			log.Printf("render event for %s in game %s: %v", participant.ID, game.ID, err)
			continue
		}
		message, err := json.Marshal(ev)
		if err != nil {
			log.Printf("marshal event for %s in game %s: %v", participant.ID, game.ID, err)
			continue
		}
		batch = append(batch, outbound{channel: ParticipantChannel(game.ID, participant.ID), message: message})
	}
	if len(batch) == 0 {
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.workers[p.worker(game.ID)] <- batch:
	default:
		log.Printf("publish queue full, dropping %d events for game %s", len(batch), game.ID)
	}
}

// Close drains queued batches and stops the workers. Later publishes are ignored.
func (p *EventPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, ch := range p.workers {
		close(ch)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *EventPublisher) worker(gameID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(gameID))
	return int(h.Sum32() % uint32(len(p.workers)))
}

func (p *EventPublisher) run(queue <-chan []outbound) {
	defer p.wg.Done()
	for batch := range queue {
		for _, msg := range batch {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := p.broadcaster.Publish(ctx, msg.channel, msg.message); err != nil {
				log.Printf("publish to %s failed: %v", msg.channel, err)
			}
			cancel()
		}
	}
}
