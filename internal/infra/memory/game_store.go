package memory

import (
	"context"
	"encoding/json"
	"sync"

	"quiz-game-service/internal/domain"
)

// GameStore is an in-memory implementation of app.GameRepository. Games are
// kept encoded so callers never share state with the store.
type GameStore struct {
	mu    sync.RWMutex
	games map[string]storedGame
}

type storedGame struct {
	version int64
	data    []byte
}

func NewGameStore() *GameStore {
	return &GameStore{
		games: make(map[string]storedGame),
	}
}

func (s *GameStore) Create(_ context.Context, game *domain.Game) error {
	data, err := json.Marshal(game)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[game.ID]; ok {
		return domain.ErrGameConflict
	}
	s.games[game.ID] = storedGame{version: game.Version, data: data}
	return nil
}

func (s *GameStore) Load(_ context.Context, gameID string) (*domain.Game, error) {
	s.mu.RLock()
	stored, ok := s.games[gameID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrGameNotFound
	}
	var game domain.Game
	if err := json.Unmarshal(stored.data, &game); err != nil {
		return nil, err
	}
	game.Version = stored.version
	return &game, nil
}

// Save replaces the game if nobody saved since it was loaded.
func (s *GameStore) Save(_ context.Context, game *domain.Game) error {
	next := *game
	next.Version = game.Version + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.games[game.ID]
	if !ok {
		return domain.ErrGameNotFound
	}
	if stored.version != game.Version {
		return domain.ErrGameConflict
	}
	s.games[game.ID] = storedGame{version: next.Version, data: data}
	game.Version = next.Version
	return nil
}
