package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-game-service/internal/domain"
)

// Games are stored as: HSET game:{gameID} version {n} data {json}
var (
	createGameScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

	saveGameScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if not current then
  return -1
end
if current ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[2], 'data', ARGV[3])
if tonumber(ARGV[4]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[4])
end
return 1
`)
)

// GameStore is a Redis implementation of app.GameRepository. Save is a
// compare-and-set executed server side, so any number of instances can share it.
type GameStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewGameStore keeps every game for ttl after its last save; zero keeps games forever.
func NewGameStore(client *redis.Client, ttl time.Duration) *GameStore {
	return &GameStore{client: client, ttl: ttl}
}

func (s *GameStore) Create(ctx context.Context, game *domain.Game) error {
	data, err := json.Marshal(game)
	if err != nil {
		return err
	}
	created, err := createGameScript.Run(ctx, s.client, []string{s.key(game.ID)},
		game.Version, data, s.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if created == 0 {
		return domain.ErrGameConflict
	}
	return nil
}

func (s *GameStore) Load(ctx context.Context, gameID string) (*domain.Game, error) {
	values, err := s.client.HMGet(ctx, s.key(gameID), "version", "data").Result()
	if err != nil {
		return nil, err
	}
	data, ok := values[1].(string)
	if !ok {
		return nil, domain.ErrGameNotFound
	}
	var game domain.Game
	if err := json.Unmarshal([]byte(data), &game); err != nil {
		return nil, err
	}
	if version, ok := values[0].(string); ok {
		if err := json.Unmarshal([]byte(version), &game.Version); err != nil {
			return nil, err
		}
	}
	return &game, nil
}

func (s *GameStore) Save(ctx context.Context, game *domain.Game) error {
	next := *game
	next.Version = game.Version + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return err
	}
	saved, err := saveGameScript.Run(ctx, s.client, []string{s.key(game.ID)},
		game.Version, next.Version, data, s.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	switch saved {
	case -1:
		return domain.ErrGameNotFound
	case 0:
		return domain.ErrGameConflict
	}
	game.Version = next.Version
	return nil
}

func (s *GameStore) key(gameID string) string {
	return "game:" + gameID
}
