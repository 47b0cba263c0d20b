package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-game-service/internal/domain"
)

// Answers of a question task are stored as:
//
//	HSET game:{gameID}:task:{taskID}:answers {playerID} {json}
//	SET  game:{gameID}:task:{taskID}:sealed 1
var (
	submitAnswerScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return -1
end
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
  return 0
end
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

	sealAnswersScript = redis.NewScript(`
redis.call('SET', KEYS[2], '1', 'PX', ARGV[1])
return redis.call('HVALS', KEYS[1])
`)

	discardAnswersScript = redis.NewScript(`
redis.call('DEL', KEYS[1])
redis.call('SET', KEYS[2], '1', 'PX', ARGV[1])
return 1
`)
)

// AnswerLog is a Redis implementation of app.AnswerLog. Submit and Seal run
// as scripts, so an answer is either in the sealed set or rejected.
type AnswerLog struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAnswerLog expires answer keys ttl after the last write.
func NewAnswerLog(client *redis.Client, ttl time.Duration) *AnswerLog {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AnswerLog{client: client, ttl: ttl}
}

func (l *AnswerLog) Submit(ctx context.Context, gameID, taskID string, answer domain.Answer) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	res, err := submitAnswerScript.Run(ctx, l.client, l.keys(gameID, taskID),
		answer.PlayerID, data, l.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	switch res {
	case -1:
		return domain.ErrAnswerWindowClosed
	case 0:
		return domain.ErrAnswerAlreadySubmitted
	}
	return nil
}

func (l *AnswerLog) Seal(ctx context.Context, gameID, taskID string) ([]domain.Answer, error) {
	values, err := sealAnswersScript.Run(ctx, l.client, l.keys(gameID, taskID), l.ttl.Milliseconds()).StringSlice()
	if err != nil {
		return nil, err
	}
	return decodeAnswers(values)
}

func (l *AnswerLog) Snapshot(ctx context.Context, gameID, taskID string) ([]domain.Answer, error) {
	values, err := l.client.HVals(ctx, l.keys(gameID, taskID)[0]).Result()
	if err != nil {
		return nil, err
	}
	return decodeAnswers(values)
}

// Discard drops the answers but keeps the task sealed until the ttl runs out.
func (l *AnswerLog) Discard(ctx context.Context, gameID, taskID string) error {
	return discardAnswersScript.Run(ctx, l.client, l.keys(gameID, taskID), l.ttl.Milliseconds()).Err()
}

func (l *AnswerLog) keys(gameID, taskID string) []string {
	prefix := "game:" + gameID + ":task:" + taskID
	return []string{prefix + ":answers", prefix + ":sealed"}
}

func decodeAnswers(values []string) ([]domain.Answer, error) {
	answers := make([]domain.Answer, 0, len(values))
	for _, v := range values {
		var a domain.Answer
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			return nil, fmt.Errorf("decode answer: %w", err)
		}
		answers = append(answers, a)
	}
	sort.Slice(answers, func(i, j int) bool {
		if !answers[i].Created.Equal(answers[j].Created) {
			return answers[i].Created.Before(answers[j].Created)
		}
		return answers[i].PlayerID < answers[j].PlayerID
	})
	return answers, nil
}
