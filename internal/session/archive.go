package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CallSummary describes an ended call.
type CallSummary struct {
	CallID    string    `json:"call_id"`
	Reason    string    `json:"reason"`
	Turns     int       `json:"turns"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Archive persists transcripts of ended calls.
type Archive interface {
	Save(ctx context.Context, summary CallSummary, turns []Turn) error
}

const (
	callKeyPrefix       = "voice:call:"
	transcriptKeyPrefix = "voice:transcript:"
	archiveTTL          = 24 * time.Hour
)

func callKey(callID string) string {
	return callKeyPrefix + callID
}

func transcriptKey(callID string) string {
	return transcriptKeyPrefix + callID
}

// RedisArchive keeps ended calls in Redis for a day: a JSON summary under
// voice:call:<id> and the turns as a list under voice:transcript:<id>.
type RedisArchive struct {
	rdb *redis.Client
}

// NewRedisArchive creates an archive backed by rdb.
func NewRedisArchive(rdb *redis.Client) *RedisArchive {
	return &RedisArchive{rdb: rdb}
}

// Save implements Archive.
func (a *RedisArchive) Save(ctx context.Context, summary CallSummary, turns []Turn) error {
	if summary.CallID == "" {
		return fmt.Errorf("call archive: call_id required")
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("call archive: marshal summary: %w", err)
	}

	pipe := a.rdb.Pipeline()
	pipe.Set(ctx, callKey(summary.CallID), data, archiveTTL)
	if len(turns) > 0 {
		entries := make([]any, 0, len(turns))
		for _, turn := range turns {
			entry, err := json.Marshal(turn)
			if err != nil {
				return fmt.Errorf("call archive: marshal turn: %w", err)
			}
			entries = append(entries, entry)
		}
		pipe.RPush(ctx, transcriptKey(summary.CallID), entries...)
		pipe.Expire(ctx, transcriptKey(summary.CallID), archiveTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("call archive: save: %w", err)
	}
	return nil
}

// Summary loads the summary of an archived call. It returns nil when the call
// is unknown or has expired.
func (a *RedisArchive) Summary(ctx context.Context, callID string) (*CallSummary, error) {
	data, err := a.rdb.Get(ctx, callKey(callID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("call archive: get summary: %w", err)
	}
	var summary CallSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("call archive: unmarshal summary: %w", err)
	}
	return &summary, nil
}

// Transcript loads the archived turns of a call.
func (a *RedisArchive) Transcript(ctx context.Context, callID string) ([]Turn, error) {
	data, err := a.rdb.LRange(ctx, transcriptKey(callID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("call archive: get transcript: %w", err)
	}
	turns := make([]Turn, 0, len(data))
	for _, d := range data {
		var turn Turn
		if err := json.Unmarshal([]byte(d), &turn); err != nil {
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}
