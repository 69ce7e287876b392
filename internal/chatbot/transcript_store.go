package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	transcriptKeyPrefix = "chat_transcript:"
	transcriptTTL       = 7 * 24 * time.Hour
)

// RedisTranscriptStore keeps the recent transcript per session in a capped
// Redis list so a visitor reconnecting after a page navigation can replay
// their conversation. All methods tolerate a nil store or client.
type RedisTranscriptStore struct {
	redis       *redis.Client
	tracer      trace.Tracer
	maxMessages int64
}

func NewRedisTranscriptStore(redisClient *redis.Client) *RedisTranscriptStore {
	if redisClient == nil {
		return nil
	}
	return &RedisTranscriptStore{
		redis:       redisClient,
		tracer:      otel.Tracer("leadchat.internal.chatbot.transcript"),
		maxMessages: 250,
	}
}

func (s *RedisTranscriptStore) Append(ctx context.Context, sessionID string, msg Message) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if sessionID == "" {
		return errors.New("chatbot: transcript sessionID required")
	}
	if msg.Role == RoleTyping {
		// Typing placeholders are transient and never persisted.
		return nil
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("chatbot: marshal transcript message: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "chatbot.transcript.append")
	defer span.End()

	key := transcriptKey(sessionID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, transcriptTTL)
	if s.maxMessages > 0 {
		pipe.LTrim(ctx, key, -s.maxMessages, -1)
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("chatbot: append transcript message: %w", err)
	}
	return nil
}

func (s *RedisTranscriptStore) List(ctx context.Context, sessionID string, limit int64) ([]Message, error) {
	if s == nil || s.redis == nil {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if sessionID == "" {
		return nil, errors.New("chatbot: transcript sessionID required")
	}

	ctx, span := s.tracer.Start(ctx, "chatbot.transcript.list")
	defer span.End()

	start := int64(0)
	end := int64(-1)
	if limit > 0 {
		start = -limit
	}

	key := transcriptKey(sessionID)
	raw, err := s.redis.LRange(ctx, key, start, end).Result()
	if err != nil {
		span.RecordError(err)
		if err == redis.Nil {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("chatbot: list transcript: %w", err)
	}

	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func transcriptKey(sessionID string) string {
	return transcriptKeyPrefix + sessionID
}
