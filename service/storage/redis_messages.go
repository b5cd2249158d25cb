package storage

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"vhrealtime/tools/errs"
)

const redisChatStreamPrefix = "vh:chat:"

// RedisMessageStore appends each room's messages to its own stream. Stream ids are
// time ordered so XRANGE already returns history in insertion order.
type RedisMessageStore struct {
	rdb    redis.Cmdable
	maxLen int64
}

func NewRedisMessageStore(rdb redis.Cmdable, maxLen int64) *RedisMessageStore {
	return &RedisMessageStore{rdb: rdb, maxLen: maxLen}
}

func streamKey(appointmentID int64) string {
	return redisChatStreamPrefix + strconv.FormatInt(appointmentID, 10)
}

func (s *RedisMessageStore) Persist(ctx context.Context, msg NewMessage) (Persisted, error) {
	args := &redis.XAddArgs{
		Stream: streamKey(msg.AppointmentID),
		ID:     "*",
		Values: map[string]any{
			"sender_id":   msg.SenderID,
			"sender_name": msg.SenderName,
			"sender_role": msg.SenderRole,
			"message":     msg.Body,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	id, err := s.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return Persisted{}, errs.WrapMsg(err, "xadd chat message")
	}
	ts, err := streamIDTime(id)
	if err != nil {
		return Persisted{}, err
	}
	return Persisted{ID: id, Timestamp: ts}, nil
}

func (s *RedisMessageStore) History(ctx context.Context, appointmentID int64) ([]ChatMessage, error) {
	entries, err := s.rdb.XRange(ctx, streamKey(appointmentID), "-", "+").Result()
	if err != nil {
		return nil, errs.WrapMsg(err, "xrange chat history")
	}
	out := make([]ChatMessage, 0, len(entries))
	for _, e := range entries {
		ts, err := streamIDTime(e.ID)
		if err != nil {
			return nil, err
		}
		senderID, _ := strconv.ParseInt(stringValue(e.Values["sender_id"]), 10, 64)
		out = append(out, ChatMessage{
			ID:            e.ID,
			AppointmentID: appointmentID,
			SenderID:      senderID,
			SenderName:    stringValue(e.Values["sender_name"]),
			SenderRole:    stringValue(e.Values["sender_role"]),
			Body:          stringValue(e.Values["message"]),
			Timestamp:     ts,
		})
	}
	return out, nil
}

// streamIDTime reads the millisecond part of a "<ms>-<seq>" stream id.
func streamIDTime(id string) (time.Time, error) {
	ms, _, _ := strings.Cut(id, "-")
	v, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, errs.WrapMsg(err, "bad stream id "+id)
	}
	return time.UnixMilli(v).UTC(), nil
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return ""
	default:
		return ""
	}
}
