package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"viammo.app/tripscan/internal/model"
)

const DefaultStreamMaxLen = 2000

// StreamKey is the Redis stream a scan's events are appended to.
func StreamKey(scanID int64) string {
	return fmt.Sprintf("tripscan:scan:%d:progress", scanID)
}

// StreamSink appends events to a capped Redis stream so API replicas can
// relay them to clients. Artifacts are left out; clients fetch the result
// once the terminal event arrives.
type StreamSink struct {
	rdb    *redis.Client
	scanID int64
	maxLen int64
	ttl    time.Duration
}

func NewStreamSink(rdb *redis.Client, scanID int64, maxLen int64, ttl time.Duration) *StreamSink {
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &StreamSink{rdb: rdb, scanID: scanID, maxLen: maxLen, ttl: ttl}
}

func (s *StreamSink) Emit(ctx context.Context, ev model.ProgressEvent) {
	key := StreamKey(s.scanID)
	values := map[string]any{
		"scan_id":  s.scanID,
		"status":   string(ev.Status),
		"progress": ev.Progress,
		"message":  ev.Message,
		"ts":       ev.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if ev.Error != "" {
		values["error"] = ev.Error
	}

	pipe := s.rdb.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		slog.WarnContext(ctx, "failed to publish scan progress",
			"error", err,
			"scan_id", s.scanID)
	}
}

// StreamEntry is one event read back from a scan's stream.
type StreamEntry struct {
	ID       string           `json:"id"`
	Status   model.ScanStatus `json:"status"`
	Progress int              `json:"progress"`
	Message  string           `json:"message"`
	Error    string           `json:"error,omitempty"`
	Time     string           `json:"ts"`
}

func (e StreamEntry) JSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// ReadStream blocks up to block for entries after lastID ("0" for the
// beginning, "$" for new entries only). A negative block does not wait.
// It returns nil, nil on timeout.
func ReadStream(ctx context.Context, rdb *redis.Client, scanID int64, lastID string, block time.Duration) ([]StreamEntry, error) {
	res, err := rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{StreamKey(scanID), lastID},
		Block:   block,
		Count:   100,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var entries []StreamEntry
	for _, stream := range res {
		for _, msg := range stream.Messages {
			entries = append(entries, entryFromValues(msg.ID, msg.Values))
		}
	}
	return entries, nil
}

func entryFromValues(id string, values map[string]any) StreamEntry {
	str := func(k string) string {
		if v, ok := values[k].(string); ok {
			return v
		}
		return ""
	}
	var pct int
	_, _ = fmt.Sscan(str("progress"), &pct)
	return StreamEntry{
		ID:       id,
		Status:   model.ScanStatus(str("status")),
		Progress: pct,
		Message:  str("message"),
		Error:    str("error"),
		Time:     str("ts"),
	}
}

// StreamReader reads scan progress streams from Redis.
type StreamReader struct {
	rdb *redis.Client
}

func NewStreamReader(rdb *redis.Client) *StreamReader {
	return &StreamReader{rdb: rdb}
}

func (r *StreamReader) Read(ctx context.Context, scanID int64, lastID string, block time.Duration) ([]StreamEntry, error) {
	return ReadStream(ctx, r.rdb, scanID, lastID, block)
}
