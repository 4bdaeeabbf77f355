package queue

import (
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// ScanMessage asks a worker to run one scan. The credential travels
// separately through the credential store.
type ScanMessage struct {
	ScanID  int64
	TraceID string
	Attempt int
}

type Message struct {
	ID        string
	ScanID    int64
	Attempt   int
	TraceID   string
	LastError string
	Raw       redis.XMessage
}

func ParseMessage(msg redis.XMessage) (Message, error) {
	scanID, err := parseInt64(msg.Values, "scan_id")
	if err != nil {
		return Message{}, err
	}

	attempt, err := parseOptionalInt(msg.Values, "attempt")
	if err != nil {
		return Message{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	return Message{
		ID:        msg.ID,
		ScanID:    scanID,
		Attempt:   attempt,
		TraceID:   optionalString(msg.Values, "trace_id"),
		LastError: optionalString(msg.Values, "last_error"),
		Raw:       msg,
	}, nil
}

func parseInt64(values map[string]any, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	num, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func optionalString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}

func messageValues(scanID int64, traceID string, attempt int) map[string]any {
	values := map[string]any{
		"scan_id": scanID,
		"attempt": attempt,
	}
	if traceID != "" {
		values["trace_id"] = traceID
	}
	return values
}
