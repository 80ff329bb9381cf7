package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"payflow/internal/core/domain"
)

// DLQ header keys.
const (
	HeaderErrorType     = "error_type"
	HeaderErrorString   = "error_string"
	HeaderOriginalTopic = "original_topic"
)

var ErrMalformedMessage = errors.New("malformed event message")

// EventMessage is the wire form of a domain event on the payments topic.
type EventMessage struct {
	EventID    uuid.UUID        `json:"event_id"`
	Type       domain.EventType `json:"type"`
	MerchantID uuid.UUID        `json:"merchant_id"`
	OccurredAt time.Time        `json:"occurred_at"`
	Data       map[string]any   `json:"data"`
}

func Encode(e domain.Event) ([]byte, error) {
	return json.Marshal(EventMessage{
		EventID:    uuid.New(),
		Type:       e.Type,
		MerchantID: e.MerchantID,
		OccurredAt: e.OccurredAt.UTC(),
		Data:       e.Data,
	})
}

// Decode parses a record value. Messages without a type or merchant are rejected.
func Decode(value []byte) (EventMessage, error) {
	var m EventMessage
	if err := json.Unmarshal(value, &m); err != nil {
		return m, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if m.Type == "" || m.MerchantID == uuid.Nil {
		return m, fmt.Errorf("%w: missing type or merchant_id", ErrMalformedMessage)
	}
	return m, nil
}

// String returns a string field of the payload, or "" when absent.
func (m EventMessage) String(key string) string {
	s, _ := m.Data[key].(string)
	return s
}

// Int returns an integer field of the payload. JSON numbers decode as float64.
func (m EventMessage) Int(key string) int64 {
	switch v := m.Data[key].(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

func (m EventMessage) Bool(key string) bool {
	b, _ := m.Data[key].(bool)
	return b
}

// DeadLetter copies a record that could not be processed onto the DLQ topic, with headers
// describing the failure.
func DeadLetter(dlqTopic string, original *kgo.Record, errorType, errorString string) *kgo.Record {
	return &kgo.Record{
		Topic: dlqTopic,
		Key:   original.Key,
		Value: original.Value,
		Headers: []kgo.RecordHeader{
			{Key: HeaderErrorType, Value: []byte(errorType)},
			{Key: HeaderErrorString, Value: []byte(errorString)},
			{Key: HeaderOriginalTopic, Value: []byte(original.Topic)},
		},
	}
}

// ErrorHeaders extracts error_type and error_string from DLQ headers.
func ErrorHeaders(headers []kgo.RecordHeader) (errorType, errorString string) {
	errorType, errorString = "N/A", "N/A"
	for _, h := range headers {
		switch h.Key {
		case HeaderErrorType:
			errorType = string(h.Value)
		case HeaderErrorString:
			errorString = string(h.Value)
		}
	}
	return errorType, errorString
}

// ParsePartitionOffset parses "partition:offset", e.g. "0:123".
func ParsePartitionOffset(arg string) (int32, int64, error) {
	parts := strings.Split(arg, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid format %q, expected partition:offset, e.g. 0:123", arg)
	}
	partition, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid partition: %w", err)
	}
	offset, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid offset: %w", err)
	}
	return int32(partition), offset, nil
}
