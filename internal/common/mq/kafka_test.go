package mq

import (
	"testing"
	"time"
)

func TestToKafkaMessageCarriesHeaders(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := &Message{ID: "sub-1", Body: []byte("{}"), Timestamp: ts}
	msg.SetHeader("event", "completed")

	km := toKafkaMessage("execution.status", msg)
	if km.Topic != "execution.status" {
		t.Fatalf("expected topic to be set, got %q", km.Topic)
	}
	if string(km.Key) != "sub-1" {
		t.Fatalf("expected key sub-1, got %q", km.Key)
	}
	headers := map[string]string{}
	for _, h := range km.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event"] != "completed" {
		t.Fatalf("expected custom header, got %v", headers)
	}
	if headers[headerID] != "sub-1" {
		t.Fatalf("expected id header, got %v", headers)
	}
	if headers[headerTimestamp] != ts.Format(time.RFC3339Nano) {
		t.Fatalf("expected timestamp header, got %v", headers)
	}
}

func TestNewKafkaProducerRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaProducer(KafkaConfig{}); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
