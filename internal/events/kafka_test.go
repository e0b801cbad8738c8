package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTopic(t *testing.T) {
	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "trackr.")
	if err != nil {
		t.Fatalf("NewKafkaPublisher: %v", err)
	}
	defer p.Close()
	if got := p.Topic("post.scraped"); got != "trackr.post.scraped" {
		t.Errorf("Topic = %q", got)
	}

	if _, err := NewKafkaPublisher(nil, "trackr"); err == nil {
		t.Errorf("expected error without brokers")
	}
}

func TestEncode(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	msg, err := encode("scrape_job.finished", "c1", map[string]string{"status": "done"}, at)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(msg.Key) != "c1" || !msg.Time.Equal(at) {
		t.Errorf("message key=%s time=%s", msg.Key, msg.Time)
	}

	var env struct {
		EventID   string            `json:"event_id"`
		EventType string            `json:"event_type"`
		Data      map[string]string `json:"data"`
	}
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.EventType != "scrape_job.finished" || env.Data["status"] != "done" || env.EventID == "" {
		t.Errorf("envelope = %+v", env)
	}
}
