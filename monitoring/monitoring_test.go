package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEventHubBroadcast(t *testing.T) {
	hub := NewEventHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Publish(ModelSwapped, map[string]string{"version": "v2"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev struct {
		ID   string            `json:"id"`
		Type EventType         `json:"type"`
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != ModelSwapped || ev.Data["version"] != "v2" || ev.ID == "" {
		t.Fatalf("unexpected event %s", data)
	}
}

func TestRecordTrainingRun(t *testing.T) {
	before := testutil.ToFloat64(TrainingRuns.WithLabelValues("train", "success"))
	RecordTrainingRun("train", time.Second, map[string]float64{"accuracy": 0.93}, nil)
	if got := testutil.ToFloat64(TrainingRuns.WithLabelValues("train", "success")); got != before+1 {
		t.Fatalf("expected counter to grow by 1, got %v -> %v", before, got)
	}
	if got := testutil.ToFloat64(ModelScore.WithLabelValues("accuracy")); got != 0.93 {
		t.Fatalf("expected accuracy gauge 0.93, got %v", got)
	}

	RecordModelSwap()
	if testutil.ToFloat64(ModelLoaded) != 1 {
		t.Fatalf("model loaded gauge not set")
	}
}
