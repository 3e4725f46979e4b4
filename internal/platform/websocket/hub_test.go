package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/access"
	"github.com/bloodlink/bloodlink/internal/platform/auth"
)

var (
	nurse = access.Actor{Email: "nurse@hospital.test", Role: "พยาบาล"}
	lab   = access.Actor{Email: "lab@hospital.test", Role: "lab"}
)

func newClient(hub *Hub, owner access.Actor, topics ...string) *Client {
	return &Client{
		ID:     owner.Email,
		Owner:  owner,
		Topics: topics,
		Send:   make(chan []byte, 4),
		hub:    hub,
	}
}

func TestInboxTopic(t *testing.T) {
	if got := InboxTopic("  Nurse@Hospital.Test "); got != "inbox:nurse@hospital.test" {
		t.Errorf("unexpected topic %q", got)
	}
}

func TestAllowTopic(t *testing.T) {
	tests := []struct {
		actor access.Actor
		topic string
		want  bool
	}{
		{nurse, "inbox:nurse@hospital.test", true},
		{nurse, "inbox:lab@hospital.test", false},
		{nurse, PatientsTopic, true},
		{access.Actor{Email: "x@y.z", Role: "visitor"}, PatientsTopic, false},
		{nurse, "Patient/123", false},
	}
	for _, tt := range tests {
		if got := AllowTopic(tt.actor, tt.topic); got != tt.want {
			t.Errorf("AllowTopic(%s, %q) = %v, want %v", tt.actor.Email, tt.topic, got, tt.want)
		}
	}
}

func TestHub_RegisterFiltersTopics(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient(hub, nurse, InboxTopic(nurse.Email), InboxTopic(lab.Email), PatientsTopic)
	hub.Register(client)

	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount(InboxTopic(lab.Email)) != 0 {
		t.Error("nurse must not follow another inbox")
	}
	if len(client.Topics) != 2 {
		t.Errorf("expected 2 permitted topics, got %v", client.Topics)
	}
}

func TestHub_BroadcastToTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	a := newClient(hub, nurse, InboxTopic(nurse.Email))
	b := newClient(hub, lab, InboxTopic(lab.Email))
	hub.Register(a)
	hub.Register(b)

	ev, err := NewEvent(InboxTopic(nurse.Email), "message.created", "m-1", map[string]string{"subject": "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := hub.Publish(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case data := <-a.Send:
		var got Event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Type != "message.created" || !strings.Contains(string(got.Data), "hi") {
			t.Errorf("unexpected event %+v", got)
		}
	default:
		t.Fatal("expected subscriber to receive event")
	}
	select {
	case <-b.Send:
		t.Fatal("non-subscriber received event")
	default:
	}
}

func TestHub_FullBufferDoesNotBlock(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient(hub, nurse, PatientsTopic)
	hub.Register(c)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Broadcast(PatientsTopic, Event{Type: "process.changed"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on full client buffer")
	}
	if len(c.Send) != cap(c.Send) {
		t.Errorf("expected buffer full, got %d/%d", len(c.Send), cap(c.Send))
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient(hub, nurse)
	hub.Register(c)

	hub.ProcessMessage(c, ClientMessage{Action: "subscribe", Topics: []string{PatientsTopic, PatientsTopic, InboxTopic(lab.Email)}})
	if hub.TopicCount(PatientsTopic) != 1 || len(c.Topics) != 1 {
		t.Fatalf("expected single permitted subscription, got %v", c.Topics)
	}

	hub.ProcessMessage(c, ClientMessage{Action: "unsubscribe", Topics: []string{PatientsTopic}})
	if hub.TopicCount(PatientsTopic) != 0 || len(c.Topics) != 0 {
		t.Errorf("expected no subscriptions, got %v", c.Topics)
	}
}

func TestHub_UnregisterClosesChannel(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient(hub, nurse, PatientsTopic)
	hub.Register(c)
	hub.Unregister(c)
	hub.Unregister(c)

	if _, ok := <-c.Send; ok {
		t.Error("expected Send closed")
	}
	if hub.TopicCount(PatientsTopic) != 0 {
		t.Error("expected topic cleaned up")
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newClient(hub, nurse, PatientsTopic)
			hub.Register(c)
			hub.Broadcast(PatientsTopic, Event{Type: "ping"})
			hub.Unregister(c)
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestWebSocketHandler_RequiresActor(t *testing.T) {
	h := NewWebSocketHandler(NewHub(zerolog.Nop()), nil)
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/ws", nil), httptest.NewRecorder())
	err := h.HandleConnect(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestWebSocketHandler_FullUpgradeWithDialer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	handler := NewWebSocketHandler(hub, nil)

	e := echo.New()
	asNurse := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(auth.WithActor(c.Request().Context(), nurse)))
			return next(c)
		}
	}
	handler.RegisterRoutes(e.Group(""), asNurse)

	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	// Registration happens in the handler before the pumps start.
	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount(InboxTopic(nurse.Email)) != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount(InboxTopic(nurse.Email)) != 1 {
		t.Fatal("expected client subscribed to own inbox by default")
	}

	ev, _ := NewEvent(InboxTopic(nurse.Email), "message.created", "m-2", nil)
	hub.Broadcast(ev.Topic, ev)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.ResourceID != "m-2" {
		t.Fatalf("expected resource m-2, got %s", received.ResourceID)
	}
}
