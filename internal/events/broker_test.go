package events

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker()
	id1, ch1 := b.Subscribe()
	id2, ch2 := b.Subscribe()
	defer b.Unsubscribe(id1)
	defer b.Unsubscribe(id2)

	b.Publish(Event{Type: TypeSymbolAdded, Payload: `{"ticker":"TCS"}`})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Type != TypeSymbolAdded {
				t.Fatalf("subscriber %d got type %q; want %q", i, evt.Type, TypeSymbolAdded)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive event", i)
		}
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	id, ch := b.Subscribe()
	b.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after Unsubscribe")
	}
	if b.ClientCount() != 0 {
		t.Fatalf("ClientCount() = %d; want 0", b.ClientCount())
	}
}

func TestBrokerDropsWhenSubscriberFull(t *testing.T) {
	b := NewBroker()
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	for i := 0; i < subscriberBufSize+10; i++ {
		b.Publish(Event{Type: TypeScanProgress, Payload: "x"})
	}
	// Publishing past the buffer must not block; drain what landed.
	drained := 0
	for {
		select {
		case <-ch:
			drained++
		default:
			if drained != subscriberBufSize {
				t.Fatalf("drained %d events; want %d", drained, subscriberBufSize)
			}
			return
		}
	}
}

func TestJSONEvent(t *testing.T) {
	evt := JSONEvent(TypeChartOpened, map[string]string{"ticker": "TCS"})
	if evt.Type != TypeChartOpened {
		t.Fatalf("type = %q; want %q", evt.Type, TypeChartOpened)
	}
	if evt.Payload != `{"ticker":"TCS"}` {
		t.Fatalf("payload = %q", evt.Payload)
	}
}

func TestSSEHandlerStreamsAndFilters(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(SSEHandler(b))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?types=chart_opened")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	// Wait for the subscriber to register before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.Publish(JSONEvent(TypeScanProgress, map[string]string{"msg": "Scanning page 1..."}))
	b.Publish(JSONEvent(TypeChartOpened, map[string]string{"ticker": "TCS"}))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(line, "event: chart_opened") {
		t.Fatalf("first streamed line = %q; scan_progress should be filtered out", line)
	}
}
