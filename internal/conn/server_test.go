package conn

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"mc-loadbalancer/internal/mcwire"
	"mc-loadbalancer/internal/resolve"
	"mc-loadbalancer/internal/status"
)

// statusOnline runs one full status exchange and returns the reported
// player count, or -1 on any error. Safe to call off the test goroutine.
func statusOnline(t *testing.T, addr string) int {
	client, err := net.Dial("tcp", addr)
	if err != nil {
		t.Errorf("dial: %v", err)
		return -1
	}
	defer client.Close()
	client.SetDeadline(time.Now().Add(5 * time.Second))

	enc := mcwire.NewEncoder(client)
	dec := mcwire.NewDecoder(client)
	h := &mcwire.Handshake{ProtocolVersion: 770, ServerAddress: "lb", ServerPort: 25565, Intent: mcwire.IntentStatus}
	if err := enc.WritePacket(mcwire.IDHandshake, h.Marshal()); err != nil {
		t.Errorf("writing handshake: %v", err)
		return -1
	}
	if err := enc.WritePacket(mcwire.IDStatusRequest, nil); err != nil {
		t.Errorf("writing status request: %v", err)
		return -1
	}
	packet, err := dec.ReadPacket()
	if err != nil {
		t.Errorf("reading status response: %v", err)
		return -1
	}
	resp, err := mcwire.UnmarshalStatusResponse(packet.Payload)
	if err != nil {
		t.Errorf("decoding status response: %v", err)
		return -1
	}
	var payload statusPayload
	if err := json.Unmarshal([]byte(resp.JSON), &payload); err != nil {
		t.Errorf("decoding status JSON: %v", err)
		return -1
	}
	return payload.Players.Online
}

func TestServeHandlesConcurrentClients(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	finder := &fixedFinder{count: 12}
	srv := NewServer(finder, status.NewCache(finder), resolve.New(), "hello", 64)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx, ln)
		close(done)
	}()

	counts := make([]int, 5)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			counts[slot] = statusOnline(t, ln.Addr().String())
		}(i)
	}
	wg.Wait()

	for i, got := range counts {
		if got != 12 {
			t.Errorf("client %d: online = %d, want 12", i, got)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
