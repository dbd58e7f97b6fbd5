package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/mschirtzinger/inkshelf/internal/shelf/pagemap"
	"github.com/mschirtzinger/inkshelf/internal/shelf/remote/fakeremote"
	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
	shelfsync "github.com/mschirtzinger/inkshelf/internal/shelf/sync"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{
		Host:   "127.0.0.1",
		Port:   0, // Use random available port
		Logger: log.New(io.Discard, "", 0),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func waitClients(t *testing.T, server *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", server.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: log.New(io.Discard, "", 0)})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if server.GetAddr() == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestHealth(t *testing.T) {
	server := startServer(t)

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if body.Status != "ok" || body.Clients != 0 {
		t.Errorf("health = %+v", body)
	}
}

func TestWelcomeCarriesStatus(t *testing.T) {
	server := startServer(t)
	h := NewHandler(server, log.New(io.Discard, "", 0))
	h.EntitySynced(schema.KindWork, "w-1", "page-1", nil)
	h.EntitySynced(schema.KindWork, "w-2", "", errors.New("boom"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, server)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStatus {
		t.Fatalf("welcome type = %s, want %s", msg.Type, MessageTypeStatus)
	}
	var status StatusData
	if err := json.Unmarshal(msg.Data, &status); err != nil {
		t.Fatalf("Failed to unmarshal status: %v", err)
	}
	if status.Synced != 1 || status.Failed != 1 {
		t.Errorf("status = %+v, want 1 synced and 1 failed", status)
	}
}

func TestMultipleClientsReceiveBroadcast(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var conns []*websocket.Conn
	for i := 0; i < 3; i++ {
		conn := dial(t, ctx, server)
		readMessage(t, ctx, conn)
		conns = append(conns, conn)
	}
	waitClients(t, server, 3)

	server.Broadcast(Message{Type: MessageTypePassStarted})
	for i, conn := range conns {
		if msg := readMessage(t, ctx, conn); msg.Type != MessageTypePassStarted {
			t.Errorf("client %d got %s", i, msg.Type)
		}
	}
}

// memStore is a minimal sync.Store.
type memStore struct {
	mu   sync.Mutex
	recs map[schema.Kind][]schema.Record
}

func (m *memStore) List(ctx context.Context, kind schema.Kind) ([]schema.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schema.Record(nil), m.recs[kind]...), nil
}

func (m *memStore) Put(ctx context.Context, rec schema.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.recs[rec.Kind()]
	for i, existing := range list {
		if existing.Metadata().ID == rec.Metadata().ID {
			list[i] = rec
			return nil
		}
	}
	m.recs[rec.Kind()] = append(list, rec)
	return nil
}

func TestHandlerStreamsPush(t *testing.T) {
	server := startServer(t)
	h := NewHandler(server, log.New(io.Discard, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn)
	waitClients(t, server, 1)

	rem := fakeremote.New()
	root := rem.AddRoot("Writing")
	work := &schema.Work{Meta: schema.Meta{ID: "w-1"}, Title: "Salt Roads"}
	work.Touch(time.Now())
	store := &memStore{recs: map[schema.Kind][]schema.Record{schema.KindWork: {work}}}
	pages, err := pagemap.Open(ctx, &pagemap.MemoryBackend{})
	if err != nil {
		t.Fatalf("pagemap.Open() failed: %v", err)
	}

	syncer := shelfsync.New(shelfsync.Config{
		Client:     rem,
		Store:      store,
		PageMap:    pages,
		RootPageID: root,
		Logger:     log.New(io.Discard, "", 0),
		Observer:   h,
	})
	if _, err := syncer.Push(ctx, shelfsync.Options{}); err != nil {
		t.Fatalf("Push() failed: %v", err)
	}

	var types []MessageType
	var synced EntitySyncedData
	var complete PassCompleteData
	for {
		msg := readMessage(t, ctx, conn)
		types = append(types, msg.Type)
		switch msg.Type {
		case MessageTypeEntitySynced:
			if err := json.Unmarshal(msg.Data, &synced); err != nil {
				t.Fatal(err)
			}
		case MessageTypePassComplete:
			if err := json.Unmarshal(msg.Data, &complete); err != nil {
				t.Fatal(err)
			}
		}
		if msg.Type == MessageTypePassComplete {
			break
		}
	}

	if types[0] != MessageTypePassStarted {
		t.Errorf("first message = %s, want %s", types[0], MessageTypePassStarted)
	}
	if synced.Kind != schema.KindWork || synced.ID != "w-1" || !synced.OK || synced.PageID == "" {
		t.Errorf("entity_synced = %+v", synced)
	}
	if complete.Direction != shelfsync.DirectionPush || complete.Total.Succeeded != 1 || complete.Total.Failed != 0 {
		t.Errorf("pass_complete = %+v", complete)
	}
	if status := h.Status(); status.Running || status.Passes != 1 {
		t.Errorf("Status() = %+v", status)
	}
}
