package collector

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// FeedMessage is one entry on the live debug feed
type FeedMessage struct {
	Kind      string `json:"kind"` // event | batch | session_start | session_end
	ProjectID string `json:"projectId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Summary   string `json:"summary"`
	At        int64  `json:"at"` // unix milliseconds
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Feed broadcasts ingested telemetry summaries to connected debug
// consoles. Slow consumers lose messages rather than blocking ingest.
type Feed struct {
	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

func NewFeed() *Feed {
	return &Feed{clients: make(map[*feedClient]struct{})}
}

// HandleLive upgrades the connection and streams feed messages until the
// client disconnects
func (f *Feed) HandleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("collector: failed to upgrade live connection: %v", err)
		return
	}

	client := &feedClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	f.mu.Lock()
	f.clients[client] = struct{}{}
	f.mu.Unlock()
	log.Printf("collector: live console connected (%d total)", f.clientCount())

	// Writer pump. A write failure closes the connection so the read
	// loop unblocks and the client is deregistered instead of filling a
	// dead channel.
	go func() {
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				conn.Close()
				return
			}
		}
	}()

	// Read until close so we notice the client going away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	f.mu.Lock()
	delete(f.clients, client)
	f.mu.Unlock()
	close(client.send)
	conn.Close()
	log.Printf("collector: live console disconnected (%d total)", f.clientCount())
}

// Broadcast queues one message to every connected console. Consoles with
// a full buffer skip the message.
func (f *Feed) Broadcast(msg FeedMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for client := range f.clients {
		select {
		case client.send <- data:
		default:
			// Buffer full: the console is too slow, drop this message
		}
	}
}

func (f *Feed) clientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}
