package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	maxMessageSize = 10 * 1024
	writeWait      = 10 * time.Second
	sendQueueSize  = 16
)

// Role identifies which side of a pairing a peer is.
type Role string

const (
	RoleTV     Role = "tv"
	RoleRemote Role = "remote"
)

// Message types exchanged over /signal.
const (
	MsgJoinCode         = "join-code"
	MsgPaired           = "paired"
	MsgJoinMeeting      = "join-meeting"
	MsgMeetingJoined    = "meeting-joined"
	MsgPeerDisconnected = "peer-disconnected"
	MsgShareStarted     = "share-started"
	MsgShareStopped     = "share-stopped"
	MsgDisconnect       = "disconnect"
	MsgError            = "error"
)

// Message is the JSON envelope for signaling traffic.
type Message struct {
	Type  string `json:"type"`
	Code  string `json:"code,omitempty"`
	Room  string `json:"room,omitempty"`
	Name  string `json:"name,omitempty"`
	Share bool   `json:"share,omitempty"`
	Error string `json:"error,omitempty"`
}

// peer is one websocket connection. All socket writes happen on the writer
// goroutine and all reads on the reader goroutine.
type peer struct {
	id   string
	role Role
	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger

	mu     sync.Mutex
	closed bool

	// Guarded by Hub.mu.
	room *room
	left bool
}

func newPeer(id string, role Role, conn *websocket.Conn, log zerolog.Logger) *peer {
	return &peer{
		id:   id,
		role: role,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		log:  log.With().Str("peer", id).Str("role", string(role)).Logger(),
	}
}

// Send queues m for delivery. It never blocks; a full queue drops m.
func (p *peer) Send(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		p.log.Error().Err(err).Str("type", m.Type).Msg("encode message")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.send <- data:
	default:
		p.log.Warn().Str("type", m.Type).Msg("send queue full, dropping message")
	}
}

// close stops the writer, which closes the socket after flushing.
func (p *peer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.send)
}

// writer pumps queued messages to the socket until the queue is closed.
func (p *peer) writer() {
	defer func() {
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = p.conn.Close()
		p.log.Debug().Msg("writer closed")
	}()

	for data := range p.send {
		if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			p.log.Debug().Err(err).Msg("write failed")
			return
		}
	}
}

// reader dispatches inbound messages to h until the socket fails or the
// peer asks to disconnect.
func (p *peer) reader(h *Hub) {
	defer func() {
		h.leave(p)
		p.close()
		p.log.Debug().Msg("reader closed")
	}()

	p.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				p.log.Warn().Err(err).Msg("read failed")
			}
			return
		}

		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			p.Send(Message{Type: MsgError, Error: "invalid message"})
			continue
		}
		if m.Type == MsgDisconnect {
			return
		}
		h.handle(p, m)
	}
}
