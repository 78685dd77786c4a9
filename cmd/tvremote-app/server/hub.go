package server

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lucsky/cuid"
	"github.com/rs/zerolog"
)

// Hub errors.
var (
	ErrHubClosed    = errors.New("hub closed")
	ErrRoomNotFound = errors.New("room not found")
	ErrNotShareRoom = errors.New("room is not a share-only pairing")
)

const maxCodeAttempts = 16

// HubConfig configures pairing behavior.
type HubConfig struct {
	// JoinCodeTTL is how long a join code stays valid before the TV is
	// issued a new one.
	JoinCodeTTL time.Duration

	// NewCode generates join codes. Defaults to six random digits.
	NewCode func() (string, error)
}

// room pairs one TV with at most one Remote.
type room struct {
	id          string
	tv          *peer
	remote      *peer
	share       bool
	joinCode    string
	pairingCode string
	codeTimer   *time.Timer
	shareCloser io.Closer
}

// Hub is the signaling channel between TVs and Remotes.
//
// A TV connection opens a room and receives a short-lived join code. A
// Remote joins a room with either that join code or the TV's long-lived
// pairing code. Leaving is symmetric: whichever side goes, the other is told.
type Hub struct {
	cfg HubConfig
	log zerolog.Logger

	upgrader websocket.Upgrader

	mu        sync.Mutex
	rooms     map[string]*room
	joinCodes map[string]*room
	pairings  map[string]*room
	peers     map[*peer]struct{}
	closed    bool

	wg sync.WaitGroup
}

// NewHub creates an empty Hub.
func NewHub(cfg HubConfig, log zerolog.Logger) *Hub {
	if cfg.JoinCodeTTL <= 0 {
		cfg.JoinCodeTTL = 5 * time.Minute
	}
	if cfg.NewCode == nil {
		cfg.NewCode = randomJoinCode
	}
	return &Hub{
		cfg: cfg,
		log: log.With().Str("c", "hub").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		rooms:     make(map[string]*room),
		joinCodes: make(map[string]*room),
		pairings:  make(map[string]*room),
		peers:     make(map[*peer]struct{}),
	}
}

// randomJoinCode returns six uniformly random decimal digits.
func randomJoinCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// ServeHTTP upgrades /signal requests.
//
//	/signal?role=tv&pairingCode=X
//	/signal?role=remote&code=C&share=true
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	role := Role(q.Get("role"))
	if role != RoleTV && role != RoleRemote {
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	p := newPeer(cuid.New(), role, conn, h.log)
	if !h.track(p) {
		_ = conn.Close()
		return
	}

	go func() {
		defer h.wg.Done()
		p.writer()
	}()

	switch role {
	case RoleTV:
		h.connectTV(p, q.Get("pairingCode"))
	case RoleRemote:
		h.connectRemote(p, q.Get("code"), q.Get("share") == "true")
	}

	go func() {
		defer h.wg.Done()
		p.reader(h)
	}()
}

// track registers p and reserves its reader and writer goroutines.
func (h *Hub) track(p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.peers[p] = struct{}{}
	h.wg.Add(2)
	return true
}

func (h *Hub) connectTV(p *peer, pairingCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := &room{id: cuid.New(), tv: p, pairingCode: pairingCode}
	h.rooms[r.id] = r
	p.room = r
	if pairingCode != "" {
		// The most recent TV owns the pairing code.
		h.pairings[pairingCode] = r
	}

	if err := h.issueJoinCode(r); err != nil {
		p.Send(Message{Type: MsgError, Error: "could not allocate join code"})
		h.log.Error().Err(err).Str("room", r.id).Msg("issue join code")
		return
	}
	h.log.Info().Str("room", r.id).Bool("pairing", pairingCode != "").Msg("tv connected")
}

func (h *Hub) connectRemote(p *peer, code string, share bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.lookup(code)
	switch {
	case r == nil:
		p.Send(Message{Type: MsgError, Error: "unknown join code"})
		p.close()
		return
	case r.remote != nil:
		p.Send(Message{Type: MsgError, Error: "tv already paired"})
		p.close()
		return
	}

	r.remote = p
	r.share = share
	p.room = r
	h.consumeJoinCode(r)

	paired := Message{Type: MsgPaired, Room: r.id, Share: share}
	r.tv.Send(paired)
	p.Send(paired)
	h.log.Info().Str("room", r.id).Bool("share", share).Msg("remote paired")
}

// lookup resolves a join code first, then a pairing code. Caller holds h.mu.
func (h *Hub) lookup(code string) *room {
	if code == "" {
		return nil
	}
	if r, ok := h.joinCodes[code]; ok {
		return r
	}
	return h.pairings[code]
}

// issueJoinCode replaces r's join code and tells the TV. Caller holds h.mu.
func (h *Hub) issueJoinCode(r *room) error {
	h.consumeJoinCode(r)

	var code string
	for attempt := 0; ; attempt++ {
		if attempt == maxCodeAttempts {
			return errors.New("join code space exhausted")
		}
		c, err := h.cfg.NewCode()
		if err != nil {
			return err
		}
		if _, taken := h.joinCodes[c]; !taken {
			code = c
			break
		}
	}

	r.joinCode = code
	h.joinCodes[code] = r
	roomID := r.id
	r.codeTimer = time.AfterFunc(h.cfg.JoinCodeTTL, func() { h.rotate(roomID, code) })

	r.tv.Send(Message{Type: MsgJoinCode, Code: code, Room: r.id})
	return nil
}

// consumeJoinCode invalidates r's current join code. Caller holds h.mu.
func (h *Hub) consumeJoinCode(r *room) {
	if r.codeTimer != nil {
		r.codeTimer.Stop()
		r.codeTimer = nil
	}
	if r.joinCode != "" {
		delete(h.joinCodes, r.joinCode)
		r.joinCode = ""
	}
}

// rotate replaces an expired join code if it is still the current one.
func (h *Hub) rotate(roomID, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[roomID]
	if !ok || h.closed || r.joinCode != code || r.remote != nil {
		return
	}
	if err := h.issueJoinCode(r); err != nil {
		h.log.Error().Err(err).Str("room", roomID).Msg("rotate join code")
	}
}

func (h *Hub) handle(p *peer, m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch m.Type {
	case MsgJoinMeeting:
		r := p.room
		switch {
		case p.role != RoleRemote:
			p.Send(Message{Type: MsgError, Error: "only a remote can join a meeting"})
		case r == nil || r.tv == nil:
			p.Send(Message{Type: MsgError, Error: "not paired"})
		case r.share:
			p.Send(Message{Type: MsgError, Error: "share-only connection"})
		case m.Name == "":
			p.Send(Message{Type: MsgError, Error: "meeting name required"})
		default:
			r.tv.Send(Message{Type: MsgJoinMeeting, Name: m.Name, Room: r.id})
			p.Send(Message{Type: MsgMeetingJoined, Name: m.Name, Room: r.id})
			h.log.Info().Str("room", r.id).Str("meeting", m.Name).Msg("meeting joined")
		}
	default:
		p.Send(Message{Type: MsgError, Error: "unknown message type " + m.Type})
	}
}

// leave detaches p from its room. Safe to call more than once.
func (h *Hub) leave(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if p.left {
		return
	}
	p.left = true
	delete(h.peers, p)

	r := p.room
	p.room = nil
	if r == nil {
		return
	}

	switch p {
	case r.tv:
		h.removeRoom(r)
		if remote := r.remote; remote != nil {
			remote.room = nil
			remote.Send(Message{Type: MsgPeerDisconnected, Room: r.id})
			remote.close()
			r.remote = nil
		}
		h.log.Info().Str("room", r.id).Msg("tv left")
	case r.remote:
		r.remote = nil
		r.share = false
		h.closeShare(r)
		r.tv.Send(Message{Type: MsgPeerDisconnected, Room: r.id})
		if h.closed {
			return
		}
		if err := h.issueJoinCode(r); err != nil {
			h.log.Error().Err(err).Str("room", r.id).Msg("reissue join code")
		}
		h.log.Info().Str("room", r.id).Msg("remote left")
	}
}

// removeRoom drops r and its codes. Caller holds h.mu.
func (h *Hub) removeRoom(r *room) {
	h.consumeJoinCode(r)
	h.closeShare(r)
	delete(h.rooms, r.id)
	if r.pairingCode != "" && h.pairings[r.pairingCode] == r {
		delete(h.pairings, r.pairingCode)
	}
}

// closeShare closes r's share connection off the lock, since closing fires
// callbacks that re-enter the hub. Caller holds h.mu.
func (h *Hub) closeShare(r *room) {
	if r.shareCloser == nil {
		return
	}
	c := r.shareCloser
	r.shareCloser = nil
	go func() {
		if err := c.Close(); err != nil {
			h.log.Debug().Err(err).Str("room", r.id).Msg("close share")
		}
	}()
}

// ShareRoom reports whether roomID is a paired share-only room.
func (h *Hub) ShareRoom(roomID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[roomID]
	if !ok || r.remote == nil {
		return ErrRoomNotFound
	}
	if !r.share {
		return ErrNotShareRoom
	}
	return nil
}

// AttachShare binds a share connection to roomID so it is closed when the
// pairing ends. Any previous share for the room is closed.
func (h *Hub) AttachShare(roomID string, c io.Closer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[roomID]
	if !ok || r.remote == nil || !r.share {
		return ErrRoomNotFound
	}
	h.closeShare(r)
	r.shareCloser = c
	return nil
}

// ShareStarted tells the room's TV that media is flowing.
func (h *Hub) ShareStarted(roomID string) { h.notifyTV(roomID, MsgShareStarted) }

// ShareStopped tells the room's TV that media stopped.
func (h *Hub) ShareStopped(roomID string) { h.notifyTV(roomID, MsgShareStopped) }

func (h *Hub) notifyTV(roomID, msgType string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[roomID]; ok && r.tv != nil {
		r.tv.Send(Message{Type: msgType, Room: roomID})
	}
}

// Rooms returns the number of open rooms.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Close disconnects every peer and waits for their goroutines to exit.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	h.closed = true
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	for _, r := range h.rooms {
		h.consumeJoinCode(r)
		h.closeShare(r)
	}
	h.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
	h.wg.Wait()
	return nil
}
