package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const readTimeout = 5 * time.Second

type wsClient struct {
	conn *websocket.Conn
}

func dial(t *testing.T, url string) *wsClient {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{conn: conn}
}

func (c *wsClient) next(t *testing.T) Message {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(t, err)

	var m Message
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func (c *wsClient) expect(t *testing.T, msgType string) Message {
	t.Helper()
	m := c.next(t)
	require.Equal(t, msgType, m.Type, "unexpected message %+v", m)
	return m
}

func (c *wsClient) send(t *testing.T, m Message) {
	t.Helper()
	require.NoError(t, c.conn.WriteJSON(m))
}

func (c *wsClient) expectClosed(t *testing.T) {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Fatalf("connection still open: %v", err)
			}
			return
		}
	}
}

// sequence returns a code generator cycling through codes.
func sequence(codes ...string) func() (string, error) {
	var (
		mu sync.Mutex
		i  int
	)
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i%len(codes)]
		i++
		return c, nil
	}
}

// newTestHub serves a Hub over httptest and checks for leaked goroutines
// once everything is torn down.
func newTestHub(t *testing.T, cfg HubConfig) (*Hub, string) {
	t.Helper()
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })

	h := NewHub(cfg, zerolog.Nop())
	ts := httptest.NewServer(h)
	t.Cleanup(func() {
		_ = h.Close()
		ts.Close()
	})
	return h, "ws" + strings.TrimPrefix(ts.URL, "http") + "/signal"
}

func TestHub_PairWithJoinCode(t *testing.T) {
	h, base := newTestHub(t, HubConfig{NewCode: sequence("123456", "654321")})

	tv := dial(t, base+"?role=tv")
	code := tv.expect(t, MsgJoinCode)
	assert.Equal(t, "123456", code.Code)
	assert.NotEmpty(t, code.Room)

	remote := dial(t, base+"?role=remote&code=123456")
	paired := remote.expect(t, MsgPaired)
	assert.Equal(t, code.Room, paired.Room)
	assert.False(t, paired.Share)

	tvPaired := tv.expect(t, MsgPaired)
	assert.Equal(t, code.Room, tvPaired.Room)
	assert.Equal(t, 1, h.Rooms())
}

func TestHub_RandomJoinCodes(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := randomJoinCode()
		require.NoError(t, err)
		assert.Regexp(t, `^\d{6}$`, code)
	}
}

func TestHub_UnknownCode(t *testing.T) {
	_, base := newTestHub(t, HubConfig{})

	remote := dial(t, base+"?role=remote&code=000000")
	m := remote.expect(t, MsgError)
	assert.Equal(t, "unknown join code", m.Error)
	remote.expectClosed(t)
}

func TestHub_JoinCodeConsumedOnPairing(t *testing.T) {
	_, base := newTestHub(t, HubConfig{NewCode: sequence("111111", "222222")})

	tv := dial(t, base+"?role=tv")
	tv.expect(t, MsgJoinCode)

	first := dial(t, base+"?role=remote&code=111111")
	first.expect(t, MsgPaired)

	second := dial(t, base+"?role=remote&code=111111")
	assert.Equal(t, "unknown join code", second.expect(t, MsgError).Error)
}

func TestHub_PairingCode(t *testing.T) {
	_, base := newTestHub(t, HubConfig{NewCode: sequence("111111", "222222", "333333")})

	tv := dial(t, base+"?role=tv&pairingCode=perm-1")
	tv.expect(t, MsgJoinCode)

	first := dial(t, base+"?role=remote&code=perm-1")
	first.expect(t, MsgPaired)
	tv.expect(t, MsgPaired)

	busy := dial(t, base+"?role=remote&code=perm-1")
	assert.Equal(t, "tv already paired", busy.expect(t, MsgError).Error)

	// Pairing codes survive a disconnect; join codes are reissued.
	first.send(t, Message{Type: MsgDisconnect})
	first.expectClosed(t)
	tv.expect(t, MsgPeerDisconnected)
	assert.Equal(t, "222222", tv.expect(t, MsgJoinCode).Code)

	again := dial(t, base+"?role=remote&code=perm-1")
	again.expect(t, MsgPaired)
}

func TestHub_LatestTVOwnsPairingCode(t *testing.T) {
	_, base := newTestHub(t, HubConfig{NewCode: sequence("111111", "222222")})

	old := dial(t, base+"?role=tv&pairingCode=perm-1")
	old.expect(t, MsgJoinCode)
	latest := dial(t, base+"?role=tv&pairingCode=perm-1")
	latestCode := latest.expect(t, MsgJoinCode)

	remote := dial(t, base+"?role=remote&code=perm-1")
	assert.Equal(t, latestCode.Room, remote.expect(t, MsgPaired).Room)
}

func TestHub_JoinMeetingForwarded(t *testing.T) {
	_, base := newTestHub(t, HubConfig{NewCode: sequence("123456")})

	tv := dial(t, base+"?role=tv")
	tv.expect(t, MsgJoinCode)
	remote := dial(t, base+"?role=remote&code=123456")
	remote.expect(t, MsgPaired)
	tv.expect(t, MsgPaired)

	remote.send(t, Message{Type: MsgJoinMeeting, Name: "room1"})

	assert.Equal(t, "room1", tv.expect(t, MsgJoinMeeting).Name)
	assert.Equal(t, "room1", remote.expect(t, MsgMeetingJoined).Name)
}

func TestHub_JoinMeetingRejected(t *testing.T) {
	_, base := newTestHub(t, HubConfig{NewCode: sequence("111111", "222222")})

	tv := dial(t, base+"?role=tv")
	tv.expect(t, MsgJoinCode)

	tv.send(t, Message{Type: MsgJoinMeeting, Name: "room1"})
	assert.Equal(t, "only a remote can join a meeting", tv.expect(t, MsgError).Error)

	remote := dial(t, base+"?role=remote&code=111111&share=true")
	assert.True(t, remote.expect(t, MsgPaired).Share)
	assert.True(t, tv.expect(t, MsgPaired).Share)

	remote.send(t, Message{Type: MsgJoinMeeting, Name: "room1"})
	assert.Equal(t, "share-only connection", remote.expect(t, MsgError).Error)
}

func TestHub_InvalidMessages(t *testing.T) {
	_, base := newTestHub(t, HubConfig{NewCode: sequence("123456")})

	tv := dial(t, base+"?role=tv")
	tv.expect(t, MsgJoinCode)

	require.NoError(t, tv.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "invalid message", tv.expect(t, MsgError).Error)

	tv.send(t, Message{Type: "reboot"})
	assert.Equal(t, "unknown message type reboot", tv.expect(t, MsgError).Error)

	remote := dial(t, base+"?role=remote&code=123456")
	remote.expect(t, MsgPaired)
	remote.send(t, Message{Type: MsgJoinMeeting})
	assert.Equal(t, "meeting name required", remote.expect(t, MsgError).Error)
}

func TestHub_TVLeaves(t *testing.T) {
	h, base := newTestHub(t, HubConfig{NewCode: sequence("123456")})

	tv := dial(t, base+"?role=tv&pairingCode=perm-1")
	tv.expect(t, MsgJoinCode)
	remote := dial(t, base+"?role=remote&code=123456")
	remote.expect(t, MsgPaired)
	tv.expect(t, MsgPaired)

	tv.send(t, Message{Type: MsgDisconnect})
	tv.expectClosed(t)

	remote.expect(t, MsgPeerDisconnected)
	remote.expectClosed(t)

	require.Eventually(t, func() bool { return h.Rooms() == 0 }, readTimeout, 10*time.Millisecond)

	lateRemote := dial(t, base+"?role=remote&code=perm-1")
	assert.Equal(t, "unknown join code", lateRemote.expect(t, MsgError).Error)
}

func TestHub_AbruptCloseLeaves(t *testing.T) {
	_, base := newTestHub(t, HubConfig{NewCode: sequence("111111", "222222")})

	tv := dial(t, base+"?role=tv")
	tv.expect(t, MsgJoinCode)
	remote := dial(t, base+"?role=remote&code=111111")
	remote.expect(t, MsgPaired)
	tv.expect(t, MsgPaired)

	require.NoError(t, remote.conn.Close())

	tv.expect(t, MsgPeerDisconnected)
	assert.Equal(t, "222222", tv.expect(t, MsgJoinCode).Code)
}

func TestHub_JoinCodeRotation(t *testing.T) {
	_, base := newTestHub(t, HubConfig{
		JoinCodeTTL: 50 * time.Millisecond,
		NewCode:     sequence("111111", "222222", "333333"),
	})

	tv := dial(t, base+"?role=tv")
	assert.Equal(t, "111111", tv.expect(t, MsgJoinCode).Code)
	assert.Equal(t, "222222", tv.expect(t, MsgJoinCode).Code)

	expired := dial(t, base+"?role=remote&code=111111")
	assert.Equal(t, "unknown join code", expired.expect(t, MsgError).Error)
}

func TestHub_CodeCollisionRetries(t *testing.T) {
	_, base := newTestHub(t, HubConfig{NewCode: sequence("111111", "111111", "222222")})

	first := dial(t, base+"?role=tv")
	assert.Equal(t, "111111", first.expect(t, MsgJoinCode).Code)

	second := dial(t, base+"?role=tv")
	assert.Equal(t, "222222", second.expect(t, MsgJoinCode).Code)
}

func TestHub_BadRole(t *testing.T) {
	h := NewHub(HubConfig{}, zerolog.Nop())
	defer h.Close()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/signal?role=toaster", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHub_Close(t *testing.T) {
	h, base := newTestHub(t, HubConfig{})

	tv := dial(t, base+"?role=tv")
	tv.expect(t, MsgJoinCode)

	require.NoError(t, h.Close())
	tv.expectClosed(t)
	assert.ErrorIs(t, h.Close(), ErrHubClosed)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/signal?role=tv", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeCloser struct {
	closed atomic.Int32
}

func (c *fakeCloser) Close() error {
	c.closed.Add(1)
	return nil
}

func TestHub_ShareLifecycle(t *testing.T) {
	h, base := newTestHub(t, HubConfig{NewCode: sequence("111111", "222222")})

	tv := dial(t, base+"?role=tv")
	room := tv.expect(t, MsgJoinCode).Room
	assert.ErrorIs(t, h.ShareRoom(room), ErrRoomNotFound, "no remote yet")
	assert.ErrorIs(t, h.ShareRoom("missing"), ErrRoomNotFound)

	remote := dial(t, base+"?role=remote&code=111111&share=true")
	remote.expect(t, MsgPaired)
	tv.expect(t, MsgPaired)
	require.NoError(t, h.ShareRoom(room))

	closer := &fakeCloser{}
	require.NoError(t, h.AttachShare(room, closer))

	h.ShareStarted(room)
	tv.expect(t, MsgShareStarted)
	h.ShareStopped(room)
	tv.expect(t, MsgShareStopped)

	remote.send(t, Message{Type: MsgDisconnect})
	tv.expect(t, MsgPeerDisconnected)
	require.Eventually(t, func() bool { return closer.closed.Load() == 1 }, readTimeout, 10*time.Millisecond)
	assert.ErrorIs(t, h.AttachShare(room, closer), ErrRoomNotFound)
}

func TestHub_ShareRoomRequiresShareMode(t *testing.T) {
	h, base := newTestHub(t, HubConfig{NewCode: sequence("111111")})

	tv := dial(t, base+"?role=tv")
	room := tv.expect(t, MsgJoinCode).Room
	remote := dial(t, base+"?role=remote&code=111111")
	remote.expect(t, MsgPaired)

	assert.ErrorIs(t, h.ShareRoom(room), ErrNotShareRoom)
}
