package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// keyframeInterval is how often the receiver asks the sharer for a keyframe.
const keyframeInterval = 3 * time.Second

// ShareStats counts media received from a share-only Remote.
type ShareStats struct {
	mu               sync.Mutex
	active           bool
	packets          uint64
	frames           uint64
	bytes            uint64
	keyframeRequests uint64
	lastSequence     uint16
}

// ShareSnapshot is the JSON view of ShareStats.
type ShareSnapshot struct {
	Room             string `json:"room"`
	Active           bool   `json:"active"`
	Packets          uint64 `json:"packets"`
	Frames           uint64 `json:"frames"`
	Bytes            uint64 `json:"bytes"`
	KeyframeRequests uint64 `json:"keyframeRequests"`
	LastSequence     uint16 `json:"lastSequence"`
}

// OnPacket records one RTP packet. The marker bit ends a video frame.
func (s *ShareStats) OnPacket(pkt *rtp.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets++
	s.bytes += uint64(len(pkt.Payload))
	s.lastSequence = pkt.SequenceNumber
	if pkt.Marker {
		s.frames++
	}
}

func (s *ShareStats) setActive(active bool) {
	s.mu.Lock()
	s.active = active
	s.mu.Unlock()
}

func (s *ShareStats) onKeyframeRequest() {
	s.mu.Lock()
	s.keyframeRequests++
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters.
func (s *ShareStats) Snapshot(roomID string) ShareSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ShareSnapshot{
		Room:             roomID,
		Active:           s.active,
		Packets:          s.packets,
		Frames:           s.frames,
		Bytes:            s.bytes,
		KeyframeRequests: s.keyframeRequests,
		LastSequence:     s.lastSequence,
	}
}

// shareRegistry keeps the latest stats per room.
type shareRegistry struct {
	mu    sync.Mutex
	stats map[string]*ShareStats
}

func newShareRegistry() *shareRegistry {
	return &shareRegistry{stats: make(map[string]*ShareStats)}
}

func (r *shareRegistry) start(roomID string) *ShareStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &ShareStats{}
	r.stats[roomID] = s
	return s
}

func (r *shareRegistry) get(roomID string) (*ShareStats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[roomID]
	return s, ok
}

// newShareAPI builds a receive-only WebRTC API with RTCP reports and NACK
// generation.
func newShareAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	m.RegisterFeedback(webrtc.RTCPFeedback{Type: "nack"}, webrtc.RTPCodecTypeVideo)
	m.RegisterFeedback(webrtc.RTCPFeedback{Type: "nack", Parameter: "pli"}, webrtc.RTPCodecTypeVideo)

	i := &interceptor.Registry{}
	if err := webrtc.ConfigureRTCPReports(i); err != nil {
		return nil, err
	}
	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, err
	}
	i.Add(generator)

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
	), nil
}

// handleShareOffer answers a share-only Remote's offer for ?room=ID.
func (s *Server) handleShareOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := r.URL.Query().Get("room")
	log := s.log.With().Str("c", "share").Str("room", roomID).Logger()

	if err := s.hub.ShareRoom(roomID); err != nil {
		status := http.StatusNotFound
		if errors.Is(err, ErrNotShareRoom) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		log.Warn().Err(err).Msg("decode offer")
		http.Error(w, "Invalid offer", http.StatusBadRequest)
		return
	}

	api, err := newShareAPI()
	if err != nil {
		log.Error().Err(err).Msg("build webrtc api")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		log.Error().Err(err).Msg("create peer connection")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if _, err := pc.AddTransceiverFromKind(
		webrtc.RTPCodecTypeVideo,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly},
	); err != nil {
		log.Error().Err(err).Msg("add transceiver")
		_ = pc.Close()
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	stats := s.shares.start(roomID)

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().Str("codec", track.Codec().MimeType).Uint32("ssrc", uint32(track.SSRC())).Msg("share track")
		stats.setActive(true)
		s.hub.ShareStarted(roomID)

		done := make(chan struct{})
		go readShareTrack(track, stats, done, log)
		go requestKeyframes(pc, uint32(track.SSRC()), stats, done)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug().Str("state", state.String()).Msg("share connection state")
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			stats.setActive(false)
			s.hub.ShareStopped(roomID)
			_ = pc.Close()
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		log.Warn().Err(err).Msg("set remote description")
		_ = pc.Close()
		http.Error(w, "Invalid offer", http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		log.Error().Err(err).Msg("create answer")
		_ = pc.Close()
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		log.Error().Err(err).Msg("set local description")
		_ = pc.Close()
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	<-gatherComplete

	if err := s.hub.AttachShare(roomID, pc); err != nil {
		_ = pc.Close()
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(pc.LocalDescription()); err != nil {
		log.Warn().Err(err).Msg("write answer")
	}
}

// handleShareStats reports counters for ?room=ID.
func (s *Server) handleShareStats(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	stats, ok := s.shares.get(roomID)
	if !ok {
		http.Error(w, "no share for room", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats.Snapshot(roomID))
}

// readShareTrack drains track into stats until the track ends.
func readShareTrack(track *webrtc.TrackRemote, stats *ShareStats, done chan<- struct{}, log zerolog.Logger) {
	defer close(done)
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Msg("share track ended")
			return
		}
		stats.OnPacket(pkt)
	}
}

// rtcpWriter is the part of a PeerConnection used to send feedback.
type rtcpWriter interface {
	WriteRTCP(pkts []rtcp.Packet) error
}

// requestKeyframes sends a PLI right away and then every keyframeInterval
// until done is closed.
func requestKeyframes(w rtcpWriter, ssrc uint32, stats *ShareStats, done <-chan struct{}) {
	ticker := time.NewTicker(keyframeInterval)
	defer ticker.Stop()

	for {
		if err := w.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}}); err == nil {
			stats.onKeyframeRequest()
		}
		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}
