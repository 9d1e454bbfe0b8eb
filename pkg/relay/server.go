// Package relay is the room server: it authenticates joins by token, relays
// signaling and data messages between participants and forwards their media.
package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"example.com/sharecore/pkg/room"
)

// Options configures a relay server
type Options struct {
	ICEServers []string
}

// Server tracks rooms keyed by join token
type Server struct {
	opts     Options
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewServer(opts Options) *Server {
	return &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]*Room),
	}
}

// Handler serves /ws and /health
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// RoomCount returns the number of non-empty rooms
func (s *Server) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"rooms":  s.RoomCount(),
	})
}

func (s *Server) getOrCreateRoom(id string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		r = newRoom(id)
		s.rooms[id] = r
	}
	return r
}

// handleWebSocket handles incoming WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("relay: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var bearer string
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer"); ok {
		bearer = strings.TrimSpace(v)
	}

	var peer *Peer
	defer func() {
		if peer != nil {
			s.handlePeerDisconnect(peer)
		}
	}()

	for {
		var msg room.SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if peer != nil {
				slog.Debug("relay: websocket read ended", "peer", peer.ID, "error", err)
			}
			return
		}

		if peer == nil {
			if msg.Type != room.SignalJoin {
				slog.Debug("relay: ignoring message before join", "type", msg.Type)
				continue
			}
			if msg.Token == "" {
				msg.Token = bearer
			}
			peer, err = s.handleJoin(conn, msg)
			if err != nil {
				slog.Warn("relay: join rejected", "client", msg.ClientID, "error", err)
				conn.WriteJSON(room.SignalMessage{Type: room.SignalError, Error: err.Error()})
				return
			}
			continue
		}

		switch msg.Type {
		case room.SignalOffer:
			handleOffer(peer, msg)
		case room.SignalAnswer:
			handleAnswer(peer, msg)
		case room.SignalCandidate:
			handleCandidate(peer, msg)
		case room.SignalData:
			peer.Room.BroadcastExcept(peer.ID, room.SignalMessage{
				Type:     room.SignalData,
				ClientID: peer.ID,
				Data:     msg.Data,
			})
		default:
			slog.Debug("relay: ignoring signal", "peer", peer.ID, "type", msg.Type)
		}
	}
}

// handleJoin admits a peer into the room named by its token
func (s *Server) handleJoin(conn *websocket.Conn, msg room.SignalMessage) (*Peer, error) {
	if msg.Token == "" {
		return nil, fmt.Errorf("missing token")
	}
	if msg.ClientID == "" {
		return nil, fmt.Errorf("missing client id")
	}

	pc, err := createPeerConnection(s.opts.ICEServers)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	r := s.getOrCreateRoom(msg.Token)
	if r.GetPeer(msg.ClientID) != nil {
		pc.Close()
		return nil, fmt.Errorf("client %s already joined", msg.ClientID)
	}

	peer := &Peer{
		ID:             msg.ClientID,
		Name:           msg.Name,
		Conn:           conn,
		PeerConnection: pc,
		LocalTracks:    make(map[string]*webrtc.TrackLocalStaticRTP),
	}

	r.AddPeer(peer)
	slog.Info("relay: peer joined", "peer", peer.ID, "name", peer.Name, "role", peer.Role, "peers", r.Len())

	if err := peer.SendMessage(room.SignalMessage{
		Type:         room.SignalJoined,
		ClientID:     peer.ID,
		Role:         peer.Role,
		Participants: r.Participants(peer.ID),
	}); err != nil {
		s.handlePeerDisconnect(peer)
		return nil, fmt.Errorf("send joined: %w", err)
	}

	r.BroadcastExcept(peer.ID, room.SignalMessage{
		Type:     room.SignalParticipantJoined,
		ClientID: peer.ID,
		Name:     peer.Name,
		Role:     peer.Role,
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		peer.SendMessage(room.SignalMessage{
			Type:      room.SignalCandidate,
			Candidate: candidate.ToJSON().Candidate,
		})
	})

	pc.OnTrack(func(remoteTrack *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		forwardTrack(peer, remoteTrack)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Debug("relay: peer connection state", "peer", peer.ID, "state", state.String())
		if state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateClosed {
			s.handlePeerDisconnect(peer)
		}
	})

	ordered := false
	var retransmits uint16
	dc, err := pc.CreateDataChannel(room.LossyChannelLabel, &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &retransmits,
	})
	if err != nil {
		slog.Warn("relay: lossy data channel unavailable", "peer", peer.ID, "error", err)
	} else {
		peer.mu.Lock()
		peer.lossy = dc
		peer.mu.Unlock()
		dc.OnMessage(func(m webrtc.DataChannelMessage) {
			relayLossy(peer, m.Data)
		})
	}

	// Add tracks from existing peers to the new peer
	for _, existing := range r.GetOtherPeers(peer.ID) {
		for _, track := range existing.Tracks() {
			if sender, err := pc.AddTrack(track); err != nil {
				slog.Warn("relay: failed to add existing track", "peer", peer.ID, "track", track.ID(), "error", err)
			} else {
				go drainRTCP(sender)
			}
		}
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			slog.Warn("relay: failed to add transceiver", "peer", peer.ID, "kind", kind.String(), "error", err)
		}
	}

	triggerNegotiation(peer)
	return peer, nil
}

// relayLossy forwards a lossy envelope to every other peer, stamped with the
// sender's id
func relayLossy(peer *Peer, raw []byte) {
	var msg room.SignalMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Debug("relay: malformed lossy message", "peer", peer.ID, "error", err)
		return
	}
	out := room.SignalMessage{
		Type:     room.SignalData,
		ClientID: peer.ID,
		Data:     msg.Data,
	}
	for _, other := range peer.Room.GetOtherPeers(peer.ID) {
		if err := other.SendLossy(out); err != nil {
			slog.Debug("relay: lossy send failed", "peer", other.ID, "error", err)
		}
	}
}

// forwardTrack republishes a peer's incoming track to everyone else in the room
func forwardTrack(peer *Peer, remoteTrack *webrtc.TrackRemote) {
	kind := remoteTrack.Kind().String()
	slog.Info("relay: received track", "peer", peer.ID, "kind", kind, "codec", remoteTrack.Codec().MimeType)

	localTrack, err := webrtc.NewTrackLocalStaticRTP(
		remoteTrack.Codec().RTPCodecCapability,
		fmt.Sprintf("%s-%s-%s", kind, peer.ID, remoteTrack.ID()),
		fmt.Sprintf("stream-%s", peer.ID),
	)
	if err != nil {
		slog.Warn("relay: failed to create local track", "peer", peer.ID, "error", err)
		return
	}

	peer.mu.Lock()
	peer.LocalTracks[remoteTrack.ID()] = localTrack
	peer.mu.Unlock()

	for _, other := range peer.Room.GetOtherPeers(peer.ID) {
		addTrackToPeer(other, localTrack)
	}

	go func() {
		buf := make([]byte, 1500)
		for {
			n, _, err := remoteTrack.Read(buf)
			if err != nil {
				slog.Debug("relay: track ended", "peer", peer.ID, "track", remoteTrack.ID(), "error", err)
				peer.mu.Lock()
				delete(peer.LocalTracks, remoteTrack.ID())
				peer.mu.Unlock()
				return
			}
			if _, err := localTrack.Write(buf[:n]); err != nil {
				return
			}
		}
	}()
}

// handleOffer handles an SDP offer from a peer
func handleOffer(peer *Peer, msg room.SignalMessage) {
	peer.negotiateMu.Lock()
	defer peer.negotiateMu.Unlock()

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP}
	if err := peer.PeerConnection.SetRemoteDescription(offer); err != nil {
		slog.Warn("relay: failed to set remote description", "peer", peer.ID, "error", err)
		return
	}

	answer, err := peer.PeerConnection.CreateAnswer(nil)
	if err != nil {
		slog.Warn("relay: failed to create answer", "peer", peer.ID, "error", err)
		return
	}
	if err := peer.PeerConnection.SetLocalDescription(answer); err != nil {
		slog.Warn("relay: failed to set local description", "peer", peer.ID, "error", err)
		return
	}

	peer.SendMessage(room.SignalMessage{Type: room.SignalAnswer, SDP: answer.SDP})
}

// handleAnswer handles an SDP answer from a peer
func handleAnswer(peer *Peer, msg room.SignalMessage) {
	peer.negotiateMu.Lock()
	defer peer.negotiateMu.Unlock()

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP}
	if err := peer.PeerConnection.SetRemoteDescription(answer); err != nil {
		slog.Warn("relay: failed to set remote description", "peer", peer.ID, "error", err)
	}
}

// handleCandidate handles an ICE candidate from a peer
func handleCandidate(peer *Peer, msg room.SignalMessage) {
	candidate := webrtc.ICECandidateInit{Candidate: msg.Candidate}
	if err := peer.PeerConnection.AddICECandidate(candidate); err != nil {
		slog.Debug("relay: failed to add ICE candidate", "peer", peer.ID, "error", err)
	}
}

// handlePeerDisconnect removes the peer once and tells the room
func (s *Server) handlePeerDisconnect(peer *Peer) {
	peer.leaveOnce.Do(func() {
		r := peer.Room
		remaining := r.RemovePeer(peer.ID)
		r.BroadcastExcept(peer.ID, room.SignalMessage{
			Type:     room.SignalParticipantLeft,
			ClientID: peer.ID,
		})
		if remaining == 0 {
			s.mu.Lock()
			if s.rooms[r.ID] == r && r.Len() == 0 {
				delete(s.rooms, r.ID)
			}
			s.mu.Unlock()
		}
		if err := peer.PeerConnection.Close(); err != nil {
			slog.Debug("relay: close peer connection", "peer", peer.ID, "error", err)
		}
		peer.Conn.Close()
		slog.Info("relay: peer left", "peer", peer.ID, "room_peers", remaining)
	})
}
