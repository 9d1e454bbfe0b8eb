package relay

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"example.com/sharecore/pkg/room"
)

// Peer represents a connected client
type Peer struct {
	ID             string
	Name           string
	Role           room.Role
	Conn           *websocket.Conn
	PeerConnection *webrtc.PeerConnection
	Room           *Room
	LocalTracks    map[string]*webrtc.TrackLocalStaticRTP

	mu          sync.Mutex
	writeMu     sync.Mutex
	negotiateMu sync.Mutex
	lossy       *webrtc.DataChannel
	leaveOnce   sync.Once
}

// Participant describes the peer to other members of its room
func (p *Peer) Participant() room.Participant {
	return room.Participant{ID: p.ID, Name: p.Name, Role: p.Role}
}

// SendMessage sends a signaling message to the peer
func (p *Peer) SendMessage(msg room.SignalMessage) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.Conn.WriteJSON(msg)
}

// SendLossy delivers an envelope over the peer's lossy data channel, falling
// back to signaling until the channel is open
func (p *Peer) SendLossy(msg room.SignalMessage) error {
	p.mu.Lock()
	dc := p.lossy
	p.mu.Unlock()
	if dc != nil && dc.ReadyState() == webrtc.DataChannelStateOpen {
		return dc.Send(msg.ToJSON())
	}
	return p.SendMessage(msg)
}

// Tracks returns a snapshot of the tracks this peer publishes
func (p *Peer) Tracks() []*webrtc.TrackLocalStaticRTP {
	p.mu.Lock()
	defer p.mu.Unlock()
	tracks := make([]*webrtc.TrackLocalStaticRTP, 0, len(p.LocalTracks))
	for _, t := range p.LocalTracks {
		tracks = append(tracks, t)
	}
	return tracks
}

// addTrackToPeer adds a track to the peer and triggers renegotiation
func addTrackToPeer(peer *Peer, track *webrtc.TrackLocalStaticRTP) {
	sender, err := peer.PeerConnection.AddTrack(track)
	if err != nil {
		slog.Warn("relay: failed to add track", "peer", peer.ID, "track", track.ID(), "error", err)
		return
	}

	go drainRTCP(sender)

	triggerNegotiation(peer)
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
