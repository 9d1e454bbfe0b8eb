package relay

import (
	"sync"

	"example.com/sharecore/pkg/room"
)

// Room holds all peers that joined with the same token
type Room struct {
	ID    string
	Peers map[string]*Peer
	order []string
	mu    sync.RWMutex
}

func newRoom(id string) *Room {
	return &Room{
		ID:    id,
		Peers: make(map[string]*Peer),
	}
}

// AddPeer adds a peer to the room. The first peer becomes the host.
func (r *Room) AddPeer(peer *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Peers) == 0 {
		peer.Role = room.RoleHost
	} else {
		peer.Role = room.RoleParticipant
	}
	r.Peers[peer.ID] = peer
	r.order = append(r.order, peer.ID)
	peer.Room = r
}

// RemovePeer removes a peer from the room and reports how many remain
func (r *Room) RemovePeer(peerID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.Peers, peerID)
	for i, id := range r.order {
		if id == peerID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return len(r.Peers)
}

// GetOtherPeers returns all peers except the one with excludeID, in join order
func (r *Room) GetOtherPeers(excludeID string) []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]*Peer, 0, len(r.order))
	for _, id := range r.order {
		if id != excludeID {
			peers = append(peers, r.Peers[id])
		}
	}
	return peers
}

// Participants describes every peer except excludeID
func (r *Room) Participants(excludeID string) []room.Participant {
	others := r.GetOtherPeers(excludeID)
	participants := make([]room.Participant, 0, len(others))
	for _, p := range others {
		participants = append(participants, p.Participant())
	}
	return participants
}

// BroadcastExcept sends a message to all peers except the one with excludeID
func (r *Room) BroadcastExcept(excludeID string, msg room.SignalMessage) {
	for _, peer := range r.GetOtherPeers(excludeID) {
		peer.SendMessage(msg)
	}
}

// GetPeer returns the peer with the given ID
func (r *Room) GetPeer(peerID string) *Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Peers[peerID]
}

// Len returns the number of peers
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Peers)
}
