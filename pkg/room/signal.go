package room

import "encoding/json"

// Signaling message types exchanged with the room server
const (
	SignalJoin              = "join"
	SignalJoined            = "joined"
	SignalParticipantJoined = "participant_joined"
	SignalParticipantLeft   = "participant_left"
	SignalOffer             = "offer"
	SignalAnswer            = "answer"
	SignalCandidate         = "candidate"
	SignalData              = "data"
	SignalError             = "error"
)

// LossyChannelLabel is the data channel the server opens for unreliable data
const LossyChannelLabel = "lossy"

// SignalMessage represents a signaling message between client and server
type SignalMessage struct {
	Type         string        `json:"type"`
	Token        string        `json:"token,omitempty"`
	ClientID     string        `json:"client_id,omitempty"`
	Name         string        `json:"name,omitempty"`
	Role         Role          `json:"role,omitempty"`
	SDP          string        `json:"sdp,omitempty"`
	Candidate    string        `json:"candidate,omitempty"`
	Data         []byte        `json:"data,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// ToJSON marshals the message, returning an empty object on failure
func (m SignalMessage) ToJSON() []byte {
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}
