package relay

import (
	"log/slog"

	"github.com/pion/webrtc/v4"

	"example.com/sharecore/pkg/room"
)

// createPeerConnection creates a peer connection that accepts Opus audio and
// VP8 screen-share video
func createPeerConnection(iceServers []string) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	return api.NewPeerConnection(config)
}

// triggerNegotiation creates and sends an offer to the peer
func triggerNegotiation(peer *Peer) {
	peer.negotiateMu.Lock()
	defer peer.negotiateMu.Unlock()

	offer, err := peer.PeerConnection.CreateOffer(nil)
	if err != nil {
		slog.Warn("relay: failed to create offer", "peer", peer.ID, "error", err)
		return
	}

	if err := peer.PeerConnection.SetLocalDescription(offer); err != nil {
		slog.Warn("relay: failed to set local description", "peer", peer.ID, "error", err)
		return
	}

	peer.SendMessage(room.SignalMessage{
		Type: room.SignalOffer,
		SDP:  offer.SDP,
	})
}
