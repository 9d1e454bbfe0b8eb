package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"example.com/sharecore/pkg/audio"
)

var opusCapability = webrtc.RTPCodecCapability{
	MimeType:    webrtc.MimeTypeOpus,
	ClockRate:   audio.SampleRate,
	Channels:    audio.Channels,
	SDPFmtpLine: "minptime=10;useinbandfec=1",
}

var vp8Capability = webrtc.RTPCodecCapability{
	MimeType:  webrtc.MimeTypeVP8,
	ClockRate: 90000,
}

// Options configures room connections
type Options struct {
	Name         string
	ICEServers   []string
	VideoBitrate int
	AudioBitrate int
	Encoder      EncoderFactory
	Microphone   audio.Source // nil sends silence while unmuted
}

// DefaultOptions returns options with a public STUN server and no video encoder
func DefaultOptions() Options {
	return Options{
		ICEServers:   []string{"stun:stun.l.google.com:19302"},
		VideoBitrate: 6_000_000,
		AudioBitrate: 64000,
	}
}

// Dialer implements Transport over websocket signaling and WebRTC media
type Dialer struct {
	opts Options
}

// NewDialer creates a Dialer
func NewDialer(opts Options) *Dialer {
	return &Dialer{opts: opts}
}

// Connect joins the room identified by token on serverURL. It returns once
// the server has acknowledged the join or ctx is done.
func (d *Dialer) Connect(ctx context.Context, serverURL, token string) (Connection, error) {
	c := &Client{
		ID:        uuid.NewString(),
		ServerURL: serverURL,
		opts:      d.opts,
		remote:    make(map[string]Participant),
		tracks:    make(map[string]*videoTrack),
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
	}
	if err := c.connect(ctx, token); err != nil {
		return nil, err
	}
	return c, nil
}

// Client is one joined room connection
type Client struct {
	ID        string
	ServerURL string

	opts           Options
	conn           *websocket.Conn
	peerConnection *webrtc.PeerConnection
	mic            *audio.Microphone
	local          Participant

	mu      sync.Mutex
	remote  map[string]Participant
	initial []Participant
	lossy   *webrtc.DataChannel
	tracks  map[string]*videoTrack

	writeMu     sync.Mutex // separate mutex for WebSocket writes
	negotiateMu sync.Mutex

	events       chan Event
	eventsMu     sync.RWMutex
	eventsClosed bool

	done      chan struct{}
	closeOnce sync.Once
}

func (c *Client) connect(ctx context.Context, token string) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.ServerURL, header)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	c.conn = conn

	pc, err := c.createPeerConnection()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create peer connection: %w", err)
	}
	c.peerConnection = pc

	audioTrack, err := webrtc.NewTrackLocalStaticRTP(opusCapability, "audio-"+c.ID, "stream-"+c.ID)
	if err != nil {
		pc.Close()
		conn.Close()
		return fmt.Errorf("failed to create audio track: %w", err)
	}
	sender, err := pc.AddTrack(audioTrack)
	if err != nil {
		pc.Close()
		conn.Close()
		return fmt.Errorf("failed to add audio track: %w", err)
	}
	go drainRTCP(sender)
	c.mic = audio.NewMicrophone(c.opts.Microphone, audioTrack, c.opts.AudioBitrate)

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		c.sendMessage(SignalMessage{
			Type:      SignalCandidate,
			Candidate: candidate.ToJSON().Candidate,
		})
	})

	// Remote media is rendered by the host UI's own room client; drain it here.
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		slog.Debug("room: remote track", "client", c.ID, "track", track.ID(), "codec", track.Codec().MimeType)
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					return
				}
			}
		}()
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != LossyChannelLabel {
			return
		}
		c.mu.Lock()
		c.lossy = dc
		c.mu.Unlock()
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			c.handleLossy(msg.Data)
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Info("room: peer connection state", "client", c.ID, "state", state.String())
	})

	stopWatch := context.AfterFunc(ctx, func() { conn.Close() })
	err = c.join(token)
	if !stopWatch() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		pc.Close()
		conn.Close()
		if ctx.Err() != nil {
			return fmt.Errorf("join room: %w", ctx.Err())
		}
		return err
	}

	go c.handleMessages()
	slog.Info("room: joined", "client", c.ID, "role", c.local.Role, "participants", len(c.initial))
	return nil
}

func (c *Client) createPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(c.opts.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: c.opts.ICEServers}}
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: opusCapability,
		PayloadType:        audio.PayloadType,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: vp8Capability,
		PayloadType:        96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	return api.NewPeerConnection(config)
}

// join sends the join request and processes messages until the server answers
func (c *Client) join(token string) error {
	if err := c.sendMessage(SignalMessage{
		Type:     SignalJoin,
		Token:    token,
		ClientID: c.ID,
		Name:     c.opts.Name,
	}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	for {
		var msg SignalMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read join response: %w", err)
		}

		switch msg.Type {
		case SignalJoined:
			c.local = Participant{ID: c.ID, Name: c.opts.Name, IsLocal: true, Role: msg.Role}
			c.mu.Lock()
			for _, p := range msg.Participants {
				p.IsLocal = false
				c.remote[p.ID] = p
				c.initial = append(c.initial, p)
			}
			c.mu.Unlock()
			return nil
		case SignalError:
			return fmt.Errorf("%w: %s", ErrJoinRejected, msg.Error)
		default:
			c.handle(msg)
		}
	}
}

func (c *Client) handleMessages() {
	defer c.closeEvents()

	for {
		var msg SignalMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				slog.Warn("room: signaling read failed", "client", c.ID, "error", err)
				c.emit(Disconnected{Err: err})
			}
			return
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg SignalMessage) {
	switch msg.Type {
	case SignalOffer:
		c.handleOffer(msg)
	case SignalAnswer:
		c.handleAnswer(msg)
	case SignalCandidate:
		c.handleCandidate(msg)
	case SignalParticipantJoined:
		p := Participant{ID: msg.ClientID, Name: msg.Name, Role: msg.Role}
		c.mu.Lock()
		c.remote[p.ID] = p
		c.mu.Unlock()
		slog.Info("room: participant joined", "client", c.ID, "participant", p.ID)
		c.emit(ParticipantJoined{Participant: p})
	case SignalParticipantLeft:
		c.mu.Lock()
		delete(c.remote, msg.ClientID)
		c.mu.Unlock()
		slog.Info("room: participant left", "client", c.ID, "participant", msg.ClientID)
		c.emit(ParticipantLeft{ParticipantID: msg.ClientID})
	case SignalData:
		c.emit(DataReceived{ParticipantID: msg.ClientID, Payload: msg.Data, Reliable: true})
	case SignalError:
		slog.Warn("room: server error", "client", c.ID, "error", msg.Error)
	default:
		slog.Debug("room: ignoring signal", "client", c.ID, "type", msg.Type)
	}
}

func (c *Client) handleLossy(raw []byte) {
	var msg SignalMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Debug("room: malformed lossy message", "client", c.ID, "error", err)
		return
	}
	c.emit(DataReceived{ParticipantID: msg.ClientID, Payload: msg.Data})
}

func (c *Client) handleOffer(msg SignalMessage) {
	c.negotiateMu.Lock()
	defer c.negotiateMu.Unlock()

	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  msg.SDP,
	}
	if err := c.peerConnection.SetRemoteDescription(offer); err != nil {
		slog.Warn("room: failed to set remote description", "client", c.ID, "error", err)
		return
	}

	answer, err := c.peerConnection.CreateAnswer(nil)
	if err != nil {
		slog.Warn("room: failed to create answer", "client", c.ID, "error", err)
		return
	}
	if err := c.peerConnection.SetLocalDescription(answer); err != nil {
		slog.Warn("room: failed to set local description", "client", c.ID, "error", err)
		return
	}

	c.sendMessage(SignalMessage{
		Type: SignalAnswer,
		SDP:  answer.SDP,
	})
}

func (c *Client) handleAnswer(msg SignalMessage) {
	answer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  msg.SDP,
	}
	if err := c.peerConnection.SetRemoteDescription(answer); err != nil {
		slog.Warn("room: failed to set remote description", "client", c.ID, "error", err)
	}
}

func (c *Client) handleCandidate(msg SignalMessage) {
	candidate := webrtc.ICECandidateInit{
		Candidate: msg.Candidate,
	}
	if err := c.peerConnection.AddICECandidate(candidate); err != nil {
		slog.Debug("room: failed to add ICE candidate", "client", c.ID, "error", err)
	}
}

// negotiate sends a fresh offer after local tracks changed
func (c *Client) negotiate() {
	c.negotiateMu.Lock()
	defer c.negotiateMu.Unlock()

	offer, err := c.peerConnection.CreateOffer(nil)
	if err != nil {
		slog.Warn("room: failed to create offer", "client", c.ID, "error", err)
		return
	}
	if err := c.peerConnection.SetLocalDescription(offer); err != nil {
		slog.Warn("room: failed to set local description", "client", c.ID, "error", err)
		return
	}
	c.sendMessage(SignalMessage{
		Type: SignalOffer,
		SDP:  offer.SDP,
	})
}

func (c *Client) sendMessage(msg SignalMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (c *Client) emit(ev Event) {
	c.eventsMu.RLock()
	defer c.eventsMu.RUnlock()
	if c.eventsClosed {
		return
	}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Client) closeEvents() {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	c.eventsClosed = true
	close(c.events)
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Local returns the local participant
func (c *Client) Local() Participant {
	return c.local
}

// Participants returns the remote participants present at join time
func (c *Client) Participants() []Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Participant(nil), c.initial...)
}

// PublishVideo adds a VP8 screen-share track and renegotiates
func (c *Client) PublishVideo(width, height int) (VideoTrack, error) {
	if c.closed() {
		return nil, ErrNotConnected
	}
	if c.opts.Encoder == nil {
		return nil, ErrNoEncoder
	}

	id := "screen-" + uuid.NewString()[:8]
	track, err := webrtc.NewTrackLocalStaticSample(vp8Capability, id, "stream-"+c.ID)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}
	sender, err := c.peerConnection.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("add video track: %w", err)
	}
	go drainRTCP(sender)

	vt := &videoTrack{
		id:      id,
		width:   width,
		height:  height,
		track:   track,
		sender:  sender,
		factory: c.opts.Encoder,
		bitrate: c.opts.VideoBitrate,
	}
	c.mu.Lock()
	c.tracks[id] = vt
	c.mu.Unlock()

	c.negotiate()
	slog.Info("room: video published", "client", c.ID, "track", id, "width", width, "height", height)
	return vt, nil
}

// Unpublish removes a track returned by PublishVideo
func (c *Client) Unpublish(track VideoTrack) error {
	c.mu.Lock()
	vt, ok := c.tracks[track.ID()]
	delete(c.tracks, track.ID())
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("unpublish %s: unknown track", track.ID())
	}

	vt.close()
	if c.closed() {
		return nil
	}
	if err := c.peerConnection.RemoveTrack(vt.sender); err != nil {
		return fmt.Errorf("remove video track: %w", err)
	}
	c.negotiate()
	slog.Info("room: video unpublished", "client", c.ID, "track", vt.id)
	return nil
}

// SendData sends payload to the other participants. Unreliable data uses the
// lossy data channel when it is open and falls back to signaling otherwise.
func (c *Client) SendData(payload []byte, reliable bool) error {
	if c.closed() {
		return ErrNotConnected
	}
	if !reliable {
		c.mu.Lock()
		dc := c.lossy
		c.mu.Unlock()
		if dc != nil && dc.ReadyState() == webrtc.DataChannelStateOpen {
			return dc.Send(payload)
		}
	}
	return c.sendMessage(SignalMessage{Type: SignalData, Data: payload})
}

// SetMicrophoneEnabled starts or stops sending the microphone track
func (c *Client) SetMicrophoneEnabled(enabled bool) error {
	if c.closed() {
		return ErrNotConnected
	}
	return c.mic.SetMuted(!enabled)
}

// Events returns the connection's event stream
func (c *Client) Events() <-chan Event {
	return c.events
}

// Close leaves the room
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mic.Close()

		c.mu.Lock()
		tracks := c.tracks
		c.tracks = make(map[string]*videoTrack)
		c.mu.Unlock()
		for _, vt := range tracks {
			vt.close()
		}

		if err := c.peerConnection.Close(); err != nil {
			slog.Debug("room: close peer connection", "client", c.ID, "error", err)
		}
		c.conn.Close()
		slog.Info("room: disconnected", "client", c.ID)
	})
	return nil
}

// drainRTCP reads and discards RTCP packets so the sender's interceptors keep running
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
