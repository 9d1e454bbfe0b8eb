package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"example.com/sharecore/pkg/annotation"
	"example.com/sharecore/pkg/command"
	"example.com/sharecore/pkg/ipc"
	"example.com/sharecore/pkg/room"
)

func (d *Dispatcher) handleJoinRoom(c command.JoinRoom) {
	if d.conn != nil || d.joinCancel != nil {
		slog.Info("dispatcher: leaving current room before joining another")
		d.leave()
	}

	d.attempt++
	attempt := d.attempt
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.ConnectTimeout)
	d.joinCancel = cancel
	d.setConnectionState(command.Connecting)
	slog.Info("dispatcher: joining room", "server", c.ServerURL, "attempt", attempt)

	go func() {
		defer cancel()
		conn, err := d.transport.Connect(ctx, c.ServerURL, c.Token)
		if err != nil {
			d.Submit(command.RoomJoinFailed{Attempt: attempt, Err: err})
			return
		}
		d.Submit(command.RoomConnected{Attempt: attempt, Conn: conn})
	}()
}

func (d *Dispatcher) handleRoomConnected(c command.RoomConnected) {
	if c.Attempt != d.attempt || d.joinCancel == nil {
		slog.Info("dispatcher: closing connection from abandoned join", "attempt", c.Attempt)
		c.Conn.Close()
		return
	}
	d.joinCancel = nil
	d.conn = c.Conn

	local := c.Conn.Local()
	slog.Info("dispatcher: joined room", "participant", local.ID, "role", local.Role)
	d.setConnectionState(command.Connected)
	d.addParticipant(local)
	for _, p := range c.Conn.Participants() {
		d.addParticipant(p)
	}

	go pumpEvents(c.Attempt, c.Conn, d.queue)

	if err := c.Conn.SetMicrophoneEnabled(!d.micMuted); err != nil {
		slog.Warn("dispatcher: apply microphone state", "error", err)
	}

	// A share started before joining is republished into the room.
	if d.sharing {
		d.handleStartScreenShare(d.share)
	}
}

func (d *Dispatcher) handleRoomJoinFailed(c command.RoomJoinFailed) {
	if c.Attempt != d.attempt || d.joinCancel == nil {
		return
	}
	d.joinCancel = nil
	slog.Error("dispatcher: join failed", "attempt", c.Attempt, "error", c.Err)
	d.fail(command.CodeRoomJoinFailed, fmt.Errorf("join room: %w", c.Err))
	d.setConnectionState(command.Disconnected)
}

func (d *Dispatcher) handleRoomDisconnected(c command.RoomDisconnected) {
	if c.Attempt != d.attempt || d.conn == nil {
		return
	}
	if c.Err != nil {
		d.fail(command.CodeRoomDisconnected, fmt.Errorf("room connection lost: %w", c.Err))
	}
	d.leave()
}

func (d *Dispatcher) handleLeaveRoom() {
	slog.Info("dispatcher: leaving room")
	d.leave()
}

// leave drops the connection or pending join and every piece of room state
func (d *Dispatcher) leave() {
	if d.joinCancel != nil {
		d.joinCancel()
		d.joinCancel = nil
	}
	// Invalidate results of any join still in flight.
	d.attempt++

	if d.sharing {
		d.handleStopScreenShare()
	}
	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			slog.Warn("dispatcher: close room connection", "error", err)
		}
		d.conn = nil
	}

	for _, id := range d.joinOrder {
		if p := d.participants[id]; !p.IsLocal {
			d.send(ipc.NewParticipantLeft(id))
		}
	}
	d.participants = make(map[string]room.Participant)
	d.joinOrder = nil
	d.colors = make(map[string]annotation.Color)
	d.nextColor = 0
	d.cursors = make(map[string]*RemoteCursor)
	d.store.Clear()
	d.redraw()
	d.setConnectionState(command.Disconnected)
}

func (d *Dispatcher) setConnectionState(state command.ConnectionState) {
	if d.connState == state {
		return
	}
	d.connState = state
	d.send(ipc.NewConnectionStateChanged(state))
}

func (d *Dispatcher) addParticipant(p room.Participant) {
	if _, ok := d.participants[p.ID]; !ok {
		d.joinOrder = append(d.joinOrder, p.ID)
		if !p.IsLocal {
			d.colors[p.ID] = paletteColor(d.nextColor)
			d.nextColor++
		}
	}
	d.participants[p.ID] = p
	d.send(ipc.NewParticipantJoined(p))
}

func (d *Dispatcher) handleParticipantJoined(p room.Participant) {
	if d.conn == nil {
		return
	}
	slog.Info("dispatcher: participant joined", "participant", p.ID, "name", p.Name)
	d.addParticipant(p)
}

func (d *Dispatcher) handleParticipantLeft(id string) {
	if _, ok := d.participants[id]; !ok {
		return
	}
	delete(d.participants, id)
	for i, pid := range d.joinOrder {
		if pid == id {
			d.joinOrder = append(d.joinOrder[:i], d.joinOrder[i+1:]...)
			break
		}
	}
	delete(d.cursors, id)
	delete(d.colors, id)
	removed := d.store.DeleteByAuthor(id)
	slog.Info("dispatcher: participant left", "participant", id, "strokes_removed", removed)

	d.send(ipc.NewParticipantLeft(id))
	d.redraw()
}

// pumpEvents converts one connection's events into commands until the
// stream closes
func pumpEvents(attempt uint64, conn room.Connection, q *Queue) {
	for ev := range conn.Events() {
		switch e := ev.(type) {
		case room.ParticipantJoined:
			q.Submit(command.ParticipantJoined{Participant: e.Participant})
		case room.ParticipantLeft:
			q.Submit(command.ParticipantLeft{ParticipantID: e.ParticipantID})
		case room.DataReceived:
			q.Submit(command.DataReceived{ParticipantID: e.ParticipantID, Payload: e.Payload})
		case room.Disconnected:
			q.Submit(command.RoomDisconnected{Attempt: attempt, Err: e.Err})
		}
	}
}
