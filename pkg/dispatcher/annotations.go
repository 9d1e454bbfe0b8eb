package dispatcher

import (
	"fmt"
	"log/slog"
	"sort"

	"example.com/sharecore/pkg/annotation"
	"example.com/sharecore/pkg/command"
)

// palette colors remote cursors by join order
var palette = []annotation.Color{
	{R: 255, G: 87, B: 87, A: 255},  // red
	{R: 87, G: 166, B: 255, A: 255}, // blue
	{R: 87, G: 255, B: 144, A: 255}, // green
	{R: 255, G: 193, B: 87, A: 255}, // orange
	{R: 200, G: 87, B: 255, A: 255}, // purple
	{R: 255, G: 87, B: 200, A: 255}, // pink
}

func paletteColor(i int) annotation.Color {
	return palette[i%len(palette)]
}

// handleSendAnnotation applies a local stroke to the store and mirrors it to
// the room. A new stroke id starts a stroke; a known id extends it.
func (d *Dispatcher) handleSendAnnotation(c command.SendAnnotation) {
	points := c.Points
	if _, exists := d.store.Get(c.StrokeID); !exists {
		if len(points) == 0 {
			slog.Debug("dispatcher: ignoring empty stroke", "stroke", c.StrokeID)
			return
		}
		d.store.Start(c.StrokeID, d.localID(), c.Tool, c.Color, points[0])
		d.broadcast(annotation.NewStrokeStart(c.StrokeID, c.Tool, c.Color, points[0]), true)
		points = points[1:]
	}

	if len(points) > 0 {
		d.store.Update(c.StrokeID, points)
		d.broadcast(annotation.NewStrokeUpdate(c.StrokeID, points), true)
	}
	if c.Completed {
		d.store.Complete(c.StrokeID)
		d.broadcast(annotation.NewStrokeComplete(c.StrokeID), true)
	}
	d.redraw()
}

func (d *Dispatcher) handleDeleteAnnotation(c command.DeleteAnnotation) {
	if !d.store.Delete(c.StrokeID) {
		return
	}
	d.broadcast(annotation.NewStrokeDelete(c.StrokeID), true)
	d.redraw()
}

func (d *Dispatcher) handleClearAnnotations() {
	d.store.Clear()
	d.broadcast(annotation.NewClearAll(), true)
	d.redraw()
}

func (d *Dispatcher) handleRemoteCursor(c command.RemoteCursorMoved) {
	if _, ok := d.participants[c.ParticipantID]; !ok {
		return
	}
	cursor, ok := d.cursors[c.ParticipantID]
	if !ok {
		cursor = &RemoteCursor{ParticipantID: c.ParticipantID, Color: d.colors[c.ParticipantID]}
		d.cursors[c.ParticipantID] = cursor
	}
	cursor.X = c.X
	cursor.Y = c.Y
	cursor.Visible = c.Visible
	d.redraw()
}

// handleDataReceived decodes a remote data message and schedules the
// matching command
func (d *Dispatcher) handleDataReceived(c command.DataReceived) {
	msg, err := annotation.Decode(c.Payload)
	if err != nil {
		slog.Warn("dispatcher: dropping data message", "participant", c.ParticipantID, "error", err)
		return
	}

	switch m := msg.(type) {
	case annotation.StrokeStart:
		d.Submit(command.StrokeStarted{ParticipantID: c.ParticipantID, StrokeID: m.StrokeID, Tool: m.Tool, Color: m.Color, Point: m.Point})
	case annotation.StrokeUpdate:
		d.Submit(command.StrokeUpdated{ParticipantID: c.ParticipantID, StrokeID: m.StrokeID, Points: m.Points})
	case annotation.StrokeComplete:
		d.Submit(command.StrokeCompleted{ParticipantID: c.ParticipantID, StrokeID: m.StrokeID})
	case annotation.StrokeDelete:
		d.Submit(command.StrokeDeleted{ParticipantID: c.ParticipantID, StrokeID: m.StrokeID})
	case annotation.ClearAll:
		d.Submit(command.AnnotationsCleared{ParticipantID: c.ParticipantID})
	case annotation.CursorMove:
		d.Submit(command.RemoteCursorMoved{ParticipantID: c.ParticipantID, X: m.X, Y: m.Y, Visible: m.Visible})
	}
}

// broadcast sends a data message to the room, if joined
func (d *Dispatcher) broadcast(msg annotation.Message, reliable bool) {
	if d.conn == nil {
		return
	}
	payload, err := annotation.Encode(msg)
	if err != nil {
		slog.Error("dispatcher: encode data message", "error", err)
		return
	}
	if err := d.conn.SendData(payload, reliable); err != nil {
		if reliable {
			d.fail(command.CodeDataSendFailed, fmt.Errorf("send data: %w", err))
			return
		}
		slog.Debug("dispatcher: lossy send failed", "error", err)
	}
}

func (d *Dispatcher) redraw() {
	if !d.overlayOn {
		return
	}
	cursors := make([]RemoteCursor, 0, len(d.cursors))
	for _, c := range d.cursors {
		cursors = append(cursors, *c)
	}
	sort.Slice(cursors, func(i, j int) bool { return cursors[i].ParticipantID < cursors[j].ParticipantID })
	d.overlay.Redraw(d.store.Strokes(), cursors)
}
