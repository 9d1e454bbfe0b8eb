package annotation

import (
	"encoding/json"
	"fmt"
)

// Data message types exchanged with remote participants
const (
	TypeStrokeStart    = "stroke_start"
	TypeStrokeUpdate   = "stroke_update"
	TypeStrokeComplete = "stroke_complete"
	TypeStrokeDelete   = "stroke_delete"
	TypeClearAll       = "clear_all"
	TypeCursorMove     = "cursor_move"
)

// Message is a data message sent between participants
type Message interface {
	messageType() string
}

type StrokeStart struct {
	Type     string `json:"type"`
	StrokeID string `json:"stroke_id"`
	Tool     Tool   `json:"tool"`
	Color    Color  `json:"color"`
	Point    Point  `json:"point"`
}

type StrokeUpdate struct {
	Type     string  `json:"type"`
	StrokeID string  `json:"stroke_id"`
	Points   []Point `json:"points"`
}

type StrokeComplete struct {
	Type     string `json:"type"`
	StrokeID string `json:"stroke_id"`
}

type StrokeDelete struct {
	Type     string `json:"type"`
	StrokeID string `json:"stroke_id"`
}

type ClearAll struct {
	Type string `json:"type"`
}

type CursorMove struct {
	Type    string  `json:"type"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Visible bool    `json:"visible"`
}

func (StrokeStart) messageType() string    { return TypeStrokeStart }
func (StrokeUpdate) messageType() string   { return TypeStrokeUpdate }
func (StrokeComplete) messageType() string { return TypeStrokeComplete }
func (StrokeDelete) messageType() string   { return TypeStrokeDelete }
func (ClearAll) messageType() string       { return TypeClearAll }
func (CursorMove) messageType() string     { return TypeCursorMove }

func NewStrokeStart(id string, tool Tool, color Color, point Point) StrokeStart {
	return StrokeStart{Type: TypeStrokeStart, StrokeID: id, Tool: tool, Color: color, Point: point}
}

func NewStrokeUpdate(id string, points []Point) StrokeUpdate {
	return StrokeUpdate{Type: TypeStrokeUpdate, StrokeID: id, Points: points}
}

func NewStrokeComplete(id string) StrokeComplete {
	return StrokeComplete{Type: TypeStrokeComplete, StrokeID: id}
}

func NewStrokeDelete(id string) StrokeDelete {
	return StrokeDelete{Type: TypeStrokeDelete, StrokeID: id}
}

func NewClearAll() ClearAll {
	return ClearAll{Type: TypeClearAll}
}

func NewCursorMove(x, y float64, visible bool) CursorMove {
	return CursorMove{Type: TypeCursorMove, X: x, Y: y, Visible: visible}
}

// Encode serializes a data message
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a data message by its "type" field
func Decode(payload []byte) (Message, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode data message: %w", err)
	}

	var msg Message
	switch envelope.Type {
	case TypeStrokeStart:
		var m StrokeStart
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", envelope.Type, err)
		}
		msg = m
	case TypeStrokeUpdate:
		var m StrokeUpdate
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", envelope.Type, err)
		}
		msg = m
	case TypeStrokeComplete:
		var m StrokeComplete
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", envelope.Type, err)
		}
		msg = m
	case TypeStrokeDelete:
		var m StrokeDelete
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", envelope.Type, err)
		}
		msg = m
	case TypeClearAll:
		msg = NewClearAll()
	case TypeCursorMove:
		var m CursorMove
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", envelope.Type, err)
		}
		msg = m
	default:
		return nil, fmt.Errorf("unknown data message type %q", envelope.Type)
	}
	return msg, nil
}
