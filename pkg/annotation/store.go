package annotation

import "encoding/json"

// Tool identifies the drawing tool used for a stroke
type Tool string

const (
	ToolPen         Tool = "pen"
	ToolHighlighter Tool = "highlighter"
	ToolEraser      Tool = "eraser"
)

// Valid reports whether t is one of the known tools
func (t Tool) Valid() bool {
	switch t {
	case ToolPen, ToolHighlighter, ToolEraser:
		return true
	}
	return false
}

// Color is an 8-bit RGBA color
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// Point is a stroke sample in normalized screen coordinates (0.0-1.0)
type Point struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Pressure float64 `json:"pressure"`
}

// UnmarshalJSON decodes a point, defaulting a missing pressure to 1.0
func (p *Point) UnmarshalJSON(data []byte) error {
	type rawPoint Point
	raw := rawPoint{Pressure: 1.0}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Point(raw)
	return nil
}

// Stroke is one freehand annotation
type Stroke struct {
	ID        string  `json:"id"`
	AuthorID  string  `json:"author_id"`
	Tool      Tool    `json:"tool"`
	Color     Color   `json:"color"`
	Points    []Point `json:"points"`
	Completed bool    `json:"completed"`
}

// Store holds strokes in render order. It is not safe for concurrent use;
// the dispatcher owns the only instance.
type Store struct {
	strokes map[string]*Stroke
	order   []string
}

// NewStore creates an empty annotation store
func NewStore() *Store {
	return &Store{
		strokes: make(map[string]*Stroke),
	}
}

// Start creates a stroke with its first point and appends it to render order.
// Starting an id that already exists replaces that stroke but keeps its slot.
func (s *Store) Start(id, authorID string, tool Tool, color Color, first Point) {
	stroke := &Stroke{
		ID:       id,
		AuthorID: authorID,
		Tool:     tool,
		Color:    color,
		Points:   []Point{first},
	}
	if _, exists := s.strokes[id]; !exists {
		s.order = append(s.order, id)
	}
	s.strokes[id] = stroke
}

// Update appends points to a stroke. Unknown ids are ignored.
func (s *Store) Update(id string, points []Point) bool {
	stroke, ok := s.strokes[id]
	if !ok {
		return false
	}
	stroke.Points = append(stroke.Points, points...)
	return true
}

// Complete marks a stroke as finished
func (s *Store) Complete(id string) bool {
	stroke, ok := s.strokes[id]
	if !ok {
		return false
	}
	stroke.Completed = true
	return true
}

// Delete removes a stroke from the store
func (s *Store) Delete(id string) bool {
	if _, ok := s.strokes[id]; !ok {
		return false
	}
	delete(s.strokes, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes every stroke
func (s *Store) Clear() {
	s.strokes = make(map[string]*Stroke)
	s.order = nil
}

// DeleteByAuthor removes every stroke owned by authorID and returns how many were removed
func (s *Store) DeleteByAuthor(authorID string) int {
	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if s.strokes[id].AuthorID == authorID {
			delete(s.strokes, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}

// Get returns a copy of the stroke with the given id
func (s *Store) Get(id string) (Stroke, bool) {
	stroke, ok := s.strokes[id]
	if !ok {
		return Stroke{}, false
	}
	return copyStroke(stroke), true
}

// Strokes returns copies of all strokes in render order
func (s *Store) Strokes() []Stroke {
	out := make([]Stroke, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyStroke(s.strokes[id]))
	}
	return out
}

// Len returns the number of strokes
func (s *Store) Len() int {
	return len(s.order)
}

func copyStroke(stroke *Stroke) Stroke {
	out := *stroke
	out.Points = append([]Point(nil), stroke.Points...)
	return out
}
