package annotation

import "testing"

func TestDecode_KnownTypes(t *testing.T) {
	tests := []struct {
		payload string
		check   func(Message) bool
	}{
		{`{"type":"stroke_start","stroke_id":"s1","tool":"pen","color":{"r":1,"g":2,"b":3,"a":4},"point":{"x":0.5,"y":0.5}}`,
			func(m Message) bool {
				s, ok := m.(StrokeStart)
				return ok && s.StrokeID == "s1" && s.Tool == ToolPen && s.Color.B == 3 && s.Point.Pressure == 1.0
			}},
		{`{"type":"stroke_update","stroke_id":"s1","points":[{"x":0.1,"y":0.2,"pressure":0.5},{"x":0.3,"y":0.4}]}`,
			func(m Message) bool {
				s, ok := m.(StrokeUpdate)
				return ok && len(s.Points) == 2 && s.Points[1].Pressure == 1.0
			}},
		{`{"type":"stroke_complete","stroke_id":"s1"}`,
			func(m Message) bool { s, ok := m.(StrokeComplete); return ok && s.StrokeID == "s1" }},
		{`{"type":"stroke_delete","stroke_id":"s2"}`,
			func(m Message) bool { s, ok := m.(StrokeDelete); return ok && s.StrokeID == "s2" }},
		{`{"type":"clear_all"}`,
			func(m Message) bool { _, ok := m.(ClearAll); return ok }},
		{`{"type":"cursor_move","x":0.25,"y":0.75,"visible":true}`,
			func(m Message) bool { c, ok := m.(CursorMove); return ok && c.X == 0.25 && c.Visible }},
	}
	for _, tt := range tests {
		m, err := Decode([]byte(tt.payload))
		if err != nil {
			t.Errorf("Decode(%s): %v", tt.payload, err)
			continue
		}
		if !tt.check(m) {
			t.Errorf("Decode(%s) = %+v", tt.payload, m)
		}
	}
}

func TestDecode_Rejects(t *testing.T) {
	for _, payload := range []string{`not json`, `{"type":"laser"}`, `{}`, `{"type":"stroke_update","points":"nope"}`} {
		if _, err := Decode([]byte(payload)); err == nil {
			t.Errorf("Decode(%s) succeeded, want error", payload)
		}
	}
}

func TestEncode_TagsType(t *testing.T) {
	data, err := Encode(NewCursorMove(0, 0, false))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got, want := string(data), `{"type":"cursor_move","x":0,"y":0,"visible":false}`; got != want {
		t.Errorf("Encode = %s, want %s", got, want)
	}
}
