package audio

import "testing"

func TestPacketizer_AdvancesSequenceAndTimestamp(t *testing.T) {
	p := NewPacketizer(0xCAFE, FrameSize)

	first := p.Packetize([]byte{1, 2, 3})
	second := p.Packetize([]byte{4})

	if first.SequenceNumber != 0 || second.SequenceNumber != 1 {
		t.Errorf("sequence numbers = %d, %d, want 0, 1", first.SequenceNumber, second.SequenceNumber)
	}
	if second.Timestamp-first.Timestamp != FrameSize {
		t.Errorf("timestamp delta = %d, want %d", second.Timestamp-first.Timestamp, FrameSize)
	}
	if first.PayloadType != PayloadType || first.SSRC != 0xCAFE || first.Version != 2 {
		t.Errorf("header = %+v", first.Header)
	}
}

func TestPacketizer_CopiesPayload(t *testing.T) {
	p := NewPacketizer(1, FrameSize)
	payload := []byte{9, 9}
	packet := p.Packetize(payload)
	payload[0] = 0

	if packet.Payload[0] != 9 {
		t.Error("packet payload aliases the caller's buffer")
	}
}

func TestSilence_ZeroesFrame(t *testing.T) {
	pcm := []int16{1, -1, 5}
	if err := (Silence{}).ReadFrame(pcm); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	for i, v := range pcm {
		if v != 0 {
			t.Errorf("pcm[%d] = %d, want 0", i, v)
		}
	}
}
