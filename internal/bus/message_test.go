package bus

import (
	"bytes"
	"testing"
)

func TestEncodeParseFrameRoundTrip(t *testing.T) {
	m := NewMessage(ShardTopic(2), TypeProposalBlock, []byte("proposal bytes"), 7)
	frame := EncodeFrame(m)
	if frame[0] != frameHeader {
		t.Fatalf("frame[0] = %#x, want %#x", frame[0], frameHeader)
	}

	got, err := ParseFrame(frame)
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if got.URI != m.URI {
		t.Fatalf("URI = %q, want %q", got.URI, m.URI)
	}
	if got.Type != m.Type {
		t.Fatalf("Type = %v, want %v", got.Type, m.Type)
	}
	if got.Index != m.Index {
		t.Fatalf("Index = %d, want %d", got.Index, m.Index)
	}
	if !bytes.Equal(got.Payload, m.Payload) {
		t.Fatal("Payload mismatch after round trip")
	}
}

func TestParseFrameRejectsBadHeader(t *testing.T) {
	frame := EncodeFrame(NewMessage("x", TypeValid, nil, 0))
	frame[0] = 0xFF
	if _, err := ParseFrame(frame); err == nil {
		t.Fatal("ParseFrame must reject a frame with the wrong header byte")
	}
}

func TestParseFrameRejectsTruncated(t *testing.T) {
	frame := EncodeFrame(NewMessage(ShardTopic(0), TypeFinalBlock, []byte("abc"), 1))
	if _, err := ParseFrame(frame[:len(frame)-2]); err == nil {
		t.Fatal("ParseFrame must reject a truncated frame")
	}
}

func TestBusPublishSubscribe(t *testing.T) {
	b := New()
	sub := b.Subscribe(ShardTopic(1))
	other := b.Subscribe(ShardTopic(2))

	b.Publish(NewMessage(ShardTopic(1), TypeTransactionAnnouncement, []byte("tx"), 0))

	select {
	case m := <-sub:
		if m.Type != TypeTransactionAnnouncement {
			t.Fatalf("Type = %v, want TypeTransactionAnnouncement", m.Type)
		}
	default:
		t.Fatal("expected a message on the subscribed topic")
	}

	select {
	case <-other:
		t.Fatal("a message published on shard-1 must not reach a shard-2 subscriber")
	default:
	}
}

func TestTopicHelpers(t *testing.T) {
	if got := ShardTopic(3); got != "shard-3" {
		t.Fatalf("ShardTopic(3) = %q, want %q", got, "shard-3")
	}
	if got := RemoteTopic(5); got != "RemoteURI-5" {
		t.Fatalf("RemoteTopic(5) = %q, want %q", got, "RemoteURI-5")
	}
}
