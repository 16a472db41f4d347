package events

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/corvex/corvex/internal/models"
	"github.com/corvex/corvex/internal/protocol"
)

func TestSubscribeAndClose(t *testing.T) {
	b := NewBroadcaster()

	s1 := b.Subscribe()
	s2 := b.Subscribe()
	if b.Count() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.Count())
	}

	s1.Close()
	s1.Close()
	if b.Count() != 1 {
		t.Fatalf("expected 1 subscriber after close, got %d", b.Count())
	}
	if _, ok := <-s1.Events(); ok {
		t.Error("closed subscription still delivers")
	}

	s2.Close()
	if b.Count() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Count())
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	b := NewBroadcaster()
	s := b.Subscribe()
	defer s.Close()

	if dropped := b.Publish(Relocated(protocol.EventRename, models.KindFolder, "A", "B")); dropped != 0 {
		t.Errorf("dropped = %d", dropped)
	}

	select {
	case got := <-s.Events():
		if got.Type != protocol.EventRename || got.Kind != "folder" {
			t.Errorf("event = %+v", got)
		}
		if got.Path != "A" || got.NewPath != "B" {
			t.Errorf("unexpected paths %q -> %q", got.Path, got.NewPath)
		}
		if got.Timestamp == 0 {
			t.Error("expected non-zero timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSlowSubscriberMissesEvents(t *testing.T) {
	b := NewBroadcasterSize(4)
	slow := b.Subscribe()
	defer slow.Close()

	dropped := 0
	for i := 0; i < 10; i++ {
		dropped += b.Publish(Created(models.KindFile, "overflow.md"))
	}
	if dropped != 6 {
		t.Errorf("dropped = %d, want 6", dropped)
	}
	if n := len(slow.Events()); n != 4 {
		t.Errorf("buffered = %d, want 4", n)
	}
}

func TestEventConstructors(t *testing.T) {
	tests := []struct {
		ev   protocol.ChangeEvent
		want protocol.ChangeEvent
	}{
		{Created(models.KindFolder, "A"), protocol.ChangeEvent{Type: "create", Kind: "folder", Path: "A"}},
		{Deleted(models.KindFile, "x.md"), protocol.ChangeEvent{Type: "delete", Kind: "file", Path: "x.md"}},
		{Relocated(protocol.EventMove, models.KindFile, "x.md", "A/x.md"), protocol.ChangeEvent{Type: "move", Kind: "file", Path: "x.md", NewPath: "A/x.md"}},
		{Modified("A/c.md"), protocol.ChangeEvent{Type: "modify", Kind: "file", Path: "A/c.md"}},
	}
	for _, tt := range tests {
		if tt.ev != tt.want {
			t.Errorf("got %+v, want %+v", tt.ev, tt.want)
		}
	}
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	ev := Deleted(models.KindFile, "deleted.md")
	ev.Timestamp = 1234567890
	if err := WriteSSE(&buf, ev); err != nil {
		t.Fatal(err)
	}

	frame := buf.String()
	if !strings.HasPrefix(frame, "event: delete\ndata: ") || !strings.HasSuffix(frame, "\n\n") {
		t.Fatalf("frame = %q", frame)
	}
	data := strings.TrimSuffix(strings.TrimPrefix(frame, "event: delete\ndata: "), "\n\n")
	var back map[string]any
	if err := json.Unmarshal([]byte(data), &back); err != nil {
		t.Fatal(err)
	}
	if back["path"] != "deleted.md" || back["type"] != "delete" {
		t.Errorf("unexpected JSON %s", data)
	}
	if _, ok := back["new_path"]; ok {
		t.Errorf("empty new_path should be omitted: %s", data)
	}
}
