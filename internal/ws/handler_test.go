package ws

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/talkscribe/talkscribe/internal/store"
)

type fakeSessions struct {
	startErr  error
	joinErr   error
	ingestErr error
	stopErr   error

	started  []string
	ingested [][]byte
	stopped  []string
	segments []store.Segment
}

func (f *fakeSessions) Start(_ context.Context, name, language string) (*store.Session, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, name)
	s := &store.Session{Name: name, Language: language, Status: store.StatusActive}
	s.ID = "sess-1"
	return s, nil
}

func (f *fakeSessions) Join(_ context.Context, sessionID string) (*store.Session, []store.Segment, error) {
	if f.joinErr != nil {
		return nil, nil, f.joinErr
	}
	s := &store.Session{Name: "existing", Status: store.StatusActive}
	s.ID = sessionID
	return s, f.segments, nil
}

func (f *fakeSessions) IngestAudio(_ context.Context, _ string, raw []byte, _ int, _ string) error {
	f.ingested = append(f.ingested, raw)
	return f.ingestErr
}

func (f *fakeSessions) Stop(_ context.Context, sessionID string) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, sessionID)
	return nil
}

type fakeSpeakers struct {
	err error
}

func (f *fakeSpeakers) Enroll(_ context.Context, name string, _ []byte, _ int) (*store.SpeakerProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := &store.SpeakerProfile{Name: name}
	p.ID = "spk-1"
	return p, nil
}

type fakeExporter struct {
	err      error
	template string
}

func (f *fakeExporter) Export(_ context.Context, sessionID, format, template string) (string, error) {
	f.template = template
	if f.err != nil {
		return "", f.err
	}
	return sessionID + "." + format, nil
}

func newTestHandler(sessions *fakeSessions) (*Handler, *Hub) {
	hub := NewHub()
	h := NewHandler(hub, sessions, &fakeSpeakers{}, &fakeExporter{}, nil)
	return h, hub
}

// lastMessage returns the most recent message written to the fake conn.
func lastMessage(t *testing.T, c *fakeConn) any {
	t.Helper()
	msgs := c.messages()
	if len(msgs) == 0 {
		t.Fatal("no message written")
	}
	return msgs[len(msgs)-1]
}

func TestUnknownMessageTypeEchoesValue(t *testing.T) {
	h, hub := newTestHandler(&fakeSessions{})
	c := &fakeConn{}
	hub.Connect("conn-1", c)

	h.route(context.Background(), "conn-1", ClientMessage{Type: "bogus_type"})

	errMsg, ok := lastMessage(t, c).(ErrorMessage)
	if !ok {
		t.Fatalf("got %T, want ErrorMessage", lastMessage(t, c))
	}
	if !strings.Contains(errMsg.Message, "bogus_type") {
		t.Errorf("error %q should echo the unknown type", errMsg.Message)
	}
	if hub.Len() != 1 {
		t.Error("connection must stay open after an unknown message type")
	}
}

func TestStartSessionJoinsAndAcks(t *testing.T) {
	sessions := &fakeSessions{}
	h, hub := newTestHandler(sessions)
	c := &fakeConn{}
	hub.Connect("conn-1", c)

	h.route(context.Background(), "conn-1", ClientMessage{
		Type:        TypeStartSession,
		SessionName: "standup",
	})

	ack, ok := lastMessage(t, c).(SessionStartedMessage)
	if !ok {
		t.Fatalf("got %T, want SessionStartedMessage", lastMessage(t, c))
	}
	if ack.SessionID != "sess-1" || ack.SessionName != "standup" {
		t.Errorf("ack = %+v", ack)
	}
	if members := hub.Members("sess-1"); len(members) != 1 {
		t.Errorf("members = %v, want the starter joined", members)
	}
}

func TestJoinSessionReplaysSegments(t *testing.T) {
	sessions := &fakeSessions{segments: []store.Segment{
		{SpeakerID: "Alice", StartTime: 0, EndTime: 1, Text: "hi", Confidence: 0.8},
	}}
	h, hub := newTestHandler(sessions)
	c := &fakeConn{}
	hub.Connect("conn-1", c)

	h.route(context.Background(), "conn-1", ClientMessage{
		Type:      TypeJoinSession,
		SessionID: "sess-9",
	})

	joined, ok := lastMessage(t, c).(SessionJoinedMessage)
	if !ok {
		t.Fatalf("got %T, want SessionJoinedMessage", lastMessage(t, c))
	}
	if len(joined.Segments) != 1 || joined.Segments[0].SpeakerID != "Alice" {
		t.Errorf("segments = %+v", joined.Segments)
	}
}

func TestJoinSessionRequiresID(t *testing.T) {
	h, hub := newTestHandler(&fakeSessions{})
	c := &fakeConn{}
	hub.Connect("conn-1", c)

	h.route(context.Background(), "conn-1", ClientMessage{Type: TypeJoinSession})

	if _, ok := lastMessage(t, c).(ErrorMessage); !ok {
		t.Fatalf("got %T, want ErrorMessage", lastMessage(t, c))
	}
}

func TestAudioDataValidation(t *testing.T) {
	tests := []struct {
		name string
		msg  ClientMessage
	}{
		{"missing session_id", ClientMessage{Type: TypeAudioData, AudioData: "AAAA"}},
		{"missing audio", ClientMessage{Type: TypeAudioData, SessionID: "s"}},
		{"bad base64", ClientMessage{Type: TypeAudioData, SessionID: "s", AudioData: "!!!"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &fakeSessions{}
			h, hub := newTestHandler(sessions)
			c := &fakeConn{}
			hub.Connect("conn-1", c)

			h.route(context.Background(), "conn-1", tt.msg)

			if _, ok := lastMessage(t, c).(ErrorMessage); !ok {
				t.Fatalf("got %T, want ErrorMessage", lastMessage(t, c))
			}
			if len(sessions.ingested) != 0 {
				t.Error("invalid message must not reach the pipeline")
			}
			if hub.Len() != 1 {
				t.Error("connection must stay open")
			}
		})
	}
}

func TestAudioDataDecodesAndIngests(t *testing.T) {
	sessions := &fakeSessions{}
	h, hub := newTestHandler(sessions)
	c := &fakeConn{}
	hub.Connect("conn-1", c)

	raw := []byte{0x01, 0x02, 0x03, 0x04}
	h.route(context.Background(), "conn-1", ClientMessage{
		Type:       TypeAudioData,
		SessionID:  "sess-1",
		AudioData:  base64.StdEncoding.EncodeToString(raw),
		SampleRate: 48000,
	})

	if len(sessions.ingested) != 1 {
		t.Fatalf("ingested %d chunks, want 1", len(sessions.ingested))
	}
	if string(sessions.ingested[0]) != string(raw) {
		t.Error("decoded payload does not match the original bytes")
	}
	// Success path has no unicast ack.
	if len(c.messages()) != 0 {
		t.Errorf("unexpected unicast messages: %v", c.messages())
	}
}

func TestAudioDataStorageErrorIsSilent(t *testing.T) {
	sessions := &fakeSessions{
		ingestErr: &store.StorageError{SessionID: "sess-1", Err: errors.New("db down")},
	}
	h, hub := newTestHandler(sessions)
	c := &fakeConn{}
	hub.Connect("conn-1", c)

	h.route(context.Background(), "conn-1", ClientMessage{
		Type:      TypeAudioData,
		SessionID: "sess-1",
		AudioData: base64.StdEncoding.EncodeToString([]byte{0, 0}),
	})

	if len(c.messages()) != 0 {
		t.Errorf("storage failure must not produce a client error, got %v", c.messages())
	}
}

func TestAudioDataPipelineErrorReportsToSender(t *testing.T) {
	sessions := &fakeSessions{ingestErr: errors.New("boom")}
	h, hub := newTestHandler(sessions)
	c := &fakeConn{}
	hub.Connect("conn-1", c)

	h.route(context.Background(), "conn-1", ClientMessage{
		Type:      TypeAudioData,
		SessionID: "sess-1",
		AudioData: base64.StdEncoding.EncodeToString([]byte{0, 0}),
	})

	if _, ok := lastMessage(t, c).(ErrorMessage); !ok {
		t.Fatalf("got %T, want ErrorMessage", lastMessage(t, c))
	}
}

func TestStopSession(t *testing.T) {
	sessions := &fakeSessions{}
	h, hub := newTestHandler(sessions)
	c := &fakeConn{}
	hub.Connect("conn-1", c)

	h.route(context.Background(), "conn-1", ClientMessage{
		Type:      TypeStopSession,
		SessionID: "sess-1",
	})

	if len(sessions.stopped) != 1 || sessions.stopped[0] != "sess-1" {
		t.Errorf("stopped = %v, want [sess-1]", sessions.stopped)
	}
}

func TestAddSpeakerValidation(t *testing.T) {
	h, hub := newTestHandler(&fakeSessions{})
	c := &fakeConn{}
	hub.Connect("conn-1", c)

	h.route(context.Background(), "conn-1", ClientMessage{
		Type:        TypeAddSpeaker,
		SpeakerName: "Alice",
	})

	if _, ok := lastMessage(t, c).(ErrorMessage); !ok {
		t.Fatalf("got %T, want ErrorMessage for missing audio_sample", lastMessage(t, c))
	}
}

func TestAddSpeakerAck(t *testing.T) {
	h, hub := newTestHandler(&fakeSessions{})
	c := &fakeConn{}
	hub.Connect("conn-1", c)

	h.route(context.Background(), "conn-1", ClientMessage{
		Type:        TypeAddSpeaker,
		SpeakerName: "Alice",
		AudioSample: base64.StdEncoding.EncodeToString([]byte{0, 0, 0, 0}),
	})

	ack, ok := lastMessage(t, c).(SpeakerAddedMessage)
	if !ok {
		t.Fatalf("got %T, want SpeakerAddedMessage", lastMessage(t, c))
	}
	if ack.SpeakerName != "Alice" || ack.SpeakerID != "spk-1" {
		t.Errorf("ack = %+v", ack)
	}
}

func TestExportTranscriptDefaultsToTxt(t *testing.T) {
	h, hub := newTestHandler(&fakeSessions{})
	c := &fakeConn{}
	hub.Connect("conn-1", c)

	h.route(context.Background(), "conn-1", ClientMessage{
		Type:      TypeExportTranscript,
		SessionID: "sess-1",
	})

	ready, ok := lastMessage(t, c).(ExportReadyMessage)
	if !ok {
		t.Fatalf("got %T, want ExportReadyMessage", lastMessage(t, c))
	}
	if ready.Format != "txt" {
		t.Errorf("format = %q, want txt", ready.Format)
	}
	if !strings.HasPrefix(ready.DownloadURL, "/api/v1/downloads/") {
		t.Errorf("download url = %q", ready.DownloadURL)
	}
}

func TestExportTranscriptPassesTemplate(t *testing.T) {
	hub := NewHub()
	exporter := &fakeExporter{}
	h := NewHandler(hub, &fakeSessions{}, &fakeSpeakers{}, exporter, nil)
	c := &fakeConn{}
	hub.Connect("conn-1", c)

	h.route(context.Background(), "conn-1", ClientMessage{
		Type:      TypeExportTranscript,
		SessionID: "sess-1",
		Format:    "txt",
		Template:  "brief",
	})

	if exporter.template != "brief" {
		t.Errorf("template = %q, want brief", exporter.template)
	}
}
