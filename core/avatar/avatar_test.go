package avatar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestInitializeFailsWithoutRegisteredSurface(t *testing.T) {
	dialed := make(chan struct{}, 1)
	url := newRenderServer(t, func(ws *websocket.Conn, _ *http.Request) { dialed <- struct{}{} })

	_, err := Initialize(context.Background(), "token", "missing", WithURL(url), WithSurfaces(NewSurfaces()))
	if !errors.Is(err, ErrRenderTargetNotFound) {
		t.Fatalf("expected ErrRenderTargetNotFound, got %v", err)
	}
	select {
	case <-dialed:
		t.Fatalf("expected no connection to the render service")
	default:
	}
}

func TestInitializeSendsInitWithCredential(t *testing.T) {
	received := make(chan map[string]any, 8)
	auth := make(chan string, 1)
	url := newRenderServer(t, func(ws *websocket.Conn, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		readInto(ws, received)
	})

	surfaces := NewSurfaces()
	surface := &fakeSurface{}
	surfaces.Register("video", surface)

	conn, err := Initialize(context.Background(), "token_1", "video", WithURL(url), WithSurfaces(surfaces))
	if err != nil {
		t.Fatalf("expected initialize to succeed, got %v", err)
	}
	defer conn.Disconnect()

	if got := <-auth; got != "Bearer token_1" {
		t.Fatalf("expected bearer credential, got %q", got)
	}
	msg := expectMessage(t, received)
	audio, _ := msg["audio"].(map[string]any)
	if msg["type"] != "init" || msg["disable_input_audio"] != true {
		t.Fatalf("expected init with input audio disabled, got %v", msg)
	}
	if audio["encoding"] != "pcm_s16le" || audio["sample_rate"] != float64(16000) || audio["channels"] != float64(1) {
		t.Fatalf("expected 16kHz mono pcm_s16le, got %v", audio)
	}
}

func TestAudioIsSentInOrderAndSequenceEnds(t *testing.T) {
	received := make(chan map[string]any, 8)
	url := newRenderServer(t, func(ws *websocket.Conn, _ *http.Request) {
		readInto(ws, received)
	})

	surfaces := NewSurfaces()
	surface := &fakeSurface{}
	surfaces.Register("video", surface)

	conn, err := Initialize(context.Background(), "token", "video", WithURL(url), WithSurfaces(surfaces))
	if err != nil {
		t.Fatalf("expected initialize to succeed, got %v", err)
	}
	defer conn.Disconnect()
	expectMessage(t, received)

	for _, chunk := range []string{"AAA=", "AQE=", "AgI="} {
		if err := conn.SendAudioChunk(chunk); err != nil {
			t.Fatalf("expected chunk to be sent, got %v", err)
		}
	}
	if surface.last() != RenderSpeaking {
		t.Fatalf("expected surface to be speaking, got %s", surface.last())
	}
	if err := conn.EndSequence(); err != nil {
		t.Fatalf("expected end sequence to be sent, got %v", err)
	}

	for i, chunk := range []string{"AAA=", "AQE=", "AgI="} {
		msg := expectMessage(t, received)
		if msg["type"] != "agent_audio" || msg["audio"] != chunk || msg["sequence"] != float64(i+1) {
			t.Fatalf("expected chunk %d in order, got %v", i+1, msg)
		}
	}
	if msg := expectMessage(t, received); msg["type"] != "agent_audio_end" {
		t.Fatalf("expected end of sequence, got %v", msg)
	}
	if surface.last() != RenderIdle {
		t.Fatalf("expected surface to be idle, got %s", surface.last())
	}
}

func TestFailedSendLeavesSurfaceIdle(t *testing.T) {
	url := newRenderServer(t, func(ws *websocket.Conn, _ *http.Request) {
		readInto(ws, make(chan map[string]any, 8))
	})
	surfaces := NewSurfaces()
	surface := &fakeSurface{}
	surfaces.Register("video", surface)

	conn, err := Initialize(context.Background(), "token", "video", WithURL(url), WithSurfaces(surfaces))
	if err != nil {
		t.Fatalf("expected initialize to succeed, got %v", err)
	}
	defer conn.Disconnect()

	_ = conn.ws.Close()
	if err := conn.SendAudioChunk("AAA="); err == nil {
		t.Fatalf("expected send on a broken connection to fail")
	}

	conn.writeMu.Lock()
	speaking := conn.speaking
	conn.writeMu.Unlock()
	if speaking {
		t.Fatalf("expected failed send not to mark the avatar as speaking")
	}
	if surface.last() != RenderIdle {
		t.Fatalf("expected surface to stay idle, got %s", surface.last())
	}
}

func TestSendAfterDisconnectFails(t *testing.T) {
	url := newRenderServer(t, func(ws *websocket.Conn, _ *http.Request) {
		readInto(ws, make(chan map[string]any, 8))
	})
	surfaces := NewSurfaces()
	surfaces.Register("video", &fakeSurface{})

	conn, err := Initialize(context.Background(), "token", "video", WithURL(url), WithSurfaces(surfaces))
	if err != nil {
		t.Fatalf("expected initialize to succeed, got %v", err)
	}

	for range 3 {
		if err := conn.Disconnect(); err != nil {
			t.Fatalf("expected disconnect to succeed, got %v", err)
		}
	}
	if err := conn.SendAudioChunk("AAA="); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := conn.EndSequence(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRemoteCloseMakesSendsFail(t *testing.T) {
	url := newRenderServer(t, func(ws *websocket.Conn, _ *http.Request) {
		_, _, _ = ws.ReadMessage()
	})
	surfaces := NewSurfaces()
	surfaces.Register("video", &fakeSurface{})

	errs := make(chan error, 1)
	conn, err := Initialize(context.Background(), "token", "video",
		WithURL(url), WithSurfaces(surfaces), WithErrorCallback(func(err error) { errs <- err }))
	if err != nil {
		t.Fatalf("expected initialize to succeed, got %v", err)
	}

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for remote close")
	}
	if err := conn.SendAudioChunk("AAA="); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	select {
	case <-errs:
	default:
		t.Fatalf("expected the lost connection to be reported")
	}
}

func TestInboundRenderUpdatesReachSurface(t *testing.T) {
	url := newRenderServer(t, func(ws *websocket.Conn, _ *http.Request) {
		_, _, _ = ws.ReadMessage()
		_ = ws.WriteJSON(map[string]any{"type": "frame", "sequence": 1, "width": 640, "height": 360})
		_ = ws.WriteJSON(map[string]any{"type": "render_state", "state": "speaking"})
		_, _, _ = ws.ReadMessage()
	})
	surfaces := NewSurfaces()
	surface := &fakeSurface{}
	surfaces.Register("video", surface)

	conn, err := Initialize(context.Background(), "token", "video", WithURL(url), WithSurfaces(surfaces))
	if err != nil {
		t.Fatalf("expected initialize to succeed, got %v", err)
	}
	defer conn.Disconnect()

	deadline := time.Now().Add(2 * time.Second)
	for surface.last() != RenderSpeaking || surface.frameCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected a frame and speaking state, got %d frames and %s", surface.frameCount(), surface.last())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionIssuer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key_1" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var body struct {
			PersonaConfig struct {
				AvatarID               string `json:"avatarId"`
				EnableAudioPassthrough bool   `json:"enableAudioPassthrough"`
			} `json:"personaConfig"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !body.PersonaConfig.EnableAudioPassthrough {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"sessionToken": "session_" + body.PersonaConfig.AvatarID})
	}))
	defer server.Close()

	credential, err := NewSessionIssuer("key_1", WithSessionURL(server.URL)).Issue(context.Background(), "avatar_1")
	if err != nil {
		t.Fatalf("expected issue to succeed, got %v", err)
	}
	if credential.SessionToken != "session_avatar_1" {
		t.Fatalf("expected session token for avatar_1, got %q", credential.SessionToken)
	}

	if _, err := NewSessionIssuer("wrong", WithSessionURL(server.URL)).Issue(context.Background(), "avatar_1"); err == nil {
		t.Fatalf("expected rejected key to fail")
	}
	if _, err := NewSessionIssuer("").Issue(context.Background(), "avatar_1"); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func newRenderServer(t *testing.T, handle func(ws *websocket.Conn, r *http.Request)) string {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		handle(ws, r)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func readInto(ws *websocket.Conn, received chan<- map[string]any) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		received <- msg
	}
}

func expectMessage(t *testing.T, received <-chan map[string]any) map[string]any {
	t.Helper()
	select {
	case msg := <-received:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for message")
		return nil
	}
}

type fakeSurface struct {
	mu     sync.Mutex
	states []RenderState
	frames []Frame
}

func (s *fakeSurface) SetRenderState(state RenderState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func (s *fakeSurface) RenderFrame(frame Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
}

func (s *fakeSurface) last() RenderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.states) == 0 {
		return ""
	}
	return s.states[len(s.states)-1]
}

func (s *fakeSurface) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}
