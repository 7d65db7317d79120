package avatar

import (
	"sync"
)

type RenderState string

const (
	RenderIdle     RenderState = "idle"
	RenderSpeaking RenderState = "speaking"
)

// Frame describes one video frame produced by the render service.
type Frame struct {
	Sequence  int    `json:"sequence"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Timestamp int64  `json:"timestamp_ms"`
	URL       string `json:"url,omitempty"`
}

// Surface is where the avatar is displayed.
type Surface interface {
	SetRenderState(state RenderState)
	RenderFrame(frame Frame)
}

// Surfaces maps render target ids to surfaces. A surface must be registered
// before a render channel targeting it is initialized.
type Surfaces struct {
	mu       sync.RWMutex
	surfaces map[string]Surface
}

var DefaultSurfaces = NewSurfaces()

func NewSurfaces() *Surfaces {
	return &Surfaces{surfaces: map[string]Surface{}}
}

func (s *Surfaces) Register(id string, surface Surface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surfaces[id] = surface
}

func (s *Surfaces) Lookup(id string) (Surface, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	surface, ok := s.surfaces[id]
	return surface, ok
}

func (s *Surfaces) Unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.surfaces, id)
}
