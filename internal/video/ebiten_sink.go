package video

import (
	"fmt"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
)

// EbitenSink blits a guest pixel buffer to a host window. It owns the
// window's ebiten game loop and its backing image as one aggregate: both
// are created together in NewEbitenSink and destroyed together in Close,
// so neither can outlive the other.
type EbitenSink struct {
	cfg Config

	mu      sync.Mutex
	frame   []byte
	image   *ebiten.Image
	started bool
	closed  bool
	ready   chan struct{}
}

// game adapts EbitenSink to ebiten.Game without exposing ebiten's
// interface on the sink itself.
type game struct {
	sink *EbitenSink
}

func NewEbitenSink(cfg Config) (*EbitenSink, error) {
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("video: init_fb requires a non-zero width and height")
	}

	s := &EbitenSink{
		cfg:   cfg,
		image: ebiten.NewImage(int(cfg.Width), int(cfg.Height)),
		ready: make(chan struct{}, 1),
	}

	ebiten.SetWindowSize(int(cfg.Width), int(cfg.Height))
	ebiten.SetWindowTitle("nisvc")
	ebiten.SetWindowResizable(true)
	ebiten.SetRunnableOnUnfocused(true)

	go func() {
		// RunGame blocks for the life of the window. Its error is
		// discarded: the VM's main loop observes the window only through
		// WindowClosed.
		_ = ebiten.RunGame(&game{sink: s})
	}()

	return s, nil
}

func (s *EbitenSink) Present(pixels []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("video: present on closed sink")
	}
	s.frame = append(s.frame[:0], pixels...)
	return nil
}

func (s *EbitenSink) WindowClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *EbitenSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.image = nil
	s.frame = nil
	return nil
}

func (g *game) Update() error {
	if ebiten.IsWindowBeingClosed() {
		g.sink.mu.Lock()
		g.sink.closed = true
		g.sink.mu.Unlock()
		return ebiten.Termination
	}

	g.sink.mu.Lock()
	closed := g.sink.closed
	g.sink.mu.Unlock()
	if closed {
		return ebiten.Termination
	}
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	g.sink.mu.Lock()
	defer g.sink.mu.Unlock()
	if g.sink.closed || g.sink.image == nil {
		return
	}
	if len(g.sink.frame) > 0 {
		g.sink.image.WritePixels(g.sink.frame)
	}
	screen.DrawImage(g.sink.image, nil)
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return int(g.sink.cfg.Width), int(g.sink.cfg.Height)
}
