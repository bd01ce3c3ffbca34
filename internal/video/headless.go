package video

// Headless is a no-op Sink for environments with no display: tests, CI,
// and batch runs that still need init_fb/draw_fb to succeed without a
// window.
type Headless struct {
	closed bool
}

func NewHeadless() *Headless {
	return &Headless{}
}

func (h *Headless) Present(pixels []byte) error {
	return nil
}

func (h *Headless) WindowClosed() bool {
	return h.closed
}

func (h *Headless) Close() error {
	h.closed = true
	return nil
}
