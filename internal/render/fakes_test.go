package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"schoolPrint/internal/pdf"
)

type drawOp struct {
	kind string
	text string
	x    float64
	y    float64
	w    float64
	h    float64
	page int
}

// recordingWriter 记录所有绘制调用，不产生真实输出。
type recordingWriter struct {
	ops         []drawOp
	pages       int
	finishCalls int
	// failFromPage makes NewPage fail once this many pages are open (0 disables).
	failFromPage int
	panicOnText  string
}

func (w *recordingWriter) NewPage() error {
	if w.failFromPage > 0 && w.pages >= w.failFromPage {
		return pdf.ErrSinkWrite
	}
	w.pages++
	return nil
}

func (w *recordingWriter) DrawImage(_ image.Image, x, y, width, height float64) error {
	w.ops = append(w.ops, drawOp{kind: "image", x: x, y: y, w: width, h: height, page: w.pages})
	return nil
}

func (w *recordingWriter) DrawText(s string, x, y float64, _ pdf.TextStyle) error {
	if w.panicOnText != "" && s == w.panicOnText {
		panic("cannot draw " + s)
	}
	w.ops = append(w.ops, drawOp{kind: "text", text: s, x: x, y: y, page: w.pages})
	return nil
}

func (w *recordingWriter) DrawRect(x, y, width, height float64, _ pdf.RectStyle) error {
	w.ops = append(w.ops, drawOp{kind: "rect", x: x, y: y, w: width, h: height, page: w.pages})
	return nil
}

func (w *recordingWriter) Finish() error {
	w.finishCalls++
	return nil
}

func (w *recordingWriter) Pages() int {
	return w.pages
}

func (w *recordingWriter) texts() []drawOp {
	var out []drawOp
	for _, op := range w.ops {
		if op.kind == "text" {
			out = append(out, op)
		}
	}
	return out
}

func (w *recordingWriter) find(kind string, x, y float64) (drawOp, bool) {
	for _, op := range w.ops {
		if op.kind == kind && near(op.x, x) && near(op.y, y) {
			return op, true
		}
	}
	return drawOp{}, false
}

type writerSpy struct {
	created int
	writer  *recordingWriter
	setup   func(w *recordingWriter)
}

func (s *writerSpy) factory(_ io.Writer, _, _ float64, _ pdf.Meta) Writer {
	s.created++
	s.writer = &recordingWriter{}
	if s.setup != nil {
		s.setup(s.writer)
	}
	return s.writer
}

// fakeResolver 以 ref.String() 为键返回预置的字节。
type fakeResolver struct {
	mu     sync.Mutex
	assets map[string][]byte
	calls  map[string]int
	total  atomic.Int64
	delay  func(ref AssetRef) time.Duration
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{assets: map[string][]byte{}, calls: map[string]int{}}
}

func (r *fakeResolver) Resolve(ctx context.Context, ref AssetRef) ([]byte, error) {
	r.total.Add(1)
	r.mu.Lock()
	r.calls[ref.String()]++
	data, ok := r.assets[ref.String()]
	r.mu.Unlock()

	if r.delay != nil {
		select {
		case <-time.After(r.delay(ref)):
		case <-ctx.Done():
			return nil, assetError(ref, ctx.Err())
		}
	}
	if !ok {
		return nil, assetError(ref, errors.New("not found"))
	}
	return data, nil
}

func (r *fakeResolver) callsFor(ref AssetRef) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[ref.String()]
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 20, G: 90, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-6 && d > -1e-6
}
