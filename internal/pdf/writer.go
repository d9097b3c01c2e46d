package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"regexp"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/tdewolff/canvas"
	canvaspdf "github.com/tdewolff/canvas/renderers/pdf"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// PtToMm 将 PDF point 换算为 canvas 使用的毫米。
const PtToMm = 25.4 / 72.0

const defaultStrokeWidth = 0.75

var (
	// ErrSinkWrite 表示输出目标写入失败，之后的任何写入都不会再成功。
	ErrSinkWrite = errors.New("pdf sink write failed")
	// ErrFinished 表示 Finish 之后仍有绘制调用。
	ErrFinished = errors.New("pdf writer already finished")
	// ErrNoPage 表示在 NewPage 之前就开始绘制。
	ErrNoPage = errors.New("pdf writer has no open page")
)

var hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Align 控制文本相对锚点的水平对齐方式。
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// TextStyle 描述单行文本的样式，Size 以 pt 为单位。
type TextStyle struct {
	Size  float64
	Color string
	Bold  bool
	Align Align
}

// RectStyle 描述矩形描边与填充，空字符串表示不填充。
type RectStyle struct {
	StrokeColor string
	StrokeWidth float64
	FillColor   string
}

// Meta 写入 PDF Info 字典。
type Meta struct {
	Title    string
	Subject  string
	Keywords string
	Author   string
	Creator  string
}

// Writer 以页为单位向 sink 流式输出 PDF。
// 坐标以 pt 为单位，原点在页面左上角，y 轴向下。
// 每页内容在下一页开始时写出，因此内存中最多只保留两页。
type Writer struct {
	sink   *sinkWriter
	width  float64
	height float64
	meta   Meta
	fonts  *fontSet

	doc      *canvaspdf.PDF
	page     *canvas.Canvas
	ctx      *canvas.Context
	pages    int
	finished bool
	finalErr error
}

// NewWriter 创建一个写入 sink 的 Writer，页面尺寸单位为 pt。
func NewWriter(sink io.Writer, pageWidth, pageHeight float64, meta Meta) *Writer {
	return &Writer{
		sink:   &sinkWriter{w: sink},
		width:  pageWidth,
		height: pageHeight,
		meta:   meta,
		fonts:  &fontSet{},
	}
}

// Pages 返回已开始的页数。
func (w *Writer) Pages() int {
	return w.pages
}

// BytesWritten 返回已写入 sink 的字节数。
func (w *Writer) BytesWritten() int64 {
	return w.sink.n
}

// NewPage 结束当前页（若有）并开始新的一页。
func (w *Writer) NewPage() error {
	if w.finished {
		return ErrFinished
	}
	if err := w.flushPage(); err != nil {
		return err
	}
	w.page = canvas.New(w.width*PtToMm, w.height*PtToMm)
	w.ctx = canvas.NewContext(w.page)
	w.ctx.SetCoordSystem(canvas.CartesianIV)
	w.pages++
	return nil
}

// DrawImage 把图片拉伸到 (x, y, width, height) 矩形内，不保持宽高比。
func (w *Writer) DrawImage(img image.Image, x, y, width, height float64) error {
	if err := w.ready(); err != nil {
		return err
	}
	if img == nil || width <= 0 || height <= 0 {
		return nil
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil
	}

	widthMM, heightMM := width*PtToMm, height*PtToMm
	dpmm := float64(bounds.Dx()) / widthMM
	targetHeight := int(math.Round(heightMM * dpmm))
	if targetHeight < 1 {
		targetHeight = 1
	}
	scaled := img
	if targetHeight != bounds.Dy() {
		scaled = imaging.Resize(img, bounds.Dx(), targetHeight, imaging.Lanczos)
	}
	w.ctx.DrawImage(x*PtToMm, y*PtToMm, scaled, canvas.DPMM(dpmm))
	return nil
}

// DrawText 绘制单行文本，y 为文本行顶部。
func (w *Writer) DrawText(s string, x, y float64, style TextStyle) error {
	if err := w.ready(); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	face, err := w.fonts.face(style)
	if err != nil {
		return err
	}

	align := canvas.Left
	switch style.Align {
	case AlignCenter:
		align = canvas.Center
	case AlignRight:
		align = canvas.Right
	}

	// 基线 = 行顶部 + 字体上升部
	baseline := y*PtToMm + face.Metrics().Ascent
	w.ctx.DrawText(x*PtToMm, baseline, canvas.NewTextLine(face, s, align))
	return nil
}

// DrawRect 绘制矩形边框，FillColor 非空时同时填充。
func (w *Writer) DrawRect(x, y, width, height float64, style RectStyle) error {
	if err := w.ready(); err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return nil
	}

	strokeWidth := style.StrokeWidth
	if strokeWidth <= 0 {
		strokeWidth = defaultStrokeWidth
	}
	if style.FillColor != "" {
		w.ctx.SetFillColor(parseColor(style.FillColor))
	} else {
		w.ctx.SetFillColor(color.RGBA{0, 0, 0, 0})
	}
	w.ctx.SetStrokeColor(parseColor(style.StrokeColor))
	w.ctx.SetStrokeWidth(strokeWidth * PtToMm)
	w.ctx.DrawPath(x*PtToMm, y*PtToMm, canvas.Rectangle(width*PtToMm, height*PtToMm))
	return nil
}

// Finish 写出最后一页与文档尾部。重复调用返回第一次的结果。
func (w *Writer) Finish() error {
	if w.finished {
		return w.finalErr
	}
	w.finished = true

	err := w.flushPage()
	if err == nil {
		err = w.sink.checkpoint()
	}
	if err == nil {
		if w.doc == nil {
			err = w.writeEmpty()
		} else if closeErr := w.doc.Close(); closeErr != nil {
			if w.sink.err != nil {
				err = w.sink.checkpoint()
			} else {
				err = fmt.Errorf("close pdf: %w", closeErr)
			}
		}
	}
	if err == nil {
		err = w.sink.checkpoint()
	}
	w.finalErr = err
	return err
}

func (w *Writer) ready() error {
	if w.finished {
		return ErrFinished
	}
	if w.ctx == nil {
		return ErrNoPage
	}
	return nil
}

// flushPage 把当前页交给底层 PDF 文档，并在每页之后刷新 sink。
func (w *Writer) flushPage() error {
	if w.page == nil {
		return nil
	}
	widthMM, heightMM := w.width*PtToMm, w.height*PtToMm
	if w.doc == nil {
		w.doc = canvaspdf.New(w.sink, widthMM, heightMM, nil)
		w.doc.SetInfo(w.meta.Title, w.meta.Subject, w.meta.Keywords, w.meta.Author, w.meta.Creator)
	} else {
		w.doc.NewPage(widthMM, heightMM)
	}
	w.page.RenderTo(w.doc)
	w.page, w.ctx = nil, nil
	return w.sink.checkpoint()
}

// writeEmpty 输出一个没有页面的合法 PDF。
func (w *Writer) writeEmpty() error {
	var buf bytes.Buffer
	offsets := make([]int, 0, 2)
	buf.WriteString("%PDF-1.7\n")
	offsets = append(offsets, buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	offsets = append(offsets, buf.Len())
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")
	xref := buf.Len()
	buf.WriteString("xref\n0 3\n0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 3 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)

	if _, err := w.sink.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkWrite, err)
	}
	return nil
}

func parseColor(value string) color.RGBA {
	if !hexColorPattern.MatchString(value) {
		return canvas.Black
	}
	return canvas.Hex(value)
}

// ValidColor 判断颜色是否为 #RRGGBB 格式。
func ValidColor(value string) bool {
	return hexColorPattern.MatchString(value)
}

type fontSet struct {
	once   sync.Once
	family *canvas.FontFamily
	err    error
}

func (f *fontSet) load() {
	family := canvas.NewFontFamily("Go")
	if err := family.LoadFont(goregular.TTF, 0, canvas.FontRegular); err != nil {
		f.err = fmt.Errorf("load regular font: %w", err)
		return
	}
	if err := family.LoadFont(gobold.TTF, 0, canvas.FontBold); err != nil {
		f.err = fmt.Errorf("load bold font: %w", err)
		return
	}
	f.family = family
}

func (f *fontSet) face(style TextStyle) (*canvas.FontFace, error) {
	f.once.Do(f.load)
	if f.err != nil {
		return nil, f.err
	}
	size := style.Size
	if size <= 0 {
		size = 10
	}
	fontStyle := canvas.FontRegular
	if style.Bold {
		fontStyle = canvas.FontBold
	}
	return f.family.Face(size, parseColor(style.Color), fontStyle, canvas.FontNormal), nil
}

// sinkWriter 统计写入字节数，并在第一次失败后保持错误状态。
type sinkWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (s *sinkWriter) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	n, err := s.w.Write(p)
	s.n += int64(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		s.err = err
	}
	return n, err
}

func (s *sinkWriter) checkpoint() error {
	if s.err != nil {
		return fmt.Errorf("%w: %w", ErrSinkWrite, s.err)
	}
	switch f := s.w.(type) {
	case interface{ Flush() error }:
		if err := f.Flush(); err != nil {
			s.err = err
			return fmt.Errorf("%w: %w", ErrSinkWrite, err)
		}
	case interface{ Flush() }:
		f.Flush()
	}
	return nil
}
