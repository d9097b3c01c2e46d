package render

import (
	"image"
	"io"

	"schoolPrint/internal/pdf"
)

// Entity 是一条学生记录的只读快照，每个实体对应一张卡片或一页。
type Entity struct {
	ID      string
	Name    string
	RollNo  string
	Class   string
	Section string
	// Code overrides the QR payload; empty means "<ID>:<RollNo>".
	Code    string
	Photo   *AssetRef
	Exam    string
	Results []ResultRow
}

// ResultRow 是成绩单中的一行。
type ResultRow struct {
	Subject  string
	Marks    float64
	MaxMarks float64
	Grade    string
}

// QRContent 返回二维码内容。
func (e Entity) QRContent() string {
	if e.Code != "" {
		return e.Code
	}
	return e.ID + ":" + e.RollNo
}

// Job 是一次渲染的全部输入。
type Job struct {
	Kind     Kind
	Entities []Entity
	Template Template
	Geometry Geometry
	Meta     pdf.Meta
}

// Stats 汇总一次渲染的结果。
type Stats struct {
	Entities       int   `json:"entities"`
	Pages          int   `json:"pages"`
	MissingAssets  int   `json:"missingAssets"`
	FailedEntities int   `json:"failedEntities"`
	Bytes          int64 `json:"bytes"`
}

// Writer 是引擎驱动的底层文档原语，坐标单位为 pt。
type Writer interface {
	NewPage() error
	DrawImage(img image.Image, x, y, width, height float64) error
	DrawText(s string, x, y float64, style pdf.TextStyle) error
	DrawRect(x, y, width, height float64, style pdf.RectStyle) error
	Finish() error
	Pages() int
}

// WriterFactory creates the writer owned by one render pass.
type WriterFactory func(sink io.Writer, pageWidth, pageHeight float64, meta pdf.Meta) Writer

func newPDFWriter(sink io.Writer, pageWidth, pageHeight float64, meta pdf.Meta) Writer {
	return pdf.NewWriter(sink, pageWidth, pageHeight, meta)
}
