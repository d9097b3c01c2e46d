package render

import (
	"fmt"
	"strconv"

	"schoolPrint/internal/pdf"
)

// kindProgram 是每类文档的固定渲染程序，共享同一套排版与绘制原语。
type kindProgram interface {
	geometry(requested Geometry) Geometry
	origin(index int, g Geometry) Origin
	drawBlock(p *renderPass, origin Origin, entity Entity, item preparedEntity) error
	usesCode() bool
}

var programs = map[Kind]kindProgram{
	KindIDCard:      idCardProgram{},
	KindAdmitCard:   admitCardProgram{},
	KindResultSheet: resultSheetProgram{},
}

// Admit card page furniture, in points from the page's top-left corner.
const (
	admitHeaderTop      = 36.0
	admitAddressTop     = 60.0
	admitTitleTop       = 78.0
	admitRuleTop        = 100.0
	admitRuleInset      = 40.0
	admitFooterHeight   = 150.0
	admitFooterStride   = 14.0
	admitFooterInset    = 48.0
	admitInstitutionPt  = 18.0
	admitAddressPt      = 10.0
	admitTitlePt        = 14.0
	admitInstructionsPt = 9.0
)

// Result table layout.
const (
	resultRowStrideFactor = 2.0
	resultBottomMargin    = 60.0
	resultContinuationTop = 60.0
	resultHeaderFill      = "#EEEEEE"
)

var defaultInstructions = []string{
	"Bring this admit card to every examination.",
	"Report to the examination hall 30 minutes before the start.",
	"Electronic devices are not permitted in the examination hall.",
}

func fullPage(requested Geometry) Geometry {
	w, h := DefaultPageWidth, DefaultPageHeight
	if requested.PageWidth != 0 || requested.PageHeight != 0 {
		w, h = requested.PageWidth, requested.PageHeight
	}
	return FullPageGeometry(w, h)
}

// fullPageOrigin 绕过网格计算：每个实体独占一页。
func fullPageOrigin(index int, _ Geometry) Origin {
	return Origin{NewPage: index > 0, Page: index}
}

type idCardProgram struct{}

func (idCardProgram) geometry(requested Geometry) Geometry {
	if requested.IsZero() {
		return DefaultGridGeometry()
	}
	return requested
}

func (idCardProgram) origin(index int, g Geometry) Origin {
	return CardOrigin(index, g)
}

func (idCardProgram) drawBlock(p *renderPass, origin Origin, _ Entity, item preparedEntity) error {
	return p.drawCode(origin, item.code)
}

func (idCardProgram) usesCode() bool { return true }

type admitCardProgram struct{}

func (admitCardProgram) geometry(requested Geometry) Geometry {
	return fullPage(requested)
}

func (admitCardProgram) origin(index int, g Geometry) Origin {
	return fullPageOrigin(index, g)
}

func (admitCardProgram) drawBlock(p *renderPass, origin Origin, _ Entity, item preparedEntity) error {
	if err := drawAdmitHeader(p); err != nil {
		return fmt.Errorf("draw header: %w", err)
	}
	if err := p.drawCode(origin, item.code); err != nil {
		return fmt.Errorf("draw code: %w", err)
	}
	if err := drawAdmitFooter(p); err != nil {
		return fmt.Errorf("draw footer: %w", err)
	}
	return nil
}

func (admitCardProgram) usesCode() bool { return true }

// drawAdmitHeader 页眉位置固定，与模板的网格设置无关。
func drawAdmitHeader(p *renderPass) error {
	center := p.geom.PageWidth / 2
	color := DefaultColor
	inst := p.tpl.Institution
	if inst.Name != "" {
		if err := p.w.DrawText(inst.Name, center, admitHeaderTop, pdf.TextStyle{
			Size: admitInstitutionPt, Color: color, Bold: true, Align: pdf.AlignCenter,
		}); err != nil {
			return err
		}
	}
	if inst.Address != "" {
		if err := p.w.DrawText(inst.Address, center, admitAddressTop, pdf.TextStyle{
			Size: admitAddressPt, Color: color, Align: pdf.AlignCenter,
		}); err != nil {
			return err
		}
	}
	if err := p.w.DrawText(p.tpl.Title, center, admitTitleTop, pdf.TextStyle{
		Size: admitTitlePt, Color: color, Bold: true, Align: pdf.AlignCenter,
	}); err != nil {
		return err
	}
	return p.w.DrawRect(admitRuleInset, admitRuleTop, p.geom.PageWidth-2*admitRuleInset, 0.5, pdf.RectStyle{
		StrokeColor: color,
		FillColor:   color,
		StrokeWidth: 0.25,
	})
}

func drawAdmitFooter(p *renderPass) error {
	instructions := p.tpl.Instructions
	if len(instructions) == 0 {
		instructions = defaultInstructions
	}
	top := p.geom.PageHeight - admitFooterHeight
	if err := p.w.DrawText("Instructions", admitFooterInset, top, pdf.TextStyle{
		Size: admitInstructionsPt + 2, Color: DefaultColor, Bold: true,
	}); err != nil {
		return err
	}
	for i, line := range instructions {
		y := top + float64(i+1)*admitFooterStride + 4
		if err := p.w.DrawText(fmt.Sprintf("%d. %s", i+1, line), admitFooterInset, y, pdf.TextStyle{
			Size: admitInstructionsPt, Color: DefaultColor,
		}); err != nil {
			return err
		}
	}
	return nil
}

type resultSheetProgram struct{}

func (resultSheetProgram) geometry(requested Geometry) Geometry {
	return fullPage(requested)
}

func (resultSheetProgram) origin(index int, g Geometry) Origin {
	return fullPageOrigin(index, g)
}

func (resultSheetProgram) usesCode() bool { return false }

// drawBlock 绘制成绩表。第 i 行位于 headerY + (i+1)*stride；
// 超出页面底边距的行在新页继续，并重复表头。
func (resultSheetProgram) drawBlock(p *renderPass, origin Origin, entity Entity, _ preparedEntity) error {
	field := p.tpl.Field(FieldTable)
	px, py := FieldPoint(field, p.geom.CardWidth, p.geom.CardHeight)
	table := resultTable{
		x:      origin.X + px,
		width:  field.Width * p.geom.CardWidth,
		stride: field.FontSize * resultRowStrideFactor,
		style:  pdf.TextStyle{Size: field.FontSize, Color: field.Color},
	}
	bottom := p.geom.PageHeight - resultBottomMargin

	headerY := origin.Y + py
	if err := table.drawHeader(p, headerY); err != nil {
		return err
	}

	var total, maximum float64
	row := 0
	for _, result := range entity.Results {
		y := headerY + float64(row+1)*table.stride
		if y+table.stride > bottom {
			if err := p.newPage(); err != nil {
				return err
			}
			headerY = resultContinuationTop
			if err := table.drawHeader(p, headerY); err != nil {
				return err
			}
			row = 0
			y = headerY + table.stride
		}
		if err := table.drawRow(p, y, result); err != nil {
			return err
		}
		total += result.Marks
		maximum += result.MaxMarks
		row++
	}

	y := headerY + float64(row+1)*table.stride + table.stride/2
	if y+table.stride > bottom {
		if err := p.newPage(); err != nil {
			return err
		}
		y = resultContinuationTop
	}
	summary := style(table.style, true)
	return p.w.DrawText(summaryLine(total, maximum), table.x, y, summary)
}

type resultTable struct {
	x      float64
	width  float64
	stride float64
	style  pdf.TextStyle
}

// 列位置为表宽的比例：科目、得分、满分、等级。
var resultColumns = [4]float64{0, 0.50, 0.68, 0.84}

func (t resultTable) column(i int) float64 {
	return t.x + resultColumns[i]*t.width
}

func (t resultTable) drawHeader(p *renderPass, y float64) error {
	if err := p.w.DrawRect(t.x, y-t.stride*0.25, t.width, t.stride, pdf.RectStyle{
		StrokeColor: placeholderStroke,
		FillColor:   resultHeaderFill,
	}); err != nil {
		return err
	}
	bold := style(t.style, true)
	for i, label := range []string{"Subject", "Marks", "Max", "Grade"} {
		if err := p.w.DrawText(label, t.column(i)+4, y, bold); err != nil {
			return err
		}
	}
	return nil
}

func (t resultTable) drawRow(p *renderPass, y float64, r ResultRow) error {
	cells := []string{r.Subject, formatMarks(r.Marks), formatMarks(r.MaxMarks), r.Grade}
	for i, cell := range cells {
		if err := p.w.DrawText(cell, t.column(i)+4, y, t.style); err != nil {
			return err
		}
	}
	return nil
}

func style(base pdf.TextStyle, bold bool) pdf.TextStyle {
	base.Bold = bold
	return base
}

func summaryLine(total, maximum float64) string {
	if maximum <= 0 {
		return "Total: " + formatMarks(total)
	}
	return fmt.Sprintf("Total: %s / %s (%.2f%%)", formatMarks(total), formatMarks(maximum), total/maximum*100)
}

func formatMarks(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
