package render

import (
	"fmt"
	"image"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"schoolPrint/internal/pdf"
)

const (
	placeholderStroke = "#9E9E9E"
	qrPixels          = 256
)

// compose 按固定图层顺序绘制一个实体：背景、照片、身份文字、文档类型专属区块。
// 任一步失败时该实体的剩余图层被跳过，卡片槽位不会被下一个实体占用。
func (p *renderPass) compose(entity Entity, origin Origin, item preparedEntity) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while composing: %v", r)
		}
	}()

	if err := p.drawBackground(origin, item.background); err != nil {
		return fmt.Errorf("draw background: %w", err)
	}
	if err := p.drawPortrait(origin, item.photo); err != nil {
		return fmt.Errorf("draw portrait: %w", err)
	}
	if err := p.drawIdentity(origin, entity); err != nil {
		return fmt.Errorf("draw identity: %w", err)
	}
	return p.program.drawBlock(p, origin, entity, item)
}

func (p *renderPass) drawBackground(origin Origin, img image.Image) error {
	if img != nil {
		return p.w.DrawImage(img, origin.X, origin.Y, p.geom.CardWidth, p.geom.CardHeight)
	}
	return p.w.DrawRect(origin.X, origin.Y, p.geom.CardWidth, p.geom.CardHeight, pdf.RectStyle{
		StrokeColor: placeholderStroke,
	})
}

// drawPortrait 照片缺失时不画任何占位。
func (p *renderPass) drawPortrait(origin Origin, img image.Image) error {
	if img == nil {
		return nil
	}
	return p.drawFieldImage(origin, FieldPhoto, img)
}

func (p *renderPass) drawIdentity(origin Origin, entity Entity) error {
	if err := p.drawFieldText(origin, FieldName, strings.ToUpper(strings.TrimSpace(entity.Name)), true); err != nil {
		return err
	}
	if entity.RollNo != "" {
		if err := p.drawFieldText(origin, FieldRollNo, "Roll No: "+entity.RollNo, false); err != nil {
			return err
		}
	}
	return p.drawFieldText(origin, FieldClass, classLabel(entity), false)
}

func (p *renderPass) drawCode(origin Origin, code image.Image) error {
	if code == nil {
		return nil
	}
	return p.drawFieldImage(origin, FieldCode, code)
}

func (p *renderPass) drawFieldImage(origin Origin, role string, img image.Image) error {
	field := p.tpl.Field(role)
	px, py := FieldPoint(field, p.geom.CardWidth, p.geom.CardHeight)
	w, h := FieldSize(field, p.geom.CardWidth, p.geom.CardHeight)
	return p.w.DrawImage(img, origin.X+px, origin.Y+py, w, h)
}

func (p *renderPass) drawFieldText(origin Origin, role, text string, bold bool) error {
	if text == "" {
		return nil
	}
	field := p.tpl.Field(role)
	px, py := FieldPoint(field, p.geom.CardWidth, p.geom.CardHeight)
	return p.w.DrawText(text, origin.X+px, origin.Y+py, pdf.TextStyle{
		Size:  field.FontSize,
		Color: field.Color,
		Bold:  bold,
	})
}

func classLabel(entity Entity) string {
	class := strings.TrimSpace(entity.Class)
	section := strings.TrimSpace(entity.Section)
	switch {
	case class == "":
		return ""
	case section == "":
		return "Class: " + class
	default:
		return "Class: " + class + " - " + section
	}
}

func qrImage(content string) (image.Image, error) {
	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	code.DisableBorder = true
	return code.Image(qrPixels), nil
}
