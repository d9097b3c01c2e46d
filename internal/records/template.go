package records

import (
	"errors"
	"fmt"
	"net/url"

	"schoolPrint/internal/pdf"
	"schoolPrint/internal/render"
	"schoolPrint/internal/storage"
)

// ErrInvalidTemplate 表示模板内容非法。
var ErrInvalidTemplate = errors.New("invalid template")

const maxInstructions = 12

var knownFields = map[string]bool{
	render.FieldPhoto:  true,
	render.FieldName:   true,
	render.FieldRollNo: true,
	render.FieldClass:  true,
	render.FieldCode:   true,
	render.FieldTable:  true,
}

// TemplateDocument 是模板在 API 与数据库之间的可编辑表示。
type TemplateDocument struct {
	Title        string                      `json:"title"`
	Background   string                      `json:"background,omitempty"`
	Fields       map[string]render.FieldSpec `json:"fields,omitempty"`
	Geometry     *render.Geometry            `json:"geometry,omitempty"`
	Instructions []string                    `json:"instructions,omitempty"`
}

// Validate 检查字段坐标、颜色、geometry 与背景图 key。
func (d TemplateDocument) Validate(schoolID uint) error {
	for name, spec := range d.Fields {
		if !knownFields[name] {
			return fmt.Errorf("%w: unknown field %q", ErrInvalidTemplate, name)
		}
		for _, v := range []*float64{spec.X, spec.Y} {
			if v != nil && (*v < 0 || *v > 1) {
				return fmt.Errorf("%w: field %q position must be within [0,1]", ErrInvalidTemplate, name)
			}
		}
		if spec.Color != "" && !pdf.ValidColor(spec.Color) {
			return fmt.Errorf("%w: field %q color must be #RRGGBB", ErrInvalidTemplate, name)
		}
		for _, v := range []*float64{spec.Width, spec.Height, spec.FontSize} {
			if v != nil && *v <= 0 {
				return fmt.Errorf("%w: field %q sizes must be positive", ErrInvalidTemplate, name)
			}
		}
	}
	if d.Geometry != nil {
		if err := d.Geometry.Validate(); err != nil {
			return err
		}
	}
	if len(d.Instructions) > maxInstructions {
		return fmt.Errorf("%w: at most %d instructions", ErrInvalidTemplate, maxInstructions)
	}
	if d.Background != "" {
		ref, ok := render.ParseAssetRef(d.Background)
		if !ok {
			return fmt.Errorf("%w: background reference is empty", ErrInvalidTemplate)
		}
		if ref.Source == render.SourceRemote && !remoteImageURL(ref.Location) {
			return fmt.Errorf("%w: background url must be http(s) or a site path", ErrInvalidTemplate)
		}
		if ref.Source == render.SourceStored && !storage.ValidObjectKey(storage.SchoolPrefix(schoolID), ref.Location) {
			return fmt.Errorf("%w: background key must be an image under %s", ErrInvalidTemplate, storage.SchoolPrefix(schoolID))
		}
	}
	return nil
}

// remoteImageURL 允许站内路径与 http(s) 绝对地址，主机白名单在取图时检查。
func remoteImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if !u.IsAbs() {
		return u.Host == ""
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
