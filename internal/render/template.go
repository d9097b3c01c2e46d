package render

import (
	"maps"
	"slices"

	"schoolPrint/internal/pdf"
)

// Field roles understood by the composer.
const (
	FieldPhoto  = "photo"
	FieldName   = "name"
	FieldRollNo = "rollNo"
	FieldClass  = "class"
	FieldCode   = "code"
	FieldTable  = "table"
)

// Built-in text defaults.
const (
	DefaultFontSize     = 10.0
	DefaultNameFontSize = 14.0
	DefaultColor        = "#000000"
)

// FieldSpec 描述模板中单个字段的位置与样式。
// X/Y/Width/Height 都是卡片宽高的比例（0..1），未给出的值取角色默认值。
type FieldSpec struct {
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	FontSize *float64 `json:"fontSize,omitempty"`
	Color    string   `json:"color,omitempty"`
}

// Institution 出现在准考证页眉中。
type Institution struct {
	Name    string
	Address string
}

// Template 是租户的文档模板，渲染过程中只读。
type Template struct {
	Background   *AssetRef
	Fields       map[string]FieldSpec
	Institution  Institution
	Title        string
	Instructions []string
}

// ResolvedField 是合并默认值后的字段，所有值都是显式的。
type ResolvedField struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	FontSize float64 `json:"fontSize"`
	Color    string  `json:"color"`
}

// ResolvedTemplate 在每次渲染开始时由 Template 合并默认值生成一次。
type ResolvedTemplate struct {
	Background   *AssetRef
	Fields       map[string]ResolvedField
	Institution  Institution
	Title        string
	Instructions []string
}

// Field 返回角色对应的字段，未知角色返回零值。
func (t ResolvedTemplate) Field(role string) ResolvedField {
	return t.Fields[role]
}

var cardFieldDefaults = map[string]ResolvedField{
	FieldPhoto:  {X: 0.05, Y: 0.20, Width: 0.24, Height: 0.60},
	FieldName:   {X: 0.34, Y: 0.22, FontSize: DefaultNameFontSize},
	FieldRollNo: {X: 0.34, Y: 0.40, FontSize: DefaultFontSize},
	FieldClass:  {X: 0.34, Y: 0.52, FontSize: DefaultFontSize},
	FieldCode:   {X: 0.76, Y: 0.56, Width: 0.18},
	FieldTable:  {X: 0.05, Y: 0.70, Width: 0.90, FontSize: DefaultFontSize},
}

var admitFieldDefaults = map[string]ResolvedField{
	FieldPhoto:  {X: 0.74, Y: 0.15, Width: 0.18, Height: 0.16},
	FieldName:   {X: 0.08, Y: 0.16, FontSize: 16},
	FieldRollNo: {X: 0.08, Y: 0.21, FontSize: 12},
	FieldClass:  {X: 0.08, Y: 0.25, FontSize: 12},
	FieldCode:   {X: 0.08, Y: 0.31, Width: 0.16},
	FieldTable:  {X: 0.08, Y: 0.46, Width: 0.84, FontSize: DefaultFontSize},
}

var resultFieldDefaults = map[string]ResolvedField{
	FieldPhoto:  {X: 0.74, Y: 0.15, Width: 0.18, Height: 0.16},
	FieldName:   {X: 0.08, Y: 0.16, FontSize: 16},
	FieldRollNo: {X: 0.08, Y: 0.21, FontSize: 12},
	FieldClass:  {X: 0.08, Y: 0.25, FontSize: 12},
	FieldCode:   {X: 0.08, Y: 0.31, Width: 0.16},
	FieldTable:  {X: 0.08, Y: 0.36, Width: 0.84, FontSize: 11},
}

var defaultTitles = map[Kind]string{
	KindIDCard:      "IDENTITY CARD",
	KindAdmitCard:   "ADMIT CARD",
	KindResultSheet: "STATEMENT OF MARKS",
}

// DefaultFields 返回某类文档的内置字段默认值副本。
func DefaultFields(kind Kind) map[string]ResolvedField {
	switch kind {
	case KindAdmitCard:
		return maps.Clone(admitFieldDefaults)
	case KindResultSheet:
		return maps.Clone(resultFieldDefaults)
	default:
		return maps.Clone(cardFieldDefaults)
	}
}

// Resolve 合并模板与默认值，不修改 t。
func (t Template) Resolve(kind Kind) ResolvedTemplate {
	fields := DefaultFields(kind)
	for role, def := range fields {
		spec, ok := t.Fields[role]
		if !ok {
			if def.Color == "" {
				def.Color = DefaultColor
			}
			fields[role] = def
			continue
		}
		fields[role] = spec.merge(def)
	}

	title := t.Title
	if title == "" {
		title = defaultTitles[kind]
	}

	var background *AssetRef
	if t.Background != nil && t.Background.Location != "" {
		ref := *t.Background
		background = &ref
	}

	return ResolvedTemplate{
		Background:   background,
		Fields:       fields,
		Institution:  t.Institution,
		Title:        title,
		Instructions: slices.Clone(t.Instructions),
	}
}

func (s FieldSpec) merge(def ResolvedField) ResolvedField {
	out := ResolvedField{
		X:        def.X,
		Y:        def.Y,
		Width:    def.Width,
		Height:   def.Height,
		FontSize: def.FontSize,
		Color:    DefaultColor,
	}
	if s.X != nil {
		out.X = clampUnit(*s.X)
	}
	if s.Y != nil {
		out.Y = clampUnit(*s.Y)
	}
	if s.Width != nil && *s.Width > 0 {
		out.Width = *s.Width
	}
	if s.Height != nil && *s.Height > 0 {
		out.Height = *s.Height
	}
	if s.FontSize != nil && *s.FontSize > 0 {
		out.FontSize = *s.FontSize
	}
	if out.FontSize <= 0 {
		out.FontSize = DefaultFontSize
	}
	if pdf.ValidColor(s.Color) {
		out.Color = s.Color
	}
	return out
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
