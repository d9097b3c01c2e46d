package render

// Origin 是某个实体在页面上的卡片左上角。
type Origin struct {
	X       float64
	Y       float64
	NewPage bool
	Page    int
	Slot    int
}

// CardOrigin 计算第 index 个实体的卡片位置，按行优先填充网格。
// geometry 须已通过 Validate。
func CardOrigin(index int, g Geometry) Origin {
	perPage := g.PerPage()
	if perPage <= 0 || index < 0 {
		return Origin{}
	}
	slot := index % perPage
	col := slot % g.Columns
	row := slot / g.Columns
	return Origin{
		X:       g.MarginX + float64(col)*(g.CardWidth+g.Gap),
		Y:       g.MarginY + float64(row)*(g.CardHeight+g.Gap),
		NewPage: index > 0 && slot == 0,
		Page:    index / perPage,
		Slot:    slot,
	}
}

// FieldPoint 把归一化字段坐标映射为相对卡片左上角的偏移。
// 坐标是卡片宽高的比例，不是页面的比例。
func FieldPoint(field ResolvedField, cardWidth, cardHeight float64) (float64, float64) {
	return field.X * cardWidth, field.Y * cardHeight
}

// FieldSize 返回字段在页面上的宽高；高度为 0 时按宽度取正方形。
func FieldSize(field ResolvedField, cardWidth, cardHeight float64) (float64, float64) {
	w := field.Width * cardWidth
	h := field.Height * cardHeight
	if h <= 0 {
		h = w
	}
	return w, h
}
