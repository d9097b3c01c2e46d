package render

import "fmt"

// Default page and grid values in points (A4 portrait).
const (
	DefaultPageWidth   = 595.0
	DefaultPageHeight  = 842.0
	DefaultCardWidth   = 250.0
	DefaultCardHeight  = 150.0
	DefaultMarginX     = 40.0
	DefaultMarginY     = 50.0
	DefaultGap         = 20.0
	DefaultColumns     = 2
	DefaultRowsPerPage = 5
)

// Geometry 描述页面与卡片网格，单位均为 pt。
// 卡片是否完全落在页面内不做校验。
type Geometry struct {
	PageWidth   float64 `json:"pageWidth"`
	PageHeight  float64 `json:"pageHeight"`
	CardWidth   float64 `json:"cardWidth"`
	CardHeight  float64 `json:"cardHeight"`
	MarginX     float64 `json:"marginX"`
	MarginY     float64 `json:"marginY"`
	Gap         float64 `json:"gap"`
	Columns     int     `json:"columns"`
	RowsPerPage int     `json:"rowsPerPage"`
}

// DefaultGridGeometry returns the 2×5 card grid used for ID cards.
func DefaultGridGeometry() Geometry {
	return Geometry{
		PageWidth:   DefaultPageWidth,
		PageHeight:  DefaultPageHeight,
		CardWidth:   DefaultCardWidth,
		CardHeight:  DefaultCardHeight,
		MarginX:     DefaultMarginX,
		MarginY:     DefaultMarginY,
		Gap:         DefaultGap,
		Columns:     DefaultColumns,
		RowsPerPage: DefaultRowsPerPage,
	}
}

// FullPageGeometry 每页一张"卡片"，卡片即整页。
func FullPageGeometry(pageWidth, pageHeight float64) Geometry {
	return Geometry{
		PageWidth:   pageWidth,
		PageHeight:  pageHeight,
		CardWidth:   pageWidth,
		CardHeight:  pageHeight,
		Columns:     1,
		RowsPerPage: 1,
	}
}

// IsZero reports whether no geometry was supplied.
func (g Geometry) IsZero() bool {
	return g == Geometry{}
}

// PerPage 每页卡片数。
func (g Geometry) PerPage() int {
	return g.Columns * g.RowsPerPage
}

// Validate 校验网格参数。
func (g Geometry) Validate() error {
	switch {
	case g.PageWidth <= 0 || g.PageHeight <= 0:
		return fmt.Errorf("%w: page size must be positive", ErrInvalidGeometry)
	case g.CardWidth <= 0 || g.CardHeight <= 0:
		return fmt.Errorf("%w: card size must be positive", ErrInvalidGeometry)
	case g.Columns < 1:
		return fmt.Errorf("%w: columns must be at least 1", ErrInvalidGeometry)
	case g.RowsPerPage < 1:
		return fmt.Errorf("%w: rows per page must be at least 1", ErrInvalidGeometry)
	case g.MarginX < 0 || g.MarginY < 0 || g.Gap < 0:
		return fmt.Errorf("%w: margins and gap must not be negative", ErrInvalidGeometry)
	}
	return nil
}
