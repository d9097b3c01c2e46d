package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolPrint/internal/api/middleware"
	"schoolPrint/internal/errcode"
	"schoolPrint/internal/records"
	"schoolPrint/internal/render"
)

type templateStore interface {
	GetTemplateDocument(ctx context.Context, schoolID uint, kind render.Kind) (records.TemplateDocument, error)
	SaveTemplate(ctx context.Context, schoolID uint, kind render.Kind, doc records.TemplateDocument) error
}

// TemplateHandler 负责读取与保存学校的文档模板。
type TemplateHandler struct {
	store templateStore
}

func NewTemplateHandler(store templateStore) *TemplateHandler {
	return &TemplateHandler{store: store}
}

type templateResponse struct {
	Kind     render.Kind                     `json:"kind"`
	Template records.TemplateDocument        `json:"template"`
	Defaults map[string]render.ResolvedField `json:"defaults"`
}

// GET /v1/templates/:kind
// 未保存过模板时返回空模板，defaults 给出每个字段的默认位置。
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	schoolID, ok := middleware.SchoolIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	kind, ok := render.ParseKind(c.Param("kind"))
	if !ok {
		BadRequest(c, "unknown document kind")
		return
	}

	doc, err := h.store.GetTemplateDocument(c.Request.Context(), schoolID, kind)
	if err != nil {
		middleware.LoggerFromContext(c).Error("get template",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		Internal(c, "failed to load template")
		return
	}

	c.JSON(http.StatusOK, templateResponse{
		Kind:     kind,
		Template: doc,
		Defaults: render.DefaultFields(kind),
	})
}

// PUT /v1/templates/:kind
// 整体覆盖模板；字段、颜色、geometry 与背景 key 在写库前校验。
func (h *TemplateHandler) PutTemplate(c *gin.Context) {
	schoolID, ok := middleware.SchoolIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	kind, ok := render.ParseKind(c.Param("kind"))
	if !ok {
		BadRequest(c, "unknown document kind")
		return
	}

	var doc records.TemplateDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		BadRequest(c, err.Error())
		return
	}

	if err := h.store.SaveTemplate(c.Request.Context(), schoolID, kind, doc); err != nil {
		switch {
		case errors.Is(err, render.ErrInvalidGeometry):
			Error(c, http.StatusBadRequest, errcode.InvalidGeometry, err.Error())
		case errors.Is(err, records.ErrInvalidTemplate):
			BadRequest(c, err.Error())
		default:
			middleware.LoggerFromContext(c).Error("save template",
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()),
			)
			Internal(c, "failed to save template")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"kind": kind, "template": doc})
}
