package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"schoolPrint/internal/api/middleware"
	"schoolPrint/internal/errcode"
	"schoolPrint/internal/pdf"
	"schoolPrint/internal/records"
	"schoolPrint/internal/render"
)

const (
	missingAssetsTrailer = "X-Render-Missing-Assets"
	documentCreator      = "schoolPrint"
	maxIDsPerRequest     = 1000
)

type rosterStore interface {
	ListStudents(ctx context.Context, schoolID uint, filter records.Filter) ([]render.Entity, error)
	LoadTemplate(ctx context.Context, schoolID uint, kind render.Kind) (render.Template, render.Geometry, error)
}

type documentRenderer interface {
	Render(ctx context.Context, job render.Job, sink io.Writer) (render.Stats, error)
}

// DocumentHandler 把学生记录渲染成 PDF 并直接流式写入响应。
type DocumentHandler struct {
	store    rosterStore
	renderer documentRenderer
	limiter  *RenderLimiter
	now      func() time.Time
}

func NewDocumentHandler(store rosterStore, renderer documentRenderer, limiter *RenderLimiter) *DocumentHandler {
	return &DocumentHandler{
		store:    store,
		renderer: renderer,
		limiter:  limiter,
		now:      time.Now,
	}
}

// GET /v1/documents
func (h *DocumentHandler) ListKinds(c *gin.Context) {
	kinds := render.Kinds()
	items := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		items = append(items, string(kind))
	}
	c.JSON(http.StatusOK, gin.H{"kinds": items})
}

// GET /v1/documents/:kind?class=&section=&exam=&ids=1,2,3
// 响应头在渲染开始前写出；渲染中途失败时只能记录日志并截断响应。
func (h *DocumentHandler) RenderDocument(c *gin.Context) {
	logger := middleware.LoggerFromContext(c)

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

	filter, err := parseFilter(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	if kind == render.KindResultSheet && filter.Exam == "" {
		BadRequest(c, "exam is required for result sheets")
		return
	}

	ctx := c.Request.Context()
	if !h.limiter.Allow(ctx, schoolID, logger) {
		TooManyRequests(c, "too many render requests, try again later")
		return
	}

	tpl, geom, err := h.store.LoadTemplate(ctx, schoolID, kind)
	if err != nil {
		if errors.Is(err, records.ErrSchoolNotFound) {
			NotFound(c, "school not found")
			return
		}
		logger.Error("load template", slog.String("kind", string(kind)), slog.String("error", err.Error()))
		Internal(c, "failed to load template")
		return
	}

	entities, err := h.store.ListStudents(ctx, schoolID, filter)
	if err != nil {
		logger.Error("list students", slog.String("error", err.Error()))
		Internal(c, "failed to load students")
		return
	}

	job := render.Job{
		Kind:     kind,
		Entities: entities,
		Template: tpl,
		Geometry: geom,
		Meta: pdf.Meta{
			Title:    documentTitle(kind, tpl),
			Subject:  filterSubject(filter),
			Keywords: string(kind),
			Author:   tpl.Institution.Name,
			Creator:  documentCreator,
		},
	}
	if _, err := render.ValidateJob(job); err != nil {
		Error(c, http.StatusBadRequest, errcode.InvalidGeometry, err.Error())
		return
	}

	c.Header("Content-Type", render.ContentType)
	c.Header("Content-Disposition", `attachment; filename="`+render.Filename(kind, h.now())+`"`)
	c.Header("Trailer", missingAssetsTrailer)
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)

	stats, err := h.renderer.Render(ctx, job, c.Writer)
	if err != nil {
		logger.Error("render document",
			slog.String("kind", string(kind)),
			slog.String("error_kind", string(render.KindFromError(err))),
			slog.Int("pages", stats.Pages),
			slog.Int64("bytes", stats.Bytes),
			slog.String("error", err.Error()),
		)
		_ = c.Error(err)
		if !c.Writer.Written() {
			header := c.Writer.Header()
			header.Del("Content-Type")
			header.Del("Content-Disposition")
			header.Del("Trailer")
			header.Del("Cache-Control")
			Error(c, http.StatusInternalServerError, errcode.RenderFailed, "failed to render document")
		}
		c.Abort()
		return
	}

	c.Writer.Header().Set(missingAssetsTrailer, strconv.Itoa(stats.MissingAssets))
	logger.Info("document rendered",
		slog.String("kind", string(kind)),
		slog.Int("entities", stats.Entities),
		slog.Int("pages", stats.Pages),
		slog.Int("missing_assets", stats.MissingAssets),
		slog.Int("failed_entities", stats.FailedEntities),
		slog.Int64("bytes", stats.Bytes),
	)
}

func parseFilter(c *gin.Context) (records.Filter, error) {
	filter := records.Filter{
		Class:   strings.TrimSpace(c.Query("class")),
		Section: strings.TrimSpace(c.Query("section")),
		Exam:    strings.TrimSpace(c.Query("exam")),
	}
	raw := strings.TrimSpace(c.Query("ids"))
	if raw == "" {
		return filter, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) > maxIDsPerRequest {
		return records.Filter{}, errors.New("too many ids")
	}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil || id == 0 {
			return records.Filter{}, errors.New("ids must be positive integers")
		}
		filter.IDs = append(filter.IDs, uint(id))
	}
	return filter, nil
}

func documentTitle(kind render.Kind, tpl render.Template) string {
	if tpl.Title != "" {
		return tpl.Title
	}
	return tpl.Resolve(kind).Title
}

func filterSubject(filter records.Filter) string {
	var parts []string
	if filter.Class != "" {
		parts = append(parts, "class "+filter.Class)
	}
	if filter.Section != "" {
		parts = append(parts, "section "+filter.Section)
	}
	if filter.Exam != "" {
		parts = append(parts, filter.Exam)
	}
	return strings.Join(parts, ", ")
}
