package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"schoolPrint/internal/api/middleware"
	"schoolPrint/internal/records"
	"schoolPrint/internal/storage"
)

const maxAssetUploadBytes = 8 << 20

type assetStorage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	ListObjects(ctx context.Context, prefix string, limit int) ([]storage.ObjectMeta, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

type photoStore interface {
	SetStudentPhoto(ctx context.Context, schoolID, studentID uint, photoKey string) error
}

// uploadScanner 由 *clamd.Clamd 实现。
type uploadScanner interface {
	ScanStream(r io.Reader, abortchan chan bool) (chan *clamd.ScanResult, error)
}

// AssetHandler 负责学生照片与卡片背景图的上传与列举。
type AssetHandler struct {
	storage assetStorage
	photos  photoStore
	scanner uploadScanner
	logger  *slog.Logger
}

// NewAssetHandler 返回 AssetHandler 实例。scanner 为 nil 时上传不做病毒扫描。
func NewAssetHandler(storageClient assetStorage, photos photoStore, scanner uploadScanner, logger *slog.Logger) *AssetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetHandler{storage: storageClient, photos: photos, scanner: scanner, logger: logger}
}

// POST /v1/assets/upload  form: file, type=photo|background, studentId（可选）
// 上传成功后返回对象 key；带 studentId 的照片会同时写回学生记录。
func (h *AssetHandler) UploadAsset(c *gin.Context) {
	schoolID, ok := middleware.SchoolIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if file.Size <= 0 || file.Size > maxAssetUploadBytes {
		BadRequest(c, "file must be between 1 byte and 8 MiB")
		return
	}

	ext := strings.ToLower(path.Ext(file.Filename))
	name := uuid.NewString() + ext
	var objectKey string
	switch c.DefaultPostForm("type", "photo") {
	case "photo":
		objectKey = storage.PhotoKey(schoolID, name)
	case "background":
		objectKey = storage.BackgroundKey(schoolID, name)
	default:
		BadRequest(c, "type must be photo or background")
		return
	}
	if !storage.ValidObjectKey(storage.SchoolPrefix(schoolID), objectKey) {
		BadRequest(c, "unsupported image type")
		return
	}

	var studentID uint
	if raw := strings.TrimSpace(c.PostForm("studentId")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			BadRequest(c, "invalid studentId")
			return
		}
		studentID = uint(id)
	}

	if h.scanner != nil {
		clean, err := h.scan(file)
		if err != nil {
			h.logger.Error("scan file", slog.String("error", err.Error()))
			Internal(c, "failed to scan file")
			return
		}
		if !clean {
			BadRequest(c, "malicious file detected")
			return
		}
	}

	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	defer reader.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ctx := c.Request.Context()
	if _, err := h.storage.UploadFile(ctx, objectKey, reader, file.Size, contentType); err != nil {
		h.logger.Error("upload asset", slog.String("objectKey", objectKey), slog.String("error", err.Error()))
		Internal(c, "failed to upload file")
		return
	}

	if studentID != 0 {
		if err := h.photos.SetStudentPhoto(ctx, schoolID, studentID, objectKey); err != nil {
			if errors.Is(err, records.ErrStudentNotFound) {
				NotFound(c, "student not found")
				return
			}
			h.logger.Error("attach photo", slog.Uint64("studentId", uint64(studentID)), slog.String("error", err.Error()))
			Internal(c, "failed to attach photo")
			return
		}
	}

	c.JSON(http.StatusCreated, gin.H{"objectKey": objectKey})
}

// scan 把上传内容交给 clamd，只有全部结果为 RES_OK 才算干净。
func (h *AssetHandler) scan(file *multipart.FileHeader) (bool, error) {
	reader, err := file.Open()
	if err != nil {
		return false, fmt.Errorf("open upload: %w", err)
	}
	defer reader.Close()

	abort := make(chan bool)
	defer close(abort)
	results, err := h.scanner.ScanStream(reader, abort)
	if err != nil {
		return false, fmt.Errorf("scan stream: %w", err)
	}

	clean := true
	for result := range results {
		if result.Status != clamd.RES_OK {
			h.logger.Warn("upload rejected by scanner",
				slog.String("status", result.Status),
				slog.String("description", result.Description),
			)
			clean = false
		}
	}
	return clean, nil
}

// GET /v1/assets?limit=60
func (h *AssetHandler) ListAssets(c *gin.Context) {
	schoolID, ok := middleware.SchoolIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "60"))
	if err != nil || limit <= 0 {
		limit = 60
	}
	if limit > 200 {
		limit = 200
	}

	objects, err := h.storage.ListObjects(c.Request.Context(), storage.SchoolPrefix(schoolID), limit)
	if err != nil {
		h.logger.Error("list assets", slog.String("error", err.Error()))
		Internal(c, "failed to list assets")
		return
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	items := make([]gin.H, 0, len(objects))
	for _, obj := range objects {
		items = append(items, gin.H{
			"objectKey":    obj.Key,
			"size":         obj.Size,
			"lastModified": obj.LastModified,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// DELETE /v1/assets?key=schools/<id>/photos/x.png
// 只允许删除本校前缀下的图片；引用它的卡片之后按资源缺失渲染。
func (h *AssetHandler) DeleteAsset(c *gin.Context) {
	schoolID, ok := middleware.SchoolIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	key := strings.TrimSpace(c.Query("key"))
	if !storage.ValidObjectKey(storage.SchoolPrefix(schoolID), key) {
		BadRequest(c, "invalid key")
		return
	}

	if err := h.storage.DeleteObject(c.Request.Context(), key); err != nil {
		h.logger.Error("delete asset", slog.String("objectKey", key), slog.String("error", err.Error()))
		Internal(c, "failed to delete asset")
		return
	}
	c.Status(http.StatusNoContent)
}
