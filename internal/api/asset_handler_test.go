package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"

	"schoolPrint/internal/storage"
)

func assetRouter(t *testing.T, store *fakeAssetStorage, photos *fakePhotos, scanner uploadScanner) (*gin.Engine, string) {
	t.Helper()
	h := NewAssetHandler(store, photos, scanner, discardLogger())
	return newTestRouter(t, func(group *gin.RouterGroup) {
		group.GET("/assets", h.ListAssets)
		group.POST("/assets/upload", h.UploadAsset)
		group.DELETE("/assets", h.DeleteAsset)
	})
}

func newMultipartUpload(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write content: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestUploadAsset(t *testing.T) {
	cases := []struct {
		name       string
		filename   string
		fields     map[string]string
		status     int
		wantPrefix string
		attachedTo uint
	}{
		{name: "photo", filename: "bart.png", status: http.StatusCreated, wantPrefix: "schools/7/photos/"},
		{name: "background", filename: "bg.JPG", fields: map[string]string{"type": "background"}, status: http.StatusCreated, wantPrefix: "schools/7/backgrounds/"},
		{name: "photo attached to student", filename: "lisa.webp", fields: map[string]string{"studentId": "12"}, status: http.StatusCreated, wantPrefix: "schools/7/photos/", attachedTo: 12},
		{name: "unknown student", filename: "x.png", fields: map[string]string{"studentId": "404"}, status: http.StatusNotFound},
		{name: "bad student id", filename: "x.png", fields: map[string]string{"studentId": "abc"}, status: http.StatusBadRequest},
		{name: "unsupported type", filename: "notes.pdf", status: http.StatusBadRequest},
		{name: "unknown asset type", filename: "x.png", fields: map[string]string{"type": "logo"}, status: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeAssetStorage()
			photos := &fakePhotos{}
			router, token := assetRouter(t, store, photos, nil)

			body, contentType := newMultipartUpload(t, tc.filename, []byte("image-bytes"), tc.fields)
			req := authorized(httptest.NewRequest(http.MethodPost, "/v1/assets/upload", body), token)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if tc.status != http.StatusCreated {
				if tc.status == http.StatusBadRequest && len(store.uploaded) != 0 {
					t.Fatalf("rejected upload reached storage")
				}
				return
			}

			var resp struct {
				ObjectKey string `json:"objectKey"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !strings.HasPrefix(resp.ObjectKey, tc.wantPrefix) {
				t.Fatalf("object key %q outside %q", resp.ObjectKey, tc.wantPrefix)
			}
			if !storage.ValidObjectKey(storage.SchoolPrefix(testSchoolID), resp.ObjectKey) {
				t.Fatalf("object key %q is not a valid tenant key", resp.ObjectKey)
			}
			if string(store.uploaded[resp.ObjectKey]) != "image-bytes" {
				t.Fatalf("upload content mismatch")
			}
			if tc.attachedTo != 0 && photos.attached[tc.attachedTo] != resp.ObjectKey {
				t.Fatalf("photo not attached: %+v", photos.attached)
			}
		})
	}
}

func TestUploadAsset_VirusScan(t *testing.T) {
	cases := []struct {
		name    string
		scanner *fakeScanner
		status  int
	}{
		{name: "clean", scanner: &fakeScanner{statuses: []string{clamd.RES_OK}}, status: http.StatusCreated},
		{name: "infected", scanner: &fakeScanner{statuses: []string{clamd.RES_FOUND}}, status: http.StatusBadRequest},
		{name: "scanner error status", scanner: &fakeScanner{statuses: []string{clamd.RES_OK, clamd.RES_ERROR}}, status: http.StatusBadRequest},
		{name: "clamd unreachable", scanner: &fakeScanner{err: errBoom}, status: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeAssetStorage()
			router, token := assetRouter(t, store, &fakePhotos{}, tc.scanner)

			body, contentType := newMultipartUpload(t, "bart.png", []byte("image-bytes"), nil)
			req := authorized(httptest.NewRequest(http.MethodPost, "/v1/assets/upload", body), token)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if tc.scanner.calls != 1 {
				t.Fatalf("expected one scan, got %d", tc.scanner.calls)
			}
			if tc.scanner.err == nil && string(tc.scanner.scanned) != "image-bytes" {
				t.Fatalf("scanner saw %q", tc.scanner.scanned)
			}
			if tc.status != http.StatusCreated && len(store.uploaded) != 0 {
				t.Fatalf("rejected upload reached storage")
			}
			if tc.status == http.StatusCreated && len(store.uploaded) != 1 {
				t.Fatalf("clean upload did not reach storage")
			}
		})
	}
}

func TestUploadAsset_ScanSkippedForRejectedType(t *testing.T) {
	scanner := &fakeScanner{statuses: []string{clamd.RES_OK}}
	router, token := assetRouter(t, newFakeAssetStorage(), &fakePhotos{}, scanner)

	body, contentType := newMultipartUpload(t, "notes.pdf", []byte("%PDF"), nil)
	req := authorized(httptest.NewRequest(http.MethodPost, "/v1/assets/upload", body), token)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if scanner.calls != 0 {
		t.Fatalf("unsupported files should be rejected before scanning")
	}
}

func TestListAssets_TenantScopedNewestFirst(t *testing.T) {
	store := newFakeAssetStorage()
	now := time.Now()
	store.objects = []storage.ObjectMeta{
		{Key: "schools/7/photos/a.png", Size: 10, LastModified: now.Add(-time.Hour)},
		{Key: "schools/8/photos/b.png", Size: 10, LastModified: now},
		{Key: "schools/7/backgrounds/c.png", Size: 10, LastModified: now},
	}
	router, token := assetRouter(t, store, &fakePhotos{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authorized(httptest.NewRequest(http.MethodGet, "/v1/assets?limit=10", nil), token))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Items []struct {
			ObjectKey string `json:"objectKey"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 2 || resp.Items[0].ObjectKey != "schools/7/backgrounds/c.png" {
		t.Fatalf("unexpected items %+v", resp.Items)
	}
}

func TestDeleteAsset_TenantOnly(t *testing.T) {
	store := newFakeAssetStorage()
	router, token := assetRouter(t, store, &fakePhotos{}, nil)

	cases := map[string]int{
		"schools/7/photos/a.png":      http.StatusNoContent,
		"schools/8/photos/a.png":      http.StatusBadRequest,
		"schools/7/../8/photos/a.png": http.StatusBadRequest,
		"schools/7/photos/notes.txt":  http.StatusBadRequest,
	}
	for key, status := range cases {
		rec := httptest.NewRecorder()
		req := authorized(httptest.NewRequest(http.MethodDelete, "/v1/assets?key="+url.QueryEscape(key), nil), token)
		router.ServeHTTP(rec, req)
		if rec.Code != status {
			t.Fatalf("%s: expected %d, got %d", key, status, rec.Code)
		}
	}
	if len(store.deleted) != 1 || store.deleted[0] != "schools/7/photos/a.png" {
		t.Fatalf("unexpected deletions %v", store.deleted)
	}
}

func TestRenderLimiter(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()

	counter := newFakeCounter()
	limiter := NewRenderLimiter(counter, 1)
	limiter.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }

	if !limiter.Allow(ctx, 1, logger) {
		t.Fatalf("first request should pass")
	}
	if limiter.Allow(ctx, 1, logger) {
		t.Fatalf("second request in the same minute should be limited")
	}
	if !limiter.Allow(ctx, 2, logger) {
		t.Fatalf("other schools have their own window")
	}
	if counter.expires != 2 {
		t.Fatalf("expected ttl set once per key, got %d", counter.expires)
	}
	if counter.counts["render_rate:1:202403010930"] != 2 {
		t.Fatalf("unexpected counters %+v", counter.counts)
	}

	limiter.now = func() time.Time { return time.Date(2024, 3, 1, 9, 31, 0, 0, time.UTC) }
	if !limiter.Allow(ctx, 1, logger) {
		t.Fatalf("next minute should reset the window")
	}

	failing := newFakeCounter()
	failing.err = errBoom
	if !NewRenderLimiter(failing, 1).Allow(ctx, 1, logger) {
		t.Fatalf("redis errors must not block rendering")
	}
	if !NewRenderLimiter(nil, 1).Allow(ctx, 1, logger) {
		t.Fatalf("nil client disables limiting")
	}
}
