package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"

	"schoolPrint/internal/api/middleware"
	"schoolPrint/internal/auth"
	"schoolPrint/internal/records"
	"schoolPrint/internal/render"
	"schoolPrint/internal/storage"
)

const testSchoolID uint = 7

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testAuth 生成一次性 RSA 密钥，返回校验服务与一个有效令牌。
func testAuth(t *testing.T) (*auth.AuthService, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})

	svc, err := auth.NewAuthService(privatePEM, publicPEM, time.Hour)
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	token, err := svc.IssueToken(testSchoolID, "")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return svc, token
}

func newTestRouter(t *testing.T, register func(group *gin.RouterGroup)) (*gin.Engine, string) {
	t.Helper()
	svc, token := testAuth(t)
	router := gin.New()
	router.Use(middleware.CorrelationIDMiddleware(), middleware.SlogLoggerMiddleware(discardLogger()))
	group := router.Group("/v1")
	group.Use(middleware.AuthMiddleware(svc))
	register(group)
	return router, token
}

func authorized(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

type fakeRoster struct {
	entities    []render.Entity
	template    render.Template
	geometry    render.Geometry
	templateErr error
	listErr     error

	gotSchool uint
	gotFilter records.Filter
}

func (f *fakeRoster) ListStudents(_ context.Context, schoolID uint, filter records.Filter) ([]render.Entity, error) {
	f.gotSchool = schoolID
	f.gotFilter = filter
	return f.entities, f.listErr
}

func (f *fakeRoster) LoadTemplate(_ context.Context, schoolID uint, _ render.Kind) (render.Template, render.Geometry, error) {
	f.gotSchool = schoolID
	return f.template, f.geometry, f.templateErr
}

// fakeRenderer 写出 body 后返回 stats 与 err。
type fakeRenderer struct {
	body  string
	stats render.Stats
	err   error

	calls int
	job   render.Job
}

func (f *fakeRenderer) Render(_ context.Context, job render.Job, sink io.Writer) (render.Stats, error) {
	f.calls++
	f.job = job
	if f.body != "" {
		if _, err := io.WriteString(sink, f.body); err != nil {
			return f.stats, err
		}
	}
	return f.stats, f.err
}

type fakeCounter struct {
	mu      sync.Mutex
	counts  map[string]int64
	err     error
	expires int
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}}
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.counts[key]++
	cmd.SetVal(f.counts[key])
	return cmd
}

func (f *fakeCounter) Expire(ctx context.Context, _ string, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires++
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

type fakeTemplates struct {
	doc     records.TemplateDocument
	saveErr error
	saved   *records.TemplateDocument
}

func (f *fakeTemplates) GetTemplateDocument(_ context.Context, _ uint, _ render.Kind) (records.TemplateDocument, error) {
	return f.doc, nil
}

func (f *fakeTemplates) SaveTemplate(_ context.Context, schoolID uint, _ render.Kind, doc records.TemplateDocument) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if err := doc.Validate(schoolID); err != nil {
		return err
	}
	f.saved = &doc
	return nil
}

type fakeAssetStorage struct {
	uploaded map[string][]byte
	objects  []storage.ObjectMeta
	deleted  []string
}

func newFakeAssetStorage() *fakeAssetStorage {
	return &fakeAssetStorage{uploaded: map[string][]byte{}}
}

func (s *fakeAssetStorage) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) (*minio.UploadInfo, error) {
	b, _ := io.ReadAll(reader)
	s.uploaded[objectName] = b
	return &minio.UploadInfo{Key: objectName}, nil
}

func (s *fakeAssetStorage) ListObjects(_ context.Context, prefix string, limit int) ([]storage.ObjectMeta, error) {
	out := make([]storage.ObjectMeta, 0, limit)
	for _, obj := range s.objects {
		if len(out) >= limit {
			break
		}
		if len(obj.Key) >= len(prefix) && obj.Key[:len(prefix)] == prefix {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (s *fakeAssetStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.deleted = append(s.deleted, objectKey)
	delete(s.uploaded, objectKey)
	return nil
}

type fakePhotos struct {
	attached map[uint]string
}

func (f *fakePhotos) SetStudentPhoto(_ context.Context, _ uint, studentID uint, photoKey string) error {
	if studentID == 404 {
		return records.ErrStudentNotFound
	}
	if f.attached == nil {
		f.attached = map[uint]string{}
	}
	f.attached[studentID] = photoKey
	return nil
}

// fakeScanner 按给定状态返回 clamd 扫描结果，并记录读到的内容。
type fakeScanner struct {
	statuses []string
	err      error

	scanned []byte
	calls   int
}

func (f *fakeScanner) ScanStream(r io.Reader, _ chan bool) (chan *clamd.ScanResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.scanned, _ = io.ReadAll(r)
	results := make(chan *clamd.ScanResult, len(f.statuses))
	for _, status := range f.statuses {
		results <- &clamd.ScanResult{Status: status, Description: "stream: " + status}
	}
	close(results)
	return results, nil
}

var errBoom = errors.New("boom")
