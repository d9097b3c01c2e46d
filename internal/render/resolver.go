package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultFetchTimeout  = 10 * time.Second
	defaultMaxAssetBytes = 8 << 20
)

var (
	errAssetTooLarge    = errors.New("asset exceeds size limit")
	errHostNotAllowed   = errors.New("asset host not allowed")
	errTooManyRedirects = errors.New("too many redirects")
)

const maxRedirects = 5

// AssetResolver 把资源引用解析为完整的字节内容。
// 任何失败都包装 ErrAssetUnavailable，调用方按"缺失"处理。
type AssetResolver interface {
	Resolve(ctx context.Context, ref AssetRef) ([]byte, error)
}

// BlobOpener 按 key 打开对象存储中的字节流。
type BlobOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// ResolverOptions configures HTTPResolver.
type ResolverOptions struct {
	// BaseURL is the origin used for relative remote references.
	BaseURL string
	// AllowedHosts lists extra hosts (host or host:port) that absolute remote
	// references may point at. The BaseURL host is always allowed.
	AllowedHosts []string
	Timeout      time.Duration
	MaxBytes     int64
	HTTPClient   *http.Client
}

// HTTPResolver 从远程 URL 或对象存储读取资源，自身不持有可变状态。
type HTTPResolver struct {
	client   *http.Client
	base     *url.URL
	allowed  map[string]bool
	blobs    BlobOpener
	timeout  time.Duration
	maxBytes int64
}

// NewResolver 创建资源解析器；blobs 为 nil 时 Stored 引用一律视为缺失。
func NewResolver(blobs BlobOpener, opts ResolverOptions) (*HTTPResolver, error) {
	r := &HTTPResolver{
		client:   opts.HTTPClient,
		blobs:    blobs,
		timeout:  opts.Timeout,
		maxBytes: opts.MaxBytes,
		allowed:  make(map[string]bool, len(opts.AllowedHosts)+1),
	}
	if r.client == nil {
		r.client = &http.Client{CheckRedirect: r.checkRedirect}
	}
	for _, host := range opts.AllowedHosts {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			r.allowed[host] = true
		}
	}
	if r.timeout <= 0 {
		r.timeout = defaultFetchTimeout
	}
	if r.maxBytes <= 0 {
		r.maxBytes = defaultMaxAssetBytes
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		parsed, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse asset base url: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("asset base url %q must be absolute", base)
		}
		r.base = parsed
		r.allowed[strings.ToLower(parsed.Host)] = true
	}
	return r, nil
}

// Resolve 是唯一的解析入口。
func (r *HTTPResolver) Resolve(ctx context.Context, ref AssetRef) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch ref.Source {
	case SourceRemote:
		data, err = r.fetchRemote(ctx, ref.Location)
	case SourceStored:
		data, err = r.readStored(ctx, ref.Location)
	default:
		err = errors.New("unknown asset source")
	}
	if err != nil {
		return nil, assetError(ref, err)
	}
	return data, nil
}

func (r *HTTPResolver) fetchRemote(ctx context.Context, raw string) ([]byte, error) {
	target, err := r.absoluteURL(raw)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("fetch %s: unexpected status %d", target, resp.StatusCode)
	}
	return readLimited(resp.Body, r.maxBytes)
}

func (r *HTTPResolver) readStored(ctx context.Context, key string) ([]byte, error) {
	if r.blobs == nil {
		return nil, errors.New("blob store not configured")
	}
	rc, err := r.blobs.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return readLimited(rc, r.maxBytes)
}

func (r *HTTPResolver) absoluteURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if !u.IsAbs() {
		if r.base == nil {
			return "", fmt.Errorf("relative url %q without base origin", raw)
		}
		u = r.base.ResolveReference(u)
	}
	if err := r.checkHost(u); err != nil {
		return "", err
	}
	return u.String(), nil
}

// checkHost 只允许 http(s) 且主机在白名单中的地址，租户模板不能让服务端访问任意主机。
func (r *HTTPResolver) checkHost(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", errHostNotAllowed, u.Scheme)
	}
	host := strings.ToLower(u.Host)
	if r.allowed[host] || r.allowed[strings.ToLower(u.Hostname())] {
		return nil
	}
	return fmt.Errorf("%w: %s", errHostNotAllowed, u.Host)
}

func (r *HTTPResolver) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errTooManyRedirects
	}
	return r.checkHost(req.URL)
}

func readLimited(rd io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(rd, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, errAssetTooLarge
	}
	return data, nil
}
